// Package trace captures debug traces of normalized events as append-only
// JSONL files, one per platform, plus raw capture files for payloads the
// adapters could not classify. Writes are buffered and flushed by batch
// size or interval.
package trace

import (
	"bytes"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Record is one trace line.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"eventType"`
	Data      any       `json:"data,omitempty"`
}

type Options struct {
	BatchSize     int
	FlushInterval time.Duration
}

// Writer appends records to one JSONL file. A batch flush failure is
// remembered and surfaced on the next Write so callers on the hot path
// never block on disk errors.
type Writer struct {
	path          string
	batchSize     int
	flushInterval time.Duration

	mu      sync.Mutex
	buffer  []Record
	timer   *time.Timer
	closed  bool
	lastErr error
}

func NewWriter(path string, opts Options) *Writer {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 1
	}
	return &Writer{
		path:          path,
		batchSize:     batch,
		flushInterval: opts.FlushInterval,
	}
}

func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("trace: writer closed")
	}

	pendingErr := w.lastErr
	w.lastErr = nil

	w.buffer = append(w.buffer, rec)
	if len(w.buffer) == 1 && w.flushInterval > 0 {
		w.startTimerLocked()
	}

	if len(w.buffer) < w.batchSize {
		w.mu.Unlock()
		return pendingErr
	}

	recs := append([]Record(nil), w.buffer...)
	w.buffer = w.buffer[:0]
	w.stopTimerLocked()
	w.mu.Unlock()

	if err := w.writeAll(recs); err != nil {
		return err
	}
	return pendingErr
}

// Flush forces the buffer to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	recs := append([]Record(nil), w.buffer...)
	w.buffer = w.buffer[:0]
	w.stopTimerLocked()
	pendingErr := w.lastErr
	w.lastErr = nil
	w.mu.Unlock()

	if len(recs) > 0 {
		if err := w.writeAll(recs); err != nil {
			return err
		}
	}
	return pendingErr
}

func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.stopTimerLocked()
	recs := append([]Record(nil), w.buffer...)
	w.buffer = nil
	pendingErr := w.lastErr
	w.lastErr = nil
	w.mu.Unlock()

	if len(recs) > 0 {
		if err := w.writeAll(recs); err != nil {
			return err
		}
	}
	return pendingErr
}

func (w *Writer) onTimer() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if len(w.buffer) == 0 {
		w.timer = nil
		w.mu.Unlock()
		return
	}
	recs := append([]Record(nil), w.buffer...)
	w.buffer = w.buffer[:0]
	w.timer = nil
	w.mu.Unlock()

	if err := w.writeAll(recs); err != nil {
		w.mu.Lock()
		w.lastErr = err
		w.mu.Unlock()
	}
}

func (w *Writer) startTimerLocked() {
	if w.flushInterval <= 0 {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.flushInterval, w.onTimer)
}

func (w *Writer) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Writer) writeAll(recs []Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return errors.Wrap(err, "trace: encode record")
		}
	}
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "trace: open %s", w.path)
	}
	_, werr := f.Write(buf.Bytes())
	cerr := f.Close()
	if werr != nil {
		return errors.Wrapf(werr, "trace: append %s", w.path)
	}
	if cerr != nil {
		return errors.Wrapf(cerr, "trace: close %s", w.path)
	}
	return nil
}
