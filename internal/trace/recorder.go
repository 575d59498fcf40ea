package trace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

// Recorder routes trace records to per-platform writers and keeps the raw
// capture files for unclassified payloads. A disabled recorder is a no-op,
// so call sites never need to check the debug flag themselves.
type Recorder struct {
	dir     string
	enabled bool
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	writers map[core.Platform]*Writer
}

func NewRecorder(dir string, enabled bool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("trace: create dir failed", "dir", dir, "err", err)
	}
	return &Recorder{
		dir:     dir,
		enabled: enabled,
		opts:    Options{BatchSize: 20, FlushInterval: 2 * time.Second},
		logger:  logger,
		writers: map[core.Platform]*Writer{},
	}
}

// Trace records one event for a platform.
func (r *Recorder) Trace(platform core.Platform, eventType string, data any) {
	if !r.enabled {
		return
	}
	w := r.writer(platform)
	rec := Record{Timestamp: time.Now().UTC(), EventType: eventType, Data: data}
	if err := w.Write(rec); err != nil {
		r.logger.Warn("trace: write failed", "platform", platform, "err", err)
	}
}

// Unknown appends a raw unclassified payload to the platform's capture
// file. Unlike traces these are written unconditionally; an unknown event
// is exactly the thing you want on disk when it happens in production.
func (r *Recorder) Unknown(platform core.Platform, raw string) {
	path := filepath.Join(r.dir, fmt.Sprintf("%s-unknown-events.txt", platform))
	line := fmt.Sprintf("%s %s\n", time.Now().UTC().Format(time.RFC3339), raw)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.logger.Warn("trace: open unknown capture failed", "platform", platform, "err", err)
		return
	}
	if _, err := f.WriteString(line); err != nil {
		r.logger.Warn("trace: unknown capture write failed", "platform", platform, "err", err)
	}
	f.Close()
}

func (r *Recorder) writer(platform core.Platform) *Writer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.writers[platform]; ok {
		return w
	}
	path := filepath.Join(r.dir, fmt.Sprintf("%s-events.jsonl", platform))
	w := NewWriter(path, r.opts)
	r.writers[platform] = w
	return w
}

// Close flushes and closes every writer.
func (r *Recorder) Close() {
	r.mu.Lock()
	writers := make([]*Writer, 0, len(r.writers))
	for _, w := range r.writers {
		writers = append(writers, w)
	}
	r.mu.Unlock()
	for _, w := range writers {
		if err := w.Close(); err != nil {
			r.logger.Warn("trace: close failed", "err", err)
		}
	}
}
