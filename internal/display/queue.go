// Package display schedules on-screen items. One consumer goroutine per
// surface pops by priority (FIFO within a priority), drives the overlay
// RPCs and the TTS plan, and clears the surface when the item's time is up.
package display

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
	"github.com/git-blame-dev/stream-sync-sub005/internal/tts"
)

const defaultBound = 25

var ErrQueueClosed = errors.New("display: queue closed")

// Overlay is the slice of the overlay client the queue drives.
type Overlay interface {
	SetTextSource(ctx context.Context, name, text string) error
	SetSourceVisibility(ctx context.Context, scene, source string, visible bool) error
}

// Emit publishes onto the bus; wired to bus.Emit by the runtime.
type Emit func(topic string, ev core.Event)

type Options struct {
	Bound      int // per surface; default 25
	TTSEnabled bool
}

type Queue struct {
	opts    Options
	overlay Overlay
	speaker tts.Engine
	emit    Emit
	logger  *slog.Logger

	chat    *surfaceRunner
	notif   *surfaceRunner
	nextSeq atomic.Uint64

	closed atomic.Bool

	displayed atomic.Uint64
	preempted atomic.Uint64
	dropped   atomic.Uint64
	rpcErrors atomic.Uint64
}

type activeDisplay struct {
	item   *Item
	cancel context.CancelFunc
}

type surfaceRunner struct {
	surface Surface
	mu      sync.Mutex
	heap    itemHeap
	current *activeDisplay
	wake    chan struct{}
}

func NewQueue(opts Options, ov Overlay, speaker tts.Engine, emit Emit, logger *slog.Logger) *Queue {
	if opts.Bound <= 0 {
		opts.Bound = defaultBound
	}
	if speaker == nil {
		speaker = tts.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		opts:    opts,
		overlay: ov,
		speaker: speaker,
		emit:    emit,
		logger:  logger,
		chat:    &surfaceRunner{surface: SurfaceChat, wake: make(chan struct{}, 1)},
		notif:   &surfaceRunner{surface: SurfaceNotification, wake: make(chan struct{}, 1)},
	}
}

// Start launches the two surface consumers; they stop when ctx is done.
func (q *Queue) Start(ctx context.Context) {
	go q.run(ctx, q.chat)
	go q.run(ctx, q.notif)
}

func (q *Queue) runner(s Surface) *surfaceRunner {
	if s == SurfaceChat {
		return q.chat
	}
	return q.notif
}

// Enqueue adds an item. On overflow the lowest-priority queued item loses
// its slot (the incoming item is the loser when nothing queued is below
// it). A preempting item displaces a visible lower-priority item; the
// displaced item is discarded, not re-queued.
func (q *Queue) Enqueue(item Item) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	item.seq = q.nextSeq.Add(1)
	r := q.runner(item.Surface)

	r.mu.Lock()
	if len(r.heap) >= q.opts.Bound {
		// evict the worst queued item strictly below the incoming one
		worst := -1
		for i := range r.heap {
			if r.heap[i].Priority <= item.Priority {
				continue
			}
			if worst == -1 || r.heap[i].Priority > r.heap[worst].Priority ||
				(r.heap[i].Priority == r.heap[worst].Priority && r.heap[i].seq > r.heap[worst].seq) {
				worst = i
			}
		}
		if worst == -1 {
			r.mu.Unlock()
			q.dropped.Add(1)
			q.logger.Warn("display: queue full, dropping incoming item",
				"surface", string(item.Surface), "id", item.ID, "priority", item.Priority)
			return nil
		}
		evicted := r.heap[worst]
		heap.Remove(&r.heap, worst)
		q.dropped.Add(1)
		q.logger.Warn("display: queue full, evicting lowest-priority item",
			"surface", string(item.Surface), "evicted_id", evicted.ID, "evicted_priority", evicted.Priority)
	}
	heap.Push(&r.heap, &item)

	if r.current != nil && item.Preempting && item.Priority < r.current.item.Priority {
		q.preempted.Add(1)
		q.logger.Info("display: preempting visible item",
			"surface", string(item.Surface),
			"preempted_id", r.current.item.ID,
			"by_id", item.ID)
		r.current.cancel()
	}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) run(ctx context.Context, r *surfaceRunner) {
	for {
		r.mu.Lock()
		if len(r.heap) == 0 {
			r.mu.Unlock()
			select {
			case <-ctx.Done():
				return
			case <-r.wake:
			}
			continue
		}
		item := heap.Pop(&r.heap).(*Item)
		dispCtx, cancel := context.WithCancel(ctx)
		r.current = &activeDisplay{item: item, cancel: cancel}
		r.mu.Unlock()

		q.display(dispCtx, item)
		cancel()

		r.mu.Lock()
		r.current = nil
		r.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
	}
}

// display shows one item for its full hold time (or until preempted).
func (q *Queue) display(ctx context.Context, item *Item) {
	if item.VFX != nil && q.emit != nil {
		cmd := core.VFXCommand{
			Command:    item.VFX.Command,
			CommandKey: item.VFX.CommandKey,
			Username:   item.VFX.Username,
			UserID:     item.VFX.UserID,
			Context: core.VFXContext{
				SkipCooldown:  true,
				CorrelationID: item.CorrelationID,
				Source:        core.VFXSourceDisplayQueue,
			},
		}
		ev := core.NewEvent(item.Platform, core.TypeVFXCommand, "", cmd)
		ev.CorrelationID = item.CorrelationID
		q.emit(core.TopicVFXCommand, ev)
	}

	if item.SourceName != "" {
		if err := q.overlay.SetTextSource(ctx, item.SourceName, item.Text); err != nil {
			q.rpcErrors.Add(1)
			q.logger.Warn("display: set text failed, skipping item", "id", item.ID, "err", err)
			return
		}
	}
	if item.GroupName != "" {
		if err := q.overlay.SetSourceVisibility(ctx, item.SceneName, item.GroupName, true); err != nil {
			q.rpcErrors.Add(1)
			q.logger.Warn("display: show group failed", "id", item.ID, "err", err)
		}
	}
	if item.LogoSource != "" {
		if err := q.overlay.SetSourceVisibility(ctx, item.SceneName, item.LogoSource, true); err != nil {
			q.rpcErrors.Add(1)
			q.logger.Warn("display: show logo failed", "id", item.ID, "err", err)
		}
	}
	q.displayed.Add(1)

	start := time.Now()
	q.speakStages(ctx, item)

	// hold for whatever remains of the display duration after speech
	hold := time.Duration(item.DurationMs)*time.Millisecond - time.Since(start)
	if hold > 0 {
		sleepContext(ctx, hold)
	}

	q.clear(item)
}

func (q *Queue) speakStages(ctx context.Context, item *Item) {
	if !q.opts.TTSEnabled {
		return
	}
	for _, stage := range item.TTSStages {
		if stage.Delay > 0 && !sleepContext(ctx, stage.Delay) {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := q.speaker.Speak(ctx, stage.Text); err != nil {
			q.logger.Warn("display: tts stage failed", "id", item.ID, "stage", stage.Name, "err", err)
			continue
		}
		// hold the floor while the engine is (approximately) speaking
		if d := q.speaker.EstimateDuration(stage.Text); d > 0 {
			if !sleepContext(ctx, d) {
				return
			}
		}
	}
}

// clear runs on a short background context so a preempted item still
// releases its surface even though its display context is gone.
func (q *Queue) clear(item *Item) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if item.SourceName != "" {
		if err := q.overlay.SetTextSource(ctx, item.SourceName, ""); err != nil {
			q.rpcErrors.Add(1)
			q.logger.Warn("display: clear text failed", "id", item.ID, "err", err)
		}
	}
	if item.GroupName != "" {
		if err := q.overlay.SetSourceVisibility(ctx, item.SceneName, item.GroupName, false); err != nil {
			q.rpcErrors.Add(1)
		}
	}
	if item.LogoSource != "" {
		if err := q.overlay.SetSourceVisibility(ctx, item.SceneName, item.LogoSource, false); err != nil {
			q.rpcErrors.Add(1)
		}
	}
}

// Depth reports queued (not visible) items across both surfaces.
func (q *Queue) Depth() int {
	total := 0
	for _, r := range []*surfaceRunner{q.chat, q.notif} {
		r.mu.Lock()
		total += len(r.heap)
		r.mu.Unlock()
	}
	return total
}

// Stats is a snapshot for the status listener.
type Stats struct {
	Depth     int
	Displayed uint64
	Preempted uint64
	Dropped   uint64
	RPCErrors uint64
}

func (q *Queue) Snapshot() Stats {
	return Stats{
		Depth:     q.Depth(),
		Displayed: q.displayed.Load(),
		Preempted: q.preempted.Load(),
		Dropped:   q.dropped.Load(),
		RPCErrors: q.rpcErrors.Load(),
	}
}

func (q *Queue) Close() { q.closed.Store(true) }

// sleepContext waits d or until ctx is done; reports whether the full wait
// elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
