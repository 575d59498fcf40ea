// Package viewers keeps the per-platform concurrent viewer counts. Counts
// arrive two ways: pushed by adapters whose feed carries them, and pulled
// on an interval from adapters that expose a count endpoint. Only live
// platforms are polled.
package viewers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

// Source is the slice of a platform adapter the poller needs.
type Source interface {
	ViewerCount(ctx context.Context) (int, error)
}

// Observer is called after every recorded count, outside the tracker's
// lock.
type Observer func(platform core.Platform, count, prev int)

type Tracker struct {
	interval time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	counts    map[core.Platform]int
	live      map[core.Platform]bool
	sources   map[core.Platform]Source
	failed    map[core.Platform]bool
	observers []Observer
}

func NewTracker(interval time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Tracker{
		interval: interval,
		logger:   logger,
		counts:   map[core.Platform]int{},
		live:     map[core.Platform]bool{},
		sources:  map[core.Platform]Source{},
		failed:   map[core.Platform]bool{},
	}
}

// Register binds a pollable count source for a platform.
func (t *Tracker) Register(platform core.Platform, src Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources[platform] = src
}

// Observe adds an observer for count changes.
func (t *Tracker) Observe(obs Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, obs)
}

// Record stores a fresh count for a platform and notifies observers,
// even when the count is unchanged. Negative counts are treated as zero.
func (t *Tracker) Record(platform core.Platform, count int) {
	if count < 0 {
		count = 0
	}
	t.mu.Lock()
	prev := t.counts[platform]
	t.counts[platform] = count
	t.failed[platform] = false
	observers := append([]Observer(nil), t.observers...)
	t.mu.Unlock()

	for _, obs := range observers {
		obs(platform, count, prev)
	}
}

// reset zeroes a platform's count after persistent poll failures. Unlike
// Record it leaves the failure flag set, so recovery still requires a
// successful poll.
func (t *Tracker) reset(platform core.Platform) {
	t.mu.Lock()
	prev := t.counts[platform]
	t.counts[platform] = 0
	observers := append([]Observer(nil), t.observers...)
	t.mu.Unlock()

	for _, obs := range observers {
		obs(platform, 0, prev)
	}
}

// SetLive updates a platform's live state. Going offline zeroes its count
// immediately rather than waiting for the next poll.
func (t *Tracker) SetLive(platform core.Platform, live bool) {
	t.mu.Lock()
	t.live[platform] = live
	t.mu.Unlock()
	if !live {
		t.Record(platform, 0)
	}
}

// Count returns the last known count for a platform.
func (t *Tracker) Count(platform core.Platform) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[platform]
}

// Total sums the counts across all platforms.
func (t *Tracker) Total() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sum := 0
	for _, c := range t.counts {
		sum += c
	}
	return sum
}

// Snapshot returns a copy of the per-platform counts.
func (t *Tracker) Snapshot() map[core.Platform]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[core.Platform]int, len(t.counts))
	for p, c := range t.counts {
		out[p] = c
	}
	return out
}

// Start runs the poll loop until ctx is done.
func (t *Tracker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.poll(ctx)
			}
		}
	}()
}

// poll queries every live platform's source. The first failed poll keeps
// the last known count for one interval; a second consecutive failure
// resets the count to zero.
func (t *Tracker) poll(ctx context.Context) {
	t.mu.RLock()
	targets := make(map[core.Platform]Source)
	for p, src := range t.sources {
		if t.live[p] {
			targets[p] = src
		}
	}
	t.mu.RUnlock()

	for p, src := range targets {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		count, err := src.ViewerCount(callCtx)
		cancel()
		if err != nil {
			t.logger.Warn("viewers: poll failed", "platform", p, "err", err)
			t.mu.Lock()
			repeat := t.failed[p]
			t.failed[p] = true
			t.mu.Unlock()
			if repeat {
				t.reset(p)
			}
			continue
		}
		t.Record(p, count)
	}
}
