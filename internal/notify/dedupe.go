package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

const (
	dedupeWindow     = 30 * time.Second
	dedupeMaxEntries = 512
)

// deduper suppresses redelivered platform events. Keys combine platform,
// type and the platform event id; entries expire after the window and the
// table is capped so a chat storm cannot grow it without bound.
type deduper struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func newDeduper() *deduper {
	return &deduper{entries: map[string]time.Time{}, now: time.Now}
}

func dedupeKey(platform core.Platform, typ core.EventType, id string) string {
	return fmt.Sprintf("%s|%s|%s", platform, typ, id)
}

// Seen reports whether the key fired inside the window, recording it
// either way.
func (d *deduper) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if at, ok := d.entries[key]; ok && now.Sub(at) < dedupeWindow {
		return true
	}
	if len(d.entries) >= dedupeMaxEntries {
		d.evictLocked(now)
	}
	d.entries[key] = now
	return false
}

// evictLocked drops expired entries, falling back to the oldest entry when
// nothing has expired yet.
func (d *deduper) evictLocked(now time.Time) {
	var oldestKey string
	var oldestAt time.Time
	for k, at := range d.entries {
		if now.Sub(at) >= dedupeWindow {
			delete(d.entries, k)
			continue
		}
		if oldestKey == "" || at.Before(oldestAt) {
			oldestKey, oldestAt = k, at
		}
	}
	if len(d.entries) >= dedupeMaxEntries && oldestKey != "" {
		delete(d.entries, oldestKey)
	}
}
