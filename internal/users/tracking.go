// Package users tracks per-user chat activity for the current process.
// Nothing here is persisted; a restart forgets everyone.
package users

import (
	"sync"
	"time"
)

type Entry struct {
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
	MessageCount int
}

type Tracker struct {
	mu    sync.Mutex
	users map[string]*Entry
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{users: make(map[string]*Entry), now: time.Now}
}

// Record notes a message from userID and reports whether it is the user's
// first message this process has seen (the greeting trigger).
func (t *Tracker) Record(userID string) (first bool) {
	if userID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e, ok := t.users[userID]
	if !ok {
		t.users[userID] = &Entry{FirstSeenAt: now, LastSeenAt: now, MessageCount: 1}
		return true
	}
	e.LastSeenAt = now
	e.MessageCount++
	return false
}

func (t *Tracker) Lookup(userID string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.users[userID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}
