// Package adapter defines the contract every platform transport implements
// plus the small helpers shared by all of them.
package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

var ErrNotConnected = errors.New("adapter: not connected")

// Publisher hands a normalized event to the pipeline. Adapters never talk
// to the bus directly; the runtime wires this to a bus emit.
type Publisher func(core.Event)

// Adapter is one platform connection. Implementations must never panic
// across this boundary; failures surface as error returns or error-flagged
// events.
type Adapter interface {
	Platform() core.Platform

	// Initialize authenticates and starts receiving. It returns once the
	// connection is established (or ctx is done); receive loops run in the
	// background until Disconnect.
	Initialize(ctx context.Context) error

	Disconnect() error

	IsConnected() bool

	// ViewerCount returns the current concurrent viewers, 0 when offline
	// or on failure.
	ViewerCount(ctx context.Context) (int, error)
}

// StatusLatch deduplicates live/offline transitions so an adapter reacts
// only to actual state changes, not repeated state frames.
type StatusLatch struct {
	mu   sync.Mutex
	set  bool
	live bool
}

// Transition records the new state and reports whether it differs from the
// previous one. The first observation always counts as a transition.
func (l *StatusLatch) Transition(live bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.set && l.live == live {
		return false
	}
	l.set = true
	l.live = live
	return true
}

func (l *StatusLatch) Live() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set && l.live
}

// SelfFilter drops the operator's own messages when configured.
type SelfFilter struct {
	OperatorUserID string
	Username       string
}

func (f SelfFilter) IsSelf(userID, username string) bool {
	if f.OperatorUserID != "" && userID != "" && f.OperatorUserID == userID {
		return true
	}
	if f.Username != "" && username != "" && strings.EqualFold(f.Username, username) {
		return true
	}
	return false
}
