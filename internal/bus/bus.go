// Package bus is the in-process event bus. Dispatch is synchronous: an Emit
// call runs every subscriber to completion, in subscription order, before
// returning. A panicking handler is logged and skipped; it never aborts the
// emission loop or unsubscribes the handler.
package bus

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

var (
	ErrBusClosed  = errors.New("bus: closed")
	ErrNilHandler = errors.New("bus: nil handler")
)

// softListenerLimit triggers a warning, not a refusal. A topic with this
// many subscribers almost always means a leaked subscription.
const softListenerLimit = 100

type Handler func(core.Event)

type subscriber struct {
	id      uint64
	handler Handler
}

type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	topics map[string][]*subscriber
	nextID uint64
	closed bool

	published     map[string]*atomic.Uint64
	handlerPanics atomic.Uint64
}

func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:    logger,
		topics:    make(map[string][]*subscriber),
		published: make(map[string]*atomic.Uint64),
	}
}

// Subscribe registers a handler and returns its unsubscribe func. The
// returned func is idempotent.
func (b *Bus) Subscribe(topic string, h Handler) (func(), error) {
	if h == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	b.nextID++
	sub := &subscriber{id: b.nextID, handler: h}
	b.topics[topic] = append(b.topics[topic], sub)

	if n := len(b.topics[topic]); n > softListenerLimit {
		b.logger.Warn("bus: listener count above soft limit", "topic", topic, "listeners", n)
	}

	var once sync.Once
	id := sub.id
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}, nil
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	for i, s := range subs {
		if s.id == id {
			b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit delivers ev to every subscriber of topic. A fresh correlation id is
// assigned when the caller did not supply one; callers forwarding a derived
// event keep the original id so a chain stays traceable.
func (b *Bus) Emit(topic string, ev core.Event) {
	if ev.CorrelationID == "" {
		ev.CorrelationID = uuid.NewString()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := b.topics[topic]
	snapshot := make([]*subscriber, len(subs))
	copy(snapshot, subs)
	counter := b.published[topic]
	b.mu.RUnlock()

	if counter == nil {
		b.mu.Lock()
		if counter = b.published[topic]; counter == nil {
			counter = &atomic.Uint64{}
			b.published[topic] = counter
		}
		b.mu.Unlock()
	}
	counter.Add(1)

	for _, s := range snapshot {
		b.dispatch(topic, s, ev)
	}
}

func (b *Bus) dispatch(topic string, s *subscriber, ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerPanics.Add(1)
			b.logger.Error("bus: handler panic",
				"topic", topic,
				"event_type", string(ev.Type),
				"correlation_id", ev.CorrelationID,
				"panic", r,
			)
		}
	}()
	s.handler(ev)
}

// Close drops all subscriptions. Emit and Subscribe become no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.topics = make(map[string][]*subscriber)
}

// Stats is a point-in-time snapshot used by the status listener.
type Stats struct {
	Published     map[string]uint64
	HandlerPanics uint64
	Subscribers   map[string]int
}

func (b *Bus) Snapshot() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		Published:     make(map[string]uint64, len(b.published)),
		Subscribers:   make(map[string]int, len(b.topics)),
		HandlerPanics: b.handlerPanics.Load(),
	}
	for topic, c := range b.published {
		st.Published[topic] = c.Load()
	}
	for topic, subs := range b.topics {
		st.Subscribers[topic] = len(subs)
	}
	return st
}
