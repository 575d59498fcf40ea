// Package router wires bus topics to their consumers: platform events to
// the notification manager, stream status to lifecycle and viewer
// tracking, and vfx commands to the effect engine with a recursion guard.
// It also owns the graceful-exit chat counter.
package router

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/git-blame-dev/stream-sync-sub005/internal/bus"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

// Notifier consumes normalized platform events.
type Notifier interface {
	HandleEvent(ev core.Event)
}

// Lifecycle is the slice of the platform controller the router drives.
type Lifecycle interface {
	Reconnect(ctx context.Context, platform core.Platform)
}

// Viewers is the slice of the viewer tracker the router feeds.
type Viewers interface {
	Record(platform core.Platform, count int)
	SetLive(platform core.Platform, live bool)
}

// VFXExecutor plays a resolved effect.
type VFXExecutor interface {
	Execute(ctx context.Context, platform core.Platform, cmd core.VFXCommand) error
}

type Router struct {
	bus       *bus.Bus
	notifier  Notifier
	lifecycle Lifecycle
	viewers   Viewers
	vfx       VFXExecutor
	logger    *slog.Logger

	chatTarget uint64
	chatCount  atomic.Uint64
	exit       func()
	exitOnce   sync.Once

	unsubs []func()
}

// New builds a router. chatTarget > 0 arms the graceful exit: once that
// many chat messages have been seen, exit is called exactly once.
func New(b *bus.Bus, notifier Notifier, lc Lifecycle, vw Viewers, vfx VFXExecutor, chatTarget int, exit func(), logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		bus:       b,
		notifier:  notifier,
		lifecycle: lc,
		viewers:   vw,
		vfx:       vfx,
		logger:    logger,
		exit:      exit,
	}
	if chatTarget > 0 {
		r.chatTarget = uint64(chatTarget)
	}
	return r
}

// Attach subscribes to the bus topics. ctx scopes the work handlers do,
// not the subscriptions themselves; call Detach to unsubscribe.
func (r *Router) Attach(ctx context.Context) error {
	subs := []struct {
		topic   string
		handler bus.Handler
	}{
		{core.TopicPlatformEvent, func(ev core.Event) { r.handlePlatformEvent(ev) }},
		{core.TopicStreamStatus, func(ev core.Event) { r.handleStreamStatus(ctx, ev) }},
		{core.TopicVFXCommand, func(ev core.Event) { r.handleVFXCommand(ctx, ev) }},
	}
	for _, s := range subs {
		unsub, err := r.bus.Subscribe(s.topic, s.handler)
		if err != nil {
			r.Detach()
			return err
		}
		r.unsubs = append(r.unsubs, unsub)
	}
	return nil
}

// Detach drops every subscription.
func (r *Router) Detach() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

// ChatCount reports how many chat messages have been routed.
func (r *Router) ChatCount() uint64 { return r.chatCount.Load() }

func (r *Router) handlePlatformEvent(ev core.Event) {
	if err := ev.Validate(); err != nil {
		r.logger.Warn("router: dropping invalid event", "err", err)
		return
	}
	switch ev.Type {
	case core.EventViewerCount:
		if vc, ok := ev.Data.(core.ViewerCount); ok && r.viewers != nil {
			r.viewers.Record(ev.Platform, vc.Count)
		}
		return
	case core.EventStreamStatus:
		// adapters publish status on its own topic; one arriving here is
		// a wiring bug worth noticing in the log
		r.logger.Warn("router: stream-status on platform event topic", "platform", ev.Platform)
		return
	case core.EventChatMessage:
		r.countChat()
	}
	r.notifier.HandleEvent(ev)
}

func (r *Router) countChat() {
	if r.chatTarget == 0 {
		return
	}
	n := r.chatCount.Add(1)
	if n == r.chatTarget {
		r.logger.Info("router: chat target reached, exiting", "count", n)
		r.exitOnce.Do(func() {
			if r.exit != nil {
				go r.exit()
			}
		})
	}
}

// handleStreamStatus fans one transition out to the viewer tracker and,
// on going live, the lifecycle controller. Malformed payloads are ignored.
func (r *Router) handleStreamStatus(ctx context.Context, ev core.Event) {
	st, ok := ev.Data.(core.StreamStatus)
	if !ok {
		r.logger.Warn("router: malformed stream-status payload", "platform", ev.Platform)
		return
	}
	if r.viewers != nil {
		r.viewers.SetLive(ev.Platform, st.IsLive)
	}
	if st.IsLive && r.lifecycle != nil {
		r.lifecycle.Reconnect(ctx, ev.Platform)
	}
}

// handleVFXCommand executes effect commands, ignoring copies the pipeline
// itself produced so a mirrored command can never loop.
func (r *Router) handleVFXCommand(ctx context.Context, ev core.Event) {
	cmd, ok := ev.Data.(core.VFXCommand)
	if !ok {
		r.logger.Warn("router: malformed vfx command payload")
		return
	}
	switch cmd.Context.Source {
	case core.VFXSourceEventBus, core.VFXSourceVFXService:
		return
	}
	if r.vfx == nil {
		return
	}
	if err := r.vfx.Execute(ctx, ev.Platform, cmd); err != nil {
		r.logger.Warn("router: vfx execute failed", "command", cmd.CommandKey, "err", err)
	}
}
