// Package lifecycle owns the per-platform connection state machine.
// Platforms move disabled → initializing → connecting → connected, fall
// into reconnecting on adapter errors, and land in disconnected when the
// retry budget runs out or the process shuts down. One platform's failure
// never touches another's.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/adapter"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

type State string

const (
	StateDisabled     State = "disabled"
	StateInitializing State = "initializing"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

const (
	backoffBase = time.Second
	backoffMax  = 60 * time.Second
)

type platformState struct {
	adapter    adapter.Adapter
	background bool

	state          State
	connectionTime int64 // ms since controller start; 0 until first connect
	lastErr        string
	connecting     bool
}

// Health is one platform's slice of the ready manifest.
type Health struct {
	State            State
	ConnectionTimeMs int64
	LastError        string
}

type Controller struct {
	logger     *slog.Logger
	maxRetries int
	startedAt  time.Time

	mu        sync.Mutex
	platforms map[core.Platform]*platformState

	bg sync.WaitGroup
}

func NewController(maxRetries int, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries <= 0 {
		maxRetries = 10
	}
	return &Controller{
		logger:     logger,
		maxRetries: maxRetries,
		startedAt:  time.Now(),
		platforms:  map[core.Platform]*platformState{},
	}
}

// Add registers an adapter. Background platforms initialize asynchronously
// so foreground connects are not blocked on them.
func (c *Controller) Add(platform core.Platform, a adapter.Adapter, background bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.platforms[platform] = &platformState{
		adapter:    a,
		background: background,
		state:      StateDisabled,
	}
}

// Start initializes every registered platform: foreground ones in order,
// background ones concurrently.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	var foreground, background []core.Platform
	for p, ps := range c.platforms {
		if ps.background {
			background = append(background, p)
		} else {
			foreground = append(foreground, p)
		}
	}
	c.mu.Unlock()

	for _, p := range background {
		c.bg.Add(1)
		go func(p core.Platform) {
			defer c.bg.Done()
			c.connect(ctx, p)
		}(p)
	}
	for _, p := range foreground {
		c.connect(ctx, p)
	}
}

// WaitForBackgroundInits blocks until every background platform has
// finished its first connect attempt, successful or not.
func (c *Controller) WaitForBackgroundInits() { c.bg.Wait() }

// Reconnect re-runs the connect loop for a platform, typically after the
// detector reports it went live. Connected or already-connecting
// platforms are left alone.
func (c *Controller) Reconnect(ctx context.Context, platform core.Platform) {
	c.mu.Lock()
	ps := c.platforms[platform]
	if ps == nil || ps.connecting || (ps.state == StateConnected && ps.adapter.IsConnected()) {
		c.mu.Unlock()
		return
	}
	ps.connecting = true
	c.mu.Unlock()

	go func() {
		defer c.clearConnecting(platform)
		c.reconnectLoop(ctx, platform)
	}()
}

// connect runs the first initialization for a platform, with the same
// backoff policy as reconnection.
func (c *Controller) connect(ctx context.Context, platform core.Platform) {
	c.mu.Lock()
	ps := c.platforms[platform]
	if ps == nil || ps.connecting {
		c.mu.Unlock()
		return
	}
	ps.connecting = true
	ps.state = StateInitializing
	c.mu.Unlock()

	defer c.clearConnecting(platform)
	c.reconnectLoop(ctx, platform)
}

func (c *Controller) clearConnecting(platform core.Platform) {
	c.mu.Lock()
	if ps := c.platforms[platform]; ps != nil {
		ps.connecting = false
	}
	c.mu.Unlock()
}

// reconnectLoop attempts Initialize with doubling backoff until success,
// budget exhaustion, or context cancellation.
func (c *Controller) reconnectLoop(ctx context.Context, platform core.Platform) {
	ps := c.get(platform)
	if ps == nil {
		return
	}
	delay := backoffBase
	for attempt := 1; ; attempt++ {
		c.setState(platform, StateConnecting, "")
		err := ps.adapter.Initialize(ctx)
		if err == nil {
			c.mu.Lock()
			ps.state = StateConnected
			ps.lastErr = ""
			if ps.connectionTime == 0 {
				ps.connectionTime = time.Since(c.startedAt).Milliseconds()
			}
			c.mu.Unlock()
			c.logger.Info("lifecycle: connected", "platform", platform, "attempt", attempt)
			return
		}
		if ctx.Err() != nil {
			c.setState(platform, StateDisconnected, err.Error())
			return
		}
		c.logger.Warn("lifecycle: connect failed", "platform", platform, "attempt", attempt, "err", err)
		if attempt >= c.maxRetries {
			c.setState(platform, StateDisconnected, err.Error())
			c.logger.Error("lifecycle: retry budget exhausted", "platform", platform)
			return
		}
		c.setState(platform, StateReconnecting, err.Error())
		select {
		case <-ctx.Done():
			c.setState(platform, StateDisconnected, ctx.Err().Error())
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > backoffMax {
			delay = backoffMax
		}
	}
}

// OnAdapterError moves a connected platform into reconnecting and starts
// its retry loop.
func (c *Controller) OnAdapterError(ctx context.Context, platform core.Platform, err error) {
	c.logger.Warn("lifecycle: adapter error", "platform", platform, "err", err)
	c.setState(platform, StateReconnecting, err.Error())
	c.Reconnect(ctx, platform)
}

// Shutdown disconnects every platform. Errors are logged, not returned;
// shutdown keeps going.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	adapters := make(map[core.Platform]adapter.Adapter, len(c.platforms))
	for p, ps := range c.platforms {
		adapters[p] = ps.adapter
		ps.state = StateDisconnected
	}
	c.mu.Unlock()

	for p, a := range adapters {
		if err := a.Disconnect(); err != nil {
			c.logger.Warn("lifecycle: disconnect failed", "platform", p, "err", err)
		}
	}
}

func (c *Controller) get(platform core.Platform) *platformState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.platforms[platform]
}

func (c *Controller) setState(platform core.Platform, s State, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps := c.platforms[platform]; ps != nil {
		ps.state = s
		ps.lastErr = errMsg
	}
}

// State returns a platform's current state, disabled when unknown.
func (c *Controller) State(platform core.Platform) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps := c.platforms[platform]; ps != nil {
		return ps.state
	}
	return StateDisabled
}

// Healths snapshots every platform for the ready manifest and the status
// endpoint.
func (c *Controller) Healths() map[core.Platform]Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[core.Platform]Health, len(c.platforms))
	for p, ps := range c.platforms {
		out[p] = Health{
			State:            ps.state,
			ConnectionTimeMs: ps.connectionTime,
			LastError:        ps.lastErr,
		}
	}
	return out
}
