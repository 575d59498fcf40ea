// Package tiktokcast is the TikTok platform adapter. The webcast bridge
// speaks JSON frames over a websocket; each frame names its type and the
// adapter normalizes the known ones, captures the rest, and tracks the
// in-band viewer count.
package tiktokcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/git-blame-dev/stream-sync-sub005/internal/adapter"
	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

// UnknownSink receives raw frames the adapter cannot classify.
type UnknownSink interface {
	Unknown(platform core.Platform, raw string)
}

// frame is one webcast bridge message. Data is kept raw until the type is
// known.
type frame struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Adapter struct {
	url      string
	uniqueID string
	publish  adapter.Publisher
	logger   *slog.Logger
	self     adapter.SelfFilter
	unknown  UnknownSink

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	connected atomic.Bool
	viewers   atomic.Int64
	status    adapter.StatusLatch
}

// New builds the adapter. url points at the webcast bridge endpoint for
// the configured unique id.
func New(cfg *config.Config, url string, unknown UnknownSink, publish adapter.Publisher, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	pc := cfg.TikTok
	return &Adapter{
		url:      url,
		uniqueID: pc.Channel,
		publish:  publish,
		logger:   logger,
		self:     adapter.SelfFilter{OperatorUserID: pc.OperatorUserID, Username: pc.Username},
		unknown:  unknown,
	}
}

func (a *Adapter) Platform() core.Platform { return core.PlatformTikTok }

// Initialize dials the bridge and starts the read loop with reconnects.
// It returns once the first connection is up.
func (a *Adapter) Initialize(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	conn, err := a.dial(ctx)
	if err != nil {
		cancel()
		return err
	}
	done := make(chan struct{})

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	a.connected.Store(true)
	a.logger.Info("tiktokcast: connected", "user", a.uniqueID)
	go func() {
		defer close(done)
		a.run(runCtx, conn)
	}()
	return nil
}

func (a *Adapter) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, a.url, nil)
	if err != nil {
		return nil, fmt.Errorf("tiktokcast: dial: %w", err)
	}
	return conn, nil
}

// run reads frames off conn and reconnects with doubling backoff when the
// connection drops.
func (a *Adapter) run(ctx context.Context, conn *websocket.Conn) {
	defer a.connected.Store(false)
	backoff := time.Second
	for {
		err := a.readLoop(ctx, conn)
		a.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("tiktokcast: connection lost, reconnecting", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 60*time.Second {
			backoff = 60 * time.Second
		}
		conn, err = a.dial(ctx)
		if err != nil {
			a.logger.Warn("tiktokcast: redial failed", "err", err)
			conn = nil
			continue
		}
		a.connected.Store(true)
		backoff = time.Second
	}
}

func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) error {
	if conn == nil {
		return fmt.Errorf("tiktokcast: no connection")
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return err
		}
		a.handleFrame(f)
	}
}

func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.cancel = nil
	a.done = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	a.connected.Store(false)
	return nil
}

func (a *Adapter) IsConnected() bool { return a.connected.Load() }

// ViewerCount returns the last in-band roomUser reading; the bridge pushes
// it, so there is nothing to poll.
func (a *Adapter) ViewerCount(context.Context) (int, error) {
	return int(a.viewers.Load()), nil
}

// Probe reports liveness from the stream state frames the bridge sends.
func (a *Adapter) Probe(context.Context) ([]string, error) {
	if !a.status.Live() {
		return nil, nil
	}
	return []string{a.uniqueID}, nil
}
