// Package overlay speaks the overlay controller's websocket RPC protocol.
// The connection is long-lived with automatic reconnect; individual calls
// carry their own timeouts and fail fast while disconnected.
package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var (
	ErrNotConnected = errors.New("overlay: not connected")
	ErrCallTimeout  = errors.New("overlay: call timed out")
)

type Config struct {
	Address  string
	Password string
	// DialTimeout bounds a single connection attempt.
	DialTimeout time.Duration
}

// frame is the wire envelope in both directions.
type frame struct {
	Op      string          `json:"op"`
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Success bool            `json:"success,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type Client struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan frame
	nextID  atomic.Uint64

	connected atomic.Bool
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]chan frame),
	}
}

// Run maintains the connection until ctx is done, reconnecting with
// doubling backoff capped at 60s.
func (c *Client) Run(ctx context.Context) error {
	if c.cfg.Address == "" {
		return errors.New("overlay: address is required")
	}

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			c.logger.Warn("overlay: disconnected", "err", err, "retry_in", backoff)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			if backoff < 60*time.Second {
				backoff *= 2
				if backoff > 60*time.Second {
					backoff = 60 * time.Second
				}
			}
			continue
		}
		backoff = time.Second
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.cfg.Address, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutdown")

	if err := c.handshake(ctx, conn); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.logger.Info("overlay: connected", "address", c.cfg.Address)

	defer func() {
		c.connected.Store(false)
		c.mu.Lock()
		c.conn = nil
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
	}()

	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if f.Op != "response" {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) error {
	hsCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var hello frame
	if err := wsjson.Read(hsCtx, conn, &hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != "hello" {
		return fmt.Errorf("unexpected first frame %q", hello.Op)
	}

	auth, _ := json.Marshal(map[string]string{"password": c.cfg.Password})
	if err := wsjson.Write(hsCtx, conn, frame{Op: "auth", Data: auth}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	var identified frame
	if err := wsjson.Read(hsCtx, conn, &identified); err != nil {
		return fmt.Errorf("read identified: %w", err)
	}
	if identified.Op != "identified" {
		return fmt.Errorf("authentication rejected: %s", identified.Error)
	}
	return nil
}

func (c *Client) Connected() bool { return c.connected.Load() }

// call issues one request and waits for its response within timeout.
func (c *Client) call(ctx context.Context, reqType string, data any, timeout time.Duration) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	id := fmt.Sprintf("%d", c.nextID.Add(1))
	ch := make(chan frame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	payload, err := json.Marshal(data)
	if err != nil {
		c.dropPending(id)
		return fmt.Errorf("overlay: encode %s: %w", reqType, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := wsjson.Write(callCtx, conn, frame{Op: "request", ID: id, Type: reqType, Data: payload}); err != nil {
		c.dropPending(id)
		return fmt.Errorf("overlay: send %s: %w", reqType, err)
	}

	select {
	case <-callCtx.Done():
		c.dropPending(id)
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrCallTimeout, reqType)
		}
		return callCtx.Err()
	case resp, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		if !resp.Success {
			return fmt.Errorf("overlay: %s failed: %s", reqType, resp.Error)
		}
		return nil
	}
}

func (c *Client) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) SetTextSource(ctx context.Context, name, text string) error {
	return c.call(ctx, "SetTextSource", map[string]string{"name": name, "text": text}, 3*time.Second)
}

func (c *Client) SetSourceVisibility(ctx context.Context, scene, source string, visible bool) error {
	return c.call(ctx, "SetSourceVisibility", map[string]any{
		"scene": scene, "source": source, "visible": visible,
	}, 3*time.Second)
}

func (c *Client) SetCurrentProgramScene(ctx context.Context, name string) error {
	return c.call(ctx, "SetCurrentProgramScene", map[string]string{"name": name}, 5*time.Second)
}

func (c *Client) PlayMedia(ctx context.Context, source, file string) error {
	return c.call(ctx, "PlayMedia", map[string]string{"source": source, "file": file}, 8*time.Second)
}
