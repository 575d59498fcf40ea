package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAdapter struct {
	platform core.Platform

	mu        sync.Mutex
	failures  int // Initialize errors before succeeding
	initCalls int
	connected bool
	discCalls int
	initDelay time.Duration
}

func (f *fakeAdapter) Platform() core.Platform { return f.platform }

func (f *fakeAdapter) Initialize(ctx context.Context) error {
	if f.initDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.initDelay):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if f.failures > 0 {
		f.failures--
		return errors.New("handshake refused")
	}
	f.connected = true
	return nil
}

func (f *fakeAdapter) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discCalls++
	f.connected = false
	return nil
}

func (f *fakeAdapter) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeAdapter) ViewerCount(context.Context) (int, error) { return 0, nil }

func (f *fakeAdapter) calls() (init, disc int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls, f.discCalls
}

func TestConnectSuccess(t *testing.T) {
	c := NewController(3, discard())
	a := &fakeAdapter{platform: core.PlatformTwitch}
	c.Add(core.PlatformTwitch, a, false)

	c.Start(context.Background())

	if got := c.State(core.PlatformTwitch); got != StateConnected {
		t.Fatalf("state = %v, want connected", got)
	}
	h := c.Healths()[core.PlatformTwitch]
	if h.ConnectionTimeMs < 0 || h.LastError != "" {
		t.Fatalf("health wrong: %+v", h)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	c := NewController(2, discard())
	a := &fakeAdapter{platform: core.PlatformYouTube, failures: 100}
	c.Add(core.PlatformYouTube, a, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.connect(ctx, core.PlatformYouTube)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("connect loop did not give up")
	}
	if got := c.State(core.PlatformYouTube); got != StateDisconnected {
		t.Fatalf("state = %v, want disconnected", got)
	}
	if init, _ := a.calls(); init != 2 {
		t.Fatalf("init attempts = %d, want 2", init)
	}
	h := c.Healths()[core.PlatformYouTube]
	if h.LastError == "" {
		t.Fatal("exhausted platform lost its last error")
	}
}

func TestOnePlatformFailureIsolated(t *testing.T) {
	c := NewController(1, discard())
	bad := &fakeAdapter{platform: core.PlatformYouTube, failures: 100}
	good := &fakeAdapter{platform: core.PlatformTwitch}
	c.Add(core.PlatformYouTube, bad, false)
	c.Add(core.PlatformTwitch, good, false)

	c.Start(context.Background())

	if got := c.State(core.PlatformTwitch); got != StateConnected {
		t.Fatalf("healthy platform state = %v, want connected", got)
	}
	if got := c.State(core.PlatformYouTube); got != StateDisconnected {
		t.Fatalf("failing platform state = %v, want disconnected", got)
	}
}

func TestBackgroundInitDoesNotBlock(t *testing.T) {
	c := NewController(1, discard())
	slow := &fakeAdapter{platform: core.PlatformTikTok, initDelay: 200 * time.Millisecond}
	fast := &fakeAdapter{platform: core.PlatformTwitch}
	c.Add(core.PlatformTikTok, slow, true)
	c.Add(core.PlatformTwitch, fast, false)

	start := time.Now()
	c.Start(context.Background())
	if elapsed := time.Since(start); elapsed >= 200*time.Millisecond {
		t.Fatalf("foreground start blocked on background init: %v", elapsed)
	}
	if got := c.State(core.PlatformTwitch); got != StateConnected {
		t.Fatalf("foreground state = %v", got)
	}

	c.WaitForBackgroundInits()
	if got := c.State(core.PlatformTikTok); got != StateConnected {
		t.Fatalf("background state after wait = %v", got)
	}
}

func TestReconnectSkipsConnected(t *testing.T) {
	c := NewController(3, discard())
	a := &fakeAdapter{platform: core.PlatformTwitch}
	c.Add(core.PlatformTwitch, a, false)
	c.Start(context.Background())

	c.Reconnect(context.Background(), core.PlatformTwitch)
	time.Sleep(50 * time.Millisecond)

	if init, _ := a.calls(); init != 1 {
		t.Fatalf("reconnect re-initialized a connected adapter: %d calls", init)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	c := NewController(3, discard())
	a := &fakeAdapter{platform: core.PlatformTwitch}
	c.Add(core.PlatformTwitch, a, false)
	c.Start(context.Background())

	// simulate the adapter dropping
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	c.OnAdapterError(context.Background(), core.PlatformTwitch, errors.New("read: connection reset"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State(core.PlatformTwitch) == StateConnected {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := c.State(core.PlatformTwitch); got != StateConnected {
		t.Fatalf("state after reconnect = %v", got)
	}
	if init, _ := a.calls(); init != 2 {
		t.Fatalf("init calls = %d, want 2", init)
	}
}

func TestShutdownDisconnectsAll(t *testing.T) {
	c := NewController(3, discard())
	a1 := &fakeAdapter{platform: core.PlatformTwitch}
	a2 := &fakeAdapter{platform: core.PlatformYouTube}
	c.Add(core.PlatformTwitch, a1, false)
	c.Add(core.PlatformYouTube, a2, false)
	c.Start(context.Background())

	c.Shutdown()

	for _, a := range []*fakeAdapter{a1, a2} {
		if _, disc := a.calls(); disc != 1 {
			t.Fatalf("%s disconnect calls = %d, want 1", a.platform, disc)
		}
	}
	if got := c.State(core.PlatformTwitch); got != StateDisconnected {
		t.Fatalf("state after shutdown = %v", got)
	}
}
