package detector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedProber struct {
	mu      sync.Mutex
	results [][]string
	errs    []error
	idx     int
}

func (p *scriptedProber) Probe(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.idx
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	p.idx++
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	return p.results[i], err
}

type captor struct {
	mu     sync.Mutex
	events []core.Event
}

func (c *captor) emit(topic string, ev core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captor) all() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Event(nil), c.events...)
}

func newDetector(emit Emit) *Detector {
	cfg := &config.Config{}
	cfg.General.StreamRetryInterval = 30
	cfg.General.StreamMaxRetries = 10
	cfg.General.ContinuousMonitoringInterval = 120
	return New(cfg, emit, discard())
}

func statusOf(t *testing.T, ev core.Event) core.StreamStatus {
	t.Helper()
	st, ok := ev.Data.(core.StreamStatus)
	if !ok {
		t.Fatalf("payload is %T, not StreamStatus", ev.Data)
	}
	return st
}

func TestEmitsOnlyOnTransition(t *testing.T) {
	c := &captor{}
	d := newDetector(c.emit)
	p := probe{platform: core.PlatformTwitch, prober: &scriptedProber{
		results: [][]string{nil, {"s1"}, {"s1"}, nil, nil},
	}}

	for i := 0; i < 5; i++ {
		d.probeOnce(context.Background(), p)
	}

	events := c.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(events))
	}
	if st := statusOf(t, events[0]); !st.IsLive || len(st.StreamIDs) != 1 {
		t.Fatalf("first transition wrong: %+v", st)
	}
	if st := statusOf(t, events[1]); st.IsLive {
		t.Fatalf("second transition should be offline: %+v", st)
	}
}

func TestCoalescesMultipleStreamIDs(t *testing.T) {
	c := &captor{}
	d := newDetector(c.emit)
	p := probe{platform: core.PlatformYouTube, prober: &scriptedProber{
		results: [][]string{{"vid-b", "vid-a"}},
	}}

	d.probeOnce(context.Background(), p)

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 coalesced event, got %d", len(events))
	}
	st := statusOf(t, events[0])
	if len(st.StreamIDs) != 2 || st.StreamIDs[0] != "vid-a" || st.StreamIDs[1] != "vid-b" {
		t.Fatalf("stream ids not coalesced sorted: %v", st.StreamIDs)
	}
}

func TestNewStreamIDWhileLiveEmits(t *testing.T) {
	c := &captor{}
	d := newDetector(c.emit)
	p := probe{platform: core.PlatformYouTube, prober: &scriptedProber{
		results: [][]string{{"vid-a"}, {"vid-a", "vid-b"}},
	}}

	d.probeOnce(context.Background(), p)
	d.probeOnce(context.Background(), p)

	events := c.all()
	if len(events) != 2 {
		t.Fatalf("expected id change to emit, got %d events", len(events))
	}
	if st := statusOf(t, events[1]); !st.IsLive || len(st.StreamIDs) != 2 {
		t.Fatalf("second event wrong: %+v", st)
	}
}

func TestProbeErrorKeepsLastState(t *testing.T) {
	c := &captor{}
	d := newDetector(c.emit)
	p := probe{platform: core.PlatformTwitch, prober: &scriptedProber{
		results: [][]string{{"s1"}, nil, {"s1"}},
		errs:    []error{nil, errors.New("api down"), nil},
	}}

	d.probeOnce(context.Background(), p)
	d.probeOnce(context.Background(), p) // error, not an offline signal
	d.probeOnce(context.Background(), p)

	if got := len(c.all()); got != 1 {
		t.Fatalf("expected 1 event across error probe, got %d", got)
	}
	if !d.IsLive(core.PlatformTwitch) {
		t.Fatal("live state lost after failed probe")
	}
}

func TestOfflineStartEmitsNothing(t *testing.T) {
	c := &captor{}
	d := newDetector(c.emit)
	p := probe{platform: core.PlatformTikTok, prober: &scriptedProber{
		results: [][]string{nil, nil},
	}}

	d.probeOnce(context.Background(), p)
	d.probeOnce(context.Background(), p)

	if got := len(c.all()); got != 0 {
		t.Fatalf("offline start emitted %d events", got)
	}
}
