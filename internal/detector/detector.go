// Package detector probes platforms for live streams. Each enabled
// platform gets its own probe loop: quick retries while waiting for the
// first detection, then a slower continuous cadence. Status events are
// emitted only on live/offline transitions.
package detector

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

// Prober answers whether a platform is currently live and with which
// stream ids. An empty id list with a nil error means offline.
type Prober interface {
	Probe(ctx context.Context) (streamIDs []string, err error)
}

// Emit publishes a stream-status event. The detector never emits the same
// state twice in a row for a platform.
type Emit func(topic string, ev core.Event)

type probe struct {
	platform core.Platform
	prober   Prober
}

type Detector struct {
	retryInterval   time.Duration
	maxRetries      int
	monitorInterval time.Duration
	emit            Emit
	logger          *slog.Logger

	probes []probe

	mu   sync.Mutex
	live map[core.Platform]bool
	ids  map[core.Platform][]string

	wg sync.WaitGroup
}

func New(cfg *config.Config, emit Emit, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		retryInterval:   time.Duration(cfg.General.StreamRetryInterval) * time.Second,
		maxRetries:      cfg.General.StreamMaxRetries,
		monitorInterval: time.Duration(cfg.General.ContinuousMonitoringInterval) * time.Second,
		emit:            emit,
		logger:          logger,
		live:            map[core.Platform]bool{},
		ids:             map[core.Platform][]string{},
	}
}

// Register adds a platform probe. Platforms with detection disabled are
// simply never registered.
func (d *Detector) Register(platform core.Platform, p Prober) {
	d.probes = append(d.probes, probe{platform: platform, prober: p})
}

// Start launches one probe loop per registered platform.
func (d *Detector) Start(ctx context.Context) {
	for _, p := range d.probes {
		d.wg.Add(1)
		go func(p probe) {
			defer d.wg.Done()
			d.run(ctx, p)
		}(p)
	}
}

// Wait blocks until every probe loop has exited.
func (d *Detector) Wait() { d.wg.Wait() }

// IsLive reports the last detected state for a platform.
func (d *Detector) IsLive(platform core.Platform) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[platform]
}

// StreamIDs returns the last detected live stream ids for a platform.
func (d *Detector) StreamIDs(platform core.Platform) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids[platform]...)
}

// run drives one platform's probe loop: retryInterval until the first
// live detection or the retry budget runs out, monitorInterval after.
func (d *Detector) run(ctx context.Context, p probe) {
	interval := d.retryInterval
	attempts := 0
	for {
		wentLive := d.probeOnce(ctx, p)
		if ctx.Err() != nil {
			return
		}
		if wentLive || d.IsLive(p.platform) {
			interval = d.monitorInterval
		} else if interval == d.retryInterval {
			attempts++
			if d.maxRetries > 0 && attempts >= d.maxRetries {
				d.logger.Info("detector: initial retries exhausted, slowing down",
					"platform", p.platform, "attempts", attempts)
				interval = d.monitorInterval
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// probeOnce performs one probe and emits on transition. It returns true
// when the platform just went live.
func (d *Detector) probeOnce(ctx context.Context, p probe) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	ids, err := p.prober.Probe(probeCtx)
	cancel()
	if err != nil {
		// a failed probe is not an offline signal; keep the last state
		d.logger.Warn("detector: probe failed", "platform", p.platform, "err", err)
		return false
	}

	liveNow := len(ids) > 0
	sort.Strings(ids)

	d.mu.Lock()
	wasLive := d.live[p.platform]
	changed := liveNow != wasLive || (liveNow && !equalIDs(ids, d.ids[p.platform]))
	d.live[p.platform] = liveNow
	d.ids[p.platform] = ids
	d.mu.Unlock()

	if !changed {
		return false
	}

	// new ids for the same platform coalesce into one transition event
	ev := core.NewEvent(p.platform, core.EventStreamStatus, "", core.StreamStatus{
		IsLive:    liveNow,
		StreamIDs: ids,
	})
	d.logger.Info("detector: stream status changed",
		"platform", p.platform, "live", liveNow, "streams", len(ids))
	d.emit(core.TopicStreamStatus, ev)
	return liveNow && !wasLive
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
