// Package runtime wires every service together in dependency order and
// owns the process lifecycle: startup, the ready manifest, signal-driven
// shutdown, and the graceful-exit chat counter.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/adapter"
	"github.com/git-blame-dev/stream-sync-sub005/internal/bus"
	"github.com/git-blame-dev/stream-sync-sub005/internal/command"
	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
	"github.com/git-blame-dev/stream-sync-sub005/internal/detector"
	"github.com/git-blame-dev/stream-sync-sub005/internal/display"
	"github.com/git-blame-dev/stream-sync-sub005/internal/lifecycle"
	"github.com/git-blame-dev/stream-sync-sub005/internal/notify"
	"github.com/git-blame-dev/stream-sync-sub005/internal/overlay"
	"github.com/git-blame-dev/stream-sync-sub005/internal/router"
	"github.com/git-blame-dev/stream-sync-sub005/internal/statusapi"
	"github.com/git-blame-dev/stream-sync-sub005/internal/tiktokcast"
	"github.com/git-blame-dev/stream-sync-sub005/internal/tokenstore"
	"github.com/git-blame-dev/stream-sync-sub005/internal/trace"
	"github.com/git-blame-dev/stream-sync-sub005/internal/tts"
	"github.com/git-blame-dev/stream-sync-sub005/internal/twitchchat"
	"github.com/git-blame-dev/stream-sync-sub005/internal/users"
	"github.com/git-blame-dev/stream-sync-sub005/internal/vfx"
	"github.com/git-blame-dev/stream-sync-sub005/internal/viewers"
	"github.com/git-blame-dev/stream-sync-sub005/internal/ytchat"
)

// shutdownGrace bounds the teardown choreography before a forced exit.
const shutdownGrace = 2 * time.Second

type Options struct {
	Version    string
	HTTPAddr   string
	ChatTarget int // > 0 arms the graceful exit counter
	Debug      bool
	TraceDir   string

	TwitchTokenFile   string
	TwitchRefreshFile string
	TikTokBridgeURL   string

	// StartupOnly wires everything, emits the ready manifest, then tears
	// down immediately. Also enabled via CHAT_BOT_STARTUP_ONLY.
	StartupOnly bool
}

type App struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	bus       *bus.Bus
	overlay   *overlay.Client
	queue     *display.Queue
	vfxEngine *vfx.Engine
	commands  *command.Engine
	cooldowns *command.Cooldowns
	notifier  *notify.Manager
	tracker   *users.Tracker
	recorder  *trace.Recorder
	store     *tokenstore.Store
	lc        *lifecycle.Controller
	det       *detector.Detector
	viewers   *viewers.Tracker
	router    *router.Router
	status    *statusapi.Server

	services []string
	stopRun  context.CancelFunc
}

// twitchTokens prefers the watched token file and falls back to the
// static secret from the environment.
type twitchTokens struct {
	store  *tokenstore.Store
	static string
}

func (t twitchTokens) Access() (string, error) {
	if t.store != nil {
		if tok, err := t.store.Access(); err == nil && tok != "" {
			return tok, nil
		}
	}
	if t.static == "" {
		return "", fmt.Errorf("runtime: no twitch token available")
	}
	return strings.TrimPrefix(t.static, "oauth:"), nil
}

// New builds the full service graph. Construction is fail-fast: a nil
// return means the process should exit nonzero.
func New(cfg *config.Config, opts Options, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if truthy(os.Getenv("CHAT_BOT_STARTUP_ONLY")) {
		opts.StartupOnly = true
	}

	a := &App{cfg: cfg, opts: opts, logger: logger}

	// Token store before anything that consumes credentials.
	if opts.TwitchTokenFile != "" {
		a.store = tokenstore.New(opts.TwitchTokenFile, opts.TwitchRefreshFile)
		a.ready("tokenstore")
	}

	a.bus = bus.New(logger)
	a.ready("bus")

	a.overlay = overlay.New(overlay.Config{
		Address:  cfg.OBS.Address,
		Password: cfg.Secrets.OBSPassword,
	}, logger)
	a.ready("overlay")

	var speaker tts.Engine = tts.Disabled{}
	if cfg.TTS.Enabled && cfg.General.TTSEnabled {
		speaker = tts.NewHTTPEngine(cfg.TTS)
		a.ready("tts")
	}

	a.vfxEngine = vfx.NewEngine(cfg, a.overlay, func(ev core.Event) {
		a.bus.Emit(core.TopicVFXCommand, ev)
	}, logger)
	a.ready("vfx")

	a.queue = display.NewQueue(display.Options{
		TTSEnabled: cfg.TTS.Enabled && cfg.General.TTSEnabled,
	}, a.overlay, speaker, a.bus.Emit, logger)
	a.ready("display-queue")

	a.cooldowns = command.NewCooldowns(cfg.Commands)
	a.commands = command.NewEngine(cfg, a.cooldowns)
	if cfg.Commands.Enabled {
		a.ready("commands")
	}

	a.tracker = users.NewTracker()
	a.notifier = notify.NewManager(cfg, a.queue, a.vfxEngine, a.commands, a.tracker, logger)
	a.ready("notifications")

	traceDir := opts.TraceDir
	if traceDir == "" {
		traceDir = "traces"
	}
	a.recorder = trace.NewRecorder(traceDir, opts.Debug, logger)

	a.lc = lifecycle.NewController(cfg.General.StreamMaxRetries, logger)
	a.det = detector.New(cfg, a.bus.Emit, logger)
	a.viewers = viewers.NewTracker(cfg.ViewerPollInterval(), logger)

	a.buildAdapters()

	a.ready("detector", "lifecycle", "viewers")

	a.router = router.New(a.bus, a.notifier, a.lc, a.viewers, a.vfxEngine,
		opts.ChatTarget, a.requestExit, logger)
	a.ready("router")

	if opts.HTTPAddr != "" {
		a.status = statusapi.New(statusapi.Sources{
			Lifecycle: a.lc,
			Viewers:   a.viewers,
			Queue:     a.queue,
			Notify:    a.notifier,
			Bus:       a.bus,
		}, statusapi.Options{
			Addr:           opts.HTTPAddr,
			Version:        opts.Version,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		}, logger)
		a.ready("status-api")
	}

	return a, nil
}

// buildAdapters constructs each enabled platform adapter and registers it
// with the lifecycle controller, the detector, and the viewer tracker.
func (a *App) buildAdapters() {
	cfg := a.cfg
	publish := func(ev core.Event) {
		a.recorder.Trace(ev.Platform, string(ev.Type), ev.Data)
		a.bus.Emit(core.TopicPlatformEvent, ev)
	}

	if cfg.Twitch.Enabled {
		tokens := twitchTokens{store: a.store, static: cfg.Secrets.TwitchOAuthToken}
		helix := &twitchchat.HelixClient{
			ClientID: cfg.Secrets.TwitchClientID,
			Tokens:   tokens,
		}
		tw := twitchchat.New(cfg, tokens, helix, publish, a.logger)
		a.registerAdapter(tw, cfg.Twitch)
	}

	if cfg.YouTube.Enabled {
		yt := ytchat.New(cfg, cfg.Secrets.YouTubeAPIKey, a.recorder, publish, a.logger)
		a.registerAdapter(yt, cfg.YouTube)
	}

	if cfg.TikTok.Enabled {
		tt := tiktokcast.New(cfg, a.tiktokURL(), a.recorder, publish, a.logger)
		a.registerAdapter(tt, cfg.TikTok)
	}
}

type platformAdapter interface {
	adapter.Adapter
	Probe(ctx context.Context) ([]string, error)
}

func (a *App) registerAdapter(pa platformAdapter, pc config.PlatformConfig) {
	platform := pa.Platform()
	a.lc.Add(platform, pa, pc.BackgroundInit)
	a.viewers.Register(platform, pa)
	if a.cfg.General.StreamDetectionEnabled && pc.StreamDetectionEnabled {
		a.det.Register(platform, pa)
	}
	a.ready("adapter:" + string(platform))
}

// tiktokURL builds the webcast bridge endpoint for the configured account.
func (a *App) tiktokURL() string {
	base := a.opts.TikTokBridgeURL
	if base == "" {
		base = "ws://127.0.0.1:8765/ws"
	}
	q := url.Values{}
	q.Set("uniqueId", a.cfg.TikTok.Channel)
	if a.cfg.Secrets.TikTokSessionID != "" {
		q.Set("sessionId", a.cfg.Secrets.TikTokSessionID)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

// Bus exposes the event bus for callers that attach extra observers.
func (a *App) Bus() *bus.Bus { return a.bus }

func (a *App) ready(names ...string) {
	a.services = append(a.services, names...)
}

// requestExit is invoked by the router when the chat target is reached.
func (a *App) requestExit() {
	a.logger.Info("runtime: chat target reached, shutting down")
	if a.stopRun != nil {
		a.stopRun()
	}
}

// Run starts every service, publishes the ready manifest, and blocks
// until ctx is cancelled or the graceful-exit counter fires. Teardown
// follows a fixed order with a forced exit after the grace window.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.stopRun = cancel

	go func() {
		if err := a.overlay.Run(runCtx); err != nil && runCtx.Err() == nil {
			a.logger.Error("runtime: overlay client stopped", "err", err)
		}
	}()

	a.queue.Start(runCtx)
	a.notifier.Start(runCtx)
	a.cooldowns.StartCleanup(runCtx)

	if err := a.router.Attach(runCtx); err != nil {
		return fmt.Errorf("runtime: attach router: %w", err)
	}

	if a.status != nil {
		go func() {
			if err := a.status.Start(); err != nil {
				a.logger.Error("runtime: status api", "err", err)
			}
		}()
	}

	if a.store != nil && a.cfg.Secrets.TwitchClientID != "" && a.cfg.Secrets.TwitchClientSecret != "" {
		refresher := &tokenstore.TwitchRefresher{
			ClientID:     a.cfg.Secrets.TwitchClientID,
			ClientSecret: a.cfg.Secrets.TwitchClientSecret,
			Store:        a.store,
		}
		if tok, err := a.store.Access(); err != nil || tok == "" {
			if _, err := refresher.Refresh(runCtx); err != nil {
				a.logger.Warn("runtime: initial twitch token refresh", "err", err)
			}
		}
		go a.refreshLoop(runCtx, refresher)
	}

	if a.store != nil {
		paths := []string{a.store.AccessPath()}
		if a.opts.TwitchRefreshFile != "" {
			paths = append(paths, a.opts.TwitchRefreshFile)
		}
		err := tokenstore.Watch(runCtx, a.logger, func() {
			a.logger.Info("runtime: twitch credentials changed, reconnecting")
			a.lc.Reconnect(runCtx, core.PlatformTwitch)
		}, paths...)
		if err != nil {
			a.logger.Error("runtime: token watch", "err", err)
		}
	}

	a.lc.Start(runCtx)
	a.det.Start(runCtx)
	a.viewers.Start(runCtx)

	a.emitReady()

	if a.opts.StartupOnly {
		a.logger.Info("runtime: startup-only mode, exiting after ready")
		a.shutdown(cancel, "startup-only")
		return nil
	}

	// Keep-alive heartbeat; stopped during shutdown.
	keepAlive := time.NewTicker(time.Minute)
	defer keepAlive.Stop()

	for {
		select {
		case <-runCtx.Done():
			a.shutdown(cancel, "signal")
			return nil
		case <-keepAlive.C:
			a.logger.Debug("runtime: heartbeat",
				"viewers", a.viewers.Total(), "queue_depth", a.queue.Depth())
		}
	}
}

// refreshLoop renews the access token well inside its validity window.
// The rewritten token file wakes the watcher, which reconnects twitch.
func (a *App) refreshLoop(ctx context.Context, r *tokenstore.TwitchRefresher) {
	ticker := time.NewTicker(3 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil {
				a.logger.Warn("runtime: twitch token refresh", "err", err)
			}
		}
	}
}

func (a *App) emitReady() {
	states := make(map[core.Platform]string)
	for platform, h := range a.lc.Healths() {
		states[platform] = string(h.State)
	}
	cd := a.cooldowns.Snapshot()
	manifest := core.SystemReady{
		Services:       a.services,
		PlatformStates: states,
		CooldownUsers:  cd.TrackedUsers,
		GlobalCommands: cd.GlobalCommands,
	}
	a.bus.Emit(core.TopicSystemReady, core.Event{
		Type:      core.EventSystemReady,
		Timestamp: time.Now().UTC(),
		ID:        "system-ready",
		Data:      manifest,
	})
	a.logger.Info("runtime: ready", "services", strings.Join(a.services, ","))
}

// shutdown tears services down in order: adapters, viewer polling,
// detector, cleanup loops, keep-alive, then the shutdown announcement.
func (a *App) shutdown(cancel context.CancelFunc, reason string) {
	forced := time.AfterFunc(shutdownGrace, func() {
		a.logger.Warn("runtime: shutdown overran grace window, forcing exit")
		os.Exit(0)
	})
	defer forced.Stop()

	a.lc.Shutdown()
	cancel() // stops viewer polling, detector, cleanup loops, keep-alive

	a.router.Detach()
	a.queue.Close()
	a.recorder.Close()

	if a.status != nil {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownGrace)
		if err := a.status.Shutdown(sctx); err != nil {
			a.logger.Warn("runtime: status api shutdown", "err", err)
		}
		scancel()
	}

	a.bus.Emit(core.TopicSystemShutdown, core.Event{
		Type:      core.EventSystemShutdown,
		Timestamp: time.Now().UTC(),
		ID:        "system-shutdown",
		Data:      core.SystemShutdown{Reason: reason},
	})
	a.bus.Close()
	a.logger.Info("runtime: shutdown complete", "reason", reason)
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
