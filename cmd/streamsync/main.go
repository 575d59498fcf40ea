package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
	"github.com/git-blame-dev/stream-sync-sub005/internal/runtime"
	"github.com/git-blame-dev/stream-sync-sub005/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		versionFlag   bool
		configPath    string
		envFile       string
		noMsg         bool
		debug         bool
		logLevel      string
		chatTarget    int
		httpAddr      string
		traceDir      string
		twTokenFile   string
		twRefreshFile string
		ttBridgeURL   string
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&configPath, "config", "config.txt", "Path to the sectioned config file")
	flag.StringVar(&envFile, "env-file", ".env", "Path to the secrets env file")
	flag.BoolVar(&noMsg, "no-msg", false, "Disable chat message display")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging and per-platform trace files")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.IntVar(&chatTarget, "chat", 0, "Exit gracefully after N chat messages (N > 0)")
	flag.StringVar(&httpAddr, "http-addr", "", "Status listener address (e.g., :8770)")
	flag.StringVar(&traceDir, "trace-dir", "traces", "Directory for debug trace files")
	flag.StringVar(&twTokenFile, "twitch-token-file", "", "Path to the Twitch OAuth access token file")
	flag.StringVar(&twRefreshFile, "twitch-refresh-token-file", "", "Path to the Twitch refresh token file")
	flag.StringVar(&ttBridgeURL, "tiktok-bridge-url", "", "TikTok webcast bridge websocket URL")
	flag.Parse()

	if versionFlag {
		fmt.Printf(
			"streamsync version: %s (commit %s, built %s)\n",
			version.Version,
			version.Commit,
			version.BuildTime,
		)
		return 0
	}

	// Validate before any side effects.
	chatSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "chat" {
			chatSet = true
		}
	})
	if chatSet && chatTarget <= 0 {
		fmt.Fprintf(os.Stderr, "streamsync: --chat requires a positive count, got %d\n", chatTarget)
		return 1
	}

	level := new(slog.LevelVar)
	switch strings.ToLower(logLevel) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		fmt.Fprintf(os.Stderr, "streamsync: unknown log level %q\n", logLevel)
		return 1
	}
	if debug {
		level.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		logger.Error("streamsync: load config", "err", err)
		return 1
	}
	if noMsg {
		cfg.General.MessagesEnabled = false
	}
	if debug {
		cfg.General.DebugEnabled = true
	}

	app, err := runtime.New(cfg, runtime.Options{
		Version:           version.Version,
		HTTPAddr:          httpAddr,
		ChatTarget:        chatTarget,
		Debug:             cfg.General.DebugEnabled,
		TraceDir:          traceDir,
		TwitchTokenFile:   twTokenFile,
		TwitchRefreshFile: twRefreshFile,
		TikTokBridgeURL:   ttBridgeURL,
	}, logger)
	if err != nil {
		logger.Error("streamsync: wiring", "err", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("streamsync: received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		logger.Error("streamsync: runtime", "err", err)
		return 1
	}
	return 0
}
