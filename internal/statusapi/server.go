// Package statusapi exposes an optional local HTTP listener with health,
// status, and Prometheus metrics endpoints for the running aggregator.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/bus"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
	"github.com/git-blame-dev/stream-sync-sub005/internal/display"
	"github.com/git-blame-dev/stream-sync-sub005/internal/lifecycle"
	"github.com/git-blame-dev/stream-sync-sub005/internal/notify"
)

// Sources are the live snapshot providers the status endpoint reads from.
// Any nil source is reported as absent rather than failing the request.
type Sources struct {
	Lifecycle interface {
		Healths() map[core.Platform]lifecycle.Health
	}
	Viewers interface {
		Snapshot() map[core.Platform]int
		Total() int
	}
	Queue interface {
		Snapshot() display.Stats
	}
	Notify interface {
		Snapshot() notify.Stats
	}
	Bus interface {
		Snapshot() bus.Stats
	}
}

type Options struct {
	Addr    string
	Version string

	// Per-IP request budget. Zero values disable rate limiting.
	RateLimitRPS   int
	RateLimitBurst int
}

type Server struct {
	httpServer   *http.Server
	sources      Sources
	metrics      *Metrics
	limiter      *ipRateLimiter
	logger       *slog.Logger
	startedAt    time.Time
	buildVersion string
}

func New(sources Sources, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		sources:      sources,
		metrics:      newMetrics(sources),
		limiter:      newIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		logger:       logger,
		startedAt:    time.Now(),
		buildVersion: opts.Version,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.Handle("/metrics", srv.metrics.Handler())
	mux.HandleFunc("/status", srv.handleStatus)

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           srv.wrap(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type platformStatus struct {
	State            string `json:"state"`
	ConnectionTimeMs int64  `json:"connection_time_ms"`
	LastError        string `json:"last_error,omitempty"`
}

type queueStatus struct {
	Depth     int    `json:"depth"`
	Displayed uint64 `json:"displayed"`
	Preempted uint64 `json:"preempted"`
	Dropped   uint64 `json:"dropped"`
	RPCErrors uint64 `json:"rpc_errors"`
}

type notifyStatus struct {
	Notified   uint64 `json:"notified"`
	Deduped    uint64 `json:"deduped"`
	Suppressed uint64 `json:"suppressed"`
	Gated      uint64 `json:"gated"`
}

type busStatus struct {
	Published     map[string]uint64 `json:"published"`
	Subscribers   map[string]int    `json:"subscribers"`
	HandlerPanics uint64            `json:"handler_panics"`
}

type statusResponse struct {
	Version       string                    `json:"version"`
	Go            string                    `json:"go"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
	Platforms     map[string]platformStatus `json:"platforms,omitempty"`
	Viewers       map[string]int            `json:"viewers,omitempty"`
	ViewersTotal  int                       `json:"viewers_total"`
	Queue         *queueStatus              `json:"queue,omitempty"`
	Notifications *notifyStatus             `json:"notifications,omitempty"`
	Bus           *busStatus                `json:"bus,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		Version:       s.buildVersion,
		Go:            runtime.Version(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}

	if s.sources.Lifecycle != nil {
		resp.Platforms = make(map[string]platformStatus)
		for platform, h := range s.sources.Lifecycle.Healths() {
			resp.Platforms[string(platform)] = platformStatus{
				State:            string(h.State),
				ConnectionTimeMs: h.ConnectionTimeMs,
				LastError:        h.LastError,
			}
		}
	}
	if s.sources.Viewers != nil {
		resp.Viewers = make(map[string]int)
		for platform, n := range s.sources.Viewers.Snapshot() {
			resp.Viewers[string(platform)] = n
		}
		resp.ViewersTotal = s.sources.Viewers.Total()
	}
	if s.sources.Queue != nil {
		st := s.sources.Queue.Snapshot()
		resp.Queue = &queueStatus{
			Depth:     st.Depth,
			Displayed: st.Displayed,
			Preempted: st.Preempted,
			Dropped:   st.Dropped,
			RPCErrors: st.RPCErrors,
		}
	}
	if s.sources.Notify != nil {
		st := s.sources.Notify.Snapshot()
		resp.Notifications = &notifyStatus{
			Notified:   st.Notified,
			Deduped:    st.Deduped,
			Suppressed: st.Suppressed,
			Gated:      st.Gated,
		}
	}
	if s.sources.Bus != nil {
		st := s.sources.Bus.Snapshot()
		resp.Bus = &busStatus{
			Published:     st.Published,
			Subscribers:   st.Subscribers,
			HandlerPanics: st.HandlerPanics,
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}

// Handler exposes the wrapped mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	s.logger.Info("status api listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
