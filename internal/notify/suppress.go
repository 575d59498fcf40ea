package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
)

// suppressor rate-limits notifications per user: more than max inside one
// window mutes the user's notifications for the configured duration. Chat
// display is never suppressed, only the notification surface.
type suppressor struct {
	enabled  bool
	max      int
	window   time.Duration
	duration time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	users map[string]*userWindow
	now   func() time.Time
}

type userWindow struct {
	windowStart     time.Time
	count           int
	suppressedUntil time.Time
}

func newSuppressor(cfg *config.Config, logger *slog.Logger) *suppressor {
	return &suppressor{
		enabled:  cfg.General.UserSuppressionEnabled,
		max:      cfg.General.MaxNotificationsPerUser,
		window:   cfg.SuppressionWindow(),
		duration: cfg.SuppressionDuration(),
		logger:   logger,
		users:    map[string]*userWindow{},
		now:      time.Now,
	}
}

// Allow records one notification attempt for the user and reports whether
// it may display. Users without a stable id are never suppressed.
func (s *suppressor) Allow(userID string) bool {
	if !s.enabled || userID == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	w := s.users[userID]
	if w == nil {
		w = &userWindow{windowStart: now}
		s.users[userID] = w
	}
	if now.Before(w.suppressedUntil) {
		return false
	}
	if now.Sub(w.windowStart) > s.window {
		w.windowStart = now
		w.count = 0
	}
	w.count++
	if w.count > s.max {
		w.suppressedUntil = now.Add(s.duration)
		s.logger.Info("notify: user suppressed", "userID", userID, "until", w.suppressedUntil)
		return false
	}
	return true
}

// Cleanup drops users whose window and suppression have both lapsed.
func (s *suppressor) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, w := range s.users {
		if now.Sub(w.windowStart) > s.window && now.After(w.suppressedUntil) {
			delete(s.users, id)
		}
	}
}

func (s *suppressor) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}
