package command

import (
	"context"
	"sync"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
)

type userCooldown struct {
	lastCommandAt      time.Time
	lastHeavyCommandAt time.Time
}

// Cooldowns tracks per-user and per-global-command cooldowns. A successful
// Allow records the fire; a denied Allow records nothing so the user can
// retry as soon as the window passes.
type Cooldowns struct {
	mu     sync.Mutex
	users  map[string]*userCooldown
	global map[string]time.Time // commandKey → expiresAt

	cmdCooldown     time.Duration
	heavyCooldown   time.Duration
	globalTTL       time.Duration
	cleanupInterval time.Duration

	now func() time.Time
}

func NewCooldowns(cfg config.CommandsConfig) *Cooldowns {
	return &Cooldowns{
		users:           make(map[string]*userCooldown),
		global:          make(map[string]time.Time),
		cmdCooldown:     time.Duration(cfg.CmdCooldownMs) * time.Millisecond,
		heavyCooldown:   time.Duration(cfg.HeavyCmdCooldownMs) * time.Millisecond,
		globalTTL:       time.Duration(cfg.GlobalCooldownTTLMs) * time.Millisecond,
		cleanupInterval: time.Duration(cfg.CooldownCleanupMs) * time.Millisecond,
		now:             time.Now,
	}
}

// Allow reports whether userID may fire commandKey now, and records the
// fire when allowed. Three gates apply: the per-user normal cooldown, the
// per-user heavy cooldown (heavy commands only), and the per-command
// global TTL that stops the same effect firing twice in quick succession
// regardless of who asks.
func (c *Cooldowns) Allow(userID, commandKey string, heavy bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if exp, ok := c.global[commandKey]; ok && now.Before(exp) {
		return false
	}

	uc := c.users[userID]
	if uc != nil {
		if !uc.lastCommandAt.IsZero() && now.Sub(uc.lastCommandAt) < c.cmdCooldown {
			return false
		}
		if heavy && !uc.lastHeavyCommandAt.IsZero() && now.Sub(uc.lastHeavyCommandAt) < c.heavyCooldown {
			return false
		}
	}

	if uc == nil {
		uc = &userCooldown{}
		c.users[userID] = uc
	}
	uc.lastCommandAt = now
	if heavy {
		uc.lastHeavyCommandAt = now
	}
	c.global[commandKey] = now.Add(c.globalTTL)
	return true
}

// Cleanup drops user entries idle past the TTL and expired global entries.
func (c *Cooldowns) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, uc := range c.users {
		last := uc.lastCommandAt
		if uc.lastHeavyCommandAt.After(last) {
			last = uc.lastHeavyCommandAt
		}
		if now.Sub(last) > c.cleanupInterval {
			delete(c.users, id)
		}
	}
	for key, exp := range c.global {
		if now.After(exp) {
			delete(c.global, key)
		}
	}
}

// StartCleanup runs Cleanup on its interval until ctx is done.
func (c *Cooldowns) StartCleanup(ctx context.Context) {
	interval := c.cleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// State is a snapshot for the ready manifest.
type State struct {
	TrackedUsers   int
	GlobalCommands int
}

func (c *Cooldowns) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{TrackedUsers: len(c.users), GlobalCommands: len(c.global)}
}
