// Package vfx resolves and fires on-screen effects. Commands are named in
// config; notification classes map to pools of eligible commands, and one
// is drawn at random per notification.
package vfx

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

// MediaPlayer is the slice of the overlay client the engine needs.
type MediaPlayer interface {
	PlayMedia(ctx context.Context, source, file string) error
}

// Republisher mirrors executed commands back onto the bus for
// observability. The routing layer ignores the mirrored copy via its
// source tag.
type Republisher func(core.Event)

type Engine struct {
	commands    map[string]config.VFXCommandConfig
	classes     map[string][]string // class key → sorted eligible command keys
	triggers    map[string]string   // lowered trigger → command key
	mediaSource string

	player    MediaPlayer
	republish Republisher
	logger    *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewEngine(cfg *config.Config, player MediaPlayer, republish Republisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		commands:    cfg.VFX,
		classes:     map[string][]string{},
		triggers:    map[string]string{},
		mediaSource: cfg.OBS.VFXMediaSource,
		player:      player,
		republish:   republish,
		logger:      logger,
		rng:         rand.New(rand.NewSource(rand.Int63())),
	}
	for class, cc := range cfg.Classes {
		keys := make([]string, 0, len(cc.Commands))
		for _, key := range cc.Commands {
			if _, ok := cfg.VFX[key]; ok {
				keys = append(keys, key)
			} else {
				logger.Warn("vfx: class references unknown command", "class", class, "command", key)
			}
		}
		sort.Strings(keys)
		e.classes[class] = keys
	}
	for key, vc := range cfg.VFX {
		for _, trig := range vc.Triggers {
			e.triggers[strings.ToLower(trig)] = key
		}
	}
	return e
}

// RandomForClass draws a random eligible command key for a notification
// class (e.g. "gifts"). ok is false when the class has no commands bound.
func (e *Engine) RandomForClass(class string) (string, bool) {
	keys := e.classes[class]
	if len(keys) == 0 {
		return "", false
	}
	e.mu.Lock()
	idx := e.rng.Intn(len(keys))
	e.mu.Unlock()
	return keys[idx], true
}

// resolve maps a VFXCommand to a concrete command key: a literal trigger
// ("!confetti"), a direct command key, or a class key.
func (e *Engine) resolve(cmd core.VFXCommand) (string, bool) {
	if cmd.Command != "" {
		if key, ok := e.triggers[strings.ToLower(cmd.Command)]; ok {
			return key, true
		}
	}
	if cmd.CommandKey != "" {
		if _, ok := e.commands[cmd.CommandKey]; ok {
			return cmd.CommandKey, true
		}
		if key, ok := e.RandomForClass(cmd.CommandKey); ok {
			return key, true
		}
	}
	return "", false
}

// Execute plays the command's media and mirrors the command onto the bus
// tagged with the vfx-service source.
func (e *Engine) Execute(ctx context.Context, platform core.Platform, cmd core.VFXCommand) error {
	key, ok := e.resolve(cmd)
	if !ok {
		return fmt.Errorf("vfx: no command for %q/%q", cmd.Command, cmd.CommandKey)
	}
	vc := e.commands[key]

	if err := e.player.PlayMedia(ctx, e.mediaSource, vc.MediaSource); err != nil {
		return fmt.Errorf("vfx: play %s: %w", key, err)
	}
	e.logger.Debug("vfx: executed", "command", key, "media", vc.MediaSource, "user", cmd.Username)

	if e.republish != nil {
		mirrored := cmd
		mirrored.Context.Source = core.VFXSourceVFXService
		ev := core.NewEvent(platform, core.TypeVFXCommand, "", mirrored)
		ev.CorrelationID = cmd.Context.CorrelationID
		e.republish(ev)
	}
	return nil
}

// Duration reports the configured effect duration for a command key.
func (e *Engine) Duration(key string) int {
	return e.commands[key].DurationMs
}

// IsHeavy reports whether the command key is flagged heavy.
func (e *Engine) IsHeavy(key string) bool {
	return e.commands[key].Heavy
}
