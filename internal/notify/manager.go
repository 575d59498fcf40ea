// Package notify turns normalized platform events into overlay
// notifications: it gates by config, deduplicates redeliveries, suppresses
// noisy users, binds an effect, builds the copy and speech plan, and hands
// the finished item to the display queue.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/git-blame-dev/stream-sync-sub005/internal/command"
	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
	"github.com/git-blame-dev/stream-sync-sub005/internal/display"
	"github.com/git-blame-dev/stream-sync-sub005/internal/users"
)

const chatDurationMs = 6000

// Enqueuer is the slice of the display queue the manager needs.
type Enqueuer interface {
	Enqueue(display.Item) error
}

// VFXSource resolves effect classes to concrete commands.
type VFXSource interface {
	RandomForClass(class string) (string, bool)
	Duration(key string) int
	IsHeavy(key string) bool
}

type Manager struct {
	cfg      *config.Config
	queue    Enqueuer
	vfx      VFXSource
	commands *command.Engine
	tracker  *users.Tracker
	dedupe   *deduper
	suppress *suppressor
	logger   *slog.Logger

	notified   atomic.Uint64
	deduped    atomic.Uint64
	suppressed atomic.Uint64
	gated      atomic.Uint64
}

func NewManager(cfg *config.Config, queue Enqueuer, vfx VFXSource, commands *command.Engine, tracker *users.Tracker, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		queue:    queue,
		vfx:      vfx,
		commands: commands,
		tracker:  tracker,
		dedupe:   newDeduper(),
		suppress: newSuppressor(cfg, logger),
		logger:   logger,
	}
}

// Start launches the suppression cleanup loop. The manager itself is
// driven synchronously by HandleEvent.
func (m *Manager) Start(ctx context.Context) {
	m.suppress.StartCleanup(ctx, m.cfg.SuppressionCleanupInterval())
}

// HandleEvent routes one normalized platform event. Errors never propagate
// to the caller; a notification that cannot display is logged and dropped.
func (m *Manager) HandleEvent(ev core.Event) {
	switch ev.Type {
	case core.EventChatMessage:
		msg, ok := ev.Data.(core.ChatMessage)
		if !ok {
			m.logger.Warn("notify: chat event with wrong payload", "platform", ev.Platform)
			return
		}
		m.handleChat(ev, msg)
	default:
		if _, ok := typeConfigs[ev.Type]; ok {
			m.notify(ev.Type, ev, ev.Data)
		}
	}
}

// handleChat displays the chat line, runs the message through the command
// engine, and synthesizes a greeting on a user's first message.
func (m *Manager) handleChat(ev core.Event, msg core.ChatMessage) {
	if m.commands != nil {
		res := m.commands.Parse(command.Input{
			Message:  msg.Message,
			Username: msg.Username,
			UserID:   msg.UserID,
			Platform: ev.Platform,
		})
		switch res.Kind {
		case command.KindVFX:
			if res.OnCooldown {
				m.logger.Debug("notify: command on cooldown",
					"command", res.CommandKey, "user", msg.Username, "platform", ev.Platform)
			} else {
				m.enqueueCommandVFX(ev, msg, res)
			}
		case command.KindFarewell:
			farewell := core.Farewell{UserRef: msg.UserRef, Command: res.Matched}
			m.notify(core.EventFarewell, ev, farewell)
		}
	}

	if m.cfg.PlatformEnabled(string(ev.Platform), "messagesEnabled") {
		m.enqueueChatLine(ev, msg)
	}

	if m.tracker != nil && msg.UserID != "" && m.tracker.Record(msg.UserID) {
		m.notify(eventGreeting, ev, msg)
	}
}

func (m *Manager) enqueueChatLine(ev core.Event, msg core.ChatMessage) {
	text := scrub(msg.Message)
	item := display.Item{
		ID:            ev.ID,
		Priority:      display.PriorityChat,
		DurationMs:    chatDurationMs,
		Type:          display.TypeChat,
		Surface:       display.SurfaceChat,
		Platform:      ev.Platform,
		Text:          fmt.Sprintf("%s: %s", displayName(msg.UserRef), text),
		SourceName:    m.cfg.General.ChatMsgTxt,
		SceneName:     m.cfg.General.ChatMsgScene,
		GroupName:     m.cfg.General.ChatMsgGroup,
		LogoSource:    logoSource(ev.Platform),
		CorrelationID: ev.CorrelationID,
	}
	if err := m.queue.Enqueue(item); err != nil {
		m.logger.Warn("notify: chat enqueue failed", "platform", ev.Platform, "err", err)
	}
}

// enqueueCommandVFX queues a screen effect for a recognized chat command.
// The item carries no text source, so the chat overlay is untouched. Heavy
// effects queue at chat priority so paid notifications are never stuck
// behind them.
func (m *Manager) enqueueCommandVFX(ev core.Event, msg core.ChatMessage, res command.Result) {
	priority := display.PriorityNotification
	if m.vfx.IsHeavy(res.CommandKey) {
		priority = display.PriorityChat
	}
	item := display.Item{
		ID:         ev.ID + "-vfx",
		Priority:   priority,
		DurationMs: m.vfx.Duration(res.CommandKey),
		Type:       display.TypeVFX,
		Surface:    display.SurfaceNotification,
		Platform:   ev.Platform,
		VFX: &display.VFXRef{
			Command:    res.Matched,
			CommandKey: res.CommandKey,
			Username:   msg.Username,
			UserID:     msg.UserID,
		},
		CorrelationID: ev.CorrelationID,
	}
	if err := m.queue.Enqueue(item); err != nil {
		m.logger.Warn("notify: vfx enqueue failed", "command", res.CommandKey, "err", err)
	}
}

// notify runs the full notification pipeline for one typed event. The
// envelope's platform, id and correlation id come from ev; data carries
// the payload the copy is built from, which for synthesized types
// (greeting, farewell) differs from ev.Data.
func (m *Manager) notify(typ core.EventType, ev core.Event, data core.Payload) {
	tc, ok := typeConfigs[typ]
	if !ok {
		return
	}
	if !m.cfg.General.NotificationsEnabled || !m.cfg.PlatformEnabled(string(ev.Platform), tc.settingKey) {
		m.gated.Add(1)
		return
	}
	key := dedupeKey(ev.Platform, typ, ev.ID)
	if m.dedupe.Seen(key) {
		m.deduped.Add(1)
		m.logger.Debug("notify: duplicate dropped", "key", key)
		return
	}
	user := userRefOf(data)
	if !m.suppress.Allow(user.UserID) {
		m.suppressed.Add(1)
		return
	}

	cs := buildCopy(typ, ev.Platform, data)
	item := display.Item{
		ID:            ev.ID + "-" + string(typ),
		Priority:      tc.priority,
		DurationMs:    m.duration(tc),
		Type:          display.TypeNotification,
		Surface:       display.SurfaceNotification,
		Platform:      ev.Platform,
		Text:          cs.Display,
		SourceName:    m.cfg.OBS.NotificationTxt,
		SceneName:     m.cfg.OBS.NotificationScene,
		GroupName:     m.cfg.OBS.NotificationMsgGroup,
		LogoSource:    logoSource(ev.Platform),
		TTSStages:     speechStages(typ, cs, data),
		Preempting:    tc.preempting,
		CorrelationID: ev.CorrelationID,
	}
	if cmdKey, ok := m.vfx.RandomForClass(tc.class); ok {
		item.VFX = &display.VFXRef{
			CommandKey: cmdKey,
			Username:   user.Username,
			UserID:     user.UserID,
		}
	}

	m.logger.Info(cs.Log)
	if err := m.queue.Enqueue(item); err != nil {
		m.logger.Warn("notify: enqueue failed", "type", typ, "err", err)
		return
	}
	m.notified.Add(1)
}

// duration prefers the class-level override, falling back to the type
// default.
func (m *Manager) duration(tc typeConfig) int {
	if cc, ok := m.cfg.Classes[tc.class]; ok && cc.DurationMs > 0 {
		return cc.DurationMs
	}
	return tc.defaultDuration
}

func userRefOf(data core.Payload) core.UserRef {
	switch p := data.(type) {
	case core.ChatMessage:
		return p.UserRef
	case core.Follow:
		return p.UserRef
	case core.Share:
		return p.UserRef
	case core.Raid:
		return p.UserRef
	case core.Redemption:
		return p.UserRef
	case core.Gift:
		return p.UserRef
	case core.Envelope:
		return p.UserRef
	case core.Paypiggy:
		return p.UserRef
	case core.GiftPaypiggy:
		return p.UserRef
	case core.Farewell:
		return p.UserRef
	}
	return core.UserRef{}
}

func logoSource(p core.Platform) string {
	switch p {
	case core.PlatformTwitch:
		return "TwitchLogo"
	case core.PlatformYouTube:
		return "YouTubeLogo"
	case core.PlatformTikTok:
		return "TikTokLogo"
	}
	return ""
}

// Stats is the manager's counter snapshot for the status endpoint.
type Stats struct {
	Notified   uint64
	Deduped    uint64
	Suppressed uint64
	Gated      uint64
}

func (m *Manager) Snapshot() Stats {
	return Stats{
		Notified:   m.notified.Load(),
		Deduped:    m.deduped.Load(),
		Suppressed: m.suppressed.Load(),
		Gated:      m.gated.Load(),
	}
}
