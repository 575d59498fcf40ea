package notify

import (
	"bytes"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/command"
	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
	"github.com/git-blame-dev/stream-sync-sub005/internal/display"
	"github.com/git-blame-dev/stream-sync-sub005/internal/users"
)

func testConfig() *config.Config {
	return &config.Config{
		General: config.GeneralConfig{
			MessagesEnabled:      true,
			GreetingsEnabled:     true,
			FarewellsEnabled:     true,
			FollowsEnabled:       true,
			GiftsEnabled:         true,
			PaypiggiesEnabled:    true,
			RaidsEnabled:         true,
			NotificationsEnabled: true,

			UserSuppressionEnabled:       true,
			MaxNotificationsPerUser:      2,
			SuppressionWindowMs:          60_000,
			SuppressionDurationMs:        300_000,
			SuppressionCleanupIntervalMs: 60_000,

			ChatMsgTxt:   "ChatText",
			ChatMsgScene: "Main",
			ChatMsgGroup: "ChatGroup",
		},
		OBS: config.OBSConfig{
			NotificationTxt:      "NotifText",
			NotificationScene:    "Main",
			NotificationMsgGroup: "NotifGroup",
		},
		Classes: map[string]config.ClassConfig{
			"gifts": {Commands: []string{"confetti"}, DurationMs: 7000},
		},
	}
}

type fakeQueue struct {
	mu    sync.Mutex
	items []display.Item
}

func (q *fakeQueue) Enqueue(item display.Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *fakeQueue) all() []display.Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]display.Item(nil), q.items...)
}

type fakeVFX struct {
	key      string
	ok       bool
	duration int
	heavy    bool
}

func (f fakeVFX) RandomForClass(string) (string, bool) { return f.key, f.ok }
func (f fakeVFX) Duration(string) int                  { return f.duration }
func (f fakeVFX) IsHeavy(string) bool                  { return f.heavy }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(cfg *config.Config, q *fakeQueue, vfx fakeVFX) *Manager {
	return NewManager(cfg, q, vfx, nil, users.NewTracker(), discard())
}

func giftEvent(id string) core.Event {
	return core.NewEvent(core.PlatformYouTube, core.EventGift, id, core.Gift{
		UserRef:   core.UserRef{Username: "SuperChatUser", UserID: "yt-1"},
		GiftType:  "Super Chat",
		GiftCount: 1,
		Amount:    5.00,
		Currency:  "USD",
		Message:   "Thanks for the stream!",
	})
}

func TestSuperChatNotification(t *testing.T) {
	q := &fakeQueue{}
	m := newTestManager(testConfig(), q, fakeVFX{key: "confetti", ok: true, duration: 6000})

	m.HandleEvent(giftEvent("sc-1"))

	items := q.all()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.Surface != display.SurfaceNotification || it.Type != display.TypeNotification {
		t.Fatalf("unexpected surface/type: %v/%v", it.Surface, it.Type)
	}
	if !strings.Contains(it.Text, "SuperChatUser") || !strings.Contains(it.Text, "$5.00") {
		t.Fatalf("display text missing pieces: %q", it.Text)
	}
	if !strings.Contains(it.Text, "Thanks for the stream!") {
		t.Fatalf("display text missing gift message: %q", it.Text)
	}
	for _, bad := range []string{"undefined", "null"} {
		if strings.Contains(it.Text, bad) {
			t.Fatalf("display text contains %q: %q", bad, it.Text)
		}
	}
	if it.Priority != display.PriorityGift || !it.Preempting {
		t.Fatalf("gift priority/preemption wrong: %d/%v", it.Priority, it.Preempting)
	}
	if it.DurationMs != 7000 {
		t.Fatalf("class duration override not applied: %d", it.DurationMs)
	}
	if it.VFX == nil || it.VFX.CommandKey != "confetti" {
		t.Fatalf("vfx not bound: %+v", it.VFX)
	}

	if len(it.TTSStages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(it.TTSStages))
	}
	primary := it.TTSStages[0]
	if primary.Text != "SuperChatUser sent 5 US dollars" || primary.Delay != 0 {
		t.Fatalf("primary stage wrong: %+v", primary)
	}
	message := it.TTSStages[1]
	if message.Text != "SuperChatUser says Thanks for the stream!" {
		t.Fatalf("message stage wrong: %q", message.Text)
	}
	if message.Delay != 4*time.Second {
		t.Fatalf("message delay = %v, want 4s", message.Delay)
	}
}

func TestRenewalMembershipCopy(t *testing.T) {
	q := &fakeQueue{}
	m := newTestManager(testConfig(), q, fakeVFX{})

	ev := core.NewEvent(core.PlatformYouTube, core.EventPaypiggy, "pp-1", core.Paypiggy{
		UserRef:   core.UserRef{Username: "RenewedMember", UserID: "yt-2"},
		Tier:      "Test Member Plus",
		Months:    2,
		IsRenewal: true,
	})
	m.HandleEvent(ev)

	items := q.all()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	text := items[0].Text
	if !regexp.MustCompile(`(?i)2nd month`).MatchString(text) {
		t.Fatalf("renewal text missing ordinal month: %q", text)
	}
	if !strings.Contains(text, "Test Member Plus") {
		t.Fatalf("renewal text missing tier: %q", text)
	}
}

func TestBitsMessageDelay(t *testing.T) {
	q := &fakeQueue{}
	m := newTestManager(testConfig(), q, fakeVFX{})

	ev := core.NewEvent(core.PlatformTwitch, core.EventGift, "bits-1", core.Gift{
		UserRef:   core.UserRef{Username: "BitsUser", UserID: "tw-9"},
		GiftType:  "bits",
		GiftCount: 1,
		Amount:    500,
		Currency:  "bits",
		Message:   "take my bits",
	})
	m.HandleEvent(ev)

	items := q.all()
	if len(items) != 1 || len(items[0].TTSStages) != 2 {
		t.Fatalf("unexpected items/stages: %+v", items)
	}
	if d := items[0].TTSStages[1].Delay; d != 3*time.Second {
		t.Fatalf("bits message delay = %v, want 3s", d)
	}
}

func TestDisabledTypeGated(t *testing.T) {
	cfg := testConfig()
	cfg.General.FollowsEnabled = false
	q := &fakeQueue{}
	m := newTestManager(cfg, q, fakeVFX{})

	ev := core.NewEvent(core.PlatformTwitch, core.EventFollow, "f-1", core.Follow{
		UserRef: core.UserRef{Username: "NewFollower", UserID: "tw-1"},
	})
	m.HandleEvent(ev)

	if len(q.all()) != 0 {
		t.Fatal("disabled type produced an item")
	}
	if m.Snapshot().Gated != 1 {
		t.Fatalf("gated counter = %d, want 1", m.Snapshot().Gated)
	}
}

func TestPlatformOverrideBeatsGeneral(t *testing.T) {
	cfg := testConfig()
	cfg.Twitch.Overrides = map[string]bool{"giftsEnabled": false}
	q := &fakeQueue{}
	m := newTestManager(cfg, q, fakeVFX{})

	tw := core.NewEvent(core.PlatformTwitch, core.EventGift, "g-1", core.Gift{
		UserRef:  core.UserRef{Username: "TwitchGifter", UserID: "tw-2"},
		GiftType: "bits", GiftCount: 1, Amount: 100, Currency: "bits",
	})
	m.HandleEvent(tw)
	if len(q.all()) != 0 {
		t.Fatal("twitch override did not gate the gift")
	}

	m.HandleEvent(giftEvent("g-2"))
	if len(q.all()) != 1 {
		t.Fatal("youtube gift should pass the general flag")
	}
}

func TestDuplicateEventDropped(t *testing.T) {
	q := &fakeQueue{}
	m := newTestManager(testConfig(), q, fakeVFX{})

	m.HandleEvent(giftEvent("dup-1"))
	m.HandleEvent(giftEvent("dup-1"))

	if got := len(q.all()); got != 1 {
		t.Fatalf("expected 1 item after redelivery, got %d", got)
	}
	if m.Snapshot().Deduped != 1 {
		t.Fatalf("deduped counter = %d, want 1", m.Snapshot().Deduped)
	}
}

func TestUserSuppression(t *testing.T) {
	q := &fakeQueue{}
	m := newTestManager(testConfig(), q, fakeVFX{})

	for i, id := range []string{"r-1", "r-2", "r-3"} {
		ev := core.NewEvent(core.PlatformTikTok, core.EventRaid, id, core.Raid{
			UserRef:     core.UserRef{Username: "LoudUser", UserID: "tt-1"},
			ViewerCount: 10 + i,
		})
		m.HandleEvent(ev)
	}

	if got := len(q.all()); got != 2 {
		t.Fatalf("expected 2 items before suppression kicks in, got %d", got)
	}
	if m.Snapshot().Suppressed != 1 {
		t.Fatalf("suppressed counter = %d, want 1", m.Snapshot().Suppressed)
	}
}

func TestChatLineAndGreeting(t *testing.T) {
	q := &fakeQueue{}
	m := newTestManager(testConfig(), q, fakeVFX{})

	chat := func(id, msg string) core.Event {
		return core.NewEvent(core.PlatformTwitch, core.EventChatMessage, id, core.ChatMessage{
			UserRef: core.UserRef{Username: "Chatter", UserID: "tw-7"},
			Message: msg,
		})
	}

	m.HandleEvent(chat("c-1", "hello there"))
	items := q.all()
	if len(items) != 2 {
		t.Fatalf("first message should yield chat + greeting, got %d items", len(items))
	}
	if items[0].Surface != display.SurfaceChat || items[0].Text != "Chatter: hello there" {
		t.Fatalf("chat item wrong: %+v", items[0])
	}
	if items[1].Surface != display.SurfaceNotification || !strings.Contains(items[1].Text, "Welcome") {
		t.Fatalf("greeting item wrong: %+v", items[1])
	}

	m.HandleEvent(chat("c-2", "back again"))
	if got := len(q.all()); got != 3 {
		t.Fatalf("second message should add only the chat line, got %d total", got)
	}
}

func TestAnonymousGiftMembership(t *testing.T) {
	q := &fakeQueue{}
	m := newTestManager(testConfig(), q, fakeVFX{})

	ev := core.NewEvent(core.PlatformYouTube, core.EventGiftPaypiggy, "gm-1", core.GiftPaypiggy{
		UserRef:     core.UserRef{},
		Tier:        "Member",
		GiftCount:   5,
		IsAnonymous: true,
	})
	m.HandleEvent(ev)

	items := q.all()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if !strings.Contains(items[0].Text, "An anonymous gifter") {
		t.Fatalf("anonymous copy wrong: %q", items[0].Text)
	}
}

func TestChatCommandQueuesVFX(t *testing.T) {
	cfg := testConfig()
	cfg.Commands = config.CommandsConfig{
		Enabled:             true,
		CmdCooldownMs:       30_000,
		HeavyCmdCooldownMs:  120_000,
		GlobalCooldownTTLMs: 300_000,
	}
	cfg.VFX = map[string]config.VFXCommandConfig{
		"confetti": {Triggers: []string{"!confetti"}, MediaSource: "confetti.webm", DurationMs: 6000},
	}
	engine := command.NewEngine(cfg, command.NewCooldowns(cfg.Commands))

	q := &fakeQueue{}
	m := NewManager(cfg, q, fakeVFX{duration: 6000}, engine, users.NewTracker(), discard())

	ev := core.NewEvent(core.PlatformTwitch, core.EventChatMessage, "cmd-1", core.ChatMessage{
		UserRef: core.UserRef{Username: "PartyStarter", UserID: "tw-3"},
		Message: "!confetti",
	})
	m.HandleEvent(ev)

	var vfxItems []display.Item
	for _, it := range q.all() {
		if it.Type == display.TypeVFX {
			vfxItems = append(vfxItems, it)
		}
	}
	if len(vfxItems) != 1 {
		t.Fatalf("expected 1 vfx item, got %d", len(vfxItems))
	}
	it := vfxItems[0]
	if it.VFX == nil || it.VFX.CommandKey != "confetti" {
		t.Fatalf("vfx ref wrong: %+v", it.VFX)
	}
	if it.SourceName != "" || it.Text != "" {
		t.Fatal("command vfx item must not touch text sources")
	}
	if it.DurationMs != 6000 {
		t.Fatalf("vfx duration = %d, want 6000", it.DurationMs)
	}

	// same user again inside the cooldown window: chat shows, effect does not
	ev2 := core.NewEvent(core.PlatformTwitch, core.EventChatMessage, "cmd-2", core.ChatMessage{
		UserRef: core.UserRef{Username: "PartyStarter", UserID: "tw-3"},
		Message: "!confetti",
	})
	m.HandleEvent(ev2)
	count := 0
	for _, it := range q.all() {
		if it.Type == display.TypeVFX {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("cooldown ignored: %d vfx items", count)
	}
}

func TestHeavyCommandQueuesAtChatPriority(t *testing.T) {
	cfg := testConfig()
	cfg.Commands = config.CommandsConfig{
		Enabled:             true,
		CmdCooldownMs:       30_000,
		HeavyCmdCooldownMs:  120_000,
		GlobalCooldownTTLMs: 300_000,
	}
	cfg.VFX = map[string]config.VFXCommandConfig{
		"earthquake": {Triggers: []string{"!earthquake"}, MediaSource: "quake.webm", DurationMs: 15_000, Heavy: true},
	}
	engine := command.NewEngine(cfg, command.NewCooldowns(cfg.Commands))

	q := &fakeQueue{}
	m := NewManager(cfg, q, fakeVFX{duration: 15_000, heavy: true}, engine, users.NewTracker(), discard())

	ev := core.NewEvent(core.PlatformTwitch, core.EventChatMessage, "hv-1", core.ChatMessage{
		UserRef: core.UserRef{Username: "Shaker", UserID: "tw-9"},
		Message: "!earthquake",
	})
	m.HandleEvent(ev)

	var vfxItems []display.Item
	for _, it := range q.all() {
		if it.Type == display.TypeVFX {
			vfxItems = append(vfxItems, it)
		}
	}
	if len(vfxItems) != 1 {
		t.Fatalf("expected 1 vfx item, got %d", len(vfxItems))
	}
	if vfxItems[0].Priority != display.PriorityChat {
		t.Fatalf("heavy effect priority = %d, want %d", vfxItems[0].Priority, display.PriorityChat)
	}
}

func TestCommandCooldownIsLogged(t *testing.T) {
	cfg := testConfig()
	cfg.Commands = config.CommandsConfig{
		Enabled:             true,
		CmdCooldownMs:       30_000,
		HeavyCmdCooldownMs:  120_000,
		GlobalCooldownTTLMs: 300_000,
	}
	cfg.VFX = map[string]config.VFXCommandConfig{
		"confetti": {Triggers: []string{"!confetti"}, MediaSource: "confetti.webm", DurationMs: 6000},
	}
	engine := command.NewEngine(cfg, command.NewCooldowns(cfg.Commands))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	q := &fakeQueue{}
	m := NewManager(cfg, q, fakeVFX{duration: 6000}, engine, users.NewTracker(), logger)

	for i, id := range []string{"cd-1", "cd-2"} {
		ev := core.NewEvent(core.PlatformTwitch, core.EventChatMessage, id, core.ChatMessage{
			UserRef: core.UserRef{Username: "PartyStarter", UserID: "tw-3"},
			Message: "!confetti",
		})
		m.HandleEvent(ev)
		if i == 0 && strings.Contains(buf.String(), "command on cooldown") {
			t.Fatal("first execution logged as suppressed")
		}
	}

	out := buf.String()
	if !strings.Contains(out, "command on cooldown") {
		t.Fatalf("suppressed execution not logged: %q", out)
	}
	if !strings.Contains(out, "confetti") || !strings.Contains(out, "PartyStarter") {
		t.Fatalf("cooldown log missing command or user: %q", out)
	}
}

func TestFarewellFromChatCommand(t *testing.T) {
	cfg := testConfig()
	cfg.Commands = config.CommandsConfig{Enabled: true, CmdCooldownMs: 30_000, HeavyCmdCooldownMs: 120_000, GlobalCooldownTTLMs: 300_000}
	cfg.Classes["farewells"] = config.ClassConfig{ByeTokens: []string{"!bye"}}
	engine := command.NewEngine(cfg, command.NewCooldowns(cfg.Commands))

	q := &fakeQueue{}
	m := NewManager(cfg, q, fakeVFX{}, engine, users.NewTracker(), discard())

	ev := core.NewEvent(core.PlatformTwitch, core.EventChatMessage, "bye-1", core.ChatMessage{
		UserRef: core.UserRef{Username: "Sleepy", UserID: "tw-4"},
		Message: "!bye everyone",
	})
	m.HandleEvent(ev)

	var found bool
	for _, it := range q.all() {
		if it.Type == display.TypeNotification && strings.Contains(it.Text, "goodbye") {
			found = true
		}
	}
	if !found {
		t.Fatal("farewell notification missing")
	}
}
