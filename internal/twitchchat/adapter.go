// Package twitchchat is the Twitch platform adapter. Chat rides the IRC
// interface via gempir's client; stream probing and viewer counts use the
// Helix streams endpoint.
package twitchchat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/git-blame-dev/stream-sync-sub005/internal/adapter"
	"github.com/git-blame-dev/stream-sync-sub005/internal/config"
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

// TokenSource supplies the current OAuth token, reloaded externally when
// the token files change.
type TokenSource interface {
	Access() (string, error)
}

type Adapter struct {
	channel  string
	username string
	tokens   TokenSource
	publish  adapter.Publisher
	logger   *slog.Logger
	self     adapter.SelfFilter
	helix    *HelixClient

	mu        sync.Mutex
	client    *twitch.Client
	connected atomic.Bool
	done      chan struct{}
}

func New(cfg *config.Config, tokens TokenSource, helix *HelixClient, publish adapter.Publisher, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	pc := cfg.Twitch
	return &Adapter{
		channel:  pc.Channel,
		username: pc.Username,
		tokens:   tokens,
		publish:  publish,
		logger:   logger,
		self:     adapter.SelfFilter{OperatorUserID: pc.OperatorUserID, Username: pc.Username},
		helix:    helix,
	}
}

func (a *Adapter) Platform() core.Platform { return core.PlatformTwitch }

// Initialize connects to chat. It returns once the IRC handshake
// completes; the receive loop runs until Disconnect.
func (a *Adapter) Initialize(ctx context.Context) error {
	access, err := a.tokens.Access()
	if err != nil {
		return fmt.Errorf("twitchchat: token: %w", err)
	}

	client := twitch.NewClient(a.username, "oauth:"+access)
	connected := make(chan struct{})
	done := make(chan struct{})

	client.OnConnect(func() {
		a.connected.Store(true)
		a.logger.Info("twitchchat: connected", "channel", a.channel)
		close(connected)
	})
	client.OnPrivateMessage(a.onPrivateMessage)
	client.OnUserNoticeMessage(a.onUserNotice)
	client.Join(a.channel)

	a.mu.Lock()
	a.client = client
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		if err := client.Connect(); err != nil {
			a.logger.Warn("twitchchat: connection closed", "err", err)
		}
		a.connected.Store(false)
	}()

	select {
	case <-connected:
		return nil
	case <-done:
		return fmt.Errorf("twitchchat: connect failed")
	case <-ctx.Done():
		client.Disconnect()
		return ctx.Err()
	}
}

func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	client := a.client
	done := a.done
	a.client = nil
	a.mu.Unlock()
	if client == nil {
		return nil
	}
	err := client.Disconnect()
	if done != nil {
		<-done
	}
	a.connected.Store(false)
	if err != nil {
		return fmt.Errorf("twitchchat: disconnect: %w", err)
	}
	return nil
}

func (a *Adapter) IsConnected() bool { return a.connected.Load() }

// ViewerCount asks Helix for the live stream's concurrent viewers.
func (a *Adapter) ViewerCount(ctx context.Context) (int, error) {
	if a.helix == nil {
		return 0, adapter.ErrNotConnected
	}
	streams, err := a.helix.LiveStreams(ctx, a.channel)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, s := range streams {
		count += s.ViewerCount
	}
	return count, nil
}

// Probe reports the channel's live stream ids for the detector.
func (a *Adapter) Probe(ctx context.Context) ([]string, error) {
	if a.helix == nil {
		return nil, adapter.ErrNotConnected
	}
	streams, err := a.helix.LiveStreams(ctx, a.channel)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(streams))
	for _, s := range streams {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// onPrivateMessage normalizes PRIVMSG lines. Reward redemptions and bits
// cheers arrive as tagged chat messages.
func (a *Adapter) onPrivateMessage(msg twitch.PrivateMessage) {
	if a.self.IsSelf(msg.User.ID, msg.User.Name) {
		return
	}
	user := core.UserRef{Username: msg.User.Name, UserID: msg.User.ID}

	if rewardID := msg.Tags["custom-reward-id"]; rewardID != "" {
		a.emit(core.EventRedemption, msg.ID, core.Redemption{
			UserRef:     user,
			RewardTitle: msg.Message,
		})
		return
	}

	if msg.Bits > 0 {
		a.emit(core.EventGift, msg.ID, core.Gift{
			UserRef:   user,
			GiftType:  "bits",
			GiftCount: 1,
			Amount:    float64(msg.Bits),
			Currency:  "bits",
			Message:   msg.Message,
		})
		return
	}

	a.emit(core.EventChatMessage, msg.ID, core.ChatMessage{
		UserRef: user,
		Message: msg.Message,
		Metadata: map[string]string{
			"color": msg.User.Color,
		},
	})
}

// onUserNotice normalizes USERNOTICE lines: subs, resubs, gift subs and
// raids all arrive here with msg-id tags.
func (a *Adapter) onUserNotice(msg twitch.UserNoticeMessage) {
	user := core.UserRef{Username: msg.User.Name, UserID: msg.User.ID}
	switch msg.MsgID {
	case "sub":
		a.emit(core.EventPaypiggy, msg.ID, core.Paypiggy{
			UserRef: user,
			Tier:    tierName(msg.MsgParams["msg-param-sub-plan"]),
			Months:  1,
			Message: msg.Message,
		})
	case "resub":
		months := paramInt(msg.MsgParams, "msg-param-cumulative-months")
		if months < 1 {
			months = 1
		}
		a.emit(core.EventPaypiggy, msg.ID, core.Paypiggy{
			UserRef:   user,
			Tier:      tierName(msg.MsgParams["msg-param-sub-plan"]),
			Months:    months,
			Message:   msg.Message,
			IsRenewal: true,
		})
	case "subgift", "submysterygift":
		count := paramInt(msg.MsgParams, "msg-param-mass-gift-count")
		if count < 1 {
			count = 1
		}
		a.emit(core.EventGiftPaypiggy, msg.ID, core.GiftPaypiggy{
			UserRef:         user,
			Tier:            tierName(msg.MsgParams["msg-param-sub-plan"]),
			GiftCount:       count,
			CumulativeTotal: paramInt(msg.MsgParams, "msg-param-sender-count"),
			IsAnonymous:     strings.EqualFold(msg.User.Name, "ananonymousgifter"),
		})
	case "raid":
		a.emit(core.EventRaid, msg.ID, core.Raid{
			UserRef:     user,
			ViewerCount: paramInt(msg.MsgParams, "msg-param-viewerCount"),
		})
	default:
		a.logger.Debug("twitchchat: unhandled usernotice", "msgID", msg.MsgID)
	}
}

func (a *Adapter) emit(typ core.EventType, id string, data core.Payload) {
	ev := core.NewEvent(core.PlatformTwitch, typ, id, data)
	if err := ev.Validate(); err != nil {
		a.logger.Warn("twitchchat: dropping event", "type", typ, "err", err)
		return
	}
	a.publish(ev)
}

func paramInt(params map[string]string, key string) int {
	n, err := strconv.Atoi(params[key])
	if err != nil {
		return 0
	}
	return n
}

// tierName maps Twitch sub-plan codes to display names.
func tierName(plan string) string {
	switch plan {
	case "Prime":
		return "Prime"
	case "1000":
		return "Tier 1"
	case "2000":
		return "Tier 2"
	case "3000":
		return "Tier 3"
	}
	return plan
}
