package tiktokcast

import (
	"encoding/json"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

// Frame payload shapes, following the webcast bridge's JSON schema.
type userFields struct {
	UniqueID string `json:"uniqueId"`
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

func (u userFields) ref() core.UserRef {
	name := u.Nickname
	if name == "" {
		name = u.UniqueID
	}
	return core.UserRef{Username: name, UserID: u.UserID}
}

type chatFrame struct {
	userFields
	Comment string `json:"comment"`
}

type giftFrame struct {
	userFields
	GiftName     string  `json:"giftName"`
	RepeatCount  int     `json:"repeatCount"`
	DiamondCount float64 `json:"diamondCount"`
	RepeatEnd    bool    `json:"repeatEnd"`
}

type envelopeFrame struct {
	userFields
	Coins int `json:"coins"`
}

type socialFrame struct {
	userFields
	Action string `json:"action"` // "follow" or "share"
}

type subscribeFrame struct {
	userFields
	Months int  `json:"months"`
	Renew  bool `json:"renew"`
}

type roomUserFrame struct {
	ViewerCount int `json:"viewerCount"`
}

type streamStateFrame struct {
	IsLive bool `json:"isLive"`
}

// handleFrame normalizes one bridge frame. Unknown frame types are
// captured raw; malformed known frames are logged and dropped.
func (a *Adapter) handleFrame(f frame) {
	switch f.Type {
	case "chat":
		var p chatFrame
		if !a.decode(f, &p) {
			return
		}
		if a.self.IsSelf(p.UserID, p.UniqueID) {
			return
		}
		a.emit(core.EventChatMessage, f.ID, core.ChatMessage{
			UserRef: p.ref(),
			Message: p.Comment,
		})
	case "gift":
		var p giftFrame
		if !a.decode(f, &p) {
			return
		}
		// gift streaks repeat the frame per tap; only the final frame
		// carries the full count
		if !p.RepeatEnd {
			return
		}
		count := p.RepeatCount
		if count < 1 {
			count = 1
		}
		a.emit(core.EventGift, f.ID, core.Gift{
			UserRef:   p.ref(),
			GiftType:  p.GiftName,
			GiftCount: count,
			Amount:    p.DiamondCount * float64(count),
			Currency:  "coins",
		})
	case "envelope":
		var p envelopeFrame
		if !a.decode(f, &p) {
			return
		}
		a.emit(core.EventEnvelope, f.ID, core.Envelope{
			UserRef:   p.ref(),
			GiftType:  "treasure chest",
			GiftCount: 1,
			Amount:    float64(p.Coins),
			Currency:  "coins",
		})
	case "social":
		var p socialFrame
		if !a.decode(f, &p) {
			return
		}
		switch p.Action {
		case "follow":
			a.emit(core.EventFollow, f.ID, core.Follow{UserRef: p.ref()})
		case "share":
			a.emit(core.EventShare, f.ID, core.Share{UserRef: p.ref()})
		default:
			a.logger.Debug("tiktokcast: unknown social action", "action", p.Action)
		}
	case "subscribe":
		var p subscribeFrame
		if !a.decode(f, &p) {
			return
		}
		months := p.Months
		if months < 1 {
			months = 1
		}
		a.emit(core.EventPaypiggy, f.ID, core.Paypiggy{
			UserRef:   p.ref(),
			Tier:      "Subscriber",
			Months:    months,
			IsRenewal: p.Renew,
		})
	case "member":
		// join frames are noise for this pipeline
	case "roomUser":
		var p roomUserFrame
		if !a.decode(f, &p) {
			return
		}
		if p.ViewerCount < 0 {
			p.ViewerCount = 0
		}
		a.viewers.Store(int64(p.ViewerCount))
		a.emit(core.EventViewerCount, f.ID, core.ViewerCount{Count: p.ViewerCount})
	case "streamState":
		var p streamStateFrame
		if !a.decode(f, &p) {
			return
		}
		// the bridge repeats state frames; the latch keeps only real changes
		if a.status.Transition(p.IsLive) {
			a.logger.Info("tiktokcast: stream state changed", "live", p.IsLive)
		}
	default:
		a.logger.Debug("tiktokcast: unknown frame type", "type", f.Type)
		if a.unknown != nil {
			raw, _ := json.Marshal(f)
			a.unknown.Unknown(core.PlatformTikTok, string(raw))
		}
	}
}

func (a *Adapter) decode(f frame, into any) bool {
	if err := json.Unmarshal(f.Data, into); err != nil {
		a.logger.Warn("tiktokcast: malformed frame", "type", f.Type, "err", err)
		return false
	}
	return true
}

func (a *Adapter) emit(typ core.EventType, id string, data core.Payload) {
	ev := core.NewEvent(core.PlatformTikTok, typ, id, data)
	if err := ev.Validate(); err != nil {
		a.logger.Warn("tiktokcast: dropping event", "type", typ, "err", err)
		return
	}
	a.publish(ev)
}
