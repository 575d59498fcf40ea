package ytchat

import (
	youtube "google.golang.org/api/youtube/v3"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

const microsPerUnit = 1_000_000

// normalize maps one liveChat message to a canonical event. Snippet types
// the adapter does not understand go to the unknown-event capture file.
func (a *Adapter) normalize(item *youtube.LiveChatMessage) {
	if item == nil || item.Snippet == nil {
		return
	}
	user := core.UserRef{}
	if item.AuthorDetails != nil {
		user = core.UserRef{
			Username: item.AuthorDetails.DisplayName,
			UserID:   item.AuthorDetails.ChannelId,
		}
	}
	if a.self.IsSelf(user.UserID, user.Username) {
		return
	}

	sn := item.Snippet
	switch sn.Type {
	case "textMessageEvent":
		text := ""
		if sn.TextMessageDetails != nil {
			text = sn.TextMessageDetails.MessageText
		}
		a.emit(core.EventChatMessage, item.Id, core.ChatMessage{
			UserRef: user,
			Message: text,
		})
	case "superChatEvent":
		if sn.SuperChatDetails == nil {
			return
		}
		d := sn.SuperChatDetails
		a.emit(core.EventGift, item.Id, core.Gift{
			UserRef:   user,
			GiftType:  "Super Chat",
			GiftCount: 1,
			Amount:    float64(d.AmountMicros) / microsPerUnit,
			Currency:  d.Currency,
			Message:   d.UserComment,
		})
	case "superStickerEvent":
		if sn.SuperStickerDetails == nil {
			return
		}
		d := sn.SuperStickerDetails
		a.emit(core.EventGift, item.Id, core.Gift{
			UserRef:   user,
			GiftType:  "Super Sticker",
			GiftCount: 1,
			Amount:    float64(d.AmountMicros) / microsPerUnit,
			Currency:  d.Currency,
		})
	case "newSponsorEvent":
		tier := ""
		if sn.NewSponsorDetails != nil {
			tier = sn.NewSponsorDetails.MemberLevelName
		}
		a.emit(core.EventPaypiggy, item.Id, core.Paypiggy{
			UserRef: user,
			Tier:    tier,
			Months:  1,
		})
	case "memberMilestoneChatEvent":
		if sn.MemberMilestoneChatDetails == nil {
			return
		}
		d := sn.MemberMilestoneChatDetails
		months := int(d.MemberMonth)
		if months < 1 {
			months = 1
		}
		a.emit(core.EventPaypiggy, item.Id, core.Paypiggy{
			UserRef:   user,
			Tier:      d.MemberLevelName,
			Months:    months,
			Message:   d.UserComment,
			IsRenewal: true,
		})
	case "membershipGiftingEvent":
		if sn.MembershipGiftingDetails == nil {
			return
		}
		d := sn.MembershipGiftingDetails
		count := int(d.GiftMembershipsCount)
		if count < 1 {
			count = 1
		}
		a.emit(core.EventGiftPaypiggy, item.Id, core.GiftPaypiggy{
			UserRef:   user,
			Tier:      d.GiftMembershipsLevelName,
			GiftCount: count,
		})
	default:
		a.logger.Debug("ytchat: unknown snippet type", "type", sn.Type)
		if a.unknown != nil {
			a.unknown.Unknown(core.PlatformYouTube, sn.Type+" "+sn.DisplayMessage)
		}
	}
}

func (a *Adapter) emit(typ core.EventType, id string, data core.Payload) {
	ev := core.NewEvent(core.PlatformYouTube, typ, id, data)
	if err := ev.Validate(); err != nil {
		a.logger.Warn("ytchat: dropping event", "type", typ, "err", err)
		return
	}
	a.publish(ev)
}
