package notify

import (
	"strings"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
	"github.com/git-blame-dev/stream-sync-sub005/internal/tts"
)

// Message-stage delays: the primary announcement speaks immediately, the
// viewer's own message follows after a gap tuned per type so the overlay
// animation has landed before the message is read out.
const (
	delayDefault  = 4000 * time.Millisecond
	delayPaypiggy = 4000 * time.Millisecond
	delayBits     = 3000 * time.Millisecond
	delayChat     = time.Duration(0)
)

// speechStages plans the utterances for one notification. The primary line
// always speaks first with no delay; a viewer message, when the type
// supports one and the message is non-blank, follows as a second stage.
func speechStages(typ core.EventType, cs copySet, data core.Payload) []tts.Stage {
	var stages []tts.Stage
	if cs.Speech != "" {
		stages = append(stages, tts.Stage{Name: "primary", Text: cs.Speech, Delay: 0})
	}
	tc, ok := typeConfigs[typ]
	if !ok || !tc.supportsMessage {
		return stages
	}
	user, message := userMessage(data)
	message = scrub(message)
	if strings.TrimSpace(message) == "" {
		return stages
	}
	text := speechName(user) + " says " + message
	stages = append(stages, tts.Stage{Name: "message", Text: text, Delay: messageDelay(typ, data)})
	return stages
}

// userMessage pulls the viewer-written message off message-bearing
// payloads.
func userMessage(data core.Payload) (core.UserRef, string) {
	switch p := data.(type) {
	case core.Gift:
		return p.UserRef, p.Message
	case core.Envelope:
		return p.UserRef, p.Message
	case core.Paypiggy:
		return p.UserRef, p.Message
	case core.ChatMessage:
		return p.UserRef, p.Message
	}
	return core.UserRef{}, ""
}

func messageDelay(typ core.EventType, data core.Payload) time.Duration {
	switch typ {
	case core.EventPaypiggy:
		return delayPaypiggy
	case core.EventChatMessage:
		return delayChat
	case core.EventGift, core.EventEnvelope:
		if g, ok := data.(core.Gift); ok && strings.EqualFold(g.Currency, "bits") {
			return delayBits
		}
		return delayDefault
	}
	return delayDefault
}
