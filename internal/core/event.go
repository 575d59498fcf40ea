// Package core defines the canonical event model shared by every platform
// adapter and pipeline stage. Adapters normalize their native payloads into
// an Event before anything else sees them.
package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Platform identifies a chat source. The set is closed; anything else is a
// normalization bug.
type Platform string

const (
	PlatformTwitch  Platform = "twitch"
	PlatformYouTube Platform = "youtube"
	PlatformTikTok  Platform = "tiktok"
)

// Platforms lists every known platform in a stable order.
var Platforms = []Platform{PlatformTwitch, PlatformYouTube, PlatformTikTok}

func (p Platform) Valid() bool {
	switch p {
	case PlatformTwitch, PlatformYouTube, PlatformTikTok:
		return true
	}
	return false
}

func (p Platform) String() string { return string(p) }

// EventType is the closed set of normalized event kinds.
type EventType string

const (
	EventChatMessage  EventType = "platform:chat-message"
	EventFollow       EventType = "platform:follow"
	EventShare        EventType = "platform:share"
	EventRaid         EventType = "platform:raid"
	EventRedemption   EventType = "platform:redemption"
	EventGift         EventType = "platform:gift"
	EventEnvelope     EventType = "platform:envelope"
	EventPaypiggy     EventType = "platform:paypiggy"
	EventGiftPaypiggy EventType = "platform:giftpaypiggy"
	EventFarewell     EventType = "platform:farewell"
	EventStreamStatus EventType = "platform:stream-status"
	EventViewerCount  EventType = "platform:viewer-count"

	// System envelope types ride the system topics only. They are
	// excluded from Valid(), which guards the platform event surface.
	EventSystemReady    EventType = "system:ready"
	EventSystemShutdown EventType = "system:shutdown"
)

func (t EventType) Valid() bool {
	switch t {
	case EventChatMessage, EventFollow, EventShare, EventRaid, EventRedemption,
		EventGift, EventEnvelope, EventPaypiggy, EventGiftPaypiggy,
		EventFarewell, EventStreamStatus, EventViewerCount:
		return true
	}
	return false
}

// Bus topic names. Topics carry Events; the closed set keeps subscribers and
// emitters honest.
const (
	TopicPlatformEvent  = "platform:event"
	TopicStreamStatus   = "platform:stream-status"
	TopicVFXCommand     = "vfx:command"
	TopicSystemReady    = "system:ready"
	TopicSystemShutdown = "system:shutdown"
)

// Payload is implemented by every type-specific event body.
type Payload interface {
	payload()
}

// Event is the platform-agnostic envelope published on the bus.
type Event struct {
	Platform      Platform
	Type          EventType
	Timestamp     time.Time // always UTC
	ID            string    // platform-supplied or synthesized
	CorrelationID string    // unique per bus hop; propagated downstream
	Data          Payload
}

// NewEvent builds an envelope with a synthesized ID when the source omits
// one and a UTC timestamp.
func NewEvent(platform Platform, typ EventType, id string, data Payload) Event {
	if id == "" {
		id = uuid.NewString()
	}
	return Event{
		Platform:  platform,
		Type:      typ,
		Timestamp: time.Now().UTC(),
		ID:        id,
		Data:      data,
	}
}

// Validate enforces the envelope and payload invariants. Events failing
// validation are dropped by the caller.
func (e Event) Validate() error {
	if !e.Platform.Valid() {
		return fmt.Errorf("core: unknown platform %q", e.Platform)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("core: unknown event type %q", e.Type)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("core: zero timestamp on %s event", e.Type)
	}
	if e.ID == "" {
		return fmt.Errorf("core: missing id on %s event", e.Type)
	}
	if e.Data == nil {
		return fmt.Errorf("core: missing payload on %s event", e.Type)
	}
	if v, ok := e.Data.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return fmt.Errorf("core: %s: %w", e.Type, err)
		}
	}
	return nil
}
