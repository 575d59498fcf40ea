package notify

import (
	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
	"github.com/git-blame-dev/stream-sync-sub005/internal/display"
)

// eventGreeting marks a greeting synthesized from a user's first chat
// message. It never travels the bus, so it sits outside the core event set.
const eventGreeting core.EventType = "platform:greeting"

// typeConfig describes how one notification type is gated, classed for
// effects, prioritised and timed. The table is the single place a new
// notification type gets registered.
type typeConfig struct {
	settingKey      string // config flag consulted through PlatformEnabled
	class           string // effect class drawn from on display
	supportsMessage bool   // a viewer-written message may ride along
	priority        int
	preempting      bool
	defaultDuration int // ms on screen when no class override applies
}

var typeConfigs = map[core.EventType]typeConfig{
	core.EventFollow: {
		settingKey:      "followsEnabled",
		class:           "follows",
		priority:        display.PriorityNotification,
		defaultDuration: 5000,
	},
	core.EventShare: {
		settingKey:      "sharesEnabled",
		class:           "shares",
		priority:        display.PriorityNotification,
		defaultDuration: 5000,
	},
	core.EventRaid: {
		settingKey:      "raidsEnabled",
		class:           "raids",
		priority:        display.PriorityRaid,
		preempting:      true,
		defaultDuration: 10000,
	},
	core.EventRedemption: {
		settingKey:      "redemptionsEnabled",
		class:           "redemptions",
		priority:        display.PriorityNotification,
		defaultDuration: 6000,
	},
	core.EventGift: {
		settingKey:      "giftsEnabled",
		class:           "gifts",
		supportsMessage: true,
		priority:        display.PriorityGift,
		preempting:      true,
		defaultDuration: 8000,
	},
	core.EventEnvelope: {
		settingKey:      "giftsEnabled",
		class:           "gifts",
		supportsMessage: true,
		priority:        display.PriorityGift,
		preempting:      true,
		defaultDuration: 8000,
	},
	core.EventPaypiggy: {
		settingKey:      "paypiggiesEnabled",
		class:           "paypiggies",
		supportsMessage: true,
		priority:        display.PriorityGift,
		preempting:      true,
		defaultDuration: 8000,
	},
	core.EventGiftPaypiggy: {
		settingKey:      "paypiggiesEnabled",
		class:           "paypiggies",
		priority:        display.PriorityGift,
		preempting:      true,
		defaultDuration: 8000,
	},
	eventGreeting: {
		settingKey:      "greetingsEnabled",
		class:           "greetings",
		priority:        display.PriorityNotification,
		defaultDuration: 5000,
	},
	core.EventFarewell: {
		settingKey:      "farewellsEnabled",
		class:           "farewells",
		priority:        display.PriorityNotification,
		defaultDuration: 5000,
	},
}
