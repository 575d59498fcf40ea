package notify

import (
	"encoding/json"
	"fmt"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

// copySet is everything a notification says: overlay text, the primary
// spoken line, and a structured log line.
type copySet struct {
	Display string
	Speech  string
	Log     string
}

// displayName returns a screen-safe username with a fallback for error
// payloads that arrive without one.
func displayName(u core.UserRef) string {
	if name := scrub(u.Username); name != "" {
		return name
	}
	return "Someone"
}

// speechName is displayName run through the TTS sanitizer.
func speechName(u core.UserRef) string {
	if name := sanitizeForSpeech(scrub(u.Username)); name != "" {
		return name
	}
	return "Someone"
}

func buildCopy(typ core.EventType, platform core.Platform, data core.Payload) copySet {
	switch p := data.(type) {
	case core.Follow:
		return copySet{
			Display: fmt.Sprintf("🎉 %s just followed!", displayName(p.UserRef)),
			Speech:  fmt.Sprintf("%s just followed", speechName(p.UserRef)),
			Log:     logLine(typ, platform, map[string]string{"username": displayName(p.UserRef)}),
		}
	case core.Share:
		return copySet{
			Display: fmt.Sprintf("📣 %s shared the stream!", displayName(p.UserRef)),
			Speech:  fmt.Sprintf("%s shared the stream", speechName(p.UserRef)),
			Log:     logLine(typ, platform, map[string]string{"username": displayName(p.UserRef)}),
		}
	case core.Raid:
		count := formatThousands(p.ViewerCount)
		return copySet{
			Display: fmt.Sprintf("⚔️ %s is raiding with %s viewers!", displayName(p.UserRef), count),
			Speech:  fmt.Sprintf("%s is raiding with %s viewers", speechName(p.UserRef), count),
			Log: logLine(typ, platform, map[string]string{
				"username": displayName(p.UserRef),
				"viewers":  count,
			}),
		}
	case core.Redemption:
		title := scrub(p.RewardTitle)
		if title == "" {
			title = "a reward"
		}
		return copySet{
			Display: fmt.Sprintf("🎫 %s redeemed %s (%s points)", displayName(p.UserRef), title, formatThousands(p.RewardCost)),
			Speech:  fmt.Sprintf("%s redeemed %s", speechName(p.UserRef), sanitizeForSpeech(title)),
			Log: logLine(typ, platform, map[string]string{
				"username": displayName(p.UserRef),
				"reward":   title,
				"cost":     formatThousands(p.RewardCost),
			}),
		}
	case core.Gift:
		return giftCopy(typ, platform, p.UserRef, p.GiftType, p.GiftCount, p.Amount, p.Currency, p.Message, "🎁", "a gift")
	case core.Envelope:
		return giftCopy(typ, platform, p.UserRef, p.GiftType, p.GiftCount, p.Amount, p.Currency, p.Message, "🧧", "a treasure chest")
	case core.Paypiggy:
		return paypiggyCopy(typ, platform, p)
	case core.GiftPaypiggy:
		return giftPaypiggyCopy(typ, platform, p)
	case core.Farewell:
		return copySet{
			Display: fmt.Sprintf("👋 %s says goodbye", displayName(p.UserRef)),
			Speech:  fmt.Sprintf("Goodbye %s", speechName(p.UserRef)),
			Log:     logLine(typ, platform, map[string]string{"username": displayName(p.UserRef)}),
		}
	case core.ChatMessage:
		// greetings are synthesized off a first chat message
		return copySet{
			Display: fmt.Sprintf("👋 Welcome, %s!", displayName(p.UserRef)),
			Speech:  fmt.Sprintf("Welcome %s", speechName(p.UserRef)),
			Log:     logLine(typ, platform, map[string]string{"username": displayName(p.UserRef)}),
		}
	}
	return copySet{Log: logLine(typ, platform, nil)}
}

func giftCopy(typ core.EventType, platform core.Platform, u core.UserRef, giftType string, count int, amount float64, currency string, message, emoji, fallback string) copySet {
	name := scrub(giftType)
	if name == "" {
		name = fallback
	} else if count == 1 {
		name = "a " + name
	}
	if count > 1 {
		name = fmt.Sprintf("%s x %s", formatThousands(count), scrubOr(giftType, "gifts"))
	}
	money := displayCurrency(amount, currency)
	display := fmt.Sprintf("%s %s sent %s (%s)", emoji, displayName(u), name, money)
	if msg := scrub(message); msg != "" {
		display += fmt.Sprintf(": %q", msg)
	}
	return copySet{
		Display: display,
		Speech:  fmt.Sprintf("%s sent %s", speechName(u), spokenCurrency(amount, currency)),
		Log: logLine(typ, platform, map[string]string{
			"username": displayName(u),
			"amount":   money,
		}),
	}
}

func paypiggyCopy(typ core.EventType, platform core.Platform, p core.Paypiggy) copySet {
	name := displayName(p.UserRef)
	spoken := speechName(p.UserRef)
	tier := scrub(p.Tier)
	fields := map[string]string{"username": name, "months": formatThousands(p.Months)}
	if tier != "" {
		fields["tier"] = tier
	}
	if p.IsRenewal {
		month := ordinal(p.Months)
		display := fmt.Sprintf("💜 %s resubscribed (%s month)", name, month)
		speech := fmt.Sprintf("%s is on their %s month", spoken, month)
		if tier != "" {
			display += " as " + tier
			speech += " as " + sanitizeForSpeech(tier)
		}
		return copySet{Display: display, Speech: speech, Log: logLine(typ, platform, fields)}
	}
	display := fmt.Sprintf("💜 %s just became a member", name)
	speech := fmt.Sprintf("%s just became a member", spoken)
	if tier != "" {
		display += " (" + tier + ")"
		speech += " at " + sanitizeForSpeech(tier)
	}
	return copySet{Display: display + "!", Speech: speech, Log: logLine(typ, platform, fields)}
}

func giftPaypiggyCopy(typ core.EventType, platform core.Platform, p core.GiftPaypiggy) copySet {
	name := displayName(p.UserRef)
	spoken := speechName(p.UserRef)
	if p.IsAnonymous || scrub(p.Username) == "" {
		name = "An anonymous gifter"
		spoken = "An anonymous gifter"
	}
	unit := "memberships"
	if p.GiftCount == 1 {
		unit = "a membership"
	}
	count := ""
	if p.GiftCount > 1 {
		count = formatThousands(p.GiftCount) + " "
	}
	tier := scrub(p.Tier)
	display := fmt.Sprintf("🎁 %s gifted %s%s", name, count, unit)
	if tier != "" {
		display += " (" + tier + ")"
	}
	if p.CumulativeTotal > p.GiftCount {
		display += fmt.Sprintf(", %s total", formatThousands(p.CumulativeTotal))
	}
	fields := map[string]string{"username": name, "count": formatThousands(p.GiftCount)}
	if tier != "" {
		fields["tier"] = tier
	}
	return copySet{
		Display: display + "!",
		Speech:  fmt.Sprintf("%s gifted %s%s", spoken, count, unit),
		Log:     logLine(typ, platform, fields),
	}
}

func scrubOr(s, fallback string) string {
	if out := scrub(s); out != "" {
		return out
	}
	return fallback
}

// logLine renders the structured log form of a notification. String-valued
// fields keep the output free of nulls by construction.
func logLine(typ core.EventType, platform core.Platform, fields map[string]string) string {
	entry := map[string]string{
		"type":     string(typ),
		"platform": string(platform),
	}
	for k, v := range fields {
		entry[k] = v
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"type":%q,"platform":%q}`, typ, platform)
	}
	return string(b)
}
