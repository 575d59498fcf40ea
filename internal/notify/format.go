package notify

import (
	"fmt"
	"math"
	"strings"
)

// Copy formatting. Every string built here ends up on the overlay, in the
// TTS engine, or in the log; none of them may ever contain the literal
// substrings "undefined" or "null", and bad numeric input renders as a
// safe zero instead of garbage.

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

var currencySpoken = map[string]string{
	"USD":   "US dollars",
	"EUR":   "euros",
	"GBP":   "British pounds",
	"JPY":   "yen",
	"bits":  "bits",
	"coins": "coins",
}

// safeAmount clamps NaN, infinities and negatives to zero.
func safeAmount(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

func safeCount(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// formatThousands renders n with comma separators: 1234567 → "1,234,567".
func formatThousands(n int) string {
	n = safeCount(n)
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// formatAmount renders a money amount with two decimals and thousands
// separators: 1234.5 → "1,234.50".
func formatAmount(f float64) string {
	f = safeAmount(f)
	whole := int(f)
	cents := int(math.Round((f - float64(whole)) * 100))
	if cents >= 100 {
		whole++
		cents -= 100
	}
	return fmt.Sprintf("%s.%02d", formatThousands(whole), cents)
}

// displayCurrency renders symbol+amount for known symbols ("$5.00"),
// unit-suffix style for point currencies ("500 bits"), and code-suffix
// otherwise ("5.00 SEK").
func displayCurrency(amount float64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	if sym, ok := currencySymbols[strings.ToUpper(currency)]; ok {
		return sym + formatAmount(amount)
	}
	if isUnitCurrency(currency) {
		return fmt.Sprintf("%s %s", formatThousands(int(safeAmount(amount))), strings.ToLower(currency))
	}
	return fmt.Sprintf("%s %s", formatAmount(amount), currency)
}

// spokenCurrency renders "N <currency name>" for TTS, trimming a
// whole-number amount to its integer form: 5.00 → "5 US dollars".
func spokenCurrency(amount float64, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	name, ok := currencySpoken[currency]
	if !ok {
		name, ok = currencySpoken[strings.ToUpper(currency)]
	}
	if !ok {
		name = currency
	}
	return fmt.Sprintf("%s %s", spokenAmount(amount), name)
}

func spokenAmount(f float64) string {
	f = safeAmount(f)
	if f == math.Trunc(f) {
		return formatThousands(int(f))
	}
	return formatAmount(f)
}

func isUnitCurrency(currency string) bool {
	switch strings.ToLower(currency) {
	case "bits", "coins", "points", "diamonds":
		return true
	}
	return false
}

// ordinal renders English ordinals: 1st, 2nd, 3rd, 4th, 11th, 21st.
func ordinal(n int) string {
	n = safeCount(n)
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
		// teens take th
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

// sanitizeForSpeech strips characters the TTS engine mangles, keeping
// letters, digits and single spaces. Underscores read as spaces.
func sanitizeForSpeech(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == ' ':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// scrub removes leaked placeholder tokens from any string destined for
// display or speech. They only appear when an upstream payload was built
// from broken data, but the output contract is absolute. Only standalone
// tokens are removed so real words containing them survive.
func scrub(s string) string {
	if s == "" {
		return s
	}
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		switch strings.ToLower(f) {
		case "undefined", "null", "nan":
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
