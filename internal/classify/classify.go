// Package classify buckets inbound message text into cost tiers before any
// AI call is made. Instant-tier phrases get a canned reply, complex-tier
// patterns unlock the larger context window and the full system instructions.
package classify

import (
	"regexp"
	"strings"
)

type Tier string

const (
	TierInstant Tier = "instant"
	TierSimple  Tier = "simple"
	TierComplex Tier = "complex"
)

// Above this length an unmatched message is treated as complex rather than
// simple, since long free-form text usually needs the full instructions.
const simpleLengthLimit = 50

type Result struct {
	Tier         Tier
	InstantReply string
}

// instantReplies maps greeting/thanks/farewell/FAQ phrases to canned
// responses. Matching is against the normalized (trimmed, lowercased) text,
// exact or prefix-with-boundary. English and Kinyarwanda both covered.
var instantReplies = map[string]string{
	"hi":         "Yooo! 👋 Bite, how can I help?",
	"hello":      "Yooo! 👋 Bite, how can I help?",
	"hey":        "Yooo! 👋 Bite, how can I help?",
	"yo":         "Eh boss! 🔥 Ushaka iki?",
	"yooo":       "Eh boss! 🔥 Ushaka iki?",
	"muraho":     "Muraho neza! 👋 Ushaka iki?",
	"mwaramutse": "Mwaramutse! ☀️ Amakuru?",
	"mwiriwe":    "Mwiriwe! 👋 Bite se?",
	"bite":       "Ni byiza! 😎 Ushaka iki?",
	"thanks":     "Nta kibazo! 🙏",
	"thank you":  "Nta kibazo! 🙏",
	"thx":        "Nta kibazo! 🙏",
	"murakoze":   "Murakoze nawe! 🙏",
	"urakoze":    "Murakoze nawe! 🙏",
	"bye":        "Murabeho! 👋 Come back anytime.",
	"goodbye":    "Murabeho! 👋 Come back anytime.",
	"murabeho":   "Murabeho neza! 👋",
	"ok":         "Sawa! 👍",
	"sawa":       "Sawa sawa! 👍",
	"yego":       "Yego! 👍 Komeza.",
	"help":       "I can check rates, send money & track transfers. Ushaka iki? 💸",
	"menu":       "I can check rates, send money & track transfers. Ushaka iki? 💸",
	"start":      "Yooo! 👋 I can check rates, send money & track transfers.",
}

// Complex-tier patterns, evaluated in order against the normalized text.
// First match wins; all run before the simple-tier length fallback.
var complexPatterns = []*regexp.Regexp{
	// Monetary transaction verbs.
	regexp.MustCompile(`\b(send|transfer|sending|pay|paying|withdraw|deposit|ohereza|kohereza|kwishyura|koherereza)\b`),
	// Status / tracking / proof requests.
	regexp.MustCompile(`\b(status|track|tracking|proof|confirm|confirmation|receipt|reference|icyemezo|gihe)\b`),
	// Amount plus currency, with optional thousands suffix ("10k rub").
	regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s*k?\s*(usd|rwf|frw|rub|eur|gbp|kes|ugx|tzs|ngn|cad|aud|francs?|dollars?|euros?|amafaranga)\b`),
}

// Classify maps raw message text to a tier, with a canned reply for the
// instant tier. Pure function of its input: same text, same result.
func Classify(text string) Result {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Result{Tier: TierSimple}
	}

	if reply, ok := matchInstant(normalized); ok {
		return Result{Tier: TierInstant, InstantReply: reply}
	}

	for _, p := range complexPatterns {
		if p.MatchString(normalized) {
			return Result{Tier: TierComplex}
		}
	}
	if hasTransactionToken(normalized) {
		return Result{Tier: TierComplex}
	}

	if len(normalized) < simpleLengthLimit {
		return Result{Tier: TierSimple}
	}
	return Result{Tier: TierComplex}
}

func matchInstant(normalized string) (string, bool) {
	if reply, ok := instantReplies[normalized]; ok {
		return reply, true
	}
	for phrase, reply := range instantReplies {
		if !strings.HasPrefix(normalized, phrase) {
			continue
		}
		rest := normalized[len(phrase):]
		if boundaryRune(rest) {
			return reply, true
		}
	}
	return "", false
}

// boundaryRune reports whether rest starts at a word boundary, so "hi there"
// matches the "hi" phrase but "history" does not.
func boundaryRune(rest string) bool {
	if rest == "" {
		return true
	}
	switch rest[0] {
	case ' ', '\t', '\n', ',', '.', '!', '?', ';', ':':
		return true
	}
	return false
}

// hasTransactionToken detects candidate transaction ids: a single
// alphanumeric token of 10+ characters containing at least one digit.
func hasTransactionToken(normalized string) bool {
	for _, field := range strings.FieldsFunc(normalized, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(field) < 10 {
			continue
		}
		hasDigit := false
		for _, r := range field {
			if r >= '0' && r <= '9' {
				hasDigit = true
				break
			}
		}
		if hasDigit {
			return true
		}
	}
	return false
}
