// Package format converts AI output into WhatsApp-friendly text: markdown
// emphasis and headings become WhatsApp conventions, internal directive tags
// are stripped, and the Ikamba badge is appended. The transform is
// idempotent, so replaying an already-formatted string is harmless.
package format

import (
	"regexp"
	"strings"
)

const (
	divider = "━━━━━━━━━━━━━━━━━━"
	// Badge trailer appended to every outbound reply.
	badge = "\n\n" + divider + "\n🤖 *Ikamba AI* by ikambaremit.com"
)

var (
	proofImageTag = regexp.MustCompile(`\[\[PROOF_IMAGE:([^\]\s]+)\]\]`)
	directiveTag  = regexp.MustCompile(`(?i)\[\[[A-Z_]+:[^\]]*\]\]`)

	boldMarkers   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicMarkers = regexp.MustCompile(`__([^_]+)__`)
	headings      = regexp.MustCompile(`(?m)^#{1,3}\s*(.+)$`)
	rules         = regexp.MustCompile(`(?m)^---+$`)
	bullets       = regexp.MustCompile(`(?m)^[-*] `)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// ExtractProofImage pulls the first [[PROOF_IMAGE:<url>]] directive out of
// text, returning the remaining text and the URL ("" when absent).
func ExtractProofImage(text string) (string, string) {
	match := proofImageTag.FindStringSubmatchIndex(text)
	if match == nil {
		return text, ""
	}
	url := text[match[2]:match[3]]
	cleaned := text[:match[0]] + text[match[1]:]
	return cleaned, url
}

// Output applies the WhatsApp formatting transform. Idempotent:
// Output(Output(s)) == Output(s).
func Output(text string) string {
	// Re-formatting already-formatted text must not stack badges.
	text = strings.TrimSuffix(text, badge)

	formatted := directiveTag.ReplaceAllString(text, "")
	formatted = strings.TrimSpace(formatted)

	formatted = boldMarkers.ReplaceAllString(formatted, "*$1*")
	formatted = italicMarkers.ReplaceAllString(formatted, "_$1_")
	formatted = headings.ReplaceAllString(formatted, "*$1*")
	formatted = rules.ReplaceAllString(formatted, divider)
	formatted = bullets.ReplaceAllString(formatted, "• ")
	formatted = blankRuns.ReplaceAllString(formatted, "\n\n")

	return formatted + badge
}
