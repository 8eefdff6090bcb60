package moderation

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer cleans user supplied names and texts before they reach the store.
type Sanitizer struct {
	policy    *bluemonday.Policy
	moderator *Moderator
}

// NewSanitizer strips every tag; moderator may be nil when nothing is censored.
func NewSanitizer(moderator *Moderator) *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy(), moderator: moderator}
}

// maxDecodePasses bounds how many layers of entity encoding are peeled.
const maxDecodePasses = 8

// StripMarkup removes HTML and surrounding whitespace. The output is plain
// text, so entities are decoded, and the decoded text is sanitized again
// until it stops changing: entity-encoded tags never come out live.
func (s *Sanitizer) StripMarkup(raw string) string {
	out := raw
	for range maxDecodePasses {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	// Still decoding: keep the escaped form rather than a decoded tag.
	return strings.TrimSpace(s.policy.Sanitize(out))
}

// Text strips markup, then masks censored words.
func (s *Sanitizer) Text(raw string) (string, []string) {
	clean := s.StripMarkup(raw)
	if s.moderator == nil {
		return clean, nil
	}
	return s.moderator.Censor(clean)
}
