package chat

import (
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/sshchat/sshchatd/chaterr"
)

// ValidationLimits controls the checks applied by validateMessage. Hub
// carries one copy, set from config at construction.
type ValidationLimits struct {
	TruncateLength int
	MaxLength      int
}

// validateMessage applies the same checks the original client-side
// validator ran, but server-side and inside BroadcastChat so no caller can
// bypass them: empty text, excessive length, combining diacritical marks
// ("zalgo" text), and runs of an identical character long enough to be
// spam rather than emphasis.
func validateMessage(text string, limits ValidationLimits) error {
	if text == "" {
		return chaterr.ErrEmpty
	}
	if len([]rune(text)) > limits.MaxLength {
		return chaterr.ErrTooLong
	}
	if hasCombiningMarks(text) {
		return chaterr.ErrCombiningMarks
	}
	if hasRepeatedChars(text) {
		return chaterr.ErrRepeatedChars
	}
	return nil
}

// truncateMessage clips text to the configured display length. It is
// applied to chat messages before fanout; nicknames are not truncated.
func truncateMessage(text string, truncateLength int) string {
	r := []rune(text)
	if len(r) <= truncateLength {
		return text
	}
	return string(r[:truncateLength])
}

// hasCombiningMarks reports whether the NFD-decomposed form of text
// contains any Unicode combining mark, the signature of "zalgo" text
// stacking dozens of diacritics onto a single base character.
func hasCombiningMarks(text string) bool {
	decomposed := norm.NFD.String(text)
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Me, r) || unicode.Is(unicode.Mc, r) {
			return true
		}
	}
	return false
}

// repeatedCharThreshold is the run length that tips a message from
// "emphasis" (e.g. "nooo") into flood-style spam.
const repeatedCharThreshold = 10

// hasRepeatedChars reports whether text contains a run of the same rune
// at least repeatedCharThreshold long.
func hasRepeatedChars(text string) bool {
	var prev rune
	run := 0
	for i, r := range text {
		if i == 0 || r != prev {
			run = 1
			prev = r
			continue
		}
		run++
		if run >= repeatedCharThreshold {
			return true
		}
	}
	return false
}
