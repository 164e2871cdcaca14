package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sshchat/sshchatd/chaterr"
)

var testLimits = ValidationLimits{TruncateLength: 50, MaxLength: 100}

func TestValidateEmpty(t *testing.T) {
	assert.ErrorIs(t, validateMessage("", testLimits), chaterr.ErrEmpty)
}

func TestValidateTooLong(t *testing.T) {
	long := strings.Repeat("a", 200)
	assert.ErrorIs(t, validateMessage(long, testLimits), chaterr.ErrTooLong)
}

func TestValidateCombiningMarks(t *testing.T) {
	// "h" followed by a stack of combining acute accents (U+0301) -- the
	// classic zalgo-text construction.
	zalgo := "h" + strings.Repeat("́", 5)
	assert.ErrorIs(t, validateMessage(zalgo, testLimits), chaterr.ErrCombiningMarks)
}

func TestValidateRepeatedChars(t *testing.T) {
	assert.ErrorIs(t, validateMessage(strings.Repeat("a", 15), testLimits), chaterr.ErrRepeatedChars)
}

func TestValidateOrdinaryMessage(t *testing.T) {
	assert.NoError(t, validateMessage("hello there", testLimits))
}

func TestTruncateMessage(t *testing.T) {
	assert.Equal(t, "hello", truncateMessage("hello", 10))
	assert.Equal(t, "hel", truncateMessage("hello", 3))
}
