package geo

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledFilterAlwaysPasses(t *testing.T) {
	f, err := Open(Config{
		Enabled:          false,
		DatabasePath:     "nonexistent.mmdb",
		Mode:             ModeBlacklist,
		BlockedCountries: []string{"CN"},
		RejectionMessage: "Blocked",
	})
	require.NoError(t, err)
	assert.False(t, f.IsEnabled())

	err = f.Check(net.ParseIP("8.8.8.8"))
	assert.NoError(t, err)
}

func TestContainsHelper(t *testing.T) {
	assert.True(t, contains([]string{"US", "CN"}, "CN"))
	assert.False(t, contains([]string{"US", "CN"}, "FR"))
}
