package threat

import (
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIPList(t *testing.T) {
	content := "# Comment\n1.2.3.4\n5.6.7.8\n\n; Another comment\n9.10.11.12"
	ips, cidrs, err := parseList(strings.NewReader(content), FormatIP)
	require.NoError(t, err)
	assert.Len(t, ips, 3)
	assert.Len(t, cidrs, 0)
}

func TestParseCIDRList(t *testing.T) {
	content := "1.2.3.0/24 ; SBL123\n5.6.7.0/24 ; SBL456"
	ips, cidrs, err := parseList(strings.NewReader(content), FormatCIDR)
	require.NoError(t, err)
	assert.Len(t, ips, 0)
	assert.Len(t, cidrs, 2)
}

func TestParseJSONList(t *testing.T) {
	content := `["1.2.3.4", "5.6.7.8"]`
	ips, cidrs, err := parseList(strings.NewReader(content), FormatJSON)
	require.NoError(t, err)
	assert.Len(t, ips, 2)
	assert.Len(t, cidrs, 0)
}

func TestFeedDisabledAlwaysPasses(t *testing.T) {
	f, err := Open(Config{Enabled: false}, nil)
	require.NoError(t, err)
	assert.False(t, f.IsEnabled())
	assert.NoError(t, f.Check(net.ParseIP("1.2.3.4")))
}

func TestCheckBlocksListedIP(t *testing.T) {
	f := &Feed{cfg: Config{Enabled: true, Action: ActionBlock}, ips: map[string]struct{}{"1.2.3.4": {}}}
	assert.Error(t, f.Check(net.ParseIP("1.2.3.4")))
	assert.NoError(t, f.Check(net.ParseIP("4.3.2.1")))
}

func TestCheckBlocksListedCIDR(t *testing.T) {
	_, ipnet, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)
	f := &Feed{cfg: Config{Enabled: true, Action: ActionBlock}, ips: map[string]struct{}{}, cidrs: []*net.IPNet{ipnet}}
	assert.Error(t, f.Check(net.ParseIP("10.1.2.3")))
	assert.NoError(t, f.Check(net.ParseIP("11.1.2.3")))
}
