package autobahn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Enabled:                   true,
		DelayOnFirstViolation:     100 * time.Millisecond,
		DelayOnSecondViolation:    500 * time.Millisecond,
		DelayOnThirdViolation:     2 * time.Second,
		DelayOnFourthViolation:    5 * time.Second,
		ChallengeAfterViolations:  3,
		ChallengeTimeout:          30 * time.Second,
		ConnectionDelayBase:       100 * time.Millisecond,
		ConnectionDelayMultiplier: 2.0,
		ConnectionDelayMax:        60 * time.Second,
	}
}

func TestViolationTracking(t *testing.T) {
	a := New(testConfig())
	ip := net.ParseIP("1.2.3.4")

	assert.EqualValues(t, 0, a.GetViolationCount(ip))

	a.RecordViolation(ip)
	assert.EqualValues(t, 1, a.GetViolationCount(ip))

	a.RecordViolation(ip)
	assert.EqualValues(t, 2, a.GetViolationCount(ip))
}

func TestClearViolations(t *testing.T) {
	a := New(testConfig())
	ip := net.ParseIP("1.2.3.4")

	a.RecordViolation(ip)
	assert.EqualValues(t, 1, a.GetViolationCount(ip))

	a.ClearViolations(ip)
	assert.EqualValues(t, 0, a.GetViolationCount(ip))
}

func TestConnectionDelayCalculation(t *testing.T) {
	a := New(testConfig())

	assert.Equal(t, time.Duration(0), a.calculateConnectionDelay(0))
	assert.Equal(t, time.Duration(0), a.calculateConnectionDelay(1))
	assert.Equal(t, 200*time.Millisecond, a.calculateConnectionDelay(2))
	assert.Equal(t, 400*time.Millisecond, a.calculateConnectionDelay(3))
	assert.Equal(t, 800*time.Millisecond, a.calculateConnectionDelay(4))
}

func TestDisabledAutoBahn(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	a := New(cfg)
	ip := net.ParseIP("1.2.3.4")

	a.RecordViolation(ip)
	assert.EqualValues(t, 0, a.GetViolationCount(ip))
}

func TestCheckConnectionChallengeFails(t *testing.T) {
	cfg := testConfig()
	cfg.ChallengeAfterViolations = 1
	cfg.ChallengeTimeout = 10 * time.Millisecond
	a := New(cfg)
	ip := net.ParseIP("5.6.7.8")

	a.RecordViolation(ip)
	err := a.CheckConnection(context.Background(), ip)
	require.Error(t, err)
}

func TestCleanupOldRecords(t *testing.T) {
	a := New(testConfig())
	ip := net.ParseIP("9.9.9.9")
	a.RecordViolation(ip)

	a.CleanupOldRecords(0)
	assert.EqualValues(t, 0, a.GetViolationCount(ip))
}
