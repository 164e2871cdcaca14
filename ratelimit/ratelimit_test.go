package ratelimit

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfigs() (RateConfig, FloodConfig) {
	return RateConfig{MessagesPerSecond: 2.0, BurstCapacity: 5},
		FloodConfig{Window: 10 * time.Second, MaxMessagesInWindow: 20, MaxConnectionsPerIP: 3}
}

func TestRegisterClient(t *testing.T) {
	rateCfg, floodCfg := testConfigs()
	l := New(rateCfg, floodCfg)

	id := uuid.New()
	ip := net.ParseIP("127.0.0.1")

	require.NoError(t, l.RegisterClient(id, ip))
	assert.Equal(t, 1, l.GetConnectionCount(ip))
}

func TestConnectionLimit(t *testing.T) {
	rateCfg, floodCfg := testConfigs()
	l := New(rateCfg, floodCfg)
	ip := net.ParseIP("127.0.0.1")

	for i := 0; i < 3; i++ {
		require.NoError(t, l.RegisterClient(uuid.New(), ip))
	}

	require.Error(t, l.RegisterClient(uuid.New(), ip))
}

func TestUnregisterClient(t *testing.T) {
	rateCfg, floodCfg := testConfigs()
	l := New(rateCfg, floodCfg)

	id := uuid.New()
	ip := net.ParseIP("127.0.0.1")

	require.NoError(t, l.RegisterClient(id, ip))
	assert.Equal(t, 1, l.GetConnectionCount(ip))

	l.UnregisterClient(id, ip)
	assert.Equal(t, 0, l.GetConnectionCount(ip))
}

func TestRateLimit(t *testing.T) {
	rateCfg, floodCfg := testConfigs()
	l := New(rateCfg, floodCfg)

	id := uuid.New()
	ip := net.ParseIP("127.0.0.1")
	require.NoError(t, l.RegisterClient(id, ip))

	for i := 0; i < 5; i++ {
		assert.NoError(t, l.CheckRateLimit(id))
	}
	assert.Error(t, l.CheckRateLimit(id))
}

func TestFloodDetection(t *testing.T) {
	rateCfg, floodCfg := testConfigs()
	floodCfg.MaxMessagesInWindow = 3
	l := New(rateCfg, floodCfg)

	id := uuid.New()
	ip := net.ParseIP("127.0.0.1")
	require.NoError(t, l.RegisterClient(id, ip))

	for i := 0; i < 3; i++ {
		assert.NoError(t, l.CheckFlood(id))
	}
	assert.Error(t, l.CheckFlood(id))
}

func TestCheckUnregisteredClient(t *testing.T) {
	rateCfg, floodCfg := testConfigs()
	l := New(rateCfg, floodCfg)

	assert.Error(t, l.CheckRateLimit(uuid.New()))
	assert.Error(t, l.CheckFlood(uuid.New()))
}
