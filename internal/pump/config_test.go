package pump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveConfigRejectsAllUnclockedEndpoints(t *testing.T) {
	bottom := &fakeEndpoint{packetSamples: 160, outCapacity: 640}
	top := &fakeEndpoint{packetSamples: 24, outCapacity: 96}
	_, err := DeriveConfig(bottom, top, Hints{})
	assert.Error(t, err)
}

func TestDeriveConfigFilterPacketSampsDividesBothPacketSizes(t *testing.T) {
	bottom := &fakeEndpoint{packetSamples: 160, clocked: true, outCapacity: 640}
	top := &fakeEndpoint{packetSamples: 24, clocked: true, outCapacity: 96}
	cfg, err := DeriveConfig(bottom, top, Hints{})
	require.NoError(t, err)

	assert.Greater(t, cfg.FilterPacketSamps, 0)
	assert.Zero(t, bottom.packetSamples%cfg.FilterPacketSamps)
	assert.Zero(t, top.packetSamples%cfg.FilterPacketSamps)
}

func TestDeriveConfigOutMaxExceedsOutMin(t *testing.T) {
	bottom := &fakeEndpoint{packetSamples: 160, clocked: true, outCapacity: 640}
	top := &fakeEndpoint{packetSamples: 24, clocked: true, outCapacity: 96}
	cfg, err := DeriveConfig(bottom, top, Hints{})
	require.NoError(t, err)

	for _, r := range [2]Role{Bottom, Top} {
		assert.GreaterOrEqual(t, cfg.OutMax[r], cfg.OutMin[r])
		assert.Equal(t, cfg.OutMax[r]-cfg.OutMin[r], cfg.InMax[r])
	}
}

func TestDeriveConfigWatchdogTimeoutHasFloor(t *testing.T) {
	bottom := &fakeEndpoint{packetSamples: 160, clocked: true, outCapacity: 640}
	top := &fakeEndpoint{packetSamples: 24, clocked: true, outCapacity: 96}
	cfg, err := DeriveConfig(bottom, top, Hints{PacketIntervalMs: 1})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, cfg.WatchdogTimeout.Milliseconds(), int64(500))
	assert.Equal(t, 2, cfg.WatchdogStrikes)
}
