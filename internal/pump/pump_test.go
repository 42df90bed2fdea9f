package pump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConnectedPair() (*fakeEndpoint, *fakeEndpoint) {
	bottom := &fakeEndpoint{packetSamples: 160, clocked: true, outCapacity: 640}
	top := &fakeEndpoint{packetSamples: 24, clocked: true, outCapacity: 96}
	return bottom, top
}

func TestNewDerivesConfigAndPreparesFilters(t *testing.T) {
	bottom, top := newConnectedPair()
	filter := &passthroughFilter{}
	clock := &fakeClock{}

	p, err := New(bottom, top, []Filter{filter}, Hints{}, clock, nil)
	require.NoError(t, err)
	assert.Equal(t, p.Config().Format, filter.prepared)
}

func TestOnPacketMovesSamplesBothDirections(t *testing.T) {
	bottom, top := newConnectedPair()
	bottom.in = someSamples(160, 100)
	top.in = someSamples(24, 1)
	clock := &fakeClock{}

	p, err := New(bottom, top, []Filter{&passthroughFilter{}}, Hints{}, clock, nil)
	require.NoError(t, err)

	p.OnPacket(Bottom)

	assert.NotEmpty(t, bottom.out, "top's input should have been delivered to bottom's output")
	assert.NotEmpty(t, top.out, "bottom's input should have been delivered to top's output")
}

func TestOnPacketPanicsOnReentry(t *testing.T) {
	bottom, top := newConnectedPair()
	clock := &fakeClock{}
	p, err := New(bottom, top, []Filter{&passthroughFilter{}}, Hints{}, clock, nil)
	require.NoError(t, err)

	p.entered = true
	assert.Panics(t, func() { p.OnPacket(Bottom) })
}

func TestOnPacketIgnoredAfterStop(t *testing.T) {
	bottom, top := newConnectedPair()
	clock := &fakeClock{}
	stopCount := 0
	p, err := New(bottom, top, []Filter{&passthroughFilter{}}, Hints{}, clock, func(error) { stopCount++ })
	require.NoError(t, err)

	p.stop(ErrDataExhausted)
	p.OnPacket(Bottom)

	assert.Equal(t, 1, stopCount, "stop must only fire its callback once even across further events")
}

func TestRemoveOnExhaustStopsPumpWithDataExhausted(t *testing.T) {
	bottom, top := newConnectedPair()
	bottom.removeOnExhaust = true
	bottom.in = nil // already empty: exhausted immediately
	clock := &fakeClock{}

	var stopErr error
	p, err := New(bottom, top, []Filter{&passthroughFilter{}}, Hints{}, clock, func(e error) { stopErr = e })
	require.NoError(t, err)

	p.OnPacket(Bottom)

	assert.True(t, p.Stopped())
	assert.ErrorIs(t, stopErr, ErrDataExhausted)
}

func TestWatchdogStopsAfterStrikesExceeded(t *testing.T) {
	bottom, top := newConnectedPair()
	clock := &fakeClock{}

	var stopErr error
	p, err := New(bottom, top, []Filter{&passthroughFilter{}}, Hints{}, clock, func(e error) { stopErr = e })
	require.NoError(t, err)

	// No samples ever flow: every watchdog window sees zero progress
	// on both clocked endpoints, accumulating strikes until the pump
	// stops (watchdog_strikes = 2, so the 3rd consecutive bad window
	// trips it).
	for i := 0; i < 4 && !p.Stopped(); i++ {
		clock.fire()
	}

	assert.True(t, p.Stopped())
	assert.ErrorIs(t, stopErr, ErrWatchdogTimeout)
}

func TestWatchdogResetsStrikesOnGoodProgress(t *testing.T) {
	bottom, top := newConnectedPair()
	clock := &fakeClock{}

	p, err := New(bottom, top, []Filter{&passthroughFilter{}}, Hints{}, clock, nil)
	require.NoError(t, err)

	nominal := nominalSamplesPerPeriod(p.cfg)
	p.inCounters[Bottom].Process = nominal
	p.outCounters[Bottom].Process = nominal
	p.inCounters[Top].Process = nominal
	p.outCounters[Top].Process = nominal
	clock.fire()

	assert.False(t, p.Stopped())
	assert.Equal(t, 0, p.watchdogStrikes[Bottom][0])
}
