package pump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPump(t *testing.T, bottom, top *fakeEndpoint) *Pump {
	t.Helper()
	cfg, err := DeriveConfig(bottom, top, Hints{})
	require.NoError(t, err)
	return &Pump{
		endpoints: [2]Endpoint{Bottom: bottom, Top: top},
		filters:   []Filter{&passthroughFilter{}},
		cfg:       cfg,
	}
}

func TestSolveNcopyIsAlwaysAMultipleOfFilterPacketSamps(t *testing.T) {
	bottom := &fakeEndpoint{packetSamples: 160, clocked: true, outCapacity: 640}
	top := &fakeEndpoint{packetSamples: 24, clocked: true, outCapacity: 96}
	p := newTestPump(t, bottom, top)

	ncopy := p.solveNcopy(48, 24, 0, 0)
	assert.Zero(t, ncopy%p.cfg.FilterPacketSamps)
}

func TestSolveNcopyPrefersDrainingBottomInput(t *testing.T) {
	bottom := &fakeEndpoint{packetSamples: 160, clocked: true, outCapacity: 640}
	top := &fakeEndpoint{packetSamples: 24, clocked: true, outCapacity: 96}
	p := newTestPump(t, bottom, top)

	ncopy := p.solveNcopy(96, 0, p.cfg.OutMin[Bottom], p.cfg.OutMin[Top])
	assert.Greater(t, ncopy, 0, "with bottom input available and both outputs already full, the drain constraint should still pull samples through")
}

func TestSolveNcopyLossTolerantEndpointYieldsToOthers(t *testing.T) {
	bottomLossy := &fakeEndpoint{packetSamples: 160, clocked: true, outCapacity: 640, lossTolerant: true}
	top := &fakeEndpoint{packetSamples: 24, clocked: true, outCapacity: 96}
	pLossy := newTestPump(t, bottomLossy, top)

	bottomStrict := &fakeEndpoint{packetSamples: 160, clocked: true, outCapacity: 640}
	pStrict := newTestPump(t, bottomStrict, top)

	// Bottom has a huge amount ready to drain (target=500); top needs
	// only a small top-up to out_min. When bottom is loss-tolerant its
	// drain constraint is demoted below top's fill constraint, so the
	// solver should favor the small top-up over draining the backlog.
	topOut := pLossy.cfg.OutMin[Top] - 8
	if topOut < 0 {
		topOut = 0
	}
	bottomOutAtMin := pLossy.cfg.OutMin[Bottom]

	lossyNcopy := pLossy.solveNcopy(500, 0, bottomOutAtMin, topOut)
	strictNcopy := pStrict.solveNcopy(500, 0, bottomOutAtMin, topOut)

	assert.Less(t, lossyNcopy, strictNcopy, "loss-tolerant endpoint's drain constraint must yield priority to the strict endpoint's fill constraint")
}
