package pump

import "sort"

// constraint is one of the four ncopy candidates scored each cycle
// (spec §4.7 step 2). target is the ideal sample count; priority is
// its tier in the lexicographic order (lower sorts first), after loss
// tolerance has shifted it.
type constraint struct {
	target   int
	priority int
}

// priorityFor demotes a constraint's base tier when its owning
// endpoint is loss-tolerant ("cheap to under-satisfy when the DSP
// demands primary-endpoint parity", spec §4.7 step 2), while
// preserving the relative order among an endpoint's own constraints.
func priorityFor(base int, lossTolerant bool) int {
	if lossTolerant {
		return base + 10
	}
	return base
}

// cost is the piecewise-linear under/over cost for proposing ncopy
// samples against a constraint's target: under-satisfying is weighted
// more heavily than over-satisfying, since excess is recoverable by
// the next cycle's pre-transfer trimming while a shortfall starves a
// sink immediately.
func cost(target, ncopy int) float64 {
	if ncopy < target {
		return float64(target-ncopy) * 1.0
	}
	return float64(ncopy-target) * 0.25
}

// solveNcopy picks the multiple of filter_packet_samps that best
// satisfies, in lexicographic priority order, the four constraints of
// spec §4.7 step 2.
func (p *Pump) solveNcopy(bottomIn, topIn, bottomOut, topOut int) int {
	packet := p.cfg.FilterPacketSamps
	if packet <= 0 {
		return 0
	}

	bottomLossy := p.endpoints[Bottom].LossTolerant()
	topLossy := p.endpoints[Top].LossTolerant()

	bottomDrainTarget := 0
	if p.endpoints[Bottom].Clocked() {
		bottomDrainTarget = bottomIn
	}
	topFillTarget := p.cfg.OutMin[Top] - topOut
	if topFillTarget < 0 {
		topFillTarget = 0
	}
	topDrainTarget := 0
	if p.endpoints[Top].Clocked() {
		topDrainTarget = topIn
	}
	bottomFillTarget := p.cfg.OutMin[Bottom] - bottomOut
	if bottomFillTarget < 0 {
		bottomFillTarget = 0
	}

	cs := [4]constraint{
		{bottomDrainTarget, priorityFor(1, bottomLossy)},
		{topFillTarget, priorityFor(2, topLossy)},
		{topDrainTarget, priorityFor(3, topLossy)},
		{bottomFillTarget, priorityFor(4, bottomLossy)},
	}

	priorities := uniqueSortedPriorities(cs)
	tierIndex := make(map[int]int, len(priorities))
	for i, pr := range priorities {
		tierIndex[pr] = i
	}

	maxTarget := 0
	for _, c := range cs {
		if c.target > maxTarget {
			maxTarget = c.target
		}
	}
	maxCandidate := (maxTarget/packet + 2) * packet

	best := 0
	var bestCost []float64
	for candidate := 0; candidate <= maxCandidate; candidate += packet {
		costs := make([]float64, len(priorities))
		for _, c := range cs {
			costs[tierIndex[c.priority]] += cost(c.target, candidate)
		}
		if bestCost == nil || lexLess(costs, bestCost) {
			bestCost = costs
			best = candidate
		}
	}
	return best
}

func uniqueSortedPriorities(cs [4]constraint) []int {
	seen := make(map[int]bool, 4)
	var out []int
	for _, c := range cs {
		if !seen[c.priority] {
			seen[c.priority] = true
			out = append(out, c.priority)
		}
	}
	sort.Ints(out)
	return out
}

// lexLess reports whether a sorts before b under lexicographic
// comparison, tier by tier.
func lexLess(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
