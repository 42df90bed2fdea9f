package soundio

import (
	"time"

	"github.com/nohands-go/gonohands/internal/pump"
)

// EventClass names the dominant skew condition reported for a window
// (spec §4.8).
type EventClass int

const (
	NoSkew EventClass = iota
	XRun
	PrimaryDuplex
	SecondaryDuplex
	Endpoint
)

func (c EventClass) String() string {
	switch c {
	case XRun:
		return "XRun"
	case PrimaryDuplex:
		return "PrimaryDuplex"
	case SecondaryDuplex:
		return "SecondaryDuplex"
	case Endpoint:
		return "Endpoint"
	default:
		return "NoSkew"
	}
}

// Event is the at-most-one-per-window report the detector emits (spec
// §4.8).
type Event struct {
	Class   EventClass
	SkewPct float64
	N       int // total pad+drop samples, when Class == XRun
}

const (
	windowCount                 = 5
	primaryDuplexThresholdPct   = 0.01
	secondaryDuplexThresholdPct = 2.0
	endpointThresholdPct        = 2.0
)

// window is one 1-second period's per-endpoint counters.
type window struct {
	bottomIn, bottomOut pump.Counters
	topIn, topOut       pump.Counters
}

// SkewDetector maintains a 5-period rolling window of per-endpoint
// pad/drop/process counters and reports at most one skew class per
// window, applying a 2-consecutive-period strike filter to non-xrun
// conditions (spec §4.8 "Non-xrun conditions require two consecutive
// periods with the same class before reporting").
type SkewDetector struct {
	onEvent func(Event)
	history []window

	strikeClass EventClass
	strikeCount int
}

// NewSkewDetector builds a detector that reports through onEvent.
func NewSkewDetector(onEvent func(Event)) *SkewDetector {
	return &SkewDetector{onEvent: onEvent}
}

// Evaluate appends w to the rolling history (capped at windowCount)
// and reports the dominant skew class for this period, if any.
func (d *SkewDetector) Evaluate(w window, _ time.Time) {
	d.history = append(d.history, w)
	if len(d.history) > windowCount {
		d.history = d.history[1:]
	}

	totalPad, totalDrop := 0, 0
	for _, c := range [4]pump.Counters{w.bottomIn, w.bottomOut, w.topIn, w.topOut} {
		totalPad += c.Pad
		totalDrop += c.Drop
	}
	if totalPad+totalDrop > 0 {
		d.strikeClass = NoSkew
		d.strikeCount = 0
		d.report(Event{Class: XRun, N: totalPad + totalDrop})
		return
	}

	class, pct := NoSkew, 0.0
	switch {
	case asymmetryPct(w.bottomIn.Process, w.bottomOut.Process) >= primaryDuplexThresholdPct:
		class, pct = PrimaryDuplex, asymmetryPct(w.bottomIn.Process, w.bottomOut.Process)
	case asymmetryPct(w.topIn.Process, w.topOut.Process) >= secondaryDuplexThresholdPct:
		class, pct = SecondaryDuplex, asymmetryPct(w.topIn.Process, w.topOut.Process)
	case asymmetryPct(w.bottomIn.Process+w.bottomOut.Process, w.topIn.Process+w.topOut.Process) >= endpointThresholdPct:
		a, b := w.bottomIn.Process+w.bottomOut.Process, w.topIn.Process+w.topOut.Process
		class, pct = Endpoint, asymmetryPct(a, b)
	}

	if class == NoSkew {
		d.strikeClass = NoSkew
		d.strikeCount = 0
		return
	}

	if class == d.strikeClass {
		d.strikeCount++
	} else {
		d.strikeClass = class
		d.strikeCount = 1
	}
	if d.strikeCount >= 2 {
		d.report(Event{Class: class, SkewPct: pct})
	}
}

func (d *SkewDetector) report(e Event) {
	if d.onEvent != nil {
		d.onEvent(e)
	}
}

// asymmetryPct is the percentage difference between a and b relative
// to the larger of the two.
func asymmetryPct(a, b int) float64 {
	denom := a
	if b > denom {
		denom = b
	}
	if denom == 0 {
		return 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(denom) * 100
}

// windowFromPump drains the bridged pump's per-window counters; the
// manager calls this once per 1-second tick, not per packet event.
func windowFromPump(p *pump.Pump) window {
	in, out := p.WindowCounters()
	return window{
		bottomIn:  in[pump.Bottom],
		bottomOut: out[pump.Bottom],
		topIn:     in[pump.Top],
		topOut:    out[pump.Top],
	}
}
