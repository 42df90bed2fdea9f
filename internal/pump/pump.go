// Package pump implements the streaming audio bridge between a
// clocked SCO endpoint and a sound-card endpoint (spec §4.7): it
// derives a transfer configuration from the two endpoints' packet
// sizes, solves for how many samples to exchange on each packet
// event, runs them through a filter chain, and watches for stalled
// endpoints.
package pump

import (
	"sync"
	"time"

	"github.com/nohands-go/gonohands/internal/herr"
)

// Role names the two fixed endpoint positions in the bridge.
type Role int

const (
	Bottom Role = iota // local sound card
	Top                // SCO
)

func (r Role) String() string {
	if r == Bottom {
		return "bottom"
	}
	return "top"
}

func (r Role) other() Role {
	if r == Bottom {
		return Top
	}
	return Bottom
}

// Endpoint is the minimal surface the pump needs from either side of
// the bridge. Concrete endpoints (internal/sco.Endpoint, a sound-card
// driver in internal/soundio) satisfy this by adapter.
type Endpoint interface {
	// PacketSamples is this endpoint's native packet size in samples.
	PacketSamples() int
	// Clocked reports whether this endpoint drives events
	// asynchronously (true) or is a synchronous source/sink (false).
	Clocked() bool
	// LossTolerant reports whether under-satisfying this endpoint's
	// constraints is cheap (spec §4.7 "loss tolerance... flips its
	// priority from 1 to 2").
	LossTolerant() bool
	// RemoveOnExhaust reports whether this is a one-shot endpoint that
	// should stop the pump once it has no more data in every relevant
	// direction (spec §4.7 step 6).
	RemoveOnExhaust() bool

	// InQueued returns the number of samples currently available to
	// read from this endpoint.
	InQueued() int
	// OutQueued returns the number of samples currently queued for
	// this endpoint to write out.
	OutQueued() int
	// OutCapacity returns the endpoint's output buffer capacity in
	// samples (spec's outbuf_size).
	OutCapacity() int

	// Read dequeues up to len(buf) samples, returning the count
	// actually available.
	Read(buf []int16) int
	// Write enqueues up to len(buf) samples, returning the count
	// actually accepted.
	Write(buf []int16) int
	// Drop discards up to n queued input samples (pre-transfer
	// trimming, spec §4.7 step 3), returning the count dropped.
	Drop(n int) int
	// LastSample is the most recent sample observed from this
	// endpoint's stream, used as the silence-fill pattern (spec's
	// "Pump Working State").
	LastSample() int16
	// Exhausted reports whether a one-shot endpoint has no more data
	// left to offer.
	Exhausted() bool
}

// Filter is one stage of the doubly-linked chain between top and
// bottom (spec's "Filter Stack"). A filter may process one direction,
// both, or be transparent to a direction it doesn't want.
type Filter interface {
	WantsDown() bool
	WantsUp() bool
	// Prepare is called once with the negotiated format before
	// streaming starts.
	Prepare(format Format)
	// ProcessDown/ProcessUp receive a source buffer and a scratch
	// buffer of equal length and return whichever one holds the
	// result; the pump rotates buffers accordingly (spec §4.7 step 4).
	ProcessDown(src, scratch []int16) []int16
	ProcessUp(src, scratch []int16) []int16
}

// ReplacesAGEcNr is implemented by a Filter that performs its own
// software echo-cancellation/noise-reduction on the HF side, so a
// caller placing it in the stack knows it should ask the AG to
// disable its onboard NR (AT+NREC=0) rather than run both at once.
type ReplacesAGEcNr interface {
	ReplacesAGEcNr() bool
}

// Format is the negotiated PCM format shared by both endpoints.
type Format struct {
	SampleRateHz   int
	BytesPerRecord int
	PacketSamps    int
}

// Hints are optional tuning inputs to configuration derivation; a zero
// PacketIntervalMs falls back to 20 ms, and zero buffer-fill and
// jitter hints fall back to the endpoints' own packet sizes (spec §4.7
// "Configuration derivation").
type Hints struct {
	PacketIntervalMs int
	MinBufferFillMs  int
	JitterWindowMs   int
}

// Config is the derived transfer configuration (spec §4.7).
type Config struct {
	Format            Format
	FilterPacketSamps int
	OutMin            [2]int // indexed by Role
	OutMax            [2]int
	InMax             [2]int
	WatchdogTimeout   time.Duration
	WatchdogStrikes   int
	WatchdogMinFrac   float64 // 0.25
	WatchdogMaxFrac   float64 // 2.00
}

// StopReason values surfaced through the pump's stop callback.
var (
	ErrDataExhausted   = herr.New(herr.DataExhausted, "pump", "one-shot endpoint exhausted", nil)
	ErrWatchdogTimeout = herr.New(herr.WatchdogTimeout, "pump", "clocked endpoint stalled", nil)
	ErrBadPumpConfig   = herr.New(herr.BadPumpConfig, "pump", "endpoints cannot share a transfer configuration", nil)
)

// Clock abstracts watchdog scheduling for deterministic tests, the
// same shape as hfp.Clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the minimal subset of *time.Timer the watchdog needs.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool                 { return r.t.Stop() }
func (r realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

type realClock struct{}

// RealClock is the production Clock backed by the standard library.
var RealClock Clock = realClock{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{time.AfterFunc(d, f)}
}

// Counters accumulates the per-endpoint/per-direction statistics the
// skew detector (internal/soundio) consumes each window (spec §4.8).
type Counters struct {
	Process int // samples successfully transferred
	Pad     int // silence samples synthesized
	Drop    int // samples discarded
}

// Pump bridges Bottom and Top through the filter chain. It is driven
// by calling OnPacket from the event loop whenever either endpoint
// signals readiness; OnPacket is not reentrant (spec §5 "the pump's
// per-event routine sets an 'entered' flag and asserts it is clear on
// entry").
type Pump struct {
	mu sync.Mutex

	endpoints [2]Endpoint
	filters   []Filter
	cfg       Config
	clock     Clock

	entered bool
	stopped bool
	onStop  func(error)

	// Two independent accumulators over the same events: the watchdog
	// resets its copy on its own timeout cadence, the skew detector
	// (internal/soundio) drains its copy once per second via
	// WindowCounters. Sharing one pair would have each reset corrupt
	// the other's measurement.
	inCounters  [2]Counters
	outCounters [2]Counters
	skewIn      [2]Counters
	skewOut     [2]Counters

	watchdogTimer   Timer
	watchdogStrikes [2][2]int // [Role][direction: 0=in,1=out]

	silenceFill [2]int16
}

// New builds a pump over the given endpoints and filter chain, deriving
// its configuration from their properties and hints. onStop is invoked
// at most once, when the pump stops for any reason.
func New(bottom, top Endpoint, filters []Filter, hints Hints, clock Clock, onStop func(error)) (*Pump, error) {
	cfg, err := DeriveConfig(bottom, top, hints)
	if err != nil {
		return nil, err
	}
	for _, f := range filters {
		f.Prepare(cfg.Format)
	}
	p := &Pump{
		endpoints: [2]Endpoint{Bottom: bottom, Top: top},
		filters:   filters,
		cfg:       cfg,
		clock:     clock,
		onStop:    onStop,
	}
	p.armWatchdog()
	return p, nil
}

// Config returns the derived transfer configuration.
func (p *Pump) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Stopped reports whether the pump has already stopped.
func (p *Pump) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// WindowCounters returns the accumulated in/out counters for each
// endpoint since the last call, then resets them. The skew detector
// (internal/soundio) consumes this once per second, independent of
// the watchdog's own reset cadence.
func (p *Pump) WindowCounters() (in, out [2]Counters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	in = p.skewIn
	out = p.skewOut
	p.skewIn = [2]Counters{}
	p.skewOut = [2]Counters{}
	return in, out
}

// stop transitions the pump to stopped exactly once and fires onStop
// (spec §5 "Pump stop is final and synchronous from the caller's point
// of view; any subsequent endpoint event is ignored").
func (p *Pump) stop(reason error) {
	if p.stopped {
		return
	}
	p.stopped = true
	if p.watchdogTimer != nil {
		p.watchdogTimer.Stop()
	}
	if p.onStop != nil {
		p.onStop(reason)
	}
}

// OnPacket runs one cycle of the per-event algorithm (spec §4.7),
// triggered by either endpoint's packet notification. The which
// argument names the endpoint that fired; the solver still considers
// both endpoints' states every cycle.
func (p *Pump) OnPacket(which Role) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}
	if p.entered {
		panic("pump: reentrant OnPacket")
	}
	p.entered = true
	defer func() { p.entered = false }()

	// Step 1: sample queue states, update accumulated counters.
	bottomIn, topIn := p.endpoints[Bottom].InQueued(), p.endpoints[Top].InQueued()
	bottomOut, topOut := p.endpoints[Bottom].OutQueued(), p.endpoints[Top].OutQueued()

	// Step 2: solve for ncopy.
	ncopy := p.solveNcopy(bottomIn, topIn, bottomOut, topOut)

	// Step 3: pre-transfer trimming.
	if p.endpoints[Bottom].Clocked() && bottomIn > p.cfg.InMax[Bottom] {
		dropped := p.endpoints[Bottom].Drop(bottomIn - p.cfg.InMax[Bottom])
		p.addInDrop(Bottom, dropped)
	}
	if p.endpoints[Top].Clocked() && topIn > p.cfg.InMax[Top] {
		dropped := p.endpoints[Top].Drop(topIn - p.cfg.InMax[Top])
		p.addInDrop(Top, dropped)
	}
	for _, r := range [2]Role{Bottom, Top} {
		out := p.endpoints[r].OutQueued()
		if out+ncopy > p.cfg.OutMax[r] {
			shortfall := (out + ncopy) - p.cfg.OutMax[r]
			if shortfall > ncopy {
				shortfall = ncopy
			}
			p.addOutDrop(r, shortfall)
			ncopy -= shortfall
		}
	}
	if ncopy < 0 {
		ncopy = 0
	}

	// Step 4: transfer ncopy samples, filter_packet_samps at a time.
	p.transfer(ncopy)

	// Step 5: silence padding.
	p.pad(Bottom)
	p.pad(Top)

	// Step 6: remove-on-exhaust termination.
	for _, r := range [2]Role{Bottom, Top} {
		if p.endpoints[r].RemoveOnExhaust() && p.endpoints[r].Exhausted() {
			p.stop(ErrDataExhausted)
			return
		}
	}
}

func (p *Pump) addInDrop(r Role, n int) {
	p.inCounters[r].Drop += n
	p.skewIn[r].Drop += n
}

func (p *Pump) addOutDrop(r Role, n int) {
	p.outCounters[r].Drop += n
	p.skewOut[r].Drop += n
}

func (p *Pump) addInProcess(r Role, n int) {
	p.inCounters[r].Process += n
	p.skewIn[r].Process += n
}

func (p *Pump) addOutProcess(r Role, n int) {
	p.outCounters[r].Process += n
	p.skewOut[r].Process += n
}

func (p *Pump) addOutPad(r Role, n int) {
	p.outCounters[r].Pad += n
	p.skewOut[r].Pad += n
}

func (p *Pump) addInPad(r Role, n int) {
	p.inCounters[r].Pad += n
	p.skewIn[r].Pad += n
}

// transfer moves ncopy samples through the filter chain in
// filter_packet_samps-sized packets (spec §4.7 step 4).
func (p *Pump) transfer(ncopy int) {
	packet := p.cfg.FilterPacketSamps
	if packet <= 0 {
		return
	}
	for remaining := ncopy; remaining > 0; remaining -= packet {
		n := packet
		if n > remaining {
			n = remaining
		}
		down := make([]int16, n)
		scratch := make([]int16, n)
		got := p.endpoints[Top].Read(down)
		p.addInProcess(Top, got)
		if got < n {
			p.addInPad(Top, n-got)
		}
		buf := down[:got]
		for _, f := range p.filters {
			if !f.WantsDown() {
				continue
			}
			buf = f.ProcessDown(buf, scratch[:len(buf)])
		}
		wrote := p.endpoints[Bottom].Write(buf)
		p.addOutProcess(Bottom, wrote)
		if got > 0 {
			p.silenceFill[Top] = buf[len(buf)-1]
		}

		up := make([]int16, n)
		scratch2 := make([]int16, n)
		got = p.endpoints[Bottom].Read(up)
		p.addInProcess(Bottom, got)
		if got < n {
			p.addInPad(Bottom, n-got)
		}
		buf = up[:got]
		for i := len(p.filters) - 1; i >= 0; i-- {
			f := p.filters[i]
			if !f.WantsUp() {
				continue
			}
			buf = f.ProcessUp(buf, scratch2[:len(buf)])
		}
		wrote = p.endpoints[Top].Write(buf)
		p.addOutProcess(Top, wrote)
		if got > 0 {
			p.silenceFill[Bottom] = buf[len(buf)-1]
		}
	}
}

// pad restores r's output queue to out_min with replicated-last-sample
// silence when its opposing source is not remove-on-exhaust-empty
// (spec §4.7 step 5).
func (p *Pump) pad(r Role) {
	opposing := r.other()
	if p.endpoints[opposing].RemoveOnExhaust() && p.endpoints[opposing].Exhausted() {
		return
	}
	out := p.endpoints[r].OutQueued()
	need := p.cfg.OutMin[r] - out
	if need <= 0 {
		return
	}
	fill := make([]int16, need)
	sample := p.silenceFill[opposing]
	for i := range fill {
		fill[i] = sample
	}
	wrote := p.endpoints[r].Write(fill)
	p.addOutPad(r, wrote)
}
