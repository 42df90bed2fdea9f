package pump

import "time"

// fakeEndpoint is a minimal in-memory Endpoint for tests: in/out are
// plain slices acting as unbounded queues, with bookkeeping fields
// exposed for assertions.
type fakeEndpoint struct {
	packetSamples   int
	clocked         bool
	lossTolerant    bool
	removeOnExhaust bool
	outCapacity     int

	in  []int16
	out []int16

	last int16
}

func (f *fakeEndpoint) PacketSamples() int    { return f.packetSamples }
func (f *fakeEndpoint) Clocked() bool         { return f.clocked }
func (f *fakeEndpoint) LossTolerant() bool    { return f.lossTolerant }
func (f *fakeEndpoint) RemoveOnExhaust() bool { return f.removeOnExhaust }
func (f *fakeEndpoint) InQueued() int         { return len(f.in) }
func (f *fakeEndpoint) OutQueued() int        { return len(f.out) }
func (f *fakeEndpoint) OutCapacity() int      { return f.outCapacity }
func (f *fakeEndpoint) LastSample() int16     { return f.last }
func (f *fakeEndpoint) Exhausted() bool       { return f.removeOnExhaust && len(f.in) == 0 }

func (f *fakeEndpoint) Read(buf []int16) int {
	n := copy(buf, f.in)
	f.in = f.in[n:]
	if n > 0 {
		f.last = buf[n-1]
	}
	return n
}

func (f *fakeEndpoint) Write(buf []int16) int {
	f.out = append(f.out, buf...)
	return len(buf)
}

func (f *fakeEndpoint) Drop(n int) int {
	if n > len(f.in) {
		n = len(f.in)
	}
	f.in = f.in[n:]
	return n
}

// passthroughFilter wants both directions and returns src unmodified,
// used where the test cares about transfer accounting, not DSP.
type passthroughFilter struct {
	prepared Format
}

func (p *passthroughFilter) WantsDown() bool                    { return true }
func (p *passthroughFilter) WantsUp() bool                      { return true }
func (p *passthroughFilter) Prepare(f Format)                   { p.prepared = f }
func (p *passthroughFilter) ProcessDown(src, _ []int16) []int16 { return src }
func (p *passthroughFilter) ProcessUp(src, _ []int16) []int16   { return src }

// fakeClock lets tests fire the watchdog deterministically.
type fakeClock struct {
	pending []*fakeTimer
}

type fakeTimer struct {
	fn      func()
	fired   bool
	stopped bool
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{fn: fn}
	c.pending = append(c.pending, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) Reset(d time.Duration) bool { return true }

// fire runs every live, unfired timer once.
func (c *fakeClock) fire() {
	live := c.pending
	c.pending = nil
	for _, t := range live {
		if t.stopped || t.fired {
			continue
		}
		t.fired = true
		t.fn()
	}
}

func someSamples(n int, start int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = start + int16(i)
	}
	return out
}
