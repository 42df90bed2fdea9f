package sco

// PumpAdapter exposes a Connected Endpoint as a internal/pump.Endpoint
// (the "top" side of the bridge): the pump borrows slices from the
// endpoint's ring pair and must return ownership before the event
// loop resumes (spec §5 "the SCO socket's PCM buffers are owned by
// the endpoint; the pump borrows slices through the buffer-get/
// dequeue interface").
type PumpAdapter struct {
	ep   *Endpoint
	last int16
}

// NewPumpAdapter wraps a Connected endpoint for use as a pump.Endpoint.
func NewPumpAdapter(ep *Endpoint) *PumpAdapter { return &PumpAdapter{ep: ep} }

func (a *PumpAdapter) PacketSamples() int    { return a.ep.PacketSamples() }
func (a *PumpAdapter) Clocked() bool         { return true }
func (a *PumpAdapter) LossTolerant() bool    { return false }
func (a *PumpAdapter) RemoveOnExhaust() bool { return false }
func (a *PumpAdapter) LastSample() int16     { return a.last }
func (a *PumpAdapter) Exhausted() bool       { return false }

func (a *PumpAdapter) OutCapacity() int {
	if r := a.ep.OutputRing(); r != nil {
		return r.Cap()
	}
	return 0
}

func (a *PumpAdapter) InQueued() int {
	if r := a.ep.InputRing(); r != nil {
		return r.Len()
	}
	return 0
}

func (a *PumpAdapter) OutQueued() int {
	if r := a.ep.OutputRing(); r != nil {
		return r.Len()
	}
	return 0
}

func (a *PumpAdapter) Read(buf []int16) int {
	r := a.ep.InputRing()
	if r == nil {
		return 0
	}
	n := r.Pop(buf)
	if n > 0 {
		a.last = buf[n-1]
	}
	return n
}

func (a *PumpAdapter) Write(buf []int16) int {
	r := a.ep.OutputRing()
	if r == nil {
		return 0
	}
	return r.Push(buf)
}

func (a *PumpAdapter) Drop(n int) int {
	r := a.ep.InputRing()
	if r == nil {
		return 0
	}
	return r.Drop(n)
}
