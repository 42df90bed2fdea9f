// Package soundio is the pump lifecycle glue (spec §4.7, §4.8): it
// selects a driver for the local sound card, builds the filter stack,
// starts/stops an internal/pump.Pump bridging the card to a
// internal/sco.Endpoint, applies hard/soft mute, and runs the skew
// detector over the pump's per-window counters. Real ALSA/OSS driver
// back-ends and the Speex DSP binding are out of scope (spec's
// Non-goals); Driver is the seam a concrete back-end plugs into.
package soundio

import (
	"time"

	"github.com/nohands-go/gonohands/internal/herr"
	"github.com/nohands-go/gonohands/internal/pump"
)

// Driver is the minimal sound-card surface the manager needs. A real
// back-end (ALSA, OSS, or a test double) implements this; it is not
// itself a pump.Endpoint because mute must be layered on top of
// whatever the driver reports.
type Driver interface {
	PacketSamples() int
	OutCapacity() int
	Read(buf []int16) int
	Write(buf []int16) int
	Close() error
}

// cardEndpoint adapts a Driver to pump.Endpoint, applying hard/soft
// mute to the write path (spec §4.7 "SoundIo manager... mute
// (hard/soft)").
type cardEndpoint struct {
	driver Driver

	in  []int16 // local queue of samples ready for the pump to Read
	out int     // samples currently queued for Write (best-effort count)

	hardMute bool // silently discards written samples
	softMute bool // scales written samples toward silence

	last int16
}

func (c *cardEndpoint) PacketSamples() int    { return c.driver.PacketSamples() }
func (c *cardEndpoint) Clocked() bool         { return true }
func (c *cardEndpoint) LossTolerant() bool    { return false }
func (c *cardEndpoint) RemoveOnExhaust() bool { return false }
func (c *cardEndpoint) InQueued() int         { return len(c.in) }
func (c *cardEndpoint) OutQueued() int        { return c.out }
func (c *cardEndpoint) OutCapacity() int      { return c.driver.OutCapacity() }
func (c *cardEndpoint) LastSample() int16     { return c.last }
func (c *cardEndpoint) Exhausted() bool       { return false }

func (c *cardEndpoint) Read(buf []int16) int {
	n := c.driver.Read(buf)
	if n > 0 {
		c.last = buf[n-1]
	}
	return n
}

func (c *cardEndpoint) Write(buf []int16) int {
	if c.hardMute {
		return len(buf)
	}
	if c.softMute {
		muted := make([]int16, len(buf))
		for i, s := range buf {
			muted[i] = s / 8
		}
		buf = muted
	}
	n := c.driver.Write(buf)
	c.out += n
	return n
}

func (c *cardEndpoint) Drop(n int) int {
	if n > len(c.in) {
		n = len(c.in)
	}
	c.in = c.in[n:]
	return n
}

// Manager owns the pump bridging a sound card to an SCO endpoint, the
// filter stack, and the skew detector.
type Manager struct {
	card     *cardEndpoint
	pump     *pump.Pump
	detector *SkewDetector

	onStop func(error)
}

// New derives the pump configuration, prepares the filter chain, and
// starts bridging card and sco (both already adapted to
// pump.Endpoint). onStop fires once, when the pump stops for any
// reason; onSkew fires at most once per 1-second window with the
// dominant skew classification (spec §4.8).
func New(card Driver, sco pump.Endpoint, filters []pump.Filter, hints pump.Hints, clock pump.Clock, onStop func(error), onSkew func(Event)) (*Manager, error) {
	ce := &cardEndpoint{driver: card}
	m := &Manager{card: ce, onStop: onStop, detector: NewSkewDetector(onSkew)}

	p, err := pump.New(ce, sco, filters, hints, clock, m.handleStop)
	if err != nil {
		return nil, herr.New(herr.BadPumpConfig, "soundio", "failed to start pump", err)
	}
	m.pump = p
	return m, nil
}

func (m *Manager) handleStop(reason error) {
	if m.onStop != nil {
		m.onStop(reason)
	}
}

// OnCardPacket and OnScoPacket forward packet-ready notifications into
// the bridged pump.
func (m *Manager) OnCardPacket() { m.pump.OnPacket(pump.Bottom) }

func (m *Manager) OnScoPacket() { m.pump.OnPacket(pump.Top) }

// SetHardMute silences outbound card audio without altering pump
// accounting (the driver still reports full Write counts, so the
// watchdog sees normal progress).
func (m *Manager) SetHardMute(on bool) { m.card.hardMute = on }

// SetSoftMute attenuates outbound card audio instead of silencing it
// outright.
func (m *Manager) SetSoftMute(on bool) { m.card.softMute = on }

// Tick drains this period's counters from the bridged pump and runs
// one skew-window evaluation; callers drive this from a 1-second
// ticker on the event loop (spec §4.8 "After each 1-second window").
func (m *Manager) Tick(now time.Time) {
	m.detector.Evaluate(windowFromPump(m.pump), now)
}
