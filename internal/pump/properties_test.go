package pump

import (
	"testing"

	"pgregory.net/rapid"
)

// TestPumpSampleConservation checks the accounting identity behind
// transfer() (spec §8 "Σ in.process + in.pad + in.drop = Σ out.process
// + out.pad + out.drop per direction, within one filter packet"): for
// each direction, a source's process+pad must sum to exactly the
// number of samples demanded (ncopy), and whatever it actually
// delivers must land unchanged on the sink's process count, since
// fakeEndpoint.Write never truncates.
func TestPumpSampleConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		packet := rapid.IntRange(1, 64).Draw(t, "packet")
		multiple := rapid.IntRange(0, 10).Draw(t, "multiple")
		ncopy := packet * multiple
		bottomAvail := rapid.IntRange(0, ncopy+packet).Draw(t, "bottomAvail")
		topAvail := rapid.IntRange(0, ncopy+packet).Draw(t, "topAvail")

		bottom := &fakeEndpoint{packetSamples: packet, clocked: true, outCapacity: 1 << 20, in: someSamples(bottomAvail, 1)}
		top := &fakeEndpoint{packetSamples: packet, clocked: true, outCapacity: 1 << 20, in: someSamples(topAvail, 1)}

		p := &Pump{
			endpoints: [2]Endpoint{Bottom: bottom, Top: top},
			filters:   []Filter{&passthroughFilter{}},
			cfg:       Config{FilterPacketSamps: packet},
		}

		p.transfer(ncopy)

		// Down direction: Top reads, Bottom writes.
		topDemanded := p.inCounters[Top].Process + p.inCounters[Top].Pad
		if topDemanded != ncopy {
			t.Fatalf("down direction: in.process(%d)+in.pad(%d) = %d, want ncopy = %d",
				p.inCounters[Top].Process, p.inCounters[Top].Pad, topDemanded, ncopy)
		}
		if p.inCounters[Top].Process != p.outCounters[Bottom].Process {
			t.Fatalf("down direction: in.process %d != out.process %d",
				p.inCounters[Top].Process, p.outCounters[Bottom].Process)
		}

		// Up direction: Bottom reads, Top writes.
		bottomDemanded := p.inCounters[Bottom].Process + p.inCounters[Bottom].Pad
		if bottomDemanded != ncopy {
			t.Fatalf("up direction: in.process(%d)+in.pad(%d) = %d, want ncopy = %d",
				p.inCounters[Bottom].Process, p.inCounters[Bottom].Pad, bottomDemanded, ncopy)
		}
		if p.inCounters[Bottom].Process != p.outCounters[Top].Process {
			t.Fatalf("up direction: in.process %d != out.process %d",
				p.inCounters[Bottom].Process, p.outCounters[Top].Process)
		}
	})
}
