package soundio

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/nohands-go/gonohands/internal/pump"
)

// TestSkewDetectorIdempotent checks that SkewDetector.Evaluate is a
// pure function of the window history it has seen: replaying the same
// sequence of windows through two independently-constructed detectors
// must emit the same sequence of events, with no hidden dependency on
// wall-clock time or evaluation order (spec §4.8).
func TestSkewDetectorIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "windows")
		windows := make([]window, n)
		for i := range windows {
			windows[i] = window{
				bottomIn:  randCounters(t, "bottomIn"),
				bottomOut: randCounters(t, "bottomOut"),
				topIn:     randCounters(t, "topIn"),
				topOut:    randCounters(t, "topOut"),
			}
		}

		run := func() []Event {
			var got []Event
			d := NewSkewDetector(func(e Event) { got = append(got, e) })
			for _, w := range windows {
				d.Evaluate(w, time.Time{})
			}
			return got
		}

		first := run()
		second := run()

		if len(first) != len(second) {
			t.Fatalf("replaying the same window sequence produced different event counts: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("event %d differs across replays: %+v vs %+v", i, first[i], second[i])
			}
		}
	})
}

func randCounters(t *rapid.T, label string) pump.Counters {
	return pump.Counters{
		Process: rapid.IntRange(0, 2000).Draw(t, label+"Process"),
		Pad:     rapid.IntRange(0, 5).Draw(t, label+"Pad"),
		Drop:    rapid.IntRange(0, 5).Draw(t, label+"Drop"),
	}
}
