package hfp

import (
	"fmt"

	"github.com/nohands-go/gonohands/internal/atcmd"
)

// beginHandshake runs the fixed sequence of spec §4.3: BRSF, the
// optional CHLD=? probe, CIND=?, CMER, CLIP, CCWA, and finally CIND?.
// Errors during steps 1..6 are tolerated; an error on the final CIND?
// read disconnects (spec §4.3, preserved faithfully per Open Question
// (b) in SPEC_FULL.md §9 / spec.md §9).
func (s *Session) beginHandshake() {
	s.queue.OnDrain(func() {
		if s.state == Handshaking {
			s.state = Connected
			s.notifyConnected()
		}
	})

	brsf := atcmd.New(fmt.Sprintf("AT+BRSF=%d", s.localFeatures), func(line string) bool {
		if v, ok := parseBRSF(line); ok {
			s.agFeatures = v
			return true
		}
		return false
	})
	brsf.OnComplete(func(r atcmd.Result) {
		if r == atcmd.Aborted {
			return
		}
		if r == atcmd.Error {
			s.warnf("AT+BRSF rejected by AG; %s", s.brsfFallbackNote())
		}
		s.queueCindTest()
	})
	_ = s.queue.Enqueue(brsf)
}

func (s *Session) brsfFallbackNote() string {
	if s.agFromSDP {
		return "continuing with SDP-cached feature bitmap"
	}
	return "continuing with an empty feature bitmap"
}

func (s *Session) queueCindTest() {
	if s.agFeatures&AGThreeWayCalling != 0 {
		chld := atcmd.New("AT+CHLD=?", func(line string) bool {
			if caps := parseChldTest(line); caps != nil {
				s.chldCaps = caps
				return true
			}
			return false
		})
		chld.OnComplete(func(r atcmd.Result) {
			if r == atcmd.Error {
				s.warnf("AT+CHLD=? rejected by AG; three-way capabilities unknown")
			}
		})
		_ = s.queue.Enqueue(chld)
	}

	var names []string
	cind := atcmd.New("AT+CIND=?", func(line string) bool {
		if n := parseCindTest(line); n != nil {
			names = n
			return true
		}
		return false
	})
	cind.OnComplete(func(r atcmd.Result) {
		if r == atcmd.Aborted {
			return
		}
		if r == atcmd.Ok && names != nil {
			s.indicators = NewIndicatorTable(names)
			s.callsetupEmulated = !s.indicators.Has(IndCallSetup)
		} else {
			s.warnf("AT+CIND=? rejected by AG; indicator table unknown")
			s.callsetupEmulated = true
		}
		s.queueCmerClipCcwa()
	})
	_ = s.queue.Enqueue(cind)
}

func (s *Session) queueCmerClipCcwa() {
	cmer := atcmd.New("AT+CMER=3,0,0,1", nil)
	cmer.OnComplete(func(r atcmd.Result) {
		if r == atcmd.Error {
			s.warnf("AT+CMER rejected by AG; unsolicited indicator events may not arrive")
		}
	})
	_ = s.queue.Enqueue(cmer)

	clip := atcmd.New("AT+CLIP=1", nil)
	clip.OnComplete(func(r atcmd.Result) {
		if r == atcmd.Error {
			s.warnf("AT+CLIP=1 rejected by AG; calling-line identity disabled")
		}
	})
	_ = s.queue.Enqueue(clip)

	ccwa := atcmd.New("AT+CCWA=1", nil)
	ccwa.OnComplete(func(r atcmd.Result) {
		if r == atcmd.Error {
			s.warnf("AT+CCWA=1 rejected by AG; call-waiting notification disabled")
		}
	})
	_ = s.queue.Enqueue(ccwa)

	s.queueFinalCindRead()
}

func (s *Session) queueFinalCindRead() {
	var values []int
	read := atcmd.New("AT+CIND?", func(line string) bool {
		if v := parseCindRead(line); v != nil {
			values = v
			return true
		}
		return false
	})
	read.OnComplete(func(r atcmd.Result) {
		if r == atcmd.Aborted {
			return
		}
		if r == atcmd.Error {
			// spec §4.3: "An ERROR at step 7 disconnects."
			s.transport.Disconnect(false)
			s.teardown(errHandshakeCindReadRejected, false)
			return
		}
		s.indicators.SetAll(values)
		// queue.OnDrain fires the Connected transition once this
		// command's completion pops the now-empty queue.
	})
	_ = s.queue.Enqueue(read)
}
