package hfp

import (
	"testing"

	"pgregory.net/rapid"
)

// cliGen builds arbitrary CallingLineIdentity values restricted to the
// ASCII subset that survives quoted-CSV round-tripping (no embedded
// quotes or commas, which the wire format has no escape for).
func cliGen(t *rapid.T) CallingLineIdentity {
	field := rapid.StringMatching(`[A-Za-z0-9 ]{0,16}`)
	return CallingLineIdentity{
		Number:      field.Draw(t, "number"),
		Type:        rapid.IntRange(128, 145).Draw(t, "type"),
		Subaddress:  field.Draw(t, "subaddress"),
		SubaddrType: rapid.IntRange(128, 145).Draw(t, "subaddrType"),
		Alpha:       field.Draw(t, "alpha"),
		Validity:    rapid.IntRange(0, 2).Draw(t, "validity"),
	}
}

func TestCLIRoundTripLaw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		want := cliGen(t)
		got, ok := parseCLIP(want.Format())
		if !ok {
			t.Fatalf("Format() produced an unparseable line: %q", want.Format())
		}
		if got != want {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
		}
	})
}

// TestCallStateDerivationIsTotal checks DeriveCallState never panics
// and always lands on a named state across the full indicator domain
// (spec §4.4 derivation table covers call ∈ {0,1} × callsetup ∈ {0..3}).
func TestCallStateDerivationIsTotal(t *testing.T) {
	for call := 0; call <= 1; call++ {
		for callsetup := 0; callsetup <= 3; callsetup++ {
			s := DeriveCallState(call, callsetup)
			if s.String() == "Unknown" {
				t.Fatalf("call=%d callsetup=%d derived an unknown state", call, callsetup)
			}
		}
	}
}

func TestChldTestParseExpandsRangesAndXSuffixes(t *testing.T) {
	caps := parseChldTest(`+CHLD: (0,1,1x,2-3)`)
	for _, want := range []ChldCap{Chld0, Chld1, Chld1x, Chld2, Chld3} {
		if !caps.Has(want) {
			t.Fatalf("expected capability %s in %v", want, caps)
		}
	}
	if caps.Has(Chld2x) || caps.Has(Chld4) {
		t.Fatalf("unexpected capability present: %v", caps)
	}
}

func TestAtCommandCompletionIsExactlyOnceAcrossHandlers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s, _, _ := newHandshakenSessionForRapid()
		f, err := s.HangUp()
		if err != nil {
			t.Fatalf("HangUp: %v", err)
		}
		outcome := rapid.SampledFrom([]string{"OK", "ERROR"}).Draw(t, "outcome")
		s.HandleRfcommData([]byte("\r\n" + outcome + "\r\n"))
		select {
		case <-f.Done():
		default:
			t.Fatalf("command never completed for outcome %s", outcome)
		}
	})
}

func newHandshakenSessionForRapid() (*Session, *fakeTransport, *fakeClock) {
	tr := &fakeTransport{}
	clk := &fakeClock{}
	s := NewSession(tr, WithClock(clk))
	s.HandleRfcommConnected()
	s.HandleRfcommData([]byte("\r\n+BRSF: 31\r\nOK\r\n"))
	s.HandleRfcommData([]byte("\r\n+CHLD: (0,1,2,3)\r\nOK\r\n"))
	s.HandleRfcommData([]byte("\r\n+CIND: (\"call\",(0,1)),(\"callsetup\",(0-3))\r\nOK\r\n"))
	s.HandleRfcommData([]byte("\r\nOK\r\n"))
	s.HandleRfcommData([]byte("\r\nOK\r\n"))
	s.HandleRfcommData([]byte("\r\nOK\r\n"))
	s.HandleRfcommData([]byte("\r\n+CIND: 0,0\r\nOK\r\n"))
	return s, tr, clk
}
