package hfp

import (
	"fmt"
	"regexp"

	"github.com/nohands-go/gonohands/internal/atcmd"
	"github.com/nohands-go/gonohands/internal/herr"
)

// phoneNumberRE matches spec §4.5: "optional leading +, then 1..31
// characters from [0-9#*wW]".
var phoneNumberRE = regexp.MustCompile(`^\+?[0-9#*wW]{1,31}$`)

// ValidatePhoneNumber rejects malformed numbers synchronously with
// BadParameter (spec §4.5, §8 boundary: 31 chars accepted, 32 rejected).
func ValidatePhoneNumber(num string) error {
	if !phoneNumberRE.MatchString(num) {
		return herr.New(herr.BadParameter, "hfp", fmt.Sprintf("invalid phone number %q", num), nil)
	}
	return nil
}

func (s *Session) enqueueSimple(text string) (*atcmd.Future, error) {
	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	cmd := atcmd.New(text, nil)
	f := cmd.Future()
	if err := s.queue.Enqueue(cmd); err != nil {
		return nil, err
	}
	return f, nil
}

// Dial places an outbound call: ATD<num>; (spec §4.5).
func (s *Session) Dial(num string) (*atcmd.Future, error) {
	if err := ValidatePhoneNumber(num); err != nil {
		return nil, err
	}
	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	cmd := atcmd.New(fmt.Sprintf("ATD%s;", num), nil)
	f := cmd.Future()
	cmd.OnComplete(func(r atcmd.Result) {
		if r == atcmd.Ok && s.callsetupEmulated {
			s.forceCallsetup(3, dialEmulationTimeout)
		}
	})
	if err := s.queue.Enqueue(cmd); err != nil {
		return nil, err
	}
	return f, nil
}

// Redial repeats the last number dialled: AT+BLDN (spec §4.5).
func (s *Session) Redial() (*atcmd.Future, error) {
	if err := s.requireConnected(); err != nil {
		return nil, err
	}
	cmd := atcmd.New("AT+BLDN", nil)
	f := cmd.Future()
	cmd.OnComplete(func(r atcmd.Result) {
		if r == atcmd.Ok && s.callsetupEmulated {
			s.forceCallsetup(3, dialEmulationTimeout)
		}
	})
	if err := s.queue.Enqueue(cmd); err != nil {
		return nil, err
	}
	return f, nil
}

// Answer accepts an incoming call: ATA (spec §4.5).
func (s *Session) Answer() (*atcmd.Future, error) { return s.enqueueSimple("ATA") }

// HangUp ends the current call: AT+CHUP (spec §4.5).
func (s *Session) HangUp() (*atcmd.Future, error) { return s.enqueueSimple("AT+CHUP") }

// SendDTMF transmits one DTMF tone: AT+VTS=<c> (spec §4.5).
func (s *Session) SendDTMF(c byte) (*atcmd.Future, error) {
	if !isDTMFChar(c) {
		return nil, herr.New(herr.BadParameter, "hfp", fmt.Sprintf("invalid DTMF digit %q", c), nil)
	}
	return s.enqueueSimple(fmt.Sprintf("AT+VTS=%c", c))
}

func isDTMFChar(c byte) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c == '#' || c == '*':
		return true
	case c >= 'A' && c <= 'D', c >= 'a' && c <= 'd':
		return true
	default:
		return false
	}
}

// chldCommand issues AT+CHLD=<suffix>, warning (but not refusing) if
// the AG never advertised the required capability (spec §4.5: "may
// still be issued ... logs a warning but does not refuse locally").
func (s *Session) chldCommand(cap ChldCap, suffix string) (*atcmd.Future, error) {
	if !s.chldCaps.Has(cap) {
		s.warnf("AT+CHLD=%s issued without AG capability %s advertised", suffix, cap)
	}
	return s.enqueueSimple("AT+CHLD=" + suffix)
}

// DropHeldUDUB: AT+CHLD=0 (requires cap 0).
func (s *Session) DropHeldUDUB() (*atcmd.Future, error) { return s.chldCommand(Chld0, "0") }

// SwapDropActive: AT+CHLD=1 (requires cap 1).
func (s *Session) SwapDropActive() (*atcmd.Future, error) { return s.chldCommand(Chld1, "1") }

// DropActive: AT+CHLD=1<n> (requires cap 1x).
func (s *Session) DropActive(n int) (*atcmd.Future, error) {
	return s.chldCommand(Chld1x, fmt.Sprintf("1%d", n))
}

// SwapHoldActive: AT+CHLD=2 (requires cap 2).
func (s *Session) SwapHoldActive() (*atcmd.Future, error) { return s.chldCommand(Chld2, "2") }

// PrivateConsult: AT+CHLD=2<n> (requires cap 2x).
func (s *Session) PrivateConsult(n int) (*atcmd.Future, error) {
	return s.chldCommand(Chld2x, fmt.Sprintf("2%d", n))
}

// LinkCalls: AT+CHLD=3 (requires cap 3).
func (s *Session) LinkCalls() (*atcmd.Future, error) { return s.chldCommand(Chld3, "3") }

// Transfer: AT+CHLD=4 (requires cap 4).
func (s *Session) Transfer() (*atcmd.Future, error) { return s.chldCommand(Chld4, "4") }

// --- SPEC_FULL.md domain-stack additions, grounded on nohands's hfp.cpp ---

// SetVoiceRecognition toggles AG voice recognition: AT+BVRA=<0|1>,
// gated on the AGVoiceRecognition feature bit.
func (s *Session) SetVoiceRecognition(on bool) (*atcmd.Future, error) {
	if !s.HasAGFeature(AGVoiceRecognition) {
		s.warnf("AT+BVRA issued without AG voice-recognition feature advertised")
	}
	v := 0
	if on {
		v = 1
	}
	return s.enqueueSimple(fmt.Sprintf("AT+BVRA=%d", v))
}

// SubscriberNumber requests the AG's own number: AT+CNUM, parsed into
// a CallingLineIdentity since the wire shape is a CLIP subset.
func (s *Session) SubscriberNumber() (*atcmd.Future, <-chan CallingLineIdentity, error) {
	if err := s.requireConnected(); err != nil {
		return nil, nil, err
	}
	result := make(chan CallingLineIdentity, 1)
	cmd := atcmd.New("AT+CNUM", func(line string) bool {
		if cli, ok := parseCNUM(line); ok {
			select {
			case result <- cli:
			default:
			}
			return true
		}
		return false
	})
	f := cmd.Future()
	if err := s.queue.Enqueue(cmd); err != nil {
		return nil, nil, err
	}
	return f, result, nil
}

// SetSpeakerGain sets the HF's view of AG speaker volume: AT+VGS=<0-15>.
func (s *Session) SetSpeakerGain(level int) (*atcmd.Future, error) {
	if level < 0 || level > 15 {
		return nil, herr.New(herr.BadParameter, "hfp", "speaker gain must be 0..15", nil)
	}
	return s.enqueueSimple(fmt.Sprintf("AT+VGS=%d", level))
}

// SetMicGain sets the HF's microphone gain report: AT+VGM=<0-15>.
func (s *Session) SetMicGain(level int) (*atcmd.Future, error) {
	if level < 0 || level > 15 {
		return nil, herr.New(herr.BadParameter, "hfp", "mic gain must be 0..15", nil)
	}
	return s.enqueueSimple(fmt.Sprintf("AT+VGM=%d", level))
}

// DisableEcNr asks the AG to disable its own echo-cancellation/noise
// reduction: AT+NREC=0, gated on the AGEcNr feature bit.
func (s *Session) DisableEcNr() (*atcmd.Future, error) {
	if !s.HasAGFeature(AGEcNr) {
		s.warnf("AT+NREC=0 issued without AG ec_nr feature advertised")
	}
	return s.enqueueSimple("AT+NREC=0")
}
