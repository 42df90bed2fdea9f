package hfp

import (
	"strings"
	"time"
)

const (
	ringEmulationTimeout = 5 * time.Second
	ccwaEmulationTimeout = 20 * time.Second
	dialEmulationTimeout = 20 * time.Second
)

// handleUnsolicited is the atcmd.Queue's UnsolicitedFunc: it is
// delivered every +CIEV:/RING/+CLIP:/+CCWA:/+VGS:/+VGM: line
// regardless of whether a command is in-flight (spec §4.2).
func (s *Session) handleUnsolicited(line string) {
	upper := strings.ToUpper(line)
	switch {
	case strings.HasPrefix(upper, "+CIEV:"):
		s.handleCiev(line)
	case upper == "RING":
		s.handleRing()
	case strings.HasPrefix(upper, "+CLIP:"):
		s.handleClip(line)
	case strings.HasPrefix(upper, "+CCWA:"):
		s.handleCcwa(line)
	case strings.HasPrefix(upper, "+VGS:"):
		if v, ok := parseVolume(line); ok {
			s.notifySpeakerGain(v)
		}
	case strings.HasPrefix(upper, "+VGM:"):
		if v, ok := parseVolume(line); ok {
			s.notifyMicGain(v)
		}
	}
}

func (s *Session) handleCiev(line string) {
	index, value, ok := parseCIEV(line)
	if !ok {
		return
	}
	name, _, ok := s.indicators.SetIndex(index, value)
	if !ok {
		return
	}
	s.notifyIndicator(name, value)
	if name == IndCall && s.callsetupEmulated {
		// A real "call" indicator update concludes whatever
		// callsetup we were emulating (spec §8 scenario 2: "until a
		// +CIEV for call arrives").
		s.cancelCallsetupTimer()
		s.emulatedCallsetup = 0
	}
	if name == IndCall || name == IndCallSetup {
		s.ringActive = false
		s.notifyCallState()
	}
}

// handleRing implements spec §4.4: "RING → treated as callsetup=1,
// ring=true for devices lacking a callsetup indicator; triggers/
// re-arms a 5s timer that, on expiry, forces callsetup=0." On an AG
// with a real callsetup indicator that still reads 0, the RING is
// reported as callsetup=1 until the next +CIEV for call or callsetup.
func (s *Session) handleRing() {
	s.ringActive = true
	if s.callsetupEmulated {
		s.forceCallsetup(1, ringEmulationTimeout)
		return
	}
	s.notifyCallState()
}

// handleClip implements spec §4.4: "+CLIP: ... attach to current
// inbound callsetup; if the identity differs from the previously-seen
// one for this setup, re-notify."
func (s *Session) handleClip(line string) {
	cli, ok := parseCLIP(line)
	if !ok {
		return
	}
	if cli != s.cli {
		s.cli = cli
		s.notifyCLI(cli)
	}
}

func (s *Session) handleCcwa(line string) {
	cli, _, ok := parseCCWA(line)
	if !ok {
		return
	}
	if cli != s.cli {
		s.cli = cli
		s.notifyCLI(cli)
	}
	if s.callsetupEmulated {
		s.forceCallsetup(2, ccwaEmulationTimeout)
	}
}

// forceCallsetup sets the emulated callsetup value and (re)arms the
// timer that resets it to 0 on expiry, used by RING/+CCWA/dial-success
// paths when the AG lacks a real callsetup indicator.
func (s *Session) forceCallsetup(value int, timeout time.Duration) {
	s.emulatedCallsetup = value
	s.cancelCallsetupTimer()
	s.callsetupTimer = s.clock.AfterFunc(timeout, func() {
		s.emulatedCallsetup = 0
		s.notifyCallState()
	})
	s.notifyCallState()
}

func (s *Session) cancelCallsetupTimer() {
	if s.callsetupTimer != nil {
		s.callsetupTimer.Stop()
		s.callsetupTimer = nil
	}
}
