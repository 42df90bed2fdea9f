// Package hfp implements the HFP protocol state machine (spec §4.3,
// §4.4, §4.5): handshake, live indicator/call-state mirroring, and
// callsetup emulation for AGs that omit the callsetup indicator.
package hfp

import (
	"fmt"
	"log"
	"time"

	"github.com/nohands-go/gonohands/internal/atcmd"
	"github.com/nohands-go/gonohands/internal/herr"
)

// State is the session's connection-lifecycle variant (spec §3).
type State int

const (
	Disconnected State = iota
	RfcommConnecting
	Handshaking
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case RfcommConnecting:
		return "RfcommConnecting"
	case Handshaking:
		return "Handshaking"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// ReconnectPolicy controls automatic reconnection after an
// involuntary RFCOMM loss (spec §7 "triggers auto-reconnect if enabled
// (timer default 15s)").
type ReconnectPolicy struct {
	Enabled bool
	Delay   time.Duration
}

// DefaultReconnectPolicy matches the spec's default.
var DefaultReconnectPolicy = ReconnectPolicy{Enabled: false, Delay: 15 * time.Second}

// Reconnector is invoked by an armed reconnect timer. Supplying this
// keeps internal/hfp decoupled from internal/rfcomm's Connect API.
type Reconnector func()

// Session is one HFP session per (device, service) pair (spec §3).
type Session struct {
	transport Transport
	queue     *atcmd.Queue
	lines     *atcmd.LineReader
	clock     Clock
	logger    *log.Logger

	state State

	localFeatures uint32
	agFeatures    uint32
	agFromSDP     bool
	chldCaps      ChldCapSet
	indicators    *IndicatorTable

	callsetupEmulated bool
	emulatedCallsetup int
	callsetupTimer    Timer
	ringActive        bool

	cli CallingLineIdentity

	reconnect      ReconnectPolicy
	reconnectTimer Timer
	reconnectFn    Reconnector

	sco ScoChild

	listeners []Listener
}

// Option configures a new Session.
type Option func(*Session)

// WithLocalFeatures overrides the default HF feature bitmap (spec §6.3).
func WithLocalFeatures(bits uint32) Option {
	return func(s *Session) { s.localFeatures = bits }
}

// WithClock overrides the production clock, for deterministic tests.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithReconnectPolicy overrides the default (disabled) auto-reconnect policy.
func WithReconnectPolicy(p ReconnectPolicy, reconnect Reconnector) Option {
	return func(s *Session) {
		s.reconnect = p
		s.reconnectFn = reconnect
	}
}

// WithLogger overrides the default stderr logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a Disconnected session bound to transport.
func NewSession(transport Transport, opts ...Option) *Session {
	s := &Session{
		transport:     transport,
		clock:         RealClock,
		localFeatures: DefaultLocalFeatures,
		indicators:    NewIndicatorTable(nil),
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lines = atcmd.NewLineReader()
	s.queue = atcmd.NewQueue(func(text string) error {
		return s.transport.Write([]byte(text + "\r"))
	}, s.handleUnsolicited)
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// AGFeatures returns the AG feature bitmap learned via BRSF or SDP.
func (s *Session) AGFeatures() uint32 { return s.agFeatures }

// HasAGFeature reports whether the AG advertises the given feature bit.
func (s *Session) HasAGFeature(bit uint32) bool { return s.agFeatures&bit != 0 }

// ChldCaps returns the three-way call-hold capability set.
func (s *Session) ChldCaps() ChldCapSet { return s.chldCaps }

// Indicators exposes the live indicator table (read-only use expected).
func (s *Session) Indicators() *IndicatorTable { return s.indicators }

// CallState derives the current call/callsetup state (spec §4.4).
func (s *Session) CallState() CallState {
	return DeriveCallState(s.currentCall(), s.currentCallsetup())
}

// CurrentCLI returns the most recently seen calling-line identity and
// whether one is retained (retained while callsetup ≠ 0, spec §3).
func (s *Session) CurrentCLI() (CallingLineIdentity, bool) {
	if s.currentCallsetup() == 0 {
		return CallingLineIdentity{}, false
	}
	return s.cli, true
}

func (s *Session) currentCall() int {
	v, _ := s.indicators.Get(IndCall)
	return v
}

func (s *Session) currentCallsetup() int {
	if s.indicators.Has(IndCallSetup) {
		v, _ := s.indicators.Get(IndCallSetup)
		if v == 0 && s.ringActive {
			// A RING seen since the last call/callsetup update marks
			// an incoming setup the AG has not reported via +CIEV.
			return 1
		}
		return v
	}
	return s.emulatedCallsetup
}

// SetCachedAGFeatures primes the AG feature bitmap from an SDP
// SupportedFeatures attribute, read before the RFCOMM channel is even
// open (spec §4.1: "if SDP reports the record's SupportedFeatures
// attribute, cache it for use during handshake").
func (s *Session) SetCachedAGFeatures(bits uint32) {
	s.agFeatures = bits
	s.agFromSDP = true
}

// HandleRfcommConnecting notifies the session that the RFCOMM dial/accept is underway.
func (s *Session) HandleRfcommConnecting() {
	s.state = RfcommConnecting
}

// HandleRfcommConnected notifies the session that the RFCOMM channel
// is open and begins the fixed handshake sequence (spec §4.3).
func (s *Session) HandleRfcommConnected() {
	s.state = Handshaking
	s.beginHandshake()
}

// HandleRfcommFailed notifies the session that connecting failed
// before a channel was ever established.
func (s *Session) HandleRfcommFailed(err error) {
	s.teardown(err, false)
}

// HandleRfcommData feeds newly-received bytes through the line reader
// and the AT command queue (spec §4.2, §6.1).
func (s *Session) HandleRfcommData(data []byte) {
	lines, err := s.lines.Feed(data)
	for _, line := range lines {
		if qerr := s.queue.HandleLine(line); qerr != nil {
			s.teardown(qerr, false)
			return
		}
	}
	if err != nil {
		s.teardown(err, false)
	}
}

// HandleRfcommClosed notifies the session that the RFCOMM channel
// closed, voluntarily or otherwise (spec §7 "a lost RFCOMM link
// atomically tears down any SCO link, aborts every queued command,
// and triggers auto-reconnect if enabled").
func (s *Session) HandleRfcommClosed(voluntary bool, reason error) {
	s.teardown(reason, voluntary)
}

// Disconnect tears the session down voluntarily (spec §5 "A pending
// HFP connection can be aborted by calling disconnect").
func (s *Session) Disconnect() {
	s.transport.Disconnect(true)
	s.teardown(nil, true)
}

// CancelReconnect disarms any pending auto-reconnect timer.
func (s *Session) CancelReconnect() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

func (s *Session) teardown(reason error, voluntary bool) {
	wasConnected := s.state != Disconnected
	s.state = Disconnected
	s.queue.Abort()
	if s.callsetupTimer != nil {
		s.callsetupTimer.Stop()
		s.callsetupTimer = nil
	}
	s.emulatedCallsetup = 0
	s.ringActive = false
	if s.sco != nil {
		child := s.sco
		s.sco = nil
		child.Close()
	}
	if wasConnected {
		s.notifyDisconnected(reason)
	}
	if voluntary {
		s.CancelReconnect()
	}
	if !voluntary && s.reconnect.Enabled && s.reconnectFn != nil {
		s.reconnectTimer = s.clock.AfterFunc(s.reconnect.Delay, func() {
			s.reconnectFn()
		})
	}
}

// AttachSco binds an SCO child to this session. It may only succeed
// while Connected, and only once (spec §3 invariant).
func (s *Session) AttachSco(child ScoChild) error {
	if s.state != Connected {
		return herr.New(herr.NotConnected, "hfp", "session is not Connected", nil)
	}
	if s.sco != nil {
		return herr.New(herr.AlreadyOpen, "hfp", "an SCO child is already attached", nil)
	}
	s.sco = child
	return nil
}

// DetachSco clears the attached SCO child, without closing it (the
// caller retains ownership of an explicit close).
func (s *Session) DetachSco() { s.sco = nil }

// requireConnected returns a synchronous NotConnected error unless the
// session is Connected (spec §5: "While a session is not Connected, no
// AT command may be in-flight").
func (s *Session) requireConnected() error {
	if s.state != Connected {
		return herr.New(herr.NotConnected, "hfp", fmt.Sprintf("session is %s", s.state), nil)
	}
	return nil
}

func (s *Session) warnf(format string, args ...any) {
	s.logger.Printf("hfp: warning: "+format, args...)
}
