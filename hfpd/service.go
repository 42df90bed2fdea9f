// Package hfpd is the top-level service facade (spec §2 "top-level
// service wiring, D-Bus-facing facade"): it owns the single
// internal/eventloop.Loop the whole process runs on, the BlueZ
// manager, the HCI hub, and the per-device links that bind an
// internal/hfp.Session to its internal/rfcomm transport and (once
// audio is requested) its internal/sco/internal/soundio pump.
//
// Per spec §9 DESIGN NOTES, the D-Bus/SDP singletons (internal/bluez.Manager,
// internal/hci.Hub) are handle-owned: constructed once by the caller and
// passed into Service by construction, rather than looked up lazily.
package hfpd

import (
	"context"
	"encoding/binary"
	"log"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nohands-go/gonohands/internal/bluez"
	"github.com/nohands-go/gonohands/internal/device"
	"github.com/nohands-go/gonohands/internal/eventloop"
	"github.com/nohands-go/gonohands/internal/hci"
	"github.com/nohands-go/gonohands/internal/herr"
	"github.com/nohands-go/gonohands/internal/hfp"
	"github.com/nohands-go/gonohands/internal/pump"
	"github.com/nohands-go/gonohands/internal/rfcomm"
	"github.com/nohands-go/gonohands/internal/sco"
	"github.com/nohands-go/gonohands/internal/soundio"
)

// Option configures a Service at construction.
type Option func(*Service)

// WithLocalFeatures overrides the HF feature bitmap advertised in the
// SDP record and BRSF exchange (spec §6.3).
func WithLocalFeatures(bits uint32) Option {
	return func(s *Service) { s.localFeatures = bits }
}

// WithLogger overrides the default stderr logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithReconnectPolicy overrides the default (disabled) auto-reconnect
// policy applied to every session the service creates (spec §7).
func WithReconnectPolicy(p hfp.ReconnectPolicy) Option {
	return func(s *Service) { s.reconnect = p }
}

// WithPumpHints overrides the default configuration-derivation hints
// passed to every audio pump (spec §4.7).
func WithPumpHints(h pump.Hints) Option {
	return func(s *Service) { s.hints = h }
}

// Service wires the HFP engine's components together behind a single
// D-Bus-facing surface: one BlueZ listening profile, one HCI hub, and
// a registry of active per-device links, all serialized onto one
// internal/eventloop.Loop (spec §5).
type Service struct {
	loop   *eventloop.Loop
	bus    bluez.Manager
	hub    *hci.Hub
	logger *log.Logger

	localFeatures uint32
	reconnect     hfp.ReconnectPolicy
	hints         pump.Hints

	mu    sync.Mutex
	links map[device.Addr]*link
}

// New builds a Service around an already-constructed BlueZ manager and
// HCI controller. It does not itself start listening; call Start for
// that.
func New(bus bluez.Manager, controller hci.Controller, opts ...Option) (*Service, error) {
	hub, err := hci.New(controller)
	if err != nil {
		return nil, err
	}
	s := &Service{
		loop:          eventloop.New(),
		bus:           bus,
		hub:           hub,
		logger:        log.Default(),
		localFeatures: hfp.DefaultLocalFeatures,
		reconnect:     hfp.DefaultReconnectPolicy,
		hints:         pump.Hints{PacketIntervalMs: 7, MinBufferFillMs: 20, JitterWindowMs: 40},
		links:         make(map[device.Addr]*link),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the HF server profile and begins the background
// accept loop (spec §4.1). It returns once registration completes;
// the accept loop itself runs until ctx is cancelled or Close is
// called.
func (s *Service) Start(ctx context.Context) error {
	if err := s.bus.StartListening(ctx); err != nil {
		return err
	}
	s.loop.Offload(func() error {
		s.acceptLoop(ctx)
		return nil
	}, func(error) {})
	return nil
}

func (s *Service) acceptLoop(ctx context.Context) {
	for {
		acc, err := s.bus.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Printf("hfpd: accept error: %v", err)
			continue
		}
		acc := acc
		s.loop.Post(func() { s.handleAccepted(acc) })
	}
}

// Dial connects outbound to dev (spec §4.1 "Outbound connect first
// performs an SDP lookup").
func (s *Service) Dial(ctx context.Context, dev bluez.RemoteDevice) error {
	acc, err := s.bus.Connect(ctx, dev)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	s.loop.Post(func() { done <- s.adopt(acc) })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) handleAccepted(acc bluez.Accepted) {
	if err := s.adopt(acc); err != nil {
		s.logger.Printf("hfpd: failed to adopt accepted connection: %v", err)
	}
}

// adopt binds one accepted RFCOMM file descriptor to a device handle
// and a fresh HFP session. Must run on the loop goroutine.
func (s *Service) adopt(acc bluez.Accepted) error {
	addr, err := device.ParseAddr(acc.Remote.Address)
	if err != nil {
		return herr.New(herr.BadParameter, "hfpd", "malformed remote address", err)
	}

	handle := s.hub.DeviceFor(addr, acc.Remote.Name, device.Class(acc.Remote.Class))

	s.mu.Lock()
	if _, exists := s.links[addr]; exists {
		s.mu.Unlock()
		return herr.New(herr.AlreadyOpen, "hfpd", "device already has an active link", nil)
	}
	s.mu.Unlock()

	lk := &link{addr: addr, handle: handle}
	transport := &connTransport{}
	lk.session = hfp.NewSession(transport,
		hfp.WithLocalFeatures(s.localFeatures),
		hfp.WithReconnectPolicy(s.reconnect, func() { s.reconnectLink(lk) }),
		hfp.WithLogger(s.logger),
	)
	if acc.AGFeaturesOK {
		lk.session.SetCachedAGFeatures(acc.AGFeatures)
	}
	if err := handle.AttachSession(lk); err != nil {
		return err
	}

	lk.session.HandleRfcommConnecting()
	conn, err := rfcomm.New(acc.FD,
		func(data []byte) { s.loop.Post(func() { lk.session.HandleRfcommData(data) }) },
		func(voluntary bool, reason error) {
			s.loop.Post(func() { s.onConnClosed(lk, voluntary, reason) })
		},
	)
	if err != nil {
		lk.session.HandleRfcommFailed(err)
		handle.DetachSession()
		return err
	}
	transport.conn = conn
	lk.conn = conn

	s.mu.Lock()
	s.links[addr] = lk
	s.mu.Unlock()

	lk.session.HandleRfcommConnected()
	return nil
}

func (s *Service) onConnClosed(lk *link, voluntary bool, reason error) {
	lk.session.HandleRfcommClosed(voluntary, reason)
	if lk.scoEP != nil {
		// Covers both an endpoint still SocketConnecting (the RFCOMM
		// link dropped mid-SCO-connect, spec §8 scenario 6) and one
		// already Connected; Close no-ops if it was never armed.
		lk.scoEP.Close(false, false, reason, func(r error) {
			s.logger.Printf("hfpd: audio-state notification for %s: rfcomm closed: %v", lk.addr, r)
		}, nil)
		if lk.audioTick != nil {
			lk.audioTick.Stop()
			lk.audioTick = nil
		}
		lk.sound = nil
		lk.scoEP = nil
	}
	s.mu.Lock()
	delete(s.links, lk.addr)
	s.mu.Unlock()
	lk.handle.DetachSession()
}

func (s *Service) reconnectLink(lk *link) {
	s.logger.Printf("hfpd: reconnect timer fired for %s (auto-reconnect dial not wired to a discovery source)", lk.addr)
}

// AttachAudio binds an already-accepted SCO file descriptor to dev's
// link and begins the nonblocking connect handshake (spec §4.6 "the
// completion event is delivered through a writability notification").
// It returns once the handshake has started, not once it has
// completed: the pump and soundio.Manager are wired up asynchronously
// by completeAudioConnect when the socket reports writable, so an
// RFCOMM disconnect racing the SCO connect (spec §8 scenario 6) is a
// real race onConnClosed can observe and resolve, not one the wiring
// forecloses by doing everything inline.
func (s *Service) AttachAudio(addr device.Addr, scoFD int, driver soundio.Driver, filters []pump.Filter) error {
	done := make(chan error, 1)
	s.loop.Post(func() { done <- s.attachAudio(addr, scoFD, driver, filters) })
	return <-done
}

func (s *Service) attachAudio(addr device.Addr, scoFD int, driver soundio.Driver, filters []pump.Filter) error {
	s.mu.Lock()
	lk, ok := s.links[addr]
	s.mu.Unlock()
	if !ok {
		return herr.New(herr.NotConnected, "hfpd", "no active link for device", nil)
	}

	ep := sco.NewEndpoint()
	if err := ep.BeginConnecting(scoFD); err != nil {
		return err
	}
	lk.scoEP = ep

	s.loop.WatchOnce(scoFD, eventloop.Writable, func() {
		s.completeAudioConnect(lk, driver, filters)
	})
	return nil
}

// completeAudioConnect runs on the loop goroutine once the SCO socket
// reports writable, finishing what BeginConnecting started and wiring
// the pump and soundio.Manager. If the RFCOMM link was torn down while
// the connect was still in flight, onConnClosed has already closed
// lk.scoEP out from under us (spec §8 scenario 6); bail out rather
// than resurrect a teardown that already fired.
func (s *Service) completeAudioConnect(lk *link, driver soundio.Driver, filters []pump.Filter) {
	ep := lk.scoEP
	if ep == nil || ep.State() != sco.SocketConnecting {
		return
	}
	if err := ep.CompleteConnect(); err != nil {
		s.logger.Printf("hfpd: SCO connect failed for %s: %v", lk.addr, err)
		lk.scoEP = nil
		return
	}

	mgr, err := soundio.New(driver, sco.NewPumpAdapter(ep), filters, s.hints, pump.RealClock,
		func(reason error) { s.loop.Post(func() { s.onAudioStopped(lk, reason) }) },
		func(ev soundio.Event) { s.logger.Printf("hfpd: skew event on %s: %s (%.2f%%, n=%d)", lk.addr, ev.Class, ev.SkewPct, ev.N) },
	)
	if err != nil {
		ep.Close(true, true, nil, nil, nil)
		lk.scoEP = nil
		return
	}

	lk.sound = mgr
	if err := lk.session.AttachSco(scoCloser{ep}); err != nil {
		lk.sound = nil
		lk.scoEP = nil
		ep.Close(true, true, nil, nil, nil)
		return
	}

	s.disableAGEcNrIfReplaced(lk, filters)
	s.startAudioTick(lk)
	s.armScoRead(lk)
}

// disableAGEcNrIfReplaced asks the AG to turn off its own echo
// cancellation/noise reduction once a filter in the stack replaces it
// with an HF-side equivalent, mirroring nohands's SoundIoManager
// disabling the AG's onboard NR when the HF side runs its own.
func (s *Service) disableAGEcNrIfReplaced(lk *link, filters []pump.Filter) {
	for _, f := range filters {
		replaces, ok := f.(pump.ReplacesAGEcNr)
		if ok && replaces.ReplacesAGEcNr() {
			if _, err := lk.session.DisableEcNr(); err != nil {
				s.logger.Printf("hfpd: AT+NREC=0 for %s: %v", lk.addr, err)
			}
			return
		}
	}
}

// startAudioTick drives the skew detector's 1-second evaluation window
// (spec §4.8 "After each 1-second window") by rescheduling itself on
// the loop's own timer, exactly the "timers redelivered onto the loop
// goroutine" scheme internal/eventloop provides (spec §5).
func (s *Service) startAudioTick(lk *link) {
	var fn func()
	fn = func() {
		if lk.sound == nil {
			return
		}
		lk.sound.Tick(time.Now())
		lk.audioTick.Reset(time.Second)
	}
	lk.audioTick = s.loop.AfterFunc(time.Second, fn)
}

// armScoRead watches the SCO socket for readability and, on each
// event, reads one packet's worth of PCM samples and feeds the pump,
// re-arming itself for the next packet (spec §4.6, §5).
func (s *Service) armScoRead(lk *link) {
	ep := lk.scoEP
	if ep == nil {
		return
	}
	fd := ep.FD()
	if fd < 0 {
		return
	}
	s.loop.WatchOnce(fd, eventloop.Readable, func() {
		if lk.scoEP == nil || lk.sound == nil {
			return
		}
		buf := make([]byte, ep.MTU())
		n, err := unix.Read(fd, buf)
		if err != nil || n == 0 {
			s.onAudioStopped(lk, herr.New(herr.SyscallError, "hfpd", "SCO socket read", err))
			return
		}
		ep.DeliverPacket(bytesToSamples(buf[:n]))
		lk.sound.OnScoPacket()
		s.armScoRead(lk)
	})
}

func bytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	return out
}

func (s *Service) onAudioStopped(lk *link, reason error) {
	s.logger.Printf("hfpd: audio pump for %s stopped: %v", lk.addr, reason)
	if lk.audioTick != nil {
		lk.audioTick.Stop()
		lk.audioTick = nil
	}
	if lk.scoEP != nil {
		lk.scoEP.Close(false, false, reason, func(error) {}, nil)
	}
	lk.sound = nil
	lk.scoEP = nil
	lk.session.DetachSco()
}

// Close unregisters the HF profile, releases the HCI hub's exclusive
// claim, and stops the event loop. Active links are disconnected
// voluntarily first.
func (s *Service) Close() error {
	s.mu.Lock()
	links := make([]*link, 0, len(s.links))
	for _, lk := range s.links {
		links = append(links, lk)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	s.loop.Post(func() {
		for _, lk := range links {
			lk.session.Disconnect()
		}
		close(done)
	})
	<-done

	s.hub.Close()
	s.loop.Stop()
	_ = s.loop.Wait()
	return s.bus.Close()
}

// link is one active (device, HFP session) pairing.
type link struct {
	addr      device.Addr
	handle    *device.Handle
	session   *hfp.Session
	conn      *rfcomm.Conn
	scoEP     *sco.Endpoint
	sound     *soundio.Manager
	audioTick *eventloop.Timer
}

// Attached implements device.SessionOwner.
func (l *link) Attached() bool { return l.session.State() != hfp.Disconnected }

var _ device.SessionOwner = (*link)(nil)

// connTransport defers binding its *rfcomm.Conn until after the
// session that owns it has been constructed, breaking the
// Session/Conn construction cycle (the session's transport and the
// conn's callbacks each need the other to already exist).
type connTransport struct {
	conn *rfcomm.Conn
}

func (t *connTransport) Write(data []byte) error { return t.conn.Write(data) }
func (t *connTransport) Disconnect(voluntary bool) {
	if t.conn != nil {
		t.conn.Disconnect(voluntary)
	}
}

// scoCloser adapts *sco.Endpoint to hfp.ScoChild.
type scoCloser struct{ ep *sco.Endpoint }

func (c scoCloser) Close() { c.ep.Close(false, false, nil, nil, nil) }
