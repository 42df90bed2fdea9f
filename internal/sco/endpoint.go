package sco

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nohands-go/gonohands/internal/herr"
)

// Endpoint is a single SCO link: the socket, the negotiated format,
// and the PCM ring buffer pair the pump drains and fills (spec §3 "SCO
// Endpoint").
type Endpoint struct {
	mu    sync.Mutex
	state State
	fd    int
	mtu   int

	packetSamples int
	in            *Ring // bytes arriving from the AG, read by the pump
	out           *Ring // bytes queued for the AG, written by the pump

	packetsReceived int

	notifier TeardownNotifier
}

// NewEndpoint creates an Idle endpoint.
func NewEndpoint() *Endpoint { return &Endpoint{state: Idle} }

// State returns the current lifecycle state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// BeginConnecting transitions Idle→SocketConnecting, setting the
// socket nonblocking so connect completion arrives as a writability
// event (spec §4.6 "The socket is set nonblocking; the completion
// event is delivered through a writability notification").
func (e *Endpoint) BeginConnecting(fd int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Idle {
		return herr.New(herr.AlreadyOpen, "sco", "endpoint is not Idle", nil)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return herr.New(herr.SyscallError, "sco", "SetNonblock", err)
	}
	e.fd = fd
	e.state = SocketConnecting
	e.notifier.ArmAudioState()
	return nil
}

// CompleteConnect is invoked on the writability notification: it
// checks SO_ERROR, retrieves the MTU, and transitions to Connected
// (spec §4.6).
func (e *Endpoint) CompleteConnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != SocketConnecting {
		return herr.New(herr.NotConnected, "sco", "endpoint is not SocketConnecting", nil)
	}
	errno, err := unix.GetsockoptInt(e.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return herr.New(herr.SyscallError, "sco", "SO_ERROR", err)
	}
	if errno != 0 {
		e.state = Idle
		return herr.New(herr.SyscallError, "sco", "connect failed", unix.Errno(errno))
	}
	mtu, err := sockoptMTU(e.fd)
	if err != nil {
		e.state = Idle
		return err
	}
	e.mtu = mtu
	e.packetSamples = PacketSamples(mtu)
	e.in = NewRing(e.packetSamples * 4)
	e.out = NewRing(e.packetSamples * 4)
	e.state = Connected
	return nil
}

// FD returns the underlying socket descriptor, valid only once
// Connected; -1 otherwise. Exposed so a caller's event loop can watch
// it for readability directly, since net.Conn cannot wrap a SEQPACKET
// SCO socket (spec §5).
func (e *Endpoint) FD() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Connected {
		return -1
	}
	return e.fd
}

// MTU returns the negotiated MTU, valid only once Connected.
func (e *Endpoint) MTU() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mtu
}

// PacketSamples returns the negotiated packet size in samples.
func (e *Endpoint) PacketSamples() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.packetSamples
}

// DeliverPacket feeds one inbound SCO packet's samples into the input
// ring, incrementing the counter used by the symmetric-count fallback
// (spec §4.6 "input packet arrival ⇒ symmetric output completion").
func (e *Endpoint) DeliverPacket(samples []int16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Connected {
		return
	}
	e.in.Push(samples)
	e.packetsReceived++
}

// InputRing and OutputRing expose the ring pair to the pump. They
// return nil while not Connected (spec §3 "the PCM buffer pair exists
// iff state = Connected").
func (e *Endpoint) InputRing() *Ring {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.in
}

func (e *Endpoint) OutputRing() *Ring {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.out
}

// OutboundQueueDepth implements the pump's queue-depth query for this
// endpoint's output direction (spec §4.6).
func (e *Endpoint) OutboundQueueDepth() int {
	e.mu.Lock()
	fd, samples, received := e.fd, e.packetSamples, e.packetsReceived
	e.mu.Unlock()
	return EstimateOutboundDepth(fd, received, samples)
}

// Close tears the endpoint down, firing whichever teardown
// notifications remain armed (spec §4.6). suppressAudioState and
// suppressAsyncStop let a caller-requested close avoid a spurious
// callback for the side it already knows about. reason is delivered to
// onAudioState verbatim, so a subscriber learns why the audio path
// went down (e.g. the RFCOMM disconnect error), not just that it did.
func (e *Endpoint) Close(suppressAudioState, suppressAsyncStop bool, reason error, onAudioState func(error), onAsyncStop func()) {
	e.mu.Lock()
	if e.state == Idle {
		e.mu.Unlock()
		return
	}
	fd := e.fd
	e.state = Idle
	e.in, e.out = nil, nil
	e.mu.Unlock()

	if suppressAudioState {
		e.notifier.SuppressAudioState()
	}
	if suppressAsyncStop {
		e.notifier.SuppressAsyncStop()
	}
	_ = unix.Close(fd)
	e.notifier.Fire(reason, onAudioState, onAsyncStop)
}

func sockoptMTU(fd int) (int, error) {
	mtu, err := unix.IoctlGetInt(fd, unix.TIOCOUTQ)
	if err == nil && mtu > 0 {
		return mtu, nil
	}
	// Fallback: BT SCO sockets expose negotiated MTU via SO_SNDBUF on
	// most kernels when TIOCOUTQ is not meaningful pre-connect.
	sndbuf, err2 := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF)
	if err2 != nil {
		return 0, herr.New(herr.NoKernelSupport, "sco", "MTU lookup", err2)
	}
	return sndbuf, nil
}
