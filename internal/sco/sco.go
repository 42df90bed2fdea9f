// Package sco implements the SCO audio endpoint (spec §4.6): listen/
// accept/connect, MTU and voice-setting validation, and the PCM ring
// buffer pair the pump (internal/pump) reads and writes through.
package sco

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nohands-go/gonohands/internal/herr"
)

// State is the endpoint's connection-lifecycle variant (spec §3 "SCO
// Endpoint").
type State int

const (
	Idle State = iota
	SocketConnecting
	Connected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SocketConnecting:
		return "SocketConnecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// Required HCI SCO configuration (spec §4.6).
const (
	MinMTU                  = 48
	MinPacketBuffers        = 8
	VoiceSetting16BitLinear = 0x0060
)

// PCM format is fixed at 8kHz/S16LE/mono (spec §4.6).
const (
	SampleRateHz   = 8000
	BytesPerRecord = 2
)

// PacketSamples derives packet_samps = min(mtu,48)/2 (spec §3, §4.6).
func PacketSamples(mtu int) int {
	m := mtu
	if m > MinMTU {
		m = MinMTU
	}
	return m / BytesPerRecord
}

// VerifyHCIConfig checks the HCI's SCO MTU and voice setting against
// the minimums (spec §4.6). It does not itself reset misconfigured
// hardware: the caller (internal/hci) owns the reset-then-retry policy.
func VerifyHCIConfig(mtu, bufferCount, voiceSetting int) error {
	if mtu < MinMTU || bufferCount < MinPacketBuffers {
		return herr.New(herr.BadScoConfig, "sco", "HCI SCO MTU/buffer count below minimum", nil)
	}
	if voiceSetting != VoiceSetting16BitLinear {
		return herr.New(herr.BadScoConfig, "sco", "HCI voice setting is not 16-bit linear 2's complement", nil)
	}
	return nil
}

// TeardownNotifier arms the endpoint's two one-shot post-conditions
// (spec §3 "any transition to Idle schedules exactly-once delivery of
// whichever of the two notifications are armed").
type TeardownNotifier struct {
	mu             sync.Mutex
	audioStateDone bool
	asyncStopDone  bool
	audioStateArm  bool
	asyncStopArm   bool
}

// ArmAudioState arms the audio-state-changed notification.
func (n *TeardownNotifier) ArmAudioState() {
	n.mu.Lock()
	n.audioStateArm = true
	n.mu.Unlock()
}

// ArmAsyncStop arms the async-stopped notification.
func (n *TeardownNotifier) ArmAsyncStop() {
	n.mu.Lock()
	n.asyncStopArm = true
	n.mu.Unlock()
}

// SuppressAudioState cancels a pending audio-state notification, used
// by a caller-requested close that wants to avoid a spurious callback
// (spec §4.6 "both are cancellable by a subsequent close that
// specifies which side to suppress").
func (n *TeardownNotifier) SuppressAudioState() {
	n.mu.Lock()
	n.audioStateDone = true
	n.mu.Unlock()
}

// SuppressAsyncStop is the async-stop analogue of SuppressAudioState.
func (n *TeardownNotifier) SuppressAsyncStop() {
	n.mu.Lock()
	n.asyncStopDone = true
	n.mu.Unlock()
}

// Fire delivers each still-armed, not-yet-delivered notification at
// most once, via the given callbacks. reason carries the cause of the
// teardown (e.g. the RFCOMM disconnect error) through to onAudioState,
// so a subscriber can learn why the audio state changed, not just that
// it did (spec §8 scenario 6).
func (n *TeardownNotifier) Fire(reason error, onAudioState func(error), onAsyncStop func()) {
	n.mu.Lock()
	fireAudio := n.audioStateArm && !n.audioStateDone
	fireAsync := n.asyncStopArm && !n.asyncStopDone
	n.audioStateDone = true
	n.asyncStopDone = true
	n.mu.Unlock()
	if fireAudio && onAudioState != nil {
		onAudioState(reason)
	}
	if fireAsync && onAsyncStop != nil {
		onAsyncStop()
	}
}

// Ring is a fixed-capacity sample ring buffer sized around
// packet_samps (spec §4.6 "a pair of ring buffers sized around
// packet_samps").
type Ring struct {
	mu   sync.Mutex
	buf  []int16
	head int
	tail int
	len  int
}

// NewRing creates a ring able to hold cap samples.
func NewRing(cap int) *Ring {
	return &Ring{buf: make([]int16, cap)}
}

// Cap returns the ring's capacity in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of samples currently queued.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.len
}

// Push appends samples, dropping the ones that do not fit (the newest)
// on overflow and returning the count accepted (the caller
// is expected to pre-trim via in_max, spec §4.7 step 3, so overflow
// here only guards against programmer error).
func (r *Ring) Push(samples []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range samples {
		if r.len == len(r.buf) {
			break
		}
		r.buf[r.tail] = s
		r.tail = (r.tail + 1) % len(r.buf)
		r.len++
		n++
	}
	return n
}

// Pop removes up to len(out) samples into out, returning the count
// actually popped.
func (r *Ring) Pop(out []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for n < len(out) && r.len > 0 {
		out[n] = r.buf[r.head]
		r.head = (r.head + 1) % len(r.buf)
		r.len--
		n++
	}
	return n
}

// Drop discards up to n queued samples (spec §4.7 step 3 pre-transfer
// trimming), returning the count actually dropped.
func (r *Ring) Drop(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > r.len {
		n = r.len
	}
	r.head = (r.head + n) % len(r.buf)
	r.len -= n
	return n
}

// EstimateOutboundDepth prefers TIOCOUTQ via fd, falling back to the
// symmetric-count heuristic (packetsReceived*packetSamples*BytesPerRecord) when the
// kernel does not support it (spec §4.6, §9 Open Question (a): "this
// heuristic can drift").
func EstimateOutboundDepth(fd int, packetsReceived, packetSamples int) int {
	if n, err := unix.IoctlGetInt(fd, unix.TIOCOUTQ); err == nil {
		return n * BytesPerRecord
	}
	return packetsReceived * packetSamples * BytesPerRecord
}
