package hfp

import (
	"sync"
	"testing"
	"time"
)

// fakeTransport records every write and lets tests push bytes back in
// as if they arrived from the AG, mirroring the teacher's fake-socket
// style in connmgr's tests.
type fakeTransport struct {
	mu         sync.Mutex
	written    []string
	disconnect []bool
}

func (f *fakeTransport) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, string(data))
	return nil
}

func (f *fakeTransport) Disconnect(voluntary bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnect = append(f.disconnect, voluntary)
}

func (f *fakeTransport) lastWritten() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.written) == 0 {
		return ""
	}
	return f.written[len(f.written)-1]
}

func (f *fakeTransport) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

// fakeClock gives tests direct control over AfterFunc firing instead
// of racing real wall-clock timers.
type fakeClock struct {
	mu      sync.Mutex
	pending []*fakeTimer
}

type fakeTimer struct {
	fn      func()
	fired   bool
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: f}
	c.pending = append(c.pending, t)
	return t
}

// fire runs every still-live timer's function, simulating expiry.
func (c *fakeClock) fire() {
	c.mu.Lock()
	live := append([]*fakeTimer(nil), c.pending...)
	c.pending = nil
	c.mu.Unlock()
	for _, t := range live {
		if !t.stopped {
			t.fired = true
			t.fn()
		}
	}
}

// recordingListener captures every notification for assertion.
type recordingListener struct {
	BaseListener
	mu          sync.Mutex
	connected   int
	disconnects []error
	callStates  []CallState
	clis        []CallingLineIdentity
}

func (l *recordingListener) OnConnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected++
}

func (l *recordingListener) OnDisconnected(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnects = append(l.disconnects, err)
}

func (l *recordingListener) OnCallStateChanged(s CallState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callStates = append(l.callStates, s)
}

func (l *recordingListener) OnCallingLineIdentity(cli CallingLineIdentity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clis = append(l.clis, cli)
}

func (l *recordingListener) lastCallState() CallState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.callStates) == 0 {
		return CallIdle
	}
	return l.callStates[len(l.callStates)-1]
}

// newHandshakenSession drives a Session through the full handshake
// with an AG that supports three-way calling and a real callsetup
// indicator, returning it Connected.
func newHandshakenSession(t *testing.T) (*Session, *fakeTransport, *fakeClock) {
	t.Helper()
	tr := &fakeTransport{}
	clk := &fakeClock{}
	s := NewSession(tr, WithClock(clk))
	s.HandleRfcommConnecting()
	s.HandleRfcommConnected()
	s.HandleRfcommData([]byte("\r\n+BRSF: 31\r\nOK\r\n"))
	s.HandleRfcommData([]byte("\r\n+CHLD: (0,1,1x,2,2x,3,4)\r\nOK\r\n"))
	s.HandleRfcommData([]byte("\r\n+CIND: (\"service\",(0,1)),(\"call\",(0,1)),(\"callsetup\",(0-3)),(\"signal\",(0-5)),(\"roam\",(0,1)),(\"battchg\",(0-5))\r\nOK\r\n"))
	s.HandleRfcommData([]byte("\r\nOK\r\n")) // CMER
	s.HandleRfcommData([]byte("\r\nOK\r\n")) // CLIP
	s.HandleRfcommData([]byte("\r\nOK\r\n")) // CCWA
	s.HandleRfcommData([]byte("\r\n+CIND: 1,0,0,4,0,3\r\nOK\r\n"))
	return s, tr, clk
}
