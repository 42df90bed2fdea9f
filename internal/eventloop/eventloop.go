// Package eventloop implements the single-threaded cooperative loop
// primitives the engine runs on (spec §5): socket readiness via raw-FD
// polling, timers redelivered onto the loop goroutine, and completions
// of work the implementation chose to offload to worker goroutines,
// serialized back through a single channel so no state is ever shared
// across threads without passing through it.
package eventloop

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/nohands-go/gonohands/internal/herr"
)

// Loop is one process-wide cooperative scheduler. All callbacks posted
// to it run on its single goroutine, one at a time and in post order.
type Loop struct {
	tasks  chan func()
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New starts a Loop's dispatch goroutine.
func New() *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	l := &Loop{tasks: make(chan func(), 256), group: group, ctx: gctx, cancel: cancel}
	go l.run()
	return l
}

func (l *Loop) run() {
	for {
		select {
		case fn, ok := <-l.tasks:
			if !ok {
				return
			}
			fn()
		case <-l.ctx.Done():
			return
		}
	}
}

// Post serializes fn onto the loop goroutine. Safe to call from any
// goroutine, including the offloaded workers below.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.ctx.Done():
	}
}

// Stop shuts the loop down; pending posts are dropped.
func (l *Loop) Stop() {
	l.cancel()
}

// Offload runs fn on a worker goroutine managed by the loop's
// errgroup, then delivers its result back onto the loop via onDone
// (spec §5 suspension point (c): "awaiting completion of an external
// library call that the implementation chose to offload, e.g. SDP
// lookup").
func (l *Loop) Offload(fn func() error, onDone func(error)) {
	l.group.Go(func() error {
		err := fn()
		l.Post(func() { onDone(err) })
		return nil
	})
}

// Wait blocks until every offloaded task this loop has started has
// completed (used at shutdown to avoid leaking goroutines).
func (l *Loop) Wait() error {
	return l.group.Wait()
}

// Timer wraps *time.Timer so its firing is redelivered onto the loop
// goroutine instead of running on the runtime's own timer goroutine.
type Timer struct {
	t *time.Timer
}

// AfterFunc schedules fn to run on the loop goroutine after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() { l.Post(fn) })
	return tm
}

// Stop cancels the timer; see (*time.Timer).Stop for the race caveat
// around an already-fired timer.
func (tm *Timer) Stop() bool { return tm.t.Stop() }

// Reset reschedules the timer to fire after d.
func (tm *Timer) Reset(d time.Duration) bool { return tm.t.Reset(d) }

// Readiness names which direction a raw-FD wait is for.
type Readiness int

const (
	Readable Readiness = iota
	Writable
)

// WatchOnce blocks on a single raw file descriptor until it becomes
// ready in the given direction, then posts onReady onto the loop
// exactly once. Used for the SCO connect-completion notification
// (spec §4.6 "the completion event is delivered through a writability
// notification") and the RFCOMM/SCO accept loop, since net.Conn cannot
// expose a SEQPACKET SCO socket or TIOCOUTQ.
func (l *Loop) WatchOnce(fd int, dir Readiness, onReady func()) {
	l.group.Go(func() error {
		events := int16(unix.POLLIN)
		if dir == Writable {
			events = unix.POLLOUT
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		for {
			select {
			case <-l.ctx.Done():
				return nil
			default:
			}
			n, err := unix.Poll(fds, 250)
			if err != nil {
				if err == unix.EINTR {
					continue
				}
				return herr.New(herr.SyscallError, "eventloop", "poll", err)
			}
			if n > 0 && fds[0].Revents&(events|unix.POLLERR|unix.POLLHUP) != 0 {
				l.Post(onReady)
				return nil
			}
		}
	})
}
