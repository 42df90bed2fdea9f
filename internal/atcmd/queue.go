package atcmd

import "strings"

// WriteFunc writes one command's AT text (without CR) to the RFCOMM
// socket, terminating it with a single CR (spec §6.1).
type WriteFunc func(text string) error

// UnsolicitedFunc receives an unsolicited line, recognized by content
// regardless of whether a command is in-flight (spec §4.2).
type UnsolicitedFunc func(line string)

// unsolicitedPrefixes are the line prefixes the queue recognizes as
// unsolicited regardless of queue state (spec §4.2, extended per
// SPEC_FULL.md domain-stack additions for +VGS/+VGM volume sync).
var unsolicitedPrefixes = []string{
	"+CIEV:", "RING", "+CLIP:", "+CCWA:", "+VGS:", "+VGM:",
}

func isUnsolicited(line string) bool {
	upper := strings.ToUpper(line)
	for _, p := range unsolicitedPrefixes {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}

// Queue is the per-session AT command FIFO (spec §4.2). At most one
// command is in-flight: the head of the queue owns the response
// stream until it terminates with OK/ERROR.
type Queue struct {
	write       WriteFunc
	unsolicited UnsolicitedFunc

	pending   []*Command
	suspended bool // true while queued commands must not yet be written (handshake-before-connect)
	headSent  bool // true once the current head's text has been written
	onDrain   func()
}

// NewQueue creates an empty queue bound to the given transport.
func NewQueue(write WriteFunc, unsolicited UnsolicitedFunc) *Queue {
	return &Queue{write: write, unsolicited: unsolicited}
}

// OnDrain registers a callback fired whenever a command's completion
// leaves the queue empty (used by the HFP session to detect the
// handshake sequence finishing, spec §4.3 "When the queue drains to
// empty while in Handshaking, transition to Connected"). It is not
// invoked by Abort.
func (q *Queue) OnDrain(f func()) { q.onDrain = f }

// Suspend prevents the queue from writing its head even if one is
// enqueued; used before the RFCOMM channel has a writable socket.
func (q *Queue) Suspend() { q.suspended = true }

// Resume allows writes again and, if a head command is waiting,
// writes it immediately.
func (q *Queue) Resume() error {
	q.suspended = false
	return q.writeHeadIfNeeded()
}

// Len reports the number of queued (including in-flight) commands.
func (q *Queue) Len() int { return len(q.pending) }

// Head returns the in-flight command, or nil if the queue is empty.
func (q *Queue) Head() *Command {
	if len(q.pending) == 0 {
		return nil
	}
	return q.pending[0]
}

// Enqueue appends cmd to the tail of the FIFO, writing it immediately
// if it becomes the new head and the queue is not suspended.
func (q *Queue) Enqueue(cmd *Command) error {
	wasEmpty := len(q.pending) == 0
	q.pending = append(q.pending, cmd)
	if !wasEmpty {
		return nil
	}
	return q.writeHeadIfNeeded()
}

func (q *Queue) writeHeadIfNeeded() error {
	// Only write when this command has not yet been sent: headSent is
	// cleared whenever the head changes (pop-advance or Abort), so a
	// completion callback that enqueues onto the emptied queue and the
	// pop-advance that follows cannot both write the same head.
	if q.suspended || len(q.pending) == 0 || q.headSent {
		return nil
	}
	q.headSent = true
	return q.write(q.pending[0].Text)
}

// Cancel removes cmd from the queue if it is pending (not the head),
// completing it as Aborted. The head command cannot be cancelled and
// must await its terminator (spec §4.2).
func (q *Queue) Cancel(cmd *Command) bool {
	if len(q.pending) == 0 || q.pending[0] == cmd {
		return false
	}
	for i := 1; i < len(q.pending); i++ {
		if q.pending[i] == cmd {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			cmd.complete(Aborted)
			return true
		}
	}
	return false
}

// HandleLine processes one line of inbound AT text: unsolicited lines
// always reach the unsolicited handler; otherwise an exact "OK"/"ERROR"
// terminates the head command and advances the queue; any other line
// is offered to the head command's response handler, if any.
func (q *Queue) HandleLine(line string) error {
	if isUnsolicited(line) {
		if q.unsolicited != nil {
			q.unsolicited(line)
		}
		return nil
	}
	upper := strings.ToUpper(line)
	if upper == "OK" {
		return q.terminateHead(Ok)
	}
	if upper == "ERROR" {
		return q.terminateHead(Error)
	}
	if head := q.Head(); head != nil && head.onResult != nil {
		if head.onResult(line) {
			return nil
		}
	}
	// Lines that are neither a recognized unsolicited form, a
	// terminator, nor consumed by the head's response handler are
	// silently ignored: the wire format (§6.1) permits arbitrary
	// intermediate result lines the session does not care about.
	return nil
}

func (q *Queue) terminateHead(r Result) error {
	if len(q.pending) == 0 {
		return nil
	}
	head := q.pending[0]
	q.pending = q.pending[1:]
	q.headSent = false
	head.complete(r)
	if err := q.writeHeadIfNeeded(); err != nil {
		return err
	}
	if len(q.pending) == 0 && q.onDrain != nil {
		q.onDrain()
	}
	return nil
}

// Abort completes every queued command (including the head) as
// Aborted and empties the queue (spec §4.2 "On Disconnect").
func (q *Queue) Abort() {
	pending := q.pending
	q.pending = nil
	q.headSent = false
	for _, c := range pending {
		c.complete(Aborted)
	}
}
