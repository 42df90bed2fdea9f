// Package rfcomm wraps a BlueZ-delivered RFCOMM file descriptor (spec
// §4.1) in a Conn that satisfies hfp.Transport: a single background
// reader goroutine feeds inbound bytes to the session, and Write/
// Disconnect are serialized the way the teacher's connmgr treats a
// caller-owned FD (spec §5 "A session's RFCOMM socket is written by
// exactly one writer").
package rfcomm

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nohands-go/gonohands/internal/herr"
)

// DataHandler and ClosedHandler mirror the two callbacks
// hfp.Session needs (HandleRfcommData, HandleRfcommClosed); Conn is
// intentionally ignorant of the hfp package to avoid an import cycle.
type DataHandler func(data []byte)
type ClosedHandler func(voluntary bool, reason error)

// Conn owns one RFCOMM file descriptor end to end: the caller hands it
// an fd accepted or connected via internal/bluez, and from then on
// Conn owns closing it.
type Conn struct {
	fd int
	f  *os.File

	mu        sync.Mutex
	closed    bool
	voluntary bool

	onData   DataHandler
	onClosed ClosedHandler

	done chan struct{}
}

// New wraps fd (already connected) and starts the background reader.
// onData/onClosed are invoked from the reader goroutine; callers that
// need single-threaded semantics (spec §5) must serialize them onto
// their own event loop.
func New(fd int, onData DataHandler, onClosed ClosedHandler) (*Conn, error) {
	// Nonblocking lets os.NewFile register fd with the runtime poller,
	// so Close can interrupt the reader goroutine's pending Read.
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, herr.New(herr.SyscallError, "rfcomm", "SetNonblock", err)
	}
	c := &Conn{
		fd:       fd,
		f:        os.NewFile(uintptr(fd), "rfcomm"),
		onData:   onData,
		onClosed: onClosed,
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := c.f.Read(buf)
		if n > 0 && c.onData != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			c.onData(data)
		}
		if err != nil {
			c.finish(err)
			return
		}
	}
}

func (c *Conn) finish(readErr error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	voluntary := c.voluntary
	c.mu.Unlock()
	close(c.done)
	_ = c.f.Close()
	if c.onClosed != nil {
		var reason error
		if !voluntary {
			reason = herr.New(herr.SyscallError, "rfcomm", "read", readErr)
		}
		c.onClosed(voluntary, reason)
	}
}

// Write implements hfp.Transport.
func (c *Conn) Write(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return herr.New(herr.NotConnected, "rfcomm", "write after close", nil)
	}
	c.mu.Unlock()
	_, err := c.f.Write(data)
	if err != nil {
		return herr.New(herr.SyscallError, "rfcomm", "write", err)
	}
	return nil
}

// Disconnect implements hfp.Transport: it closes the underlying file,
// which unblocks the reader goroutine and lets it deliver the closed
// notification with the voluntary flag given here.
func (c *Conn) Disconnect(voluntary bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.voluntary = voluntary
	c.mu.Unlock()
	_ = c.f.Close()
	<-c.done
}

// OutboundQueueDepth reports the kernel's pending-write byte count via
// TIOCOUTQ; internal/sco issues the same ioctl on its own socket
// (spec §4.6: "prefer TIOCOUTQ if the kernel supports it").
func (c *Conn) OutboundQueueDepth() (int, error) {
	n, err := unix.IoctlGetInt(c.fd, unix.TIOCOUTQ)
	if err != nil {
		return 0, herr.New(herr.NoKernelSupport, "rfcomm", "TIOCOUTQ", err)
	}
	return n, nil
}
