package rfcomm

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// socketpair gives us a connected fd pair so Conn's reader goroutine
// and Write/Disconnect paths can be exercised without a real RFCOMM
// socket or BlueZ.
func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	return fds[0], fds[1]
}

func TestConnDeliversInboundDataToOnData(t *testing.T) {
	local, peer := socketpair(t)
	defer unix.Close(peer)

	var mu sync.Mutex
	var got []byte
	received := make(chan struct{})

	c, err := New(local, func(data []byte) {
		mu.Lock()
		got = append(got, data...)
		mu.Unlock()
		select {
		case received <- struct{}{}:
		default:
		}
	}, func(bool, error) {})
	require.NoError(t, err)
	defer c.Disconnect(true)

	_, err = unix.Write(peer, []byte("AT+CIND?\r"))
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("onData never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "AT+CIND?\r", string(got))
}

func TestConnWriteSendsOverSocket(t *testing.T) {
	local, peer := socketpair(t)
	defer unix.Close(peer)

	c, err := New(local, func([]byte) {}, func(bool, error) {})
	require.NoError(t, err)
	defer c.Disconnect(true)

	require.NoError(t, c.Write([]byte("+CIEV: 1,1\r")))

	buf := make([]byte, 64)
	n, err := unix.Read(peer, buf)
	require.NoError(t, err)
	assert.Equal(t, "+CIEV: 1,1\r", string(buf[:n]))
}

func TestDisconnectIsVoluntaryAndIdempotent(t *testing.T) {
	local, peer := socketpair(t)
	defer unix.Close(peer)

	closedCh := make(chan struct {
		voluntary bool
		reason    error
	}, 1)
	c, err := New(local, func([]byte) {}, func(voluntary bool, reason error) {
		closedCh <- struct {
			voluntary bool
			reason    error
		}{voluntary, reason}
	})
	require.NoError(t, err)

	c.Disconnect(true)
	c.Disconnect(true) // idempotent: must not block or double-fire

	select {
	case ev := <-closedCh:
		assert.True(t, ev.voluntary)
		assert.NoError(t, ev.reason)
	case <-time.After(2 * time.Second):
		t.Fatal("onClosed never fired")
	}
}

func TestPeerCloseIsReportedAsInvoluntary(t *testing.T) {
	local, peer := socketpair(t)

	closedCh := make(chan struct {
		voluntary bool
		reason    error
	}, 1)
	c, err := New(local, func([]byte) {}, func(voluntary bool, reason error) {
		closedCh <- struct {
			voluntary bool
			reason    error
		}{voluntary, reason}
	})
	require.NoError(t, err)

	unix.Close(peer)

	select {
	case ev := <-closedCh:
		assert.False(t, ev.voluntary)
		assert.Error(t, ev.reason)
	case <-time.After(2 * time.Second):
		t.Fatal("onClosed never fired after peer close")
	}
	_ = c
}

func TestWriteAfterCloseFails(t *testing.T) {
	local, peer := socketpair(t)
	defer unix.Close(peer)

	c, err := New(local, func([]byte) {}, func(bool, error) {})
	require.NoError(t, err)
	c.Disconnect(true)

	assert.Error(t, c.Write([]byte("x")))
}
