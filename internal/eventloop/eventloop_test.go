package eventloop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRunsInOrder(t *testing.T) {
	l := New()
	defer l.Stop()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == 4 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for posted tasks")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestAfterFuncFiresOnLoopGoroutine(t *testing.T) {
	l := New()
	defer l.Stop()

	done := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimerStopPreventsFiring(t *testing.T) {
	l := New()
	defer l.Stop()

	fired := false
	timer := l.AfterFunc(50*time.Millisecond, func() { fired = true })
	assert.True(t, timer.Stop())

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired)
}

func TestOffloadDeliversResultOntoLoop(t *testing.T) {
	l := New()
	defer l.Stop()

	done := make(chan error, 1)
	l.Offload(func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}, func(err error) {
		done <- err
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("offload never completed")
	}
}

func TestWatchOncePipeBecomesReadable(t *testing.T) {
	r, w, err := pipeFDs()
	require.NoError(t, err)
	defer closeFD(r)
	defer closeFD(w)

	l := New()
	defer l.Stop()

	done := make(chan struct{})
	l.WatchOnce(r, Readable, func() { close(done) })

	writeByte(w)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchOnce never observed readability")
	}
}
