package utils

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memConn records writes and detects overlapping WriteJSON calls
type memConn struct {
	writes   int32
	inFlight int32
	overlap  int32
	failWith error
	closed   int32
}

func (c *memConn) WriteJSON(v interface{}) error {
	if atomic.AddInt32(&c.inFlight, 1) > 1 {
		atomic.StoreInt32(&c.overlap, 1)
	}
	time.Sleep(time.Millisecond)
	atomic.AddInt32(&c.inFlight, -1)

	if c.failWith != nil {
		return c.failWith
	}
	atomic.AddInt32(&c.writes, 1)
	return nil
}

func (c *memConn) Close() error {
	atomic.StoreInt32(&c.closed, 1)
	return nil
}

func TestHubBroadcastScopedToTenant(t *testing.T) {
	hub := NewHub()
	mine := &memConn{}
	theirs := &memConn{}
	hub.Register(1, mine)
	hub.Register(2, theirs)

	hub.Broadcast(1, map[string]string{"event": "email_received"})

	assert.EqualValues(t, 1, atomic.LoadInt32(&mine.writes))
	assert.Zero(t, atomic.LoadInt32(&theirs.writes))
}

func TestHubSerializesWritesPerConn(t *testing.T) {
	hub := NewHub()
	conn := &memConn{}
	hub.Register(1, conn)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast(1, map[string]int{"n": 1})
		}()
	}
	wg.Wait()

	require.EqualValues(t, 10, atomic.LoadInt32(&conn.writes))
	assert.Zero(t, atomic.LoadInt32(&conn.overlap), "concurrent broadcasts overlapped on one connection")
}

func TestHubDropsFailingSubscriber(t *testing.T) {
	hub := NewHub()
	healthy := &memConn{}
	stale := &memConn{failWith: errors.New("broken pipe")}
	hub.Register(1, healthy)
	hub.Register(1, stale)

	hub.Broadcast(1, "first")
	hub.Broadcast(1, "second")

	assert.EqualValues(t, 2, atomic.LoadInt32(&healthy.writes))
	assert.EqualValues(t, 1, atomic.LoadInt32(&stale.closed))

	// The stale conn was unregistered after its failed write
	hub.mu.RLock()
	_, stillThere := hub.conns[1][stale]
	hub.mu.RUnlock()
	assert.False(t, stillThere)
}
