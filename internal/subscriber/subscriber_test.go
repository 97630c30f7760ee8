package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serfrae/solder/internal/model"
)

// fakeConn is a Conn backed by a queue of pre-baked messages, optionally
// ending in an error (simulating an upstream close).
type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	closeErr error
	idx      int
	closed   bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx < len(c.messages) {
		m := c.messages[c.idx]
		c.idx++
		return 0, m, nil
	}
	if c.closeErr != nil {
		return 0, nil, c.closeErr
	}
	// Block forever (until the test's ctx cancels) once messages are
	// exhausted and no close error is configured.
	select {}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) WriteMessage(int, []byte) error { return nil }

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	calls int32
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	atomic.AddInt32(&d.calls, 1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no more fake connections configured")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func slotMsg(slot, parent, root uint64) []byte {
	payload := map[string]interface{}{
		"params": map[string]interface{}{
			"result": map[string]interface{}{"slot": slot, "parent": parent, "root": root},
		},
	}
	b, _ := json.Marshal(payload)
	return b
}

func TestStartForwardsNotifications(t *testing.T) {
	conn := &fakeConn{messages: [][]byte{slotMsg(102, 101, 100), slotMsg(103, 102, 101)}}
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	sub := New("ws://fake", dialer)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.SlotNotification, 4)

	done := make(chan error, 1)
	go func() { done <- sub.Start(ctx, out) }()

	first := <-out
	require.Equal(t, model.SlotNotification{Slot: 102, ParentSlot: 101, RootSlot: 100}, first)
	second := <-out
	require.Equal(t, model.SlotNotification{Slot: 103, ParentSlot: 102, RootSlot: 101}, second)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}

func TestStartDropsOldestWhenChannelFull(t *testing.T) {
	conn := &fakeConn{messages: [][]byte{
		slotMsg(101, 100, 99),
		slotMsg(102, 101, 100),
		slotMsg(103, 102, 101),
	}}
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	sub := New("ws://fake", dialer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.SlotNotification, 1)

	go func() { _ = sub.Start(ctx, out) }()

	// Give the subscriber time to push all three messages through a
	// capacity-1 channel; only the most recent should survive.
	require.Eventually(t, func() bool {
		select {
		case n := <-out:
			return n.Slot == 103
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestStartResubscribesOnUpstreamClose(t *testing.T) {
	first := &fakeConn{messages: [][]byte{slotMsg(101, 100, 99)}, closeErr: errors.New("connection reset")}
	second := &fakeConn{messages: [][]byte{slotMsg(102, 101, 100)}}
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}
	sub := New("ws://fake", dialer)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.SlotNotification, 4)

	done := make(chan error, 1)
	go func() { done <- sub.Start(ctx, out) }()

	n1 := <-out
	require.Equal(t, uint64(101), n1.Slot)
	n2 := <-out
	require.Equal(t, uint64(102), n2.Slot)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancellation")
	}
	require.GreaterOrEqual(t, atomic.LoadInt32(&dialer.calls), int32(2))
}

func TestStartExhaustsRetriesAndReturnsFatal(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	sub := New("ws://fake", dialer)

	out := make(chan model.SlotNotification, 1)
	err := sub.Start(context.Background(), out)
	require.Error(t, err)
	require.EqualValues(t, backoffMaxTry, dialer.calls)
}

func TestDecodeSlotNotificationIgnoresMalformed(t *testing.T) {
	_, ok := decodeSlotNotification([]byte("not json"))
	require.False(t, ok)

	_, ok = decodeSlotNotification([]byte(`{"params":{"result":{}}}`))
	require.False(t, ok, "slot 0 is not a valid notification")

	n, ok := decodeSlotNotification(slotMsg(5, 4, 3))
	require.True(t, ok)
	require.Equal(t, uint64(5), n.Slot)
}
