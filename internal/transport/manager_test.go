package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/signal"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errClosed = errors.New("connection closed")

type pipeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errClosed
	}
}

func (c *pipeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return errClosed
	}
}

func (c *pipeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) next(t *testing.T) signal.Event {
	t.Helper()
	select {
	case data := <-c.out:
		ev, err := signal.Decode(data)
		require.NoError(t, err)
		return ev
	case <-time.After(time.Second):
		t.Fatal("no frame written")
		return nil
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	conns chan *pipeConn
	fail  atomic.Int32
	dials atomic.Int32
	urls  []string
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *pipeConn, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string, _ http.Header) (Conn, error) {
	d.dials.Add(1)
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()

	if d.fail.Load() > 0 {
		d.fail.Add(-1)
		return nil, errors.New("connection refused")
	}
	conn := newPipeConn()
	select {
	case d.conns <- conn:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return conn, nil
}

func (d *fakeDialer) accept(t *testing.T) *pipeConn {
	t.Helper()
	select {
	case conn := <-d.conns:
		return conn
	case <-time.After(time.Second):
		t.Fatal("no dial")
		return nil
	}
}

func newTestManager(d Dialer) (*Manager, *[]time.Duration) {
	m := NewManager(Config{URL: "ws://example.test/api/v1/ws", Token: "tok"}, d, nil)
	var mu sync.Mutex
	delays := &[]time.Duration{}
	m.sleep = func(ctx context.Context, delay time.Duration) bool {
		mu.Lock()
		*delays = append(*delays, delay)
		mu.Unlock()
		return ctx.Err() == nil
	}
	return m, delays
}

var icu = models.Identity{DisplayName: "Dr. Lan", TeamID: "3", TeamName: "ICU"}

func TestManager_ConnectRegistersIdentity(t *testing.T) {
	d := newFakeDialer()
	m, _ := newTestManager(d)
	defer m.Disconnect()

	m.Connect(icu)
	conn := d.accept(t)

	assert.Equal(t, signal.RegisterFor(icu), conn.next(t))
	assert.Eventually(t, m.Connected, time.Second, 5*time.Millisecond)
	assert.Contains(t, d.urls[0], "token=tok")
}

func TestManager_ConnectSameIdentityIsNoop(t *testing.T) {
	d := newFakeDialer()
	m, _ := newTestManager(d)
	defer m.Disconnect()

	m.Connect(icu)
	conn := d.accept(t)
	conn.next(t)

	m.Connect(icu)
	m.Connect(icu)

	assert.Never(t, func() bool { return len(conn.out) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, int32(1), d.dials.Load())
}

func TestManager_IdentityChangeReRegisters(t *testing.T) {
	d := newFakeDialer()
	m, _ := newTestManager(d)
	defer m.Disconnect()

	m.Connect(icu)
	conn := d.accept(t)
	conn.next(t)
	require.Eventually(t, m.Connected, time.Second, 5*time.Millisecond)

	er := models.Identity{DisplayName: "Dr. Minh", TeamName: "ER"}
	m.Connect(er)

	assert.Equal(t, signal.RegisterFor(er), conn.next(t))
	assert.Equal(t, int32(1), d.dials.Load())
}

func TestManager_ReconnectsWithBackoffAndReRegisters(t *testing.T) {
	d := newFakeDialer()
	d.fail.Store(3)
	m, delays := newTestManager(d)
	defer m.Disconnect()

	var states []bool
	var mu sync.Mutex
	m.OnConnectivity(func(up bool) {
		mu.Lock()
		states = append(states, up)
		mu.Unlock()
	})

	m.Connect(icu)
	first := d.accept(t)
	assert.Equal(t, signal.RegisterFor(icu), first.next(t))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *delays)

	_ = first.Close()
	second := d.accept(t)
	assert.Equal(t, signal.RegisterFor(icu), second.next(t))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return assert.ObjectsAreEqual([]bool{true, false, true}, states)
	}, time.Second, 5*time.Millisecond)
}

func TestManager_DispatchesDecodedEvents(t *testing.T) {
	d := newFakeDialer()
	m, _ := newTestManager(d)
	defer m.Disconnect()

	received := make(chan signal.Event, 4)
	cancel := m.Subscribe(func(ev signal.Event) { received <- ev })

	m.Connect(icu)
	conn := d.accept(t)

	ring := signal.IncomingCall{CallID: "c1", Message: "code blue", FromTeam: "ER"}
	conn.in <- []byte(`{"type":"nonsense"}`)
	conn.in <- signal.MustEncode(ring)

	select {
	case ev := <-received:
		assert.Equal(t, ring, ev)
	case <-time.After(time.Second):
		t.Fatal("event not dispatched")
	}

	cancel()
	conn.in <- signal.MustEncode(ring)
	assert.Never(t, func() bool { return len(received) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestManager_EmitWhileDisconnected(t *testing.T) {
	d := newFakeDialer()
	m, _ := newTestManager(d)

	assert.False(t, m.Emit(signal.CallAccepted{CallID: "c1", ToTeam: "ICU"}))
	assert.False(t, m.Connected())
}

func TestManager_EmitWritesFrame(t *testing.T) {
	d := newFakeDialer()
	m, _ := newTestManager(d)
	defer m.Disconnect()

	m.Connect(icu)
	conn := d.accept(t)
	conn.next(t)
	require.Eventually(t, m.Connected, time.Second, 5*time.Millisecond)

	ev := signal.CallAccepted{CallID: "c1", ToTeam: "ICU"}
	assert.True(t, m.Emit(ev))
	assert.Equal(t, ev, conn.next(t))

	assert.False(t, m.Emit(signal.CallAccepted{CallID: "c1"}))
}

func TestManager_DisconnectStopsLoop(t *testing.T) {
	d := newFakeDialer()
	m, _ := newTestManager(d)

	m.Connect(icu)
	conn := d.accept(t)
	conn.next(t)

	m.Disconnect()

	assert.False(t, m.Connected())
	assert.True(t, m.Identity().IsZero())
	select {
	case <-conn.closed:
	default:
		t.Fatal("connection not closed")
	}
	assert.Never(t, func() bool { return d.dials.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	m.Disconnect()
}
