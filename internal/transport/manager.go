// Package transport maintains the client's single duplex connection to the
// signaling server.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/anhducle99/bluecode/internal/logger"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/signal"
	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

type Config struct {
	URL          string
	Token        string
	Backoff      Backoff
	WriteTimeout time.Duration
}

// Handler receives decoded inbound events on the connection's read
// goroutine.
type Handler func(signal.Event)

// Manager owns one connection loop per process. Connect and Disconnect never
// fail; connection problems are logged and retried in the background.
type Manager struct {
	cfg    Config
	dialer Dialer
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) bool

	mu        sync.Mutex
	identity  models.Identity
	conn      Conn
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}

	writeMu sync.Mutex

	subMu    sync.RWMutex
	nextSub  int
	handlers map[int]Handler
	watchers map[int]func(bool)
}

func NewManager(cfg Config, dialer Dialer, log *slog.Logger) *Manager {
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Manager{
		cfg:      cfg,
		dialer:   dialer,
		logger:   logger.OrDefault(log).With("component", "transport"),
		sleep:    sleepContext,
		handlers: make(map[int]Handler),
		watchers: make(map[int]func(bool)),
	}
}

// Connect starts the connection loop for identity. Calling it again with the
// same identity is a no-op; a different identity is re-registered on the
// live connection.
func (m *Manager) Connect(identity models.Identity) {
	m.mu.Lock()
	if m.cancel != nil {
		if m.identity == identity {
			m.mu.Unlock()
			return
		}
		m.identity = identity
		conn := m.conn
		m.mu.Unlock()

		if conn != nil {
			m.logger.Info("identity changed, re-registering", "name", identity.DisplayName, "team", identity.TeamName)
			m.write(conn, signal.RegisterFor(identity))
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.identity = identity
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go m.run(ctx, done)
}

// Disconnect stops the loop and closes the connection. No events are
// delivered after it returns.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, done, conn := m.cancel, m.done, m.conn
	m.cancel = nil
	m.done = nil
	m.identity = models.Identity{}
	if cancel != nil {
		cancel()
	}
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	if conn != nil {
		_ = conn.Close()
	}
	<-done
}

// Emit writes ev to the live connection. It reports false when there is no
// connection or the write fails; the event is not queued.
func (m *Manager) Emit(ev signal.Event) bool {
	m.mu.Lock()
	conn, connected := m.conn, m.connected
	m.mu.Unlock()

	if !connected || conn == nil {
		m.logger.Debug("emit while disconnected", "type", ev.Type())
		return false
	}
	return m.write(conn, ev)
}

func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Manager) Identity() models.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Subscribe registers h for inbound events and returns its cancel func.
func (m *Manager) Subscribe(h Handler) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.handlers[id] = h
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.handlers, id)
		m.subMu.Unlock()
	}
}

// OnConnectivity registers fn for connected/disconnected changes. The signal
// is advisory only.
func (m *Manager) OnConnectivity(fn func(bool)) func() {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.watchers[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.watchers, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := m.dialer.Dial(ctx, m.endpoint(), http.Header{})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			delay := m.cfg.Backoff.NextDelay(attempt)
			m.logger.Warn("connect failed", "error", err, "attempt", attempt, "retry_in", delay)
			if !m.sleep(ctx, delay) {
				return
			}
			continue
		}

		attempt = 0
		if !m.attach(ctx, conn) {
			_ = conn.Close()
			return
		}
		err = m.readLoop(conn)
		m.detach(conn)

		if ctx.Err() != nil {
			return
		}
		attempt++
		delay := m.cfg.Backoff.NextDelay(attempt)
		m.logger.Warn("connection lost", "error", err, "retry_in", delay)
		if !m.sleep(ctx, delay) {
			return
		}
	}
}

func (m *Manager) attach(ctx context.Context, conn Conn) bool {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	m.connected = true
	identity := m.identity
	m.mu.Unlock()

	m.logger.Info("connected", "name", identity.DisplayName, "team", identity.TeamName)
	m.write(conn, signal.RegisterFor(identity))
	m.notifyConnectivity(true)
	return true
}

func (m *Manager) detach(conn Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.connected = false
	}
	m.mu.Unlock()

	_ = conn.Close()
	m.notifyConnectivity(false)
}

func (m *Manager) readLoop(conn Conn) error {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		ev, err := signal.Decode(data)
		if err != nil {
			m.logger.Debug("dropping undecodable frame", "error", err)
			continue
		}
		m.dispatch(ev)
	}
}

func (m *Manager) dispatch(ev signal.Event) {
	m.subMu.RLock()
	handlers := make([]Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.subMu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (m *Manager) notifyConnectivity(connected bool) {
	m.subMu.RLock()
	watchers := make([]func(bool), 0, len(m.watchers))
	for _, w := range m.watchers {
		watchers = append(watchers, w)
	}
	m.subMu.RUnlock()

	for _, w := range watchers {
		w(connected)
	}
}

func (m *Manager) write(conn Conn, ev signal.Event) bool {
	data, err := signal.Encode(ev)
	if err != nil {
		m.logger.Error("refusing to send invalid event", "type", ev.Type(), "error", err)
		return false
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.logger.Warn("emit failed", "type", ev.Type(), "error", err)
		return false
	}
	return true
}

func (m *Manager) endpoint() string {
	if m.cfg.Token == "" {
		return m.cfg.URL
	}
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return m.cfg.URL
	}
	q := u.Query()
	q.Set("token", m.cfg.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
