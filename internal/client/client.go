// Package client wires the client core together for one logged-in identity:
// one connection, one sender, one incoming handler and one incident feed.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/anhducle99/bluecode/internal/clock"
	"github.com/anhducle99/bluecode/internal/incident"
	"github.com/anhducle99/bluecode/internal/incoming"
	"github.com/anhducle99/bluecode/internal/logger"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/session"
	"github.com/anhducle99/bluecode/internal/signal"
	"github.com/anhducle99/bluecode/internal/tracker"
	"github.com/anhducle99/bluecode/internal/transport"
)

const historyTimeout = 10 * time.Second

var (
	ErrNotLoggedIn = errors.New("not logged in")
	ErrNoIdentity  = errors.New("identity requires a display name")
)

// API is the REST surface the client core needs.
type API interface {
	session.CallAPI
	incident.HistorySource
}

// Transport is the connection the client core shares. *transport.Manager
// satisfies it.
type Transport interface {
	Connect(identity models.Identity)
	Disconnect()
	Emit(ev signal.Event) bool
	Connected() bool
	Subscribe(h transport.Handler) func()
	OnConnectivity(fn func(bool)) func()
}

type Config struct {
	CallWindow   time.Duration
	RingWindow   time.Duration
	DedupeWindow time.Duration
}

type Client struct {
	cfg        Config
	api        API
	transport  Transport
	feed       *incident.Feed
	player     incoming.Player
	permission *incoming.SessionPermission
	clock      clock.Clock
	logger     *slog.Logger

	mu        sync.Mutex
	identity  models.Identity
	sender    *session.Sender
	incoming  *incoming.Handler
	unsub     []func()
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	prompts   []incoming.Listener
	sessions  []func(*session.Session, tracker.State)
	connected []func(bool)
}

func New(cfg Config, api API, tr Transport, player incoming.Player, clk clock.Clock, log *slog.Logger) *Client {
	clk = clock.OrReal(clk)
	log = logger.OrDefault(log)
	return &Client{
		cfg:        cfg,
		api:        api,
		transport:  tr,
		feed:       incident.NewFeed(api, clk, cfg.DedupeWindow, log),
		player:     player,
		permission: &incoming.SessionPermission{},
		clock:      clk,
		logger:     log.With("component", "client"),
	}
}

// Login connects as identity, starts listening for rings and status
// updates, and loads the identity's history into the feed. A failed history
// load is logged; the session stays usable.
func (c *Client) Login(ctx context.Context, identity models.Identity) error {
	if identity.DisplayName == "" {
		return ErrNoIdentity
	}

	c.mu.Lock()
	if c.sender != nil && c.identity == identity {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	c.Logout()

	loginCtx, cancel := context.WithCancel(context.Background())
	sender := session.NewSender(session.Config{Window: c.cfg.CallWindow}, identity, c.api, c.transport, c.feed, c.clock, c.logger)
	handler := incoming.NewHandler(incoming.Config{Window: c.cfg.RingWindow}, identity, c.transport, c.feed, c.player, c.permission, c.clock, c.logger)

	c.mu.Lock()
	c.identity = identity
	c.sender = sender
	c.incoming = handler
	c.ctx = loginCtx
	c.cancel = cancel
	for _, l := range c.prompts {
		handler.OnPrompt(l)
	}
	for _, fn := range c.sessions {
		sender.OnChange(fn)
	}
	c.unsub = []func(){
		c.transport.Subscribe(func(ev signal.Event) {
			sender.HandleEvent(ev)
			handler.HandleEvent(ev)
		}),
		c.transport.OnConnectivity(c.notifyConnectivity),
	}
	c.mu.Unlock()

	c.transport.Connect(identity)
	c.logger.Info("logged in", "name", identity.DisplayName, "team", identity.TeamName)

	if err := c.feed.Load(ctx, identity.From()); err != nil {
		c.logger.Warn("initial history load failed", "error", err)
	}
	return nil
}

// Logout stops every timer, drops the connection and clears the feed.
func (c *Client) Logout() {
	c.mu.Lock()
	sender, handler, unsub, cancel := c.sender, c.incoming, c.unsub, c.cancel
	c.sender = nil
	c.incoming = nil
	c.unsub = nil
	c.ctx = nil
	c.cancel = nil
	c.identity = models.Identity{}
	c.mu.Unlock()

	if sender == nil {
		return
	}
	for _, fn := range unsub {
		fn()
	}
	cancel()
	c.wg.Wait()

	sender.Close()
	handler.Close()
	c.transport.Disconnect()
	c.feed.Reset()
	c.logger.Info("logged out")
}

// StartCall places a call and reloads the persisted history once it
// resolves.
func (c *Client) StartCall(ctx context.Context, targets []string, message string) (*session.Session, error) {
	c.mu.Lock()
	sender, identity := c.sender, c.identity
	c.mu.Unlock()
	if sender == nil {
		return nil, ErrNotLoggedIn
	}

	sess, err := sender.StartCall(ctx, targets, message)
	if err != nil {
		return nil, err
	}
	c.reloadAfter(sess, identity)
	return sess, nil
}

func (c *Client) reloadAfter(sess *session.Session, identity models.Identity) {
	c.mu.Lock()
	loginCtx := c.ctx
	if loginCtx == nil {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		select {
		case <-sess.Done():
		case <-loginCtx.Done():
			return
		}
		ctx, cancel := context.WithTimeout(loginCtx, historyTimeout)
		defer cancel()
		if err := c.feed.Load(ctx, identity.From()); err != nil && !errors.Is(err, incident.ErrLoadInProgress) {
			c.logger.Warn("history reload failed", "call_id", sess.Call().CallID, "error", err)
		}
	}()
}

// Accept answers the given ringing call, or the primary caller when callID
// is empty.
func (c *Client) Accept(callID string) bool {
	h := c.Incoming()
	return h != nil && h.Accept(callID)
}

func (c *Client) Reject(callID string) bool {
	h := c.Incoming()
	return h != nil && h.Reject(callID)
}

// EnableAudio records the user's permission to play the ring cue for the
// rest of the process.
func (c *Client) EnableAudio() {
	c.permission.Grant()
}

// OnPrompt registers l with the current and every later incoming handler.
func (c *Client) OnPrompt(l incoming.Listener) {
	c.mu.Lock()
	c.prompts = append(c.prompts, l)
	h := c.incoming
	c.mu.Unlock()
	if h != nil {
		h.OnPrompt(l)
	}
}

// OnSession registers fn for status changes of outgoing calls.
func (c *Client) OnSession(fn func(*session.Session, tracker.State)) {
	c.mu.Lock()
	c.sessions = append(c.sessions, fn)
	s := c.sender
	c.mu.Unlock()
	if s != nil {
		s.OnChange(fn)
	}
}

// OnConnectivity registers fn for the advisory connected signal.
func (c *Client) OnConnectivity(fn func(bool)) {
	c.mu.Lock()
	c.connected = append(c.connected, fn)
	c.mu.Unlock()
}

func (c *Client) notifyConnectivity(connected bool) {
	c.mu.Lock()
	fns := append(([]func(bool))(nil), c.connected...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(connected)
	}
}

func (c *Client) Connected() bool {
	return c.transport.Connected()
}

func (c *Client) Identity() models.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Client) Feed() *incident.Feed {
	return c.feed
}

func (c *Client) Sender() *session.Sender {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sender
}

func (c *Client) Incoming() *incoming.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.incoming
}
