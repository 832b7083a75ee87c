// Package session drives the sender side of a call from creation until
// every recipient has answered or the call window has elapsed.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anhducle99/bluecode/internal/clock"
	"github.com/anhducle99/bluecode/internal/incident"
	"github.com/anhducle99/bluecode/internal/logger"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/signal"
	"github.com/anhducle99/bluecode/internal/tracker"
)

const DefaultCallWindow = 20 * time.Second

var (
	ErrNoTargets      = errors.New("at least one recipient is required")
	ErrCallInProgress = errors.New("another call is still awaiting responses")
	ErrNoIdentity     = errors.New("sender identity is not set")
	ErrNotActive      = errors.New("call is no longer awaiting responses")
)

type State string

const (
	StateCreated  State = "created"
	StateAwaiting State = "awaiting_responses"
	StateResolved State = "resolved"
)

// CallAPI is the call-creation service, the source of truth for call ids.
type CallAPI interface {
	CreateCall(ctx context.Context, fromTeam, message string, targetKeys []string) (string, error)
	CancelCall(ctx context.Context, callID string) error
}

type Emitter interface {
	Emit(ev signal.Event) bool
}

type Recorder interface {
	Add(in incident.Incident) bool
}

type Config struct {
	Window       time.Duration
	TickInterval time.Duration
}

// Sender starts calls for one identity and routes status updates to the
// active session.
type Sender struct {
	cfg      Config
	identity models.Identity
	api      CallAPI
	emitter  Emitter
	recorder Recorder
	clock    clock.Clock
	logger   *slog.Logger

	mu        sync.Mutex
	active    *Session
	listeners []func(*Session, tracker.State)
}

func NewSender(cfg Config, identity models.Identity, api CallAPI, emitter Emitter, recorder Recorder, clk clock.Clock, log *slog.Logger) *Sender {
	if cfg.Window <= 0 {
		cfg.Window = DefaultCallWindow
	}
	return &Sender{
		cfg:      cfg,
		identity: identity,
		api:      api,
		emitter:  emitter,
		recorder: recorder,
		clock:    clock.OrReal(clk),
		logger:   logger.OrDefault(log).With("component", "session"),
	}
}

// OnChange registers fn for status changes of any session started by s.
func (s *Sender) OnChange(fn func(*Session, tracker.State)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// StartCall creates the call through the API and fans it out. When the API
// fails nothing is emitted and the error is returned.
func (s *Sender) StartCall(ctx context.Context, targets []string, message string) (*Session, error) {
	targets = models.UniqueTargets(targets)
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	from := s.identity.From()
	if from == "" {
		return nil, ErrNoIdentity
	}

	s.mu.Lock()
	if s.active != nil && s.active.State() != StateResolved {
		s.mu.Unlock()
		return nil, ErrCallInProgress
	}
	s.mu.Unlock()

	callID, err := s.api.CreateCall(ctx, from, message, targets)
	if err != nil {
		return nil, fmt.Errorf("failed to create call: %w", err)
	}

	call := models.Call{
		CallID:    callID,
		FromTeam:  from,
		Message:   message,
		Targets:   targets,
		CreatedAt: s.clock.Now(),
	}
	sess := newSession(s, call)

	s.mu.Lock()
	if s.active != nil && s.active.State() != StateResolved {
		s.mu.Unlock()
		return nil, ErrCallInProgress
	}
	s.active = sess
	s.mu.Unlock()

	sess.start()
	s.logger.Info("call started", "call_id", callID, "targets", len(targets))
	return sess, nil
}

// Active returns the most recent session, resolved or not.
func (s *Sender) Active() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// HandleEvent routes callStatusUpdate events to the active session. Other
// events are ignored.
func (s *Sender) HandleEvent(ev signal.Event) {
	update, ok := ev.(signal.CallStatusUpdate)
	if !ok {
		return
	}
	sess := s.Active()
	if sess == nil || sess.call.CallID != update.CallID {
		s.logger.Debug("status for inactive call", "call_id", update.CallID)
		return
	}
	status, ok := update.Status.RecipientStatus()
	if !ok {
		return
	}
	keys := sess.call.ResolveTargets(update.ToDept)
	if len(keys) == 0 {
		s.logger.Debug("status for unknown recipient", "call_id", update.CallID, "to", update.ToDept)
		return
	}
	for _, key := range keys {
		sess.RecordStatus(update.CallID, key, status)
	}
}

// Close unmounts the active session's countdown.
func (s *Sender) Close() {
	s.mu.Lock()
	sess := s.active
	s.mu.Unlock()
	if sess != nil {
		sess.tracker.Unmount()
	}
}

func (s *Sender) listenersSnapshot() []func(*Session, tracker.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(([]func(*Session, tracker.State))(nil), s.listeners...)
}

// Session is one outgoing call.
type Session struct {
	sender  *Sender
	call    models.Call
	tracker *tracker.Tracker

	mu    sync.Mutex
	state State
	done  chan struct{}
}

func newSession(sender *Sender, call models.Call) *Session {
	sess := &Session{
		sender:  sender,
		call:    call,
		tracker: tracker.New(sender.clock, sender.cfg.TickInterval),
		state:   StateCreated,
		done:    make(chan struct{}),
	}
	sess.tracker.OnChange(sess.onTrackerChange)
	return sess
}

func (s *Session) start() {
	snd := s.sender
	for _, key := range s.call.Targets {
		snd.recorder.Add(incident.Incident{
			Timestamp: s.call.CreatedAt,
			Source:    s.call.FromTeam,
			Kind:      incident.KindOutgoing,
			Message:   incident.OutgoingMessage(models.KeyName(key), s.call.Message),
			CallID:    s.call.CallID,
		})
	}

	// Mount before emitting so an immediate answer finds the call awaiting.
	s.mu.Lock()
	s.state = StateAwaiting
	s.mu.Unlock()
	s.tracker.Mount(s.call.CallID, s.call.Targets, snd.cfg.Window)

	if !snd.emitter.Emit(signal.StartCall{CallID: s.call.CallID, From: s.call.FromTeam, Targets: s.call.Targets}) {
		snd.logger.Warn("startCall not delivered, recipients will be marked unreachable", "call_id", s.call.CallID)
	}
}

func (s *Session) Call() models.Call {
	c := s.call
	c.Targets = append([]string(nil), s.call.Targets...)
	return c
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() tracker.State {
	return s.tracker.Snapshot()
}

// Done is closed when the session resolves.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// RecordStatus applies a recipient outcome. It returns false when callID is
// not this call, key is not a target, or the target already has an outcome.
func (s *Session) RecordStatus(callID, key string, status models.RecipientStatus) bool {
	if callID != s.call.CallID || s.State() != StateAwaiting {
		return false
	}
	return len(s.tracker.Apply(callID, key, status)) > 0
}

// Expire marks every waiting target unreachable and resolves the call.
func (s *Session) Expire() {
	if s.State() != StateAwaiting {
		return
	}
	s.tracker.Expire()
}

// Cancel withdraws the call: every waiting target is marked cancelled and
// recipients still ringing are told to stop.
func (s *Session) Cancel(ctx context.Context) error {
	if s.State() != StateAwaiting {
		return ErrNotActive
	}
	if err := s.sender.api.CancelCall(ctx, s.call.CallID); err != nil {
		return fmt.Errorf("failed to cancel call: %w", err)
	}
	s.sender.emitter.Emit(signal.CancelCall{CallID: s.call.CallID, From: s.call.FromTeam})

	for _, key := range s.call.Targets {
		s.tracker.Apply(s.call.CallID, key, models.StatusCancelled)
	}
	return nil
}

func (s *Session) onTrackerChange(state tracker.State, transitions []tracker.Transition) {
	for _, tr := range transitions {
		kind, ok := incident.KindForStatus(tr.To)
		if !ok {
			continue
		}
		source := models.KeyTeam(tr.Key)
		if source == "" {
			source = tr.Key
		}
		s.sender.recorder.Add(incident.Incident{
			Source:  source,
			Kind:    kind,
			Message: incident.DecisionMessage(kind, s.call.FromTeam),
			CallID:  s.call.CallID,
		})
	}

	if state.CallID == s.call.CallID && (state.Expired || state.Resolved()) {
		s.resolve()
	}

	for _, fn := range s.sender.listenersSnapshot() {
		fn(s, state)
	}
}

func (s *Session) resolve() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateResolved {
		return
	}
	s.state = StateResolved
	close(s.done)
}
