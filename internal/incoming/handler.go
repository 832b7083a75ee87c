// Package incoming handles rings on the recipient side: it shows a prompt,
// gates the audio cue, enforces the answer deadline and reports exactly one
// decision per call.
package incoming

import (
	"log/slog"
	"sync"
	"time"

	"github.com/anhducle99/bluecode/internal/clock"
	"github.com/anhducle99/bluecode/internal/incident"
	"github.com/anhducle99/bluecode/internal/logger"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/signal"
)

const DefaultRingWindow = 15 * time.Second

type CallerState string

const (
	CallerRinging   CallerState = "ringing"
	CallerAccepted  CallerState = "accepted"
	CallerRejected  CallerState = "rejected"
	CallerTimedOut  CallerState = "timed_out"
	CallerCancelled CallerState = "cancelled"
)

type Caller struct {
	CallID     string
	FromTeam   string
	Message    string
	ReceivedAt time.Time
	Deadline   time.Time
	State      CallerState
}

// Prompt is the single incoming-call prompt of a client. Rings that arrive
// while it is showing are listed as additional callers.
type Prompt struct {
	Callers []Caller
}

// Primary returns the oldest caller still ringing.
func (p Prompt) Primary() (Caller, bool) {
	for _, c := range p.Callers {
		if c.State == CallerRinging {
			return c, true
		}
	}
	return Caller{}, false
}

func (p Prompt) Ringing() []Caller {
	var out []Caller
	for _, c := range p.Callers {
		if c.State == CallerRinging {
			out = append(out, c)
		}
	}
	return out
}

type Emitter interface {
	Emit(ev signal.Event) bool
}

type Recorder interface {
	Add(in incident.Incident) bool
}

// Listener receives the prompt after every change; active is false once the
// prompt is dismissed.
type Listener func(p Prompt, active bool)

type Config struct {
	Window time.Duration
}

type Handler struct {
	cfg        Config
	identity   models.Identity
	emitter    Emitter
	recorder   Recorder
	player     Player
	permission Permission
	clock      clock.Clock
	logger     *slog.Logger

	// audioMu serializes player calls; audible is what the player was last
	// told and is guarded by audioMu.
	audioMu sync.Mutex
	audible bool

	mu        sync.Mutex
	callers   []*Caller
	timer     clock.Timer
	gen       uint64
	playing   bool
	closed    bool
	seen      map[string]time.Time
	listeners []Listener
}

func NewHandler(cfg Config, identity models.Identity, emitter Emitter, recorder Recorder, player Player, permission Permission, clk clock.Clock, log *slog.Logger) *Handler {
	if cfg.Window <= 0 {
		cfg.Window = DefaultRingWindow
	}
	if player == nil {
		player = NopPlayer{}
	}
	return &Handler{
		cfg:        cfg,
		identity:   identity,
		emitter:    emitter,
		recorder:   recorder,
		player:     player,
		permission: permission,
		clock:      clock.OrReal(clk),
		logger:     logger.OrDefault(log).With("component", "incoming"),
		seen:       make(map[string]time.Time),
	}
}

func (h *Handler) OnPrompt(l Listener) {
	h.mu.Lock()
	h.listeners = append(h.listeners, l)
	h.mu.Unlock()
}

// HandleEvent consumes incomingCall and callCancelled events.
func (h *Handler) HandleEvent(ev signal.Event) {
	switch ev := ev.(type) {
	case signal.IncomingCall:
		h.Ring(ev)
	case signal.CallCancelled:
		h.Cancelled(ev.CallID)
	}
}

// Ring shows an incoming call. It returns false when the identity has no
// team, the handler is closed, or the call was already seen.
func (h *Handler) Ring(ev signal.IncomingCall) bool {
	if !h.identity.CanReceive() {
		h.logger.Debug("ignoring ring without team affiliation", "call_id", ev.CallID)
		return false
	}
	now := h.clock.Now()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.pruneSeenLocked(now)
	if _, ok := h.seen[ev.CallID]; ok {
		h.mu.Unlock()
		h.logger.Debug("duplicate ring", "call_id", ev.CallID)
		return false
	}
	h.seen[ev.CallID] = now

	first := len(h.callers) == 0
	h.callers = append(h.callers, &Caller{
		CallID:     ev.CallID,
		FromTeam:   ev.FromTeam,
		Message:    ev.Message,
		ReceivedAt: now,
		Deadline:   now.Add(h.cfg.Window),
		State:      CallerRinging,
	})

	startAudio := false
	if first {
		h.gen++
		h.armLocked()
		if h.permission != nil && h.permission.AudioGranted() {
			h.playing = true
			startAudio = true
		}
	}
	prompt, listeners := h.promptLocked(), h.listenersLocked()
	h.mu.Unlock()

	h.logger.Info("incoming call", "call_id", ev.CallID, "from", ev.FromTeam, "queued", !first)
	if startAudio {
		h.syncAudio()
	}
	notify(listeners, prompt, true)
	return true
}

// Accept answers callID, or the primary caller when callID is empty.
func (h *Handler) Accept(callID string) bool {
	return h.decide(callID, CallerAccepted, signal.StatusAccepted)
}

// Reject declines callID, or the primary caller when callID is empty.
func (h *Handler) Reject(callID string) bool {
	return h.decide(callID, CallerRejected, signal.StatusRejected)
}

// Cancelled withdraws a ringing caller after the sender cancelled. Nothing
// is reported back.
func (h *Handler) Cancelled(callID string) bool {
	if callID == "" {
		return false
	}
	return h.decide(callID, CallerCancelled, "")
}

func (h *Handler) Prompt() (Prompt, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.callers) == 0 {
		return Prompt{}, false
	}
	return h.promptLocked(), true
}

// Close dismisses the prompt without reporting anything and stops audio and
// timers. Later rings are ignored.
func (h *Handler) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	wasActive := len(h.callers) > 0
	stopAudio := h.clearLocked()
	listeners := h.listenersLocked()
	h.mu.Unlock()

	if stopAudio {
		h.syncAudio()
	}
	if wasActive {
		notify(listeners, Prompt{}, false)
	}
}

type outcome struct {
	emit   signal.Event
	record incident.Incident
}

func (h *Handler) decide(callID string, state CallerState, status signal.Status) bool {
	h.mu.Lock()
	caller := h.findRingingLocked(callID)
	if caller == nil {
		h.mu.Unlock()
		return false
	}
	caller.State = state
	out := h.outcomeLocked(caller, status)
	h.finishLocked([]outcome{out})
	return true
}

func (h *Handler) expire(gen uint64) {
	h.mu.Lock()
	if gen != h.gen || h.timer == nil {
		h.mu.Unlock()
		return
	}
	h.timer = nil

	now := h.clock.Now()
	var outcomes []outcome
	for _, c := range h.callers {
		if c.State == CallerRinging && !now.Before(c.Deadline) {
			c.State = CallerTimedOut
			outcomes = append(outcomes, h.outcomeLocked(c, signal.StatusTimeout))
		}
	}
	h.finishLocked(outcomes)
}

// finishLocked settles the prompt after callers changed state, releases the
// lock, and then performs the side effects in order: report, stop audio,
// dismiss, record.
func (h *Handler) finishLocked(outcomes []outcome) {
	prompt, listeners := h.promptLocked(), h.listenersLocked()
	dismissed, stopAudio := false, false
	if h.findRingingLocked("") == nil {
		stopAudio = h.clearLocked()
		dismissed = true
	} else if h.timer == nil {
		h.armLocked()
	}
	h.mu.Unlock()

	for _, out := range outcomes {
		if out.emit == nil {
			continue
		}
		if !h.emitter.Emit(out.emit) {
			h.logger.Warn("decision not delivered", "type", out.emit.Type(), "call_id", out.record.CallID)
		}
	}
	if stopAudio {
		h.syncAudio()
	}
	notify(listeners, prompt, !dismissed)
	for _, out := range outcomes {
		if h.recorder != nil {
			h.recorder.Add(out.record)
		}
	}
}

func (h *Handler) outcomeLocked(c *Caller, status signal.Status) outcome {
	var kind incident.Kind
	switch c.State {
	case CallerAccepted:
		kind = incident.KindAccepted
	case CallerRejected:
		kind = incident.KindRejected
	case CallerTimedOut:
		kind = incident.KindTimeout
	default:
		kind = incident.KindCancelled
	}

	out := outcome{record: incident.Incident{
		Source:  h.identity.TeamName,
		Kind:    kind,
		Message: incident.DecisionMessage(kind, c.FromTeam),
		CallID:  c.CallID,
	}}
	if ev, ok := signal.NewDecision(c.CallID, h.identity.TeamName, status); ok {
		out.emit = ev
	}
	return out
}

func (h *Handler) findRingingLocked(callID string) *Caller {
	for _, c := range h.callers {
		if c.State == CallerRinging && (callID == "" || c.CallID == callID) {
			return c
		}
	}
	return nil
}

// armLocked schedules the single prompt timer for the earliest ringing
// deadline.
func (h *Handler) armLocked() {
	next := h.findRingingLocked("")
	if next == nil {
		return
	}
	for _, c := range h.callers {
		if c.State == CallerRinging && c.Deadline.Before(next.Deadline) {
			next = c
		}
	}
	gen := h.gen
	h.timer = h.clock.AfterFunc(next.Deadline.Sub(h.clock.Now()), func() { h.expire(gen) })
}

// syncAudio drives the player to the current playing flag. A Play issued
// after the prompt was already dismissed becomes a no-op, so audio never
// outlives its prompt. Must be called without h.mu held.
func (h *Handler) syncAudio() {
	h.audioMu.Lock()
	defer h.audioMu.Unlock()

	h.mu.Lock()
	want := h.playing
	h.mu.Unlock()

	if want == h.audible {
		return
	}
	h.audible = want
	if want {
		h.player.Play()
	} else {
		h.player.Stop()
	}
}

func (h *Handler) clearLocked() bool {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.gen++
	h.callers = nil
	stopAudio := h.playing
	h.playing = false
	return stopAudio
}

func (h *Handler) pruneSeenLocked(now time.Time) {
	horizon := 4 * h.cfg.Window
	for id, at := range h.seen {
		if now.Sub(at) > horizon {
			delete(h.seen, id)
		}
	}
}

func (h *Handler) promptLocked() Prompt {
	p := Prompt{Callers: make([]Caller, 0, len(h.callers))}
	for _, c := range h.callers {
		p.Callers = append(p.Callers, *c)
	}
	return p
}

func (h *Handler) listenersLocked() []Listener {
	return append([]Listener(nil), h.listeners...)
}

func notify(listeners []Listener, p Prompt, active bool) {
	for _, l := range listeners {
		l(p, active)
	}
}
