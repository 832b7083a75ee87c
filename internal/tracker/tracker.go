package tracker

import (
	"sync"
	"time"

	"github.com/anhducle99/bluecode/internal/clock"
	"github.com/anhducle99/bluecode/internal/models"
)

const DefaultTickInterval = time.Second

// Listener observes every state change together with the transitions that
// caused it. It is called without the tracker lock held.
type Listener func(State, []Transition)

// Tracker owns the reducer state of one mounted call and the single timer
// that drives both the countdown and the forced expiry.
type Tracker struct {
	mu        sync.Mutex
	clock     clock.Clock
	interval  time.Duration
	state     State
	deadline  time.Time
	timer     clock.Timer
	gen       uint64
	listeners []Listener
}

func New(clk clock.Clock, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Tracker{clock: clock.OrReal(clk), interval: interval}
}

func (t *Tracker) OnChange(l Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

// Mount resets every target to waiting and restarts the countdown. Any timer
// left from a previous mount is stopped and can no longer act.
func (t *Tracker) Mount(callID string, targets []string, window time.Duration) State {
	t.mu.Lock()
	t.stopLocked()
	t.gen++
	t.state, _ = Reduce(State{}, Reset{CallID: callID, Targets: targets, Window: window})
	t.deadline = t.clock.Now().Add(window)
	t.armLocked(t.gen)
	snapshot, listeners := t.state.Clone(), t.listenersLocked()
	t.mu.Unlock()

	notify(listeners, snapshot, nil)
	return snapshot
}

// Apply records a recipient outcome for callID. Outcomes for another call,
// for unknown keys, or for targets already terminal are ignored.
func (t *Tracker) Apply(callID, key string, status models.RecipientStatus) []Transition {
	t.mu.Lock()
	next, transitions := Reduce(t.state, StatusReceived{CallID: callID, Key: key, Status: status})
	if len(transitions) == 0 {
		t.mu.Unlock()
		return nil
	}
	t.state = next
	if t.state.Resolved() {
		t.stopLocked()
	}
	snapshot, listeners := t.state.Clone(), t.listenersLocked()
	t.mu.Unlock()

	notify(listeners, snapshot, transitions)
	return transitions
}

// Expire ends the countdown now, marking every waiting target unreachable.
func (t *Tracker) Expire() []Transition {
	t.mu.Lock()
	if t.state.CallID == "" || t.state.Expired {
		t.mu.Unlock()
		return nil
	}
	t.stopLocked()
	var transitions []Transition
	t.state, transitions = Reduce(t.state, Tick{Remaining: 0})
	snapshot, listeners := t.state.Clone(), t.listenersLocked()
	t.mu.Unlock()

	notify(listeners, snapshot, transitions)
	return transitions
}

// Unmount stops the countdown and forgets the call.
func (t *Tracker) Unmount() {
	t.mu.Lock()
	t.stopLocked()
	t.gen++
	t.state = State{}
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

func (t *Tracker) armLocked(gen uint64) {
	wait := t.deadline.Sub(t.clock.Now())
	if wait > t.interval {
		wait = t.interval
	}
	if wait < 0 {
		wait = 0
	}
	t.timer = t.clock.AfterFunc(wait, func() { t.tick(gen) })
}

func (t *Tracker) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.timer = nil

	var transitions []Transition
	t.state, transitions = Reduce(t.state, Tick{Remaining: t.deadline.Sub(t.clock.Now())})
	if !t.state.Expired {
		t.armLocked(gen)
	}
	snapshot, listeners := t.state.Clone(), t.listenersLocked()
	t.mu.Unlock()

	notify(listeners, snapshot, transitions)
}

func (t *Tracker) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Tracker) listenersLocked() []Listener {
	return append([]Listener(nil), t.listeners...)
}

func notify(listeners []Listener, s State, transitions []Transition) {
	for _, l := range listeners {
		l(s, transitions)
	}
}
