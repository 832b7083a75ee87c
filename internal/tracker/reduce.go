// Package tracker keeps the sender-side status of every recipient of the
// call currently on screen.
package tracker

import (
	"time"

	"github.com/anhducle99/bluecode/internal/models"
)

// State is an immutable snapshot of the tracked call. Reduce never mutates
// the State it is given.
type State struct {
	CallID    string
	Targets   []string
	Statuses  map[string]models.RecipientStatus
	Remaining time.Duration
	Expired   bool
}

// Transition records one recipient leaving the waiting state.
type Transition struct {
	Key    string
	From   models.RecipientStatus
	To     models.RecipientStatus
	Forced bool
}

type Event interface {
	isEvent()
}

// Reset mounts a new call: every target starts waiting.
type Reset struct {
	CallID  string
	Targets []string
	Window  time.Duration
}

// StatusReceived reports a recipient outcome.
type StatusReceived struct {
	CallID string
	Key    string
	Status models.RecipientStatus
}

// Tick updates the countdown. A tick with no time remaining expires the
// call, forcing every waiting target to unreachable.
type Tick struct {
	Remaining time.Duration
}

func (Reset) isEvent()          {}
func (StatusReceived) isEvent() {}
func (Tick) isEvent()           {}

// Reduce applies ev to s and returns the new state together with the
// transitions it caused.
func Reduce(s State, ev Event) (State, []Transition) {
	switch ev := ev.(type) {
	case Reset:
		targets := models.UniqueTargets(ev.Targets)
		statuses := make(map[string]models.RecipientStatus, len(targets))
		for _, key := range targets {
			statuses[key] = models.StatusWaiting
		}
		return State{
			CallID:    ev.CallID,
			Targets:   targets,
			Statuses:  statuses,
			Remaining: ev.Window,
		}, nil

	case StatusReceived:
		if s.CallID == "" || ev.CallID != s.CallID || !ev.Status.Terminal() {
			return s, nil
		}
		current, ok := s.Statuses[ev.Key]
		if !ok || current.Terminal() {
			return s, nil
		}
		next := s.withStatuses()
		next.Statuses[ev.Key] = ev.Status
		return next, []Transition{{Key: ev.Key, From: current, To: ev.Status}}

	case Tick:
		if s.CallID == "" || s.Expired {
			return s, nil
		}
		next := s.withStatuses()
		if ev.Remaining > 0 {
			next.Remaining = ev.Remaining
			return next, nil
		}
		next.Remaining = 0
		next.Expired = true
		var transitions []Transition
		for _, key := range next.Targets {
			if next.Statuses[key] == models.StatusWaiting {
				next.Statuses[key] = models.StatusUnreachable
				transitions = append(transitions, Transition{
					Key:    key,
					From:   models.StatusWaiting,
					To:     models.StatusUnreachable,
					Forced: true,
				})
			}
		}
		return next, transitions
	}
	return s, nil
}

func (s State) withStatuses() State {
	statuses := make(map[string]models.RecipientStatus, len(s.Statuses))
	for k, v := range s.Statuses {
		statuses[k] = v
	}
	s.Statuses = statuses
	return s
}

// Resolved reports whether every target reached a terminal status.
func (s State) Resolved() bool {
	if s.CallID == "" {
		return false
	}
	for _, key := range s.Targets {
		if !s.Statuses[key].Terminal() {
			return false
		}
	}
	return true
}

// Counts returns the number of targets per status.
func (s State) Counts() map[models.RecipientStatus]int {
	counts := make(map[models.RecipientStatus]int)
	for _, key := range s.Targets {
		counts[s.Statuses[key]]++
	}
	return counts
}

// Clone returns a copy whose maps and slices are not shared with s.
func (s State) Clone() State {
	out := s.withStatuses()
	out.Targets = append([]string(nil), s.Targets...)
	return out
}
