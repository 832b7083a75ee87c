package models

import (
	"time"
)

// Call is one outgoing alert from a team to an ordered set of recipients.
type Call struct {
	CallID    string    `json:"call_id"`
	FromTeam  string    `json:"from_team"`
	Message   string    `json:"message"`
	Targets   []string  `json:"targets"`
	CreatedAt time.Time `json:"created_at"`
}

// HasTarget reports whether key is one of the call's recipients.
func (c *Call) HasTarget(key string) bool {
	for _, t := range c.Targets {
		if t == key {
			return true
		}
	}
	return false
}

// ResolveTargets maps an addressee reported by a recipient (a recipient key
// or a team name) to the call's target keys.
func (c *Call) ResolveTargets(addressee string) []string {
	if c.HasTarget(addressee) {
		return []string{addressee}
	}
	var keys []string
	for _, t := range c.Targets {
		if KeyTeam(t) == addressee {
			keys = append(keys, t)
		}
	}
	return keys
}

// UniqueTargets deduplicates keys preserving their first-seen order and
// dropping empty entries.
func UniqueTargets(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// Persisted call log statuses.
const (
	CallStatusPending   = "pending"
	CallStatusAccepted  = "accepted"
	CallStatusRejected  = "rejected"
	CallStatusTimeout   = "timeout"
	CallStatusCancelled = "cancelled"
)

// CallLog is the persisted record of one call to one recipient.
type CallLog struct {
	ID           int64      `json:"id"`
	CallID       string     `json:"call_id"`
	Sender       string     `json:"sender"`
	Receiver     string     `json:"receiver"`
	ReceiverTeam string     `json:"receiver_team"`
	Message      string     `json:"message"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Decided reports whether the recipient side of the record reached an outcome.
func (l *CallLog) Decided() bool {
	return l.Status != "" && l.Status != CallStatusPending
}

// RecipientStatus is the sender-side view of one target's response.
type RecipientStatus string

const (
	StatusWaiting     RecipientStatus = "waiting"
	StatusAccepted    RecipientStatus = "accepted"
	StatusRejected    RecipientStatus = "rejected"
	StatusUnreachable RecipientStatus = "unreachable"
	StatusCancelled   RecipientStatus = "cancelled"
)

func (s RecipientStatus) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusUnreachable, StatusCancelled:
		return true
	}
	return false
}
