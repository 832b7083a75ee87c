// Package incident builds the activity feed shown to staff from live call
// events and the persisted call history.
package incident

import (
	"fmt"
	"time"

	"github.com/anhducle99/bluecode/internal/models"
)

type Kind string

const (
	KindOutgoing  Kind = "outgoing"
	KindAccepted  Kind = "accepted"
	KindRejected  Kind = "rejected"
	KindTimeout   Kind = "timeout"
	KindCancelled Kind = "cancelled"
)

// ParseKind accepts the name of a kind as shown in the feed.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindOutgoing, KindAccepted, KindRejected, KindTimeout, KindCancelled:
		return k, true
	}
	return "", false
}

type Incident struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	CallID    string    `json:"call_id,omitempty"`
}

func OutgoingID(recordID int64) string {
	return fmt.Sprintf("call-outgoing-%d", recordID)
}

func ReceiverID(recordID int64) string {
	return fmt.Sprintf("call-receiver-%d", recordID)
}

// The message builders are shared by live events and persisted records so
// that both renderings of one event collide on source and message.

func OutgoingMessage(receiver, message string) string {
	if message == "" {
		return fmt.Sprintf("Calling %s", receiver)
	}
	return fmt.Sprintf("Calling %s: %s", receiver, message)
}

func DecisionMessage(kind Kind, sender string) string {
	switch kind {
	case KindAccepted:
		return fmt.Sprintf("Accepted call from %s", sender)
	case KindRejected:
		return fmt.Sprintf("Rejected call from %s", sender)
	case KindTimeout:
		return fmt.Sprintf("Missed call from %s", sender)
	case KindCancelled:
		return fmt.Sprintf("Call from %s was cancelled", sender)
	}
	return fmt.Sprintf("Call from %s", sender)
}

// KindForStatus maps a sender-side recipient status to an incident kind.
func KindForStatus(status models.RecipientStatus) (Kind, bool) {
	switch status {
	case models.StatusAccepted:
		return KindAccepted, true
	case models.StatusRejected:
		return KindRejected, true
	case models.StatusUnreachable:
		return KindTimeout, true
	case models.StatusCancelled:
		return KindCancelled, true
	}
	return "", false
}

func kindForRecord(status string) (Kind, bool) {
	switch status {
	case models.CallStatusAccepted:
		return KindAccepted, true
	case models.CallStatusRejected:
		return KindRejected, true
	case models.CallStatusTimeout:
		return KindTimeout, true
	case models.CallStatusCancelled:
		return KindCancelled, true
	}
	return "", false
}

// FromCallLog converts a persisted record into its outgoing incident and,
// once the recipient has decided, its receiver incident.
func FromCallLog(log models.CallLog) []Incident {
	out := []Incident{{
		ID:        OutgoingID(log.ID),
		Timestamp: log.CreatedAt,
		Source:    log.Sender,
		Kind:      KindOutgoing,
		Message:   OutgoingMessage(log.Receiver, log.Message),
		CallID:    log.CallID,
	}}

	kind, ok := kindForRecord(log.Status)
	if !ok {
		return out
	}

	ts := log.UpdatedAt
	switch {
	case kind == KindAccepted && log.AcceptedAt != nil:
		ts = *log.AcceptedAt
	case kind == KindRejected && log.RejectedAt != nil:
		ts = *log.RejectedAt
	}
	if ts.IsZero() {
		ts = log.CreatedAt
	}

	source := log.ReceiverTeam
	if source == "" {
		source = log.Receiver
	}
	return append(out, Incident{
		ID:        ReceiverID(log.ID),
		Timestamp: ts,
		Source:    source,
		Kind:      kind,
		Message:   DecisionMessage(kind, log.Sender),
		CallID:    log.CallID,
	})
}
