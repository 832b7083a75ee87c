package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/anhducle99/bluecode/internal/database"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/google/uuid"
)

// Fixtures provides factory methods for creating test data
type Fixtures struct {
	db      *database.DB
	counter int
}

// NewFixtures creates a new fixtures factory
func NewFixtures(db *database.DB) *Fixtures {
	return &Fixtures{db: db}
}

// CreateCallLog inserts a call log with default values
func (f *Fixtures) CreateCallLog(t *testing.T, opts ...CallLogOption) *models.CallLog {
	t.Helper()
	f.counter++

	log := &models.CallLog{
		CallID:       uuid.New().String(),
		Sender:       "ER",
		Receiver:     fmt.Sprintf("Dr. %d", f.counter),
		ReceiverTeam: "ICU",
		Message:      fmt.Sprintf("Test call %d", f.counter),
		Status:       models.CallStatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(log)
	}

	ctx := context.Background()
	err := f.db.Pool.QueryRow(ctx, `
		INSERT INTO call_logs (call_id, sender, receiver, receiver_team, message, status, created_at, accepted_at, rejected_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $7)
		RETURNING id, updated_at
	`, log.CallID, log.Sender, log.Receiver, log.ReceiverTeam, log.Message, log.Status,
		log.CreatedAt, log.AcceptedAt, log.RejectedAt).Scan(&log.ID, &log.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to create call log: %v", err)
	}

	return log
}

// CallLogOption configures a test call log
type CallLogOption func(*models.CallLog)

// WithCallID sets the call id, grouping several logs into one call
func WithCallID(callID string) CallLogOption {
	return func(l *models.CallLog) {
		l.CallID = callID
	}
}

// WithParties sets the sender and the receiving team
func WithParties(sender, receiverTeam string) CallLogOption {
	return func(l *models.CallLog) {
		l.Sender = sender
		l.ReceiverTeam = receiverTeam
	}
}

// WithCreatedAt sets the creation time
func WithCreatedAt(at time.Time) CallLogOption {
	return func(l *models.CallLog) {
		l.CreatedAt = at
	}
}

// WithAccepted marks the log accepted at the given time
func WithAccepted(at time.Time) CallLogOption {
	return func(l *models.CallLog) {
		l.Status = models.CallStatusAccepted
		l.AcceptedAt = &at
	}
}
