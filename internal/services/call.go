package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anhducle99/bluecode/internal/database"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNoTargets     = errors.New("at least one target is required")
	ErrCallNotFound  = errors.New("call not found")
	ErrInvalidStatus = errors.New("invalid call status")
)

const defaultHistoryLimit = 500

type CallService struct {
	db *database.DB
}

func NewCallService(db *database.DB) *CallService {
	return &CallService{db: db}
}

// Create persists one pending call log per target and returns the call with a
// freshly assigned id. Duplicate keys collapse into one target.
func (s *CallService) Create(ctx context.Context, sender, message string, targetKeys []string) (*models.Call, error) {
	targets := models.UniqueTargets(targetKeys)
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	type receiver struct{ name, team string }
	receivers := make([]receiver, 0, len(targets))
	for _, key := range targets {
		name, team, err := models.ParseRecipientKey(key)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", key, err)
		}
		receivers = append(receivers, receiver{name: name, team: team})
	}

	call := &models.Call{
		CallID:    uuid.New().String(),
		FromTeam:  sender,
		Message:   message,
		Targets:   targets,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range receivers {
		_, err = tx.Exec(ctx, `
			INSERT INTO call_logs (call_id, sender, receiver, receiver_team, message, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'pending', $6, $6)
		`, call.CallID, sender, r.name, r.team, message, call.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create call log: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return call, nil
}

// GetByCallID rebuilds a call from its persisted logs.
func (s *CallService) GetByCallID(ctx context.Context, callID string) (*models.Call, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT sender, message, receiver, receiver_team, created_at
		FROM call_logs WHERE call_id = $1
		ORDER BY id
	`, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	defer rows.Close()

	var call *models.Call
	for rows.Next() {
		var sender, message, receiver, team string
		var createdAt time.Time
		if err := rows.Scan(&sender, &message, &receiver, &team, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan call log: %w", err)
		}
		if call == nil {
			call = &models.Call{CallID: callID, FromTeam: sender, Message: message, CreatedAt: createdAt}
		}
		call.Targets = append(call.Targets, models.RecipientKey(receiver, team))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read call logs: %w", err)
	}
	if call == nil {
		return nil, ErrCallNotFound
	}
	return call, nil
}

// MarkStatus records a recipient team's decision. Only pending rows change,
// so the first terminal status wins; the affected row count is returned.
func (s *CallService) MarkStatus(ctx context.Context, callID, receiverTeam, status string) (int64, error) {
	switch status {
	case models.CallStatusAccepted, models.CallStatusRejected, models.CallStatusTimeout:
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE call_logs SET
			status = $3::varchar,
			accepted_at = CASE WHEN $3::varchar = 'accepted' THEN NOW() ELSE accepted_at END,
			rejected_at = CASE WHEN $3::varchar = 'rejected' THEN NOW() ELSE rejected_at END,
			updated_at = NOW()
		WHERE call_id = $1 AND receiver_team = $2 AND status = 'pending'
	`, callID, receiverTeam, status)
	if err != nil {
		return 0, fmt.Errorf("failed to update call status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Cancel marks every pending log of the call as cancelled.
func (s *CallService) Cancel(ctx context.Context, callID string) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE call_logs SET status = 'cancelled', updated_at = NOW()
		WHERE call_id = $1 AND status = 'pending'
	`, callID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel call: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpirePending times out logs nobody answered before the cutoff.
func (s *CallService) ExpirePending(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE call_logs SET status = 'timeout', updated_at = NOW()
		WHERE status = 'pending' AND created_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending calls: %w", err)
	}
	return tag.RowsAffected(), nil
}

type HistoryFilter struct {
	// Party matches either side of the call: the sender, or the receiver by
	// name or team.
	Party    string
	Sender   string
	Receiver string
	From     *time.Time
	To       *time.Time
	Limit    int
}

func (s *CallService) History(ctx context.Context, filter HistoryFilter) ([]models.CallLog, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Party != "" {
		p := arg(filter.Party)
		conds = append(conds, fmt.Sprintf("(sender = %s OR receiver = %s OR receiver_team = %s)", p, p, p))
	}
	if filter.Sender != "" {
		conds = append(conds, "sender = "+arg(filter.Sender))
	}
	if filter.Receiver != "" {
		p := arg(filter.Receiver)
		conds = append(conds, fmt.Sprintf("(receiver = %s OR receiver_team = %s)", p, p))
	}
	if filter.From != nil {
		conds = append(conds, "created_at >= "+arg(*filter.From))
	}
	if filter.To != nil {
		conds = append(conds, "created_at <= "+arg(*filter.To))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := `
		SELECT id, call_id, sender, receiver, receiver_team, message, status,
		       created_at, accepted_at, rejected_at, updated_at
		FROM call_logs`
	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\t\tORDER BY created_at DESC, id DESC\n\t\tLIMIT " + arg(limit)

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query call history: %w", err)
	}
	defer rows.Close()

	logs := []models.CallLog{}
	for rows.Next() {
		var l models.CallLog
		if err := rows.Scan(&l.ID, &l.CallID, &l.Sender, &l.Receiver, &l.ReceiverTeam, &l.Message, &l.Status,
			&l.CreatedAt, &l.AcceptedAt, &l.RejectedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan call log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read call history: %w", err)
	}
	return logs, nil
}
