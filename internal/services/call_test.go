package services

import (
	"context"
	"testing"
	"time"

	"github.com/anhducle99/bluecode/internal/database"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCallService(t *testing.T) (*CallService, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	db := &database.DB{Pool: mock}
	return NewCallService(db), mock
}

func TestCallService_Create(t *testing.T) {
	svc, mock := setupCallService(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO call_logs`).
		WithArgs(pgxmock.AnyArg(), "ER", "Dr. A", "Cardiology", "Code blue bed 4", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO call_logs`).
		WithArgs(pgxmock.AnyArg(), "ER", "Dr. B", "ICU", "Code blue bed 4", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	call, err := svc.Create(ctx, "ER", "Code blue bed 4", []string{"Dr. A_Cardiology", "Dr. B_ICU", "Dr. A_Cardiology"})

	require.NoError(t, err)
	assert.NotEmpty(t, call.CallID)
	assert.Equal(t, "ER", call.FromTeam)
	assert.Equal(t, []string{"Dr. A_Cardiology", "Dr. B_ICU"}, call.Targets)
	assert.False(t, call.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_Create_NoTargets(t *testing.T) {
	svc, mock := setupCallService(t)

	_, err := svc.Create(context.Background(), "ER", "msg", []string{"", ""})

	assert.ErrorIs(t, err, ErrNoTargets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_Create_InvalidKey(t *testing.T) {
	svc, mock := setupCallService(t)

	_, err := svc.Create(context.Background(), "ER", "msg", []string{"no-separator"})

	assert.ErrorIs(t, err, models.ErrInvalidRecipientKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_Create_TransactionRollback(t *testing.T) {
	svc, mock := setupCallService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO call_logs`).
		WithArgs(pgxmock.AnyArg(), "ER", "Dr. A", "Cardiology", "msg", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO call_logs`).
		WithArgs(pgxmock.AnyArg(), "ER", "Dr. B", "ICU", "msg", pgxmock.AnyArg()).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), "ER", "msg", []string{"Dr. A_Cardiology", "Dr. B_ICU"})

	assert.ErrorContains(t, err, "failed to create call log")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_GetByCallID(t *testing.T) {
	svc, mock := setupCallService(t)
	now := time.Now()

	rows := pgxmock.NewRows([]string{"sender", "message", "receiver", "receiver_team", "created_at"}).
		AddRow("ER", "Code blue", "Dr. A", "Cardiology", now).
		AddRow("ER", "Code blue", "Dr. B", "ICU", now)
	mock.ExpectQuery(`SELECT sender, message, receiver, receiver_team, created_at`).
		WithArgs("call-1").
		WillReturnRows(rows)

	call, err := svc.GetByCallID(context.Background(), "call-1")

	require.NoError(t, err)
	assert.Equal(t, "call-1", call.CallID)
	assert.Equal(t, "ER", call.FromTeam)
	assert.Equal(t, "Code blue", call.Message)
	assert.Equal(t, []string{"Dr. A_Cardiology", "Dr. B_ICU"}, call.Targets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_GetByCallID_NotFound(t *testing.T) {
	svc, mock := setupCallService(t)

	mock.ExpectQuery(`SELECT sender, message`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"sender", "message", "receiver", "receiver_team", "created_at"}))

	_, err := svc.GetByCallID(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrCallNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_MarkStatus(t *testing.T) {
	svc, mock := setupCallService(t)

	mock.ExpectExec(`UPDATE call_logs SET`).
		WithArgs("call-1", "ICU", models.CallStatusAccepted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	n, err := svc.MarkStatus(context.Background(), "call-1", "ICU", models.CallStatusAccepted)

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_MarkStatus_AlreadyDecided(t *testing.T) {
	svc, mock := setupCallService(t)

	mock.ExpectExec(`UPDATE call_logs SET`).
		WithArgs("call-1", "ICU", models.CallStatusRejected).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	n, err := svc.MarkStatus(context.Background(), "call-1", "ICU", models.CallStatusRejected)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_MarkStatus_InvalidStatus(t *testing.T) {
	svc, mock := setupCallService(t)

	for _, status := range []string{"", models.CallStatusPending, models.CallStatusCancelled, "maybe"} {
		_, err := svc.MarkStatus(context.Background(), "call-1", "ICU", status)
		assert.ErrorIs(t, err, ErrInvalidStatus, status)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_Cancel(t *testing.T) {
	svc, mock := setupCallService(t)

	mock.ExpectExec(`UPDATE call_logs SET status = 'cancelled'`).
		WithArgs("call-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := svc.Cancel(context.Background(), "call-1")

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_ExpirePending(t *testing.T) {
	svc, mock := setupCallService(t)
	cutoff := time.Now().Add(-5 * time.Minute)

	mock.ExpectExec(`UPDATE call_logs SET status = 'timeout'`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := svc.ExpirePending(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_ExpirePending_Error(t *testing.T) {
	svc, mock := setupCallService(t)

	mock.ExpectExec(`UPDATE call_logs`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(assert.AnError)

	_, err := svc.ExpirePending(context.Background(), time.Now())

	assert.ErrorContains(t, err, "failed to expire pending calls")
	assert.NoError(t, mock.ExpectationsWereMet())
}

var historyColumns = []string{
	"id", "call_id", "sender", "receiver", "receiver_team", "message", "status",
	"created_at", "accepted_at", "rejected_at", "updated_at",
}

func TestCallService_History_ByParty(t *testing.T) {
	svc, mock := setupCallService(t)
	now := time.Now()
	accepted := now.Add(3 * time.Second)

	rows := pgxmock.NewRows(historyColumns).
		AddRow(int64(2), "call-2", "ER", "Dr. B", "ICU", "bed 7", models.CallStatusAccepted,
			now, &accepted, (*time.Time)(nil), accepted).
		AddRow(int64(1), "call-1", "ICU", "Dr. C", "ER", "bed 2", models.CallStatusPending,
			now.Add(-time.Minute), (*time.Time)(nil), (*time.Time)(nil), now.Add(-time.Minute))
	mock.ExpectQuery(`WHERE \(sender = \$1 OR receiver = \$1 OR receiver_team = \$1\)`).
		WithArgs("ICU", defaultHistoryLimit).
		WillReturnRows(rows)

	logs, err := svc.History(context.Background(), HistoryFilter{Party: "ICU"})

	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "call-2", logs[0].CallID)
	require.NotNil(t, logs[0].AcceptedAt)
	assert.True(t, logs[0].Decided())
	assert.Nil(t, logs[0].RejectedAt)
	assert.False(t, logs[1].Decided())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_History_AllFilters(t *testing.T) {
	svc, mock := setupCallService(t)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(`sender = \$1 AND \(receiver = \$2 OR receiver_team = \$2\) AND created_at >= \$3 AND created_at <= \$4`).
		WithArgs("ER", "ICU", from, to, 50).
		WillReturnRows(pgxmock.NewRows(historyColumns))

	logs, err := svc.History(context.Background(), HistoryFilter{
		Sender:   "ER",
		Receiver: "ICU",
		From:     &from,
		To:       &to,
		Limit:    50,
	})

	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCallService_History_QueryError(t *testing.T) {
	svc, mock := setupCallService(t)

	mock.ExpectQuery(`FROM call_logs`).
		WithArgs(defaultHistoryLimit).
		WillReturnError(assert.AnError)

	_, err := svc.History(context.Background(), HistoryFilter{})

	assert.ErrorContains(t, err, "failed to query call history")
	assert.NoError(t, mock.ExpectationsWereMet())
}
