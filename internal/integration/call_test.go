package integration

import (
	"context"
	"testing"
	"time"

	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/services"
	"github.com/anhducle99/bluecode/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallService_Integration_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb := setupTest(t)
	svc := services.NewCallService(tdb.DB)
	ctx := context.Background()

	targets := []string{models.RecipientKey("Dr. A", "Cardiology"), models.RecipientKey("Dr. B", "ICU")}
	call, err := svc.Create(ctx, "ER", "Code blue bed 4", append(targets, targets[0]))

	require.NoError(t, err)
	assert.NotEmpty(t, call.CallID)
	assert.Equal(t, targets, call.Targets)

	got, err := svc.GetByCallID(ctx, call.CallID)

	require.NoError(t, err)
	assert.Equal(t, "ER", got.FromTeam)
	assert.Equal(t, "Code blue bed 4", got.Message)
	assert.Equal(t, targets, got.Targets)
}

func TestCallService_Integration_GetByCallID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb := setupTest(t)
	svc := services.NewCallService(tdb.DB)

	_, err := svc.GetByCallID(context.Background(), "missing")

	assert.ErrorIs(t, err, services.ErrCallNotFound)
}

func TestCallService_Integration_FirstStatusWins(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb := setupTest(t)
	svc := services.NewCallService(tdb.DB)
	ctx := context.Background()

	call, err := svc.Create(ctx, "ER", "", []string{models.RecipientKey("Dr. B", "ICU")})
	require.NoError(t, err)

	updated, err := svc.MarkStatus(ctx, call.CallID, "ICU", models.CallStatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	updated, err = svc.MarkStatus(ctx, call.CallID, "ICU", models.CallStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)

	logs, err := svc.History(ctx, services.HistoryFilter{Party: "ICU"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.CallStatusAccepted, logs[0].Status)
	assert.NotNil(t, logs[0].AcceptedAt)
	assert.Nil(t, logs[0].RejectedAt)
}

func TestCallService_Integration_CancelOnlyTouchesPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb := setupTest(t)
	svc := services.NewCallService(tdb.DB)
	ctx := context.Background()

	call, err := svc.Create(ctx, "ER", "", []string{models.RecipientKey("Dr. A", "Cardiology"), models.RecipientKey("Dr. B", "ICU")})
	require.NoError(t, err)
	_, err = svc.MarkStatus(ctx, call.CallID, "ICU", models.CallStatusRejected)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, call.CallID)

	require.NoError(t, err)
	assert.Equal(t, int64(1), cancelled)

	logs, err := svc.History(ctx, services.HistoryFilter{Sender: "ER"})
	require.NoError(t, err)
	statuses := map[string]string{}
	for _, l := range logs {
		statuses[l.ReceiverTeam] = l.Status
	}
	assert.Equal(t, map[string]string{"Cardiology": models.CallStatusCancelled, "ICU": models.CallStatusRejected}, statuses)
}

func TestCallService_Integration_HistoryFilters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb := setupTest(t)
	fixtures := testutil.NewFixtures(tdb.DB)
	svc := services.NewCallService(tdb.DB)
	ctx := context.Background()

	day := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	old := fixtures.CreateCallLog(t, testutil.WithParties("ER", "ICU"), testutil.WithCreatedAt(day.Add(-48*time.Hour)))
	recent := fixtures.CreateCallLog(t, testutil.WithParties("ER", "ICU"), testutil.WithCreatedAt(day), testutil.WithAccepted(day.Add(time.Minute)))
	other := fixtures.CreateCallLog(t, testutil.WithParties("Lab", "Pharmacy"), testutil.WithCreatedAt(day.Add(time.Hour)))

	t.Run("party matches either side", func(t *testing.T) {
		logs, err := svc.History(ctx, services.HistoryFilter{Party: "ICU"})
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, recent.ID, logs[0].ID)
		assert.Equal(t, old.ID, logs[1].ID)
	})

	t.Run("date range", func(t *testing.T) {
		from := day.Add(-time.Hour)
		logs, err := svc.History(ctx, services.HistoryFilter{From: &from})
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, other.ID, logs[0].ID)
		assert.Equal(t, recent.ID, logs[1].ID)
	})

	t.Run("receiver and limit", func(t *testing.T) {
		logs, err := svc.History(ctx, services.HistoryFilter{Receiver: "ICU", Limit: 1})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, recent.ID, logs[0].ID)
		require.NotNil(t, logs[0].AcceptedAt)
	})

	t.Run("no match is empty, not nil", func(t *testing.T) {
		logs, err := svc.History(ctx, services.HistoryFilter{Sender: "nobody"})
		require.NoError(t, err)
		assert.NotNil(t, logs)
		assert.Empty(t, logs)
	})
}

func TestCallService_Integration_ExpirePending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	tdb := setupTest(t)
	fixtures := testutil.NewFixtures(tdb.DB)
	svc := services.NewCallService(tdb.DB)
	ctx := context.Background()

	now := time.Now().UTC()
	stale := fixtures.CreateCallLog(t, testutil.WithCreatedAt(now.Add(-10*time.Minute)))
	fresh := fixtures.CreateCallLog(t, testutil.WithCreatedAt(now))
	fixtures.CreateCallLog(t, testutil.WithCreatedAt(now.Add(-10*time.Minute)), testutil.WithAccepted(now.Add(-9*time.Minute)))

	expired, err := svc.ExpirePending(ctx, now.Add(-5*time.Minute))

	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	logs, err := svc.History(ctx, services.HistoryFilter{})
	require.NoError(t, err)
	for _, l := range logs {
		switch l.ID {
		case stale.ID:
			assert.Equal(t, models.CallStatusTimeout, l.Status)
		case fresh.ID:
			assert.Equal(t, models.CallStatusPending, l.Status)
		default:
			assert.Equal(t, models.CallStatusAccepted, l.Status)
		}
	}
}
