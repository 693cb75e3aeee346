package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ticketero/internal/common"
	"github.com/ternarybob/ticketero/internal/models"
)

func newTestStorage(t *testing.T) *RunStorage {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "history"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRunStorage(db, logger)
}

func testRun(id string, startedAt time.Time) *models.RunRecord {
	return &models.RunRecord{
		ID:        id,
		SheetPath: "soporte.xlsx",
		StartedAt: startedAt,
		Created:   2,
		Failed:    1,
		Outcomes: []models.JobOutcome{
			{RowID: 0, SheetRow: 3, Status: models.JobStatusCreated, TicketID: "REQ-1"},
		},
	}
}

func TestSaveAndListRuns(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	require.NoError(t, storage.SaveRun(ctx, testRun("run-1", base)))
	require.NoError(t, storage.SaveRun(ctx, testRun("run-2", base.Add(time.Hour))))
	require.NoError(t, storage.SaveRun(ctx, testRun("run-3", base.Add(2*time.Hour))))

	runs, err := storage.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID, "newest run first")
	assert.Equal(t, "run-2", runs[1].ID)
}

func TestRecentRunsEmptyHistory(t *testing.T) {
	storage := newTestStorage(t)

	runs, err := storage.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSaveRunRequiresID(t *testing.T) {
	storage := newTestStorage(t)

	err := storage.SaveRun(context.Background(), &models.RunRecord{})
	assert.Error(t, err)
}

func TestRunOutcomesSurviveRoundTrip(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveRun(ctx, testRun("run-1", time.Now())))

	runs, err := storage.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Len(t, runs[0].Outcomes, 1)
	assert.Equal(t, "REQ-1", runs[0].Outcomes[0].TicketID)
	assert.Equal(t, models.JobStatusCreated, runs[0].Outcomes[0].Status)
}
