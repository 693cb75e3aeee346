package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/ticketero/internal/interfaces"
	"github.com/ternarybob/ticketero/internal/models"
)

// RunStorage is the badger-backed audit log of orchestrator runs.
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.RunHistory = (*RunStorage)(nil)

// NewRunStorage creates run history storage over the given connection
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) *RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRun appends one run record. Records are never rewritten.
func (s *RunStorage) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run record requires an id")
	}

	if err := s.db.Store().Insert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	s.logger.Debug().
		Str("run_id", run.ID).
		Int("created", run.Created).
		Int("failed", run.Failed).
		Msg("Run saved to history")
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (s *RunStorage) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.RunRecord
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}
	return runs, nil
}

// Close closes the underlying connection.
func (s *RunStorage) Close() error {
	return s.db.Close()
}
