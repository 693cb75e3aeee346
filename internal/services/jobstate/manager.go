// -----------------------------------------------------------------------
// Job State Manager - Sole authority for job status transitions
// -----------------------------------------------------------------------

package jobstate

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ticketero/internal/interfaces"
	"github.com/ternarybob/ticketero/internal/models"
)

// Manager mediates between in-memory jobs and the persistent store. Nothing
// else writes status transitions; the orchestrator and workflow only read.
type Manager struct {
	store  interfaces.StateStore
	logger arbor.ILogger
}

// NewManager creates a manager over the given store
func NewManager(store interfaces.StateStore, logger arbor.ILogger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
	}
}

// Hydrate overwrites the job's status, ticket id and error with whatever a
// prior run persisted for its row. A job without a stored record keeps its
// fresh PENDING state.
func (m *Manager) Hydrate(job *models.TicketJob) {
	rec, ok := m.store.Get(job.RowID)
	if !ok {
		return
	}

	job.Status = rec.Status
	job.TicketID = rec.TicketID
	job.Error = rec.Error

	m.logger.Debug().
		Int("row_id", job.RowID).
		Str("status", string(job.Status)).
		Msg("Hydrated job from stored state")
}

// MarkInProgress persists the IN_PROGRESS breadcrumb before any remote
// action happens. If the process dies mid-workflow, the next run can tell
// "started, outcome unknown" apart from "never started". Stale ticket id or
// error text from a previous attempt is cleared here.
func (m *Manager) MarkInProgress(job *models.TicketJob) error {
	job.Status = models.JobStatusInProgress
	job.TicketID = ""
	job.Error = ""

	if err := m.store.Put(job.RowID, job.Status, "", ""); err != nil {
		return fmt.Errorf("failed to persist IN_PROGRESS for row %d: %w", job.RowID, err)
	}

	m.logger.Info().Int("row_id", job.RowID).Msg("Job in progress")
	return nil
}

// MarkCreated records the ticket id the portal confirmed and persists the
// terminal CREATED state.
func (m *Manager) MarkCreated(job *models.TicketJob, ticketID string) error {
	job.Status = models.JobStatusCreated
	job.TicketID = ticketID
	job.Error = ""

	if err := m.store.Put(job.RowID, job.Status, ticketID, ""); err != nil {
		return fmt.Errorf("failed to persist CREATED for row %d: %w", job.RowID, err)
	}

	m.logger.Info().
		Int("row_id", job.RowID).
		Str("ticket_id", ticketID).
		Msg("Job created")
	return nil
}

// MarkFailed records the failure text and persists the FAILED state. FAILED
// is terminal for this run; the rerun policy decides whether a later run
// reconsiders the row.
func (m *Manager) MarkFailed(job *models.TicketJob, errText string) error {
	job.Status = models.JobStatusFailed
	job.TicketID = ""
	job.Error = errText

	if err := m.store.Put(job.RowID, job.Status, "", errText); err != nil {
		return fmt.Errorf("failed to persist FAILED for row %d: %w", job.RowID, err)
	}

	m.logger.Warn().
		Int("row_id", job.RowID).
		Str("error", errText).
		Msg("Job failed")
	return nil
}
