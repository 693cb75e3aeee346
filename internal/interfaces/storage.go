package interfaces

import (
	"context"

	"github.com/ternarybob/ticketero/internal/models"
)

// StateRecord is the durable mirror of one job's status, keyed by row id.
type StateRecord struct {
	RowID    int
	Status   models.JobStatus
	TicketID string
	Error    string
}

// StateStore is the durable row_id -> record mapping scoped to one source
// spreadsheet. Put persists synchronously before returning; a crash after a
// successful Put must not lose that write.
type StateStore interface {
	// Get returns the stored record for rowID, or ok=false when none exists.
	Get(rowID int) (StateRecord, bool)

	// Put upserts the record and flushes the whole store to disk. The
	// ticketID and errText values overwrite whatever a previous attempt
	// left behind, including overwriting with empty.
	Put(rowID int, status models.JobStatus, ticketID, errText string) error
}

// RunHistory is the append-only audit log of orchestrator runs.
type RunHistory interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
	Close() error
}

// SheetWriter records run outcomes back into the source spreadsheet.
// WriteTicket stores the created ticket id at the job's originating row;
// WriteDateTime backfills FECHA/HORA only where the sheet left them empty.
type SheetWriter interface {
	WriteTicket(job *models.TicketJob) error
	WriteDateTime(job *models.TicketJob) error
}
