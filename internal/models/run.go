// -----------------------------------------------------------------------
// Run Record - Per-run audit entry kept in the history store
// -----------------------------------------------------------------------

package models

import "time"

// JobOutcome is the audit snapshot of one job at the end of a run.
type JobOutcome struct {
	RowID    int       `json:"row_id"`
	SheetRow int       `json:"sheet_row"`
	Status   JobStatus `json:"status"`
	TicketID string    `json:"ticket_id,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// RunRecord summarizes one orchestrator run. Stored in the history store so
// operators can audit what each run did without digging through log files.
type RunRecord struct {
	ID         string       `json:"id" badgerhold:"key"`
	SheetPath  string       `json:"sheet_path"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Created    int          `json:"created"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Outcomes   []JobOutcome `json:"outcomes"`
}
