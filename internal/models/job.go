// -----------------------------------------------------------------------
// Ticket Job - One spreadsheet row's ticket-creation task
// -----------------------------------------------------------------------

package models

// JobStatus represents the state of a ticket job
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCreated    JobStatus = "CREATED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether the status records a finished attempt.
// FAILED is terminal for a run but resumable across runs: a later run
// reconsiders FAILED rows under the rerun retry policy.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCreated || s == JobStatusFailed
}

// RowData is the normalized field set of one spreadsheet row. The shape is
// fixed on purpose: missing fields are empty strings, never absent keys.
type RowData struct {
	// SheetRow is the 1-based worksheet row this record came from, used as
	// the write-back locator. Distinct from the job's RowID, which is the
	// position in the parsed data-row sequence.
	SheetRow int `json:"sheet_row"`

	Fecha    string `json:"fecha"`    // dd/mm/yyyy, empty = use the portal default
	Hora     string `json:"hora"`     // HH:MM, empty = use the portal default
	Problema string `json:"problema"` // required before any remote action
	Solucion string `json:"solucion"`
	Ticket   string `json:"ticket"` // non-empty = already registered in the sheet
}

// TicketJob is one unit of work per spreadsheet row. Data is immutable once
// loaded; Status, TicketID and Error are mutated only by the state manager.
type TicketJob struct {
	RowID  int       `json:"row_id"`
	Data   RowData   `json:"data"`
	Status JobStatus `json:"status"`

	// TicketID is set exactly once, on transition to CREATED.
	TicketID string `json:"ticket_id,omitempty"`

	// Error is set only on transition to FAILED.
	Error string `json:"error,omitempty"`

	// CreationText is the creation datetime the portal reported for the
	// entry ("dd/mm/yyyy HH:MM"). Used to backfill FECHA/HORA cells the
	// sheet left empty.
	CreationText string `json:"creation_text,omitempty"`
}

// NewTicketJob creates a fresh PENDING job for one row
func NewTicketJob(rowID int, data RowData) *TicketJob {
	return &TicketJob{
		RowID:  rowID,
		Data:   data,
		Status: JobStatusPending,
	}
}
