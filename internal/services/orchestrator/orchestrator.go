// -----------------------------------------------------------------------
// Orchestrator - Drives the durable job queue through the portal workflow
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ticketero/internal/interfaces"
	"github.com/ternarybob/ticketero/internal/models"
	"github.com/ternarybob/ticketero/internal/services/jobstate"
	"github.com/ternarybob/ticketero/internal/services/sheet"
	"github.com/ternarybob/ticketero/internal/services/workflow"
)

// ErrEmptyQueue means the run had nothing to do: every row was either
// already ticketed in the sheet or excluded by the rerun policy.
var ErrEmptyQueue = errors.New("no eligible jobs to process")

// Runner executes the remote form-filling workflow for one job. Satisfied
// by workflow.Workflow; faked in tests.
type Runner interface {
	Run(ctx context.Context, job *models.TicketJob) (workflow.Outcome, error)
}

// Policy controls which non-fresh jobs a run reconsiders.
type Policy struct {
	RetryFailed     bool
	RetryInProgress bool
}

// Summary is what one run produced, keyed for both the caller and the
// audit history.
type Summary struct {
	Created int
	Failed  int
	Skipped int
	Record  *models.RunRecord
}

// Orchestrator processes hydrated jobs one at a time against a single
// portal session. A failure on one job marks that job FAILED and moves on;
// only session setup failures abort the run.
type Orchestrator struct {
	states   *jobstate.Manager
	runner   Runner
	writer   interfaces.SheetWriter
	history  interfaces.RunHistory
	notifier interfaces.StatusNotifier
	policy   Policy
	logger   arbor.ILogger
}

func New(states *jobstate.Manager, runner Runner, writer interfaces.SheetWriter, policy Policy, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		states: states,
		runner: runner,
		writer: writer,
		policy: policy,
		logger: logger,
	}
}

// WithRunner sets the workflow runner. The orchestrator can be built and
// used for hydration and eligibility before the browser session exists;
// the runner must be set before Run.
func (o *Orchestrator) WithRunner(runner Runner) *Orchestrator {
	o.runner = runner
	return o
}

// WithHistory attaches the run audit store.
func (o *Orchestrator) WithHistory(history interfaces.RunHistory) *Orchestrator {
	o.history = history
	return o
}

// WithNotifier attaches the progress callback.
func (o *Orchestrator) WithNotifier(notifier interfaces.StatusNotifier) *Orchestrator {
	o.notifier = notifier
	return o
}

// LoadJobs hydrates every parsed row against the durable store so jobs
// resume with the status a prior run left them in.
func (o *Orchestrator) LoadJobs(jobs []*models.TicketJob) {
	for _, job := range jobs {
		o.states.Hydrate(job)
	}
}

// Run processes every eligible job in row order and returns the run
// summary. Jobs ruled out by the sheet or the rerun policy are counted as
// skipped. ErrEmptyQueue is returned when nothing at all is eligible.
func (o *Orchestrator) Run(ctx context.Context, sheetPath string, jobs []*models.TicketJob) (*Summary, error) {
	startedAt := time.Now()

	eligible := make([]*models.TicketJob, 0, len(jobs))
	skipped := 0
	for _, job := range jobs {
		if o.Eligible(job) {
			eligible = append(eligible, job)
		} else {
			skipped++
			o.logger.Debug().
				Int("row_id", job.RowID).
				Str("status", string(job.Status)).
				Msg("Skipping row")
		}
	}

	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrEmptyQueue, sheetPath)
	}

	o.notify(fmt.Sprintf("Processing %d pending rows from %s", len(eligible), sheetPath))

	created := 0
	failed := 0
	for i, job := range eligible {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled after %d of %d jobs: %w", i, len(eligible), err)
		}

		o.notify(fmt.Sprintf("Row %d (%d/%d): creating ticket", job.Data.SheetRow, i+1, len(eligible)))

		ok, err := o.processJob(ctx, job)
		if err != nil {
			// Storage failures abort the whole run: the state file is what
			// resumability rests on, and running on without it risks
			// duplicate tickets next time.
			return nil, err
		}
		if !ok {
			failed++
			o.notify(fmt.Sprintf("Row %d: FAILED: %s", job.Data.SheetRow, job.Error))
			continue
		}

		created++
		o.notify(fmt.Sprintf("Row %d: created ticket %s", job.Data.SheetRow, job.TicketID))
	}

	summary := &Summary{
		Created: created,
		Failed:  failed,
		Skipped: skipped,
		Record:  o.buildRecord(sheetPath, startedAt, jobs, created, failed, skipped),
	}

	o.saveRecord(ctx, summary.Record)

	o.logger.Info().
		Int("created", created).
		Int("failed", failed).
		Int("skipped", skipped).
		Msg("Run complete")
	return summary, nil
}

// processJob runs the workflow for one job and settles its terminal state.
// The IN_PROGRESS breadcrumb is persisted before the first remote action;
// if that persist fails the job is not attempted at all. Returns whether
// the job ended CREATED; a non-nil error is a storage failure and is fatal
// to the run.
func (o *Orchestrator) processJob(ctx context.Context, job *models.TicketJob) (bool, error) {
	if err := o.states.MarkInProgress(job); err != nil {
		return false, err
	}

	outcome, err := o.runner.Run(ctx, job)
	if err != nil {
		if markErr := o.states.MarkFailed(job, err.Error()); markErr != nil {
			return false, fmt.Errorf("row %d failed and the failure could not be persisted: %w", job.RowID, markErr)
		}
		return false, nil
	}

	job.CreationText = outcome.CreationText
	if err := o.states.MarkCreated(job, outcome.TicketID); err != nil {
		// The ticket exists remotely. Record it in the sheet so the evidence
		// is not lost, then abort: an unpersisted CREATED would be retried as
		// a duplicate next run.
		o.writeBack(job)
		return false, fmt.Errorf("ticket %s created but state persist failed: %w", job.TicketID, err)
	}

	o.writeBack(job)
	return true, nil
}

// writeBack records the outcome in the source sheet. Write-back failures
// never change the job's state: the state file already holds the truth.
func (o *Orchestrator) writeBack(job *models.TicketJob) {
	if o.writer == nil {
		return
	}
	if err := o.writer.WriteTicket(job); err != nil {
		o.logger.Warn().Err(err).Int("row_id", job.RowID).Msg("Could not write ticket id to sheet")
	}
	if err := o.writer.WriteDateTime(job); err != nil {
		o.logger.Warn().Err(err).Int("row_id", job.RowID).Msg("Could not backfill date/time in sheet")
	}
}

// Eligible decides whether a job is picked up this run. The sheet is the
// first authority: a row that already carries a ticket id never reruns,
// whatever the state file says.
func (o *Orchestrator) Eligible(job *models.TicketJob) bool {
	if !sheet.PendingTicketCell(job.Data.Ticket) {
		return false
	}

	switch job.Status {
	case models.JobStatusPending:
		return true
	case models.JobStatusInProgress:
		return o.policy.RetryInProgress
	case models.JobStatusFailed:
		return o.policy.RetryFailed
	default:
		return false
	}
}

func (o *Orchestrator) buildRecord(sheetPath string, startedAt time.Time, jobs []*models.TicketJob, created, failed, skipped int) *models.RunRecord {
	outcomes := make([]models.JobOutcome, 0, len(jobs))
	for _, job := range jobs {
		outcomes = append(outcomes, models.JobOutcome{
			RowID:    job.RowID,
			SheetRow: job.Data.SheetRow,
			Status:   job.Status,
			TicketID: job.TicketID,
			Error:    job.Error,
		})
	}
	return &models.RunRecord{
		ID:         uuid.New().String(),
		SheetPath:  sheetPath,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Created:    created,
		Failed:     failed,
		Skipped:    skipped,
		Outcomes:   outcomes,
	}
}

func (o *Orchestrator) saveRecord(ctx context.Context, record *models.RunRecord) {
	if o.history == nil {
		return
	}
	if err := o.history.SaveRun(ctx, record); err != nil {
		o.logger.Warn().Err(err).Msg("Could not save run to history")
	}
}

// notify delivers a status message, containing any panic from the callback.
// A broken notifier must never take down a run mid-ticket.
func (o *Orchestrator) notify(message string) {
	if o.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn().Str("panic", fmt.Sprint(r)).Msg("Status notifier panicked")
		}
	}()
	o.notifier.OnStatus(message)
}
