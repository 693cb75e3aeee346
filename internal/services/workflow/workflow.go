// -----------------------------------------------------------------------
// Form-Filling Workflow - Drives the portal through one ticket creation
// -----------------------------------------------------------------------

package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ticketero/internal/common"
	"github.com/ternarybob/ticketero/internal/interfaces"
	"github.com/ternarybob/ticketero/internal/models"
)

// StepState is the logical progression of one job attempt.
type StepState string

const (
	StateNotStarted          StepState = "NOT_STARTED"
	StateEntryOpened         StepState = "ENTRY_OPENED"
	StateDateTimeSet         StepState = "DATETIME_SET"
	StateTitleDescriptionSet StepState = "TITLE_DESCRIPTION_SET"
	StateTypeSelected        StepState = "TYPE_SELECTED"
	StateCategorySelected    StepState = "CATEGORY_SELECTED"
	StateServiceSelected     StepState = "SERVICE_SELECTED"
	StateResponsibleGroupSet StepState = "RESPONSIBLE_GROUP_SET"
	StateSubmitted           StepState = "SUBMITTED"
	StateConfirmed           StepState = "CONFIRMED"
	StateAborted             StepState = "ABORTED"
)

// TitleMaxLen is the portal's title field limit. The title is the problem
// text truncated here; the description carries the untruncated text.
const TitleMaxLen = 256

// Config carries the selector set, timing bounds and ticket classification
// defaults the workflow fills into every entry.
type Config struct {
	Selectors    common.SelectorsConfig
	StepTimeout  time.Duration
	TypeLabel    string
	CategoryPath []string
	ServicePath  []string
	GroupFilter  string
}

// Outcome is what a confirmed entry yields: the ticket id the portal
// assigned and the creation datetime text it displayed.
type Outcome struct {
	TicketID     string
	CreationText string
}

// Workflow executes the form-filling sequence for one job at a time against
// a shared portal session. The session is passed in by the owner; the
// workflow holds no hidden global state.
type Workflow struct {
	session interfaces.PortalSession
	cfg     Config
	logger  arbor.ILogger
	state   StepState
}

// New creates a workflow bound to a session
func New(session interfaces.PortalSession, cfg Config, logger arbor.ILogger) *Workflow {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 15 * time.Second
	}
	return &Workflow{
		session: session,
		cfg:     cfg,
		logger:  logger,
		state:   StateNotStarted,
	}
}

// State returns the last step state reached, for observability.
func (w *Workflow) State() StepState {
	return w.state
}

type step struct {
	name  string
	state StepState
	fn    func(ctx context.Context, job *models.TicketJob) error
}

// Run drives one job through the whole sequence. Any step failure aborts
// the remaining steps; the job is only CONFIRMED once a confirmation id was
// actually read from the portal.
func (w *Workflow) Run(ctx context.Context, job *models.TicketJob) (Outcome, error) {
	w.state = StateNotStarted

	// Hard precondition, checked before any remote action.
	if strings.TrimSpace(job.Data.Problema) == "" {
		w.state = StateAborted
		return Outcome{}, fmt.Errorf("row %d: %w", job.RowID, ErrEmptyProblem)
	}

	outcome := Outcome{}

	steps := []step{
		{"open-entry", StateEntryOpened, w.openEntry},
		{"set-datetime", StateDateTimeSet, func(ctx context.Context, job *models.TicketJob) error {
			text, err := w.setDateTime(ctx, job)
			if err != nil {
				return err
			}
			outcome.CreationText = text
			return nil
		}},
		{"set-title-description", StateTitleDescriptionSet, w.setTitleDescription},
		{"select-type", StateTypeSelected, w.selectType},
		{"select-category", StateCategorySelected, w.selectCategory},
		{"select-service", StateServiceSelected, w.selectService},
		{"set-responsible-group", StateResponsibleGroupSet, w.setResponsibleGroup},
		{"submit", StateSubmitted, w.submit},
		{"read-confirmation", StateConfirmed, func(ctx context.Context, job *models.TicketJob) error {
			id, err := w.readConfirmation(ctx)
			if err != nil {
				return err
			}
			outcome.TicketID = id
			return nil
		}},
	}

	for _, s := range steps {
		w.logger.Debug().
			Int("row_id", job.RowID).
			Str("step", s.name).
			Msg("Workflow step starting")

		if err := s.fn(ctx, job); err != nil {
			w.state = StateAborted
			return Outcome{}, w.wrapStepError(s.name, err)
		}
		w.state = s.state
	}

	w.logger.Info().
		Int("row_id", job.RowID).
		Str("ticket_id", outcome.TicketID).
		Msg("Entry confirmed")
	return outcome, nil
}

// wrapStepError names the failing step. Bounded-wait overruns become
// StepTimeoutError; everything else a plain StepError.
func (w *Workflow) wrapStepError(name string, err error) error {
	if errors.Is(err, interfaces.ErrTimeout) {
		return &StepTimeoutError{Step: name, Timeout: w.cfg.StepTimeout, Err: err}
	}
	return &StepError{Step: name, Err: err}
}

func (w *Workflow) openEntry(ctx context.Context, _ *models.TicketJob) error {
	return w.click(ctx, w.cfg.Selectors.NewEntry)
}

// setDateTime resolves the entry's creation datetime. A row without a date
// accepts the portal default verbatim; a dated row opens the calendar,
// walks to the month, picks the day, and sets the clock when the row also
// carries a time.
func (w *Workflow) setDateTime(ctx context.Context, job *models.TicketJob) (string, error) {
	sel := w.cfg.Selectors

	if job.Data.Fecha == "" {
		// No date on the row: the portal default stands, report it back.
		text, err := w.session.ReadText(ctx, sel.DateLabel, w.cfg.StepTimeout)
		if err != nil {
			return "", fmt.Errorf("failed to read default creation datetime: %w", err)
		}
		w.logger.Debug().Str("datetime", text).Msg("Using portal default creation datetime")
		return strings.TrimSpace(text), nil
	}

	target, err := time.Parse("02/01/2006", job.Data.Fecha)
	if err != nil {
		return "", fmt.Errorf("malformed date %q: %w", job.Data.Fecha, err)
	}

	if err := w.click(ctx, sel.DateField); err != nil {
		return "", fmt.Errorf("failed to open calendar: %w", err)
	}

	if err := w.navigateToMonth(ctx, YearMonth{Year: target.Year(), Month: target.Month()}); err != nil {
		return "", err
	}

	if err := w.selectDay(ctx, target.Year(), target.Month(), target.Day()); err != nil {
		return "", err
	}

	if job.Data.Hora != "" {
		if err := w.setClock(ctx, job.Data.Hora); err != nil {
			return "", err
		}
	}

	// Verify what the portal actually latched before advancing.
	text, err := w.session.ReadText(ctx, sel.DateLabel, w.cfg.StepTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to verify creation datetime: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (w *Workflow) setTitleDescription(ctx context.Context, job *models.TicketJob) error {
	sel := w.cfg.Selectors

	title := job.Data.Problema
	if runes := []rune(title); len(runes) > TitleMaxLen {
		title = string(runes[:TitleMaxLen])
	}

	if err := w.session.Fill(ctx, sel.TitleField, title, w.cfg.StepTimeout); err != nil {
		return fmt.Errorf("failed to fill title: %w", err)
	}
	if err := w.session.Fill(ctx, sel.DescriptionArea, job.Data.Problema, w.cfg.StepTimeout); err != nil {
		return fmt.Errorf("failed to fill description: %w", err)
	}
	return nil
}

func (w *Workflow) selectType(ctx context.Context, _ *models.TicketJob) error {
	return w.selectTreePath(ctx, w.cfg.Selectors.TypeTree, []string{w.cfg.TypeLabel})
}

func (w *Workflow) selectCategory(ctx context.Context, _ *models.TicketJob) error {
	return w.selectTreePath(ctx, w.cfg.Selectors.CategoryTree, w.cfg.CategoryPath)
}

func (w *Workflow) selectService(ctx context.Context, _ *models.TicketJob) error {
	return w.selectTreePath(ctx, w.cfg.Selectors.ServiceTree, w.cfg.ServicePath)
}

func (w *Workflow) setResponsibleGroup(ctx context.Context, _ *models.TicketJob) error {
	sel := w.cfg.Selectors
	return w.filterSelect(ctx, sel.GroupFilter, sel.GroupOption, sel.GroupOptionAttr, w.cfg.GroupFilter)
}

func (w *Workflow) submit(ctx context.Context, _ *models.TicketJob) error {
	return w.click(ctx, w.cfg.Selectors.SubmitButton)
}

// readConfirmation reads the id the portal assigned. No id, no ticket: the
// entry is not considered created without it.
func (w *Workflow) readConfirmation(ctx context.Context) (string, error) {
	text, err := w.session.ReadText(ctx, w.cfg.Selectors.ConfirmationID, w.cfg.StepTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation id: %w", err)
	}
	id := strings.TrimSpace(text)
	if id == "" {
		return "", fmt.Errorf("confirmation control rendered empty")
	}
	return id, nil
}
