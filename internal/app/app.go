// -----------------------------------------------------------------------
// App - Component wiring and run orchestration
// -----------------------------------------------------------------------

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ticketero/internal/common"
	"github.com/ternarybob/ticketero/internal/interfaces"
	"github.com/ternarybob/ticketero/internal/models"
	"github.com/ternarybob/ticketero/internal/services/jobstate"
	"github.com/ternarybob/ticketero/internal/services/orchestrator"
	"github.com/ternarybob/ticketero/internal/services/portal"
	"github.com/ternarybob/ticketero/internal/services/scheduler"
	"github.com/ternarybob/ticketero/internal/services/sheet"
	"github.com/ternarybob/ticketero/internal/services/workflow"
	"github.com/ternarybob/ticketero/internal/storage/badger"
	"github.com/ternarybob/ticketero/internal/storage/state"
)

// App holds all application components and dependencies
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	History interfaces.RunHistory

	notifier interfaces.StatusNotifier
}

// NewApp wires the long-lived components. Per-run components (workbook,
// state store, browser session) are built fresh for each run because both
// the sheet and the portal can change between runs.
func NewApp(config *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize run history: %w", err)
	}

	return &App{
		Config:  config,
		Logger:  logger,
		History: badger.NewRunStorage(db, logger),
	}, nil
}

// WithNotifier sets the progress callback for subsequent runs.
func (a *App) WithNotifier(notifier interfaces.StatusNotifier) *App {
	a.notifier = notifier
	return a
}

// RunOnce processes one spreadsheet end to end: parse, hydrate, open the
// portal session, run the queue, write results back.
func (a *App) RunOnce(ctx context.Context, sheetPath string) (*orchestrator.Summary, error) {
	workbook, err := sheet.Load(sheetPath, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load spreadsheet: %w", err)
	}

	store, err := state.Open(a.Config.Storage.StateDir, sheetPath, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open resume state: %w", err)
	}

	states := jobstate.NewManager(store, a.Logger)
	orch := orchestrator.New(states, nil, workbook, orchestrator.Policy{
		RetryFailed:     a.Config.Run.RetryFailed,
		RetryInProgress: a.Config.Run.RetryInProgress,
	}, a.Logger).WithHistory(a.History)
	if a.notifier != nil {
		orch = orch.WithNotifier(a.notifier)
	}

	orch.LoadJobs(workbook.Jobs)

	// Decide before paying for a browser launch and a login wait.
	if !a.hasEligibleWork(orch, workbook.Jobs) {
		return nil, fmt.Errorf("%w in %s", orchestrator.ErrEmptyQueue, sheetPath)
	}

	session := portal.NewSession(a.Config.Portal, a.Logger)
	if err := session.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to open portal session: %w", err)
	}
	defer session.Close()

	runner := workflow.New(session, workflow.Config{
		Selectors:    a.Config.Portal.Selectors,
		StepTimeout:  a.Config.Portal.StepTimeout,
		TypeLabel:    a.Config.Run.TypeLabel,
		CategoryPath: a.Config.Run.CategoryPath,
		ServicePath:  a.Config.Run.ServicePath,
		GroupFilter:  a.Config.Run.GroupFilter,
	}, a.Logger)

	return orch.WithRunner(runner).Run(ctx, sheetPath, workbook.Jobs)
}

// Watch runs on the configured cron schedule until ctx is cancelled.
// An empty queue on a tick is routine, not an error worth aborting for.
func (a *App) Watch(ctx context.Context, sheetPath string) error {
	sched := scheduler.NewScheduler(func() error {
		_, err := a.RunOnce(ctx, sheetPath)
		if errors.Is(err, orchestrator.ErrEmptyQueue) {
			a.Logger.Info().Str("sheet", sheetPath).Msg("No pending rows this tick")
			return nil
		}
		return err
	}, a.Logger)

	if err := sched.Start(a.Config.Run.Schedule); err != nil {
		return err
	}

	<-ctx.Done()
	sched.Stop()
	return nil
}

// RecentRuns returns the latest run audit records, newest first.
func (a *App) RecentRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	return a.History.RecentRuns(ctx, limit)
}

// Close releases long-lived resources.
func (a *App) Close() error {
	if a.History != nil {
		return a.History.Close()
	}
	return nil
}

func (a *App) hasEligibleWork(orch *orchestrator.Orchestrator, jobs []*models.TicketJob) bool {
	for _, job := range jobs {
		if orch.Eligible(job) {
			return true
		}
	}
	return false
}
