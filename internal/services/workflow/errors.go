package workflow

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyProblem is the precondition failure for a row with no problem
// text. Raised before any remote action.
var ErrEmptyProblem = errors.New("row has no problem text")

// StepError wraps any failure of a named workflow step. Remaining steps are
// skipped; the orchestrator degrades it to the job-level FAILED outcome.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepTimeoutError reports a step that exceeded its bounded wait.
type StepTimeoutError struct {
	Step    string
	Timeout time.Duration
	Err     error
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %s exceeded its %s bound: %v", e.Step, e.Timeout, e.Err)
}

func (e *StepTimeoutError) Unwrap() error { return e.Err }

// NavigationBoundError reports calendar navigation that would need more
// steps than the hard bound allows. The bound keeps a miscomputed target
// from clicking prev/next forever.
type NavigationBoundError struct {
	Current YearMonth
	Target  YearMonth
	Bound   int
}

func (e *NavigationBoundError) Error() string {
	return fmt.Sprintf("calendar navigation from %s to %s exceeds the %d-step bound",
		e.Current, e.Target, e.Bound)
}

// DayCellError reports a day cell absent after month navigation succeeded.
// That is a navigation or data inconsistency, not a timing issue, so it is
// raised fail-fast instead of being retried.
type DayCellError struct {
	Year     int
	Month    time.Month
	Day      int
	Selector string
}

func (e *DayCellError) Error() string {
	return fmt.Sprintf("day cell for %04d-%02d-%02d not present after navigation (selector %s)",
		e.Year, e.Month, e.Day, e.Selector)
}
