package interfaces

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound reports a control absent after its bounded wait.
	ErrNotFound = errors.New("control not found")

	// ErrTimeout reports a control that exists but never became usable
	// within its bound.
	ErrTimeout = errors.New("timed out waiting for control")

	// ErrNotAuthenticated reports that no login was detected within the
	// login bound. Fatal to the run; requires a manual sign-in.
	ErrNotAuthenticated = errors.New("portal authentication not detected")
)

// OptionRef identifies one candidate option of a picker list, carrying the
// attribute text the workflow matches against and an addressable selector
// for the click.
type OptionRef struct {
	Selector string // full path usable with Click
	Attr     string // value of the identifying attribute
	Text     string // visible text, informational
}

// PortalSession is the minimal automation capability the workflow consumes.
// Every operation is bounded: it either completes within the given timeout
// or returns ErrNotFound or ErrTimeout wrapped with the selector involved.
// Implementations own one authenticated
// browser session; the orchestrator passes the session in explicitly so
// tests can substitute a fake.
type PortalSession interface {
	// Start opens the session, restores any saved login state, and blocks
	// until the portal is authenticated and the new-entry control is
	// usable, or the login bound expires.
	Start(ctx context.Context) error
	Close() error

	// WaitReady blocks until the control is both visible and enabled.
	// Present-but-inert controls do not satisfy it.
	WaitReady(ctx context.Context, selector string, timeout time.Duration) error

	Click(ctx context.Context, selector string, timeout time.Duration) error

	// ForceClick dispatches a script click, bypassing hit testing. Last
	// rung of the click ladder when an overlay intercepts the real click.
	ForceClick(ctx context.Context, selector string, timeout time.Duration) error

	Fill(ctx context.Context, selector, text string, timeout time.Duration) error

	ReadText(ctx context.Context, selector string, timeout time.Duration) (string, error)

	// Options enumerates the current matches of selector, reporting the
	// given attribute for each. Used by the filtered pickers.
	Options(ctx context.Context, selector, attr string, timeout time.Duration) ([]OptionRef, error)
}
