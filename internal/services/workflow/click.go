package workflow

import (
	"context"
	"fmt"
)

// clickStrategy is one rung of the click ladder. The ladder is an ordered
// list rather than nested error handlers so the retry order is declarative
// and testable.
type clickStrategy struct {
	name string
	fn   func(ctx context.Context, selector string) error
}

// clickLadder builds the ordered strategies: wait for the control to be
// interactive then click; a bare click for controls that report busy while
// still accepting input; finally a script click for when an overlay
// intercepts hit testing.
func (w *Workflow) clickLadder() []clickStrategy {
	return []clickStrategy{
		{
			name: "ready-click",
			fn: func(ctx context.Context, selector string) error {
				if err := w.session.WaitReady(ctx, selector, w.cfg.StepTimeout); err != nil {
					return err
				}
				return w.session.Click(ctx, selector, w.cfg.StepTimeout)
			},
		},
		{
			name: "plain-click",
			fn: func(ctx context.Context, selector string) error {
				return w.session.Click(ctx, selector, w.cfg.StepTimeout)
			},
		},
		{
			name: "force-click",
			fn: func(ctx context.Context, selector string) error {
				return w.session.ForceClick(ctx, selector, w.cfg.StepTimeout)
			},
		},
	}
}

// click runs the ladder in order and returns the last failure if no rung
// succeeds.
func (w *Workflow) click(ctx context.Context, selector string) error {
	var lastErr error
	for _, strategy := range w.clickLadder() {
		if err := strategy.fn(ctx, selector); err != nil {
			lastErr = err
			w.logger.Debug().
				Str("selector", selector).
				Str("strategy", strategy.name).
				Err(err).
				Msg("Click strategy failed, trying next")
			continue
		}
		return nil
	}
	return fmt.Errorf("all click strategies failed for %s: %w", selector, lastErr)
}
