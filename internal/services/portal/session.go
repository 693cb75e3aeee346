// -----------------------------------------------------------------------
// Portal Session - ChromeDP-backed automation primitives
// -----------------------------------------------------------------------

package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ticketero/internal/common"
	"github.com/ternarybob/ticketero/internal/interfaces"
)

// Session is the single authenticated browser session shared by every job
// in a run. The portal is stateful per session, so jobs must never overlap;
// the orchestrator serializes access.
type Session struct {
	cfg    common.PortalConfig
	logger arbor.ILogger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	started       bool
}

var _ interfaces.PortalSession = (*Session)(nil)

// NewSession creates an unstarted session
func NewSession(cfg common.PortalConfig, logger arbor.ILogger) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 15 * time.Second
	}
	return &Session{
		cfg:    cfg,
		logger: logger,
	}
}

// Start launches the browser, restores any saved login state, navigates to
// the portal and blocks until authentication is detected or the login
// bound expires. On first login the user completes the sign-in (including
// MFA) in the opened window; the cookie snapshot saved afterwards lets
// subsequent runs skip that.
func (s *Session) Start(ctx context.Context) error {
	if s.started {
		return fmt.Errorf("portal session already started")
	}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel

	// Startup probe, same as spinning up any pool instance.
	probeCtx, probeCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		s.Close()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	restored, err := s.restoreCookies()
	if err != nil {
		// A stale snapshot is recoverable: fall through to manual login.
		s.logger.Warn().Err(err).Msg("Could not restore saved session, manual login required")
	} else if restored {
		s.logger.Info().Str("file", s.cfg.SessionFile).Msg("Restored saved portal session")
	}

	navCtx, navCancel := context.WithTimeout(browserCtx, 60*time.Second)
	defer navCancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(s.cfg.URL)); err != nil {
		s.Close()
		return fmt.Errorf("failed to open portal %s: %w", s.cfg.URL, err)
	}

	if err := s.waitForLogin(); err != nil {
		s.Close()
		return err
	}

	if err := s.snapshotCookies(); err != nil {
		// Not fatal: the run works, the next one just logs in again.
		s.logger.Warn().Err(err).Msg("Could not save session snapshot")
	}

	s.started = true
	s.logger.Info().Msg("Portal session ready")
	return nil
}

// waitForLogin polls for the new-entry control until it is usable or the
// login bound expires. The control only renders once the portal considers
// the user authenticated, so its presence is the login signal.
func (s *Session) waitForLogin() error {
	s.logger.Info().
		Dur("timeout", s.cfg.LoginTimeout).
		Msg("Waiting for portal login (sign in manually if prompted)")

	deadline := time.Now().Add(s.cfg.LoginTimeout)
	for time.Now().Before(deadline) {
		probeCtx, cancel := context.WithTimeout(s.browserCtx, 2*time.Second)
		err := chromedp.Run(probeCtx,
			chromedp.WaitVisible(s.cfg.Selectors.NewEntry, chromedp.BySearch),
			chromedp.WaitEnabled(s.cfg.Selectors.NewEntry, chromedp.BySearch),
		)
		cancel()
		if err == nil {
			s.logger.Info().Msg("Portal login detected")
			return nil
		}

		time.Sleep(s.cfg.PollInterval)
	}

	return fmt.Errorf("%w within %s: sign in manually (including MFA) and make sure the page with the new-entry control loads, then run again",
		interfaces.ErrNotAuthenticated, s.cfg.LoginTimeout)
}

// Close shuts the browser down.
func (s *Session) Close() error {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.started = false
	return nil
}

// WaitReady blocks until the control is both visible and enabled. A node
// that exists but stays inert past the bound is a timeout, not a not-found.
func (s *Session) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := s.bounded(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(selector, chromedp.BySearch),
		chromedp.WaitEnabled(selector, chromedp.BySearch),
	)
	return s.classify(err, selector)
}

// Click waits for visibility and clicks through CDP input events.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := s.bounded(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(selector, chromedp.BySearch),
		chromedp.Click(selector, chromedp.BySearch),
	)
	return s.classify(err, selector)
}

// ForceClick dispatches a script click, bypassing hit testing. Used when an
// overlay swallows the synthetic mouse event but the control is live.
func (s *Session) ForceClick(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := s.bounded(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx, chromedp.Evaluate(forceClickScript(selector), nil))
	return s.classify(err, selector)
}

// Fill sets the control's value directly. SetValue also fires the change
// events the portal listens for, without the latency of keystroke replay.
func (s *Session) Fill(ctx context.Context, selector, text string, timeout time.Duration) error {
	runCtx, cancel := s.bounded(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(selector, chromedp.BySearch),
		chromedp.SetValue(selector, text, chromedp.BySearch),
	)
	return s.classify(err, selector)
}

// ReadText returns the control's visible text.
func (s *Session) ReadText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	runCtx, cancel := s.bounded(ctx, timeout)
	defer cancel()

	var text string
	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(selector, chromedp.BySearch),
		chromedp.Text(selector, &text, chromedp.BySearch),
	)
	if err != nil {
		return "", s.classify(err, selector)
	}
	return text, nil
}

// Options enumerates the current matches of selector with the given
// attribute. Zero matches is a valid answer, not an error: the pickers
// decide what an empty result set means.
func (s *Session) Options(ctx context.Context, selector, attr string, timeout time.Duration) ([]interfaces.OptionRef, error) {
	runCtx, cancel := s.bounded(ctx, timeout)
	defer cancel()

	var nodes []*cdp.Node
	err := chromedp.Run(runCtx,
		chromedp.Nodes(selector, &nodes, chromedp.BySearch, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, s.classify(err, selector)
	}

	options := make([]interfaces.OptionRef, 0, len(nodes))
	for _, node := range nodes {
		options = append(options, interfaces.OptionRef{
			Selector: node.FullXPath(),
			Attr:     node.AttributeValue(attr),
			Text:     node.NodeValue,
		})
	}
	return options, nil
}

// bounded derives the per-operation context from the browser context while
// honoring cancellation from the caller's context.
func (s *Session) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = s.cfg.StepTimeout
	}

	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// classify translates chromedp failures into the typed errors the workflow
// keys on. A deadline with zero matching nodes means the control is absent;
// with nodes present it means the control never became usable.
func (s *Session) classify(err error, selector string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		probeCtx, cancel := context.WithTimeout(s.browserCtx, 2*time.Second)
		defer cancel()

		var nodes []*cdp.Node
		probeErr := chromedp.Run(probeCtx,
			chromedp.Nodes(selector, &nodes, chromedp.BySearch, chromedp.AtLeast(0)),
		)
		if probeErr == nil && len(nodes) == 0 {
			return fmt.Errorf("%w: %s", interfaces.ErrNotFound, selector)
		}
		return fmt.Errorf("%w: %s", interfaces.ErrTimeout, selector)
	}
	return fmt.Errorf("portal operation on %s failed: %w", selector, err)
}
