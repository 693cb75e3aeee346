// -----------------------------------------------------------------------
// Pickers - Hierarchical trees and filtered single-result selection
// -----------------------------------------------------------------------

package workflow

import (
	"context"
	"fmt"
	"strings"
)

// selectTreePath expands ancestor nodes by exact label match until the leaf
// becomes clickable, then clicks it. Every expansion waits for the child
// label to render; fixed sleeps cannot substitute because the portal builds
// tree levels lazily.
func (w *Workflow) selectTreePath(ctx context.Context, treeSelector string, path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("empty tree path")
	}

	if err := w.session.WaitReady(ctx, treeSelector, w.cfg.StepTimeout); err != nil {
		return fmt.Errorf("tree %s not usable: %w", treeSelector, err)
	}

	for i, label := range path {
		nodeSelector := treeSelector + " " + fmt.Sprintf(w.cfg.Selectors.TreeNode, label)

		if err := w.session.WaitReady(ctx, nodeSelector, w.cfg.StepTimeout); err != nil {
			return fmt.Errorf("tree node %q did not render: %w", label, err)
		}
		if err := w.click(ctx, nodeSelector); err != nil {
			return fmt.Errorf("failed to select tree node %q: %w", label, err)
		}

		w.logger.Debug().
			Str("tree", treeSelector).
			Str("node", label).
			Bool("leaf", i == len(path)-1).
			Msg("Tree node selected")
	}

	return nil
}

// filterSelect types filter into the search box and clicks the first
// resulting option whose identifying attribute contains the filter text,
// case-insensitive. Multiple matches are not disambiguated: first match
// wins, mirroring how operators have always used these pickers. Zero
// matches is an error.
func (w *Workflow) filterSelect(ctx context.Context, boxSelector, optionSelector, attr, filter string) error {
	if err := w.session.WaitReady(ctx, boxSelector, w.cfg.StepTimeout); err != nil {
		return fmt.Errorf("filter box %s not usable: %w", boxSelector, err)
	}
	if err := w.session.Fill(ctx, boxSelector, filter, w.cfg.StepTimeout); err != nil {
		return fmt.Errorf("failed to type filter %q: %w", filter, err)
	}

	options, err := w.session.Options(ctx, optionSelector, attr, w.cfg.StepTimeout)
	if err != nil {
		return fmt.Errorf("failed to list options for filter %q: %w", filter, err)
	}

	needle := strings.ToLower(filter)
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt.Attr), needle) {
			if err := w.click(ctx, opt.Selector); err != nil {
				return fmt.Errorf("failed to click option %q: %w", opt.Attr, err)
			}
			return nil
		}
	}

	return fmt.Errorf("no option matching filter %q among %d results", filter, len(options))
}
