package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// minuteCandidates returns the textual forms a minute value may take in the
// portal's popup: unpadded first ("5"), zero-padded second ("05"). Which
// form renders depends on the portal build, so both are tried in order.
func minuteCandidates(minute int) []string {
	unpadded := strconv.Itoa(minute)
	padded := fmt.Sprintf("%02d", minute)
	if unpadded == padded {
		return []string{unpadded}
	}
	return []string{unpadded, padded}
}

// setClock drives the two independent hour and minute sub-popups.
func (w *Workflow) setClock(ctx context.Context, hora string) error {
	parts := strings.SplitN(hora, ":", 2)
	if len(parts) != 2 {
		return fmt.Errorf("malformed time %q", hora)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return fmt.Errorf("malformed hour in %q: %w", hora, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("malformed minute in %q: %w", hora, err)
	}

	sel := w.cfg.Selectors

	if err := w.click(ctx, sel.HourPopup); err != nil {
		return fmt.Errorf("failed to open hour popup: %w", err)
	}
	hourOption := fmt.Sprintf(sel.HourOption, strconv.Itoa(hour))
	if err := w.click(ctx, hourOption); err != nil {
		return fmt.Errorf("failed to select hour %d: %w", hour, err)
	}

	if err := w.click(ctx, sel.MinutePopup); err != nil {
		return fmt.Errorf("failed to open minute popup: %w", err)
	}

	var lastErr error
	for _, candidate := range minuteCandidates(minute) {
		minuteOption := fmt.Sprintf(sel.MinuteOption, candidate)
		if err := w.click(ctx, minuteOption); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("failed to select minute %d: %w", minute, lastErr)
}
