// -----------------------------------------------------------------------
// Calendar Navigation - Month stepping and day selection
// -----------------------------------------------------------------------

package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxMonthSteps bounds calendar navigation to two years in either
// direction. A target further away than that is bad data, not a longer
// walk.
const MaxMonthSteps = 24

// YearMonth is a calendar position. Comparison is lexicographic over
// (year, month): comparing years and months separately misorders pairs
// across year boundaries (2026-01 vs 2025-12).
type YearMonth struct {
	Year  int
	Month time.Month
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Compare returns -1, 0 or 1 for ym against other, ordering by the
// (year, month) tuple.
func (ym YearMonth) Compare(other YearMonth) int {
	if ym.Year != other.Year {
		if ym.Year < other.Year {
			return -1
		}
		return 1
	}
	if ym.Month != other.Month {
		if ym.Month < other.Month {
			return -1
		}
		return 1
	}
	return 0
}

// Next returns the following month.
func (ym YearMonth) Next() YearMonth {
	if ym.Month == time.December {
		return YearMonth{Year: ym.Year + 1, Month: time.January}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}

// Prev returns the preceding month.
func (ym YearMonth) Prev() YearMonth {
	if ym.Month == time.January {
		return YearMonth{Year: ym.Year - 1, Month: time.December}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month - 1}
}

// spanishMonths maps the lower-case month names the portal renders.
var spanishMonths = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"octubre": time.October, "noviembre": time.November, "diciembre": time.December,
}

var numericMonthPattern = regexp.MustCompile(`^(\d{1,2})\s*/\s*(\d{4})$`)

// ParseMonthLabel parses the calendar header text into a YearMonth.
// Handles "marzo 2026", "Marzo de 2026" and the numeric "03/2026" form the
// portal uses in its compact skin.
func ParseMonthLabel(label string) (YearMonth, error) {
	s := strings.ToLower(strings.TrimSpace(label))
	if s == "" {
		return YearMonth{}, fmt.Errorf("empty calendar month label")
	}

	if m := numericMonthPattern.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return YearMonth{}, fmt.Errorf("calendar month label %q has month %d out of range", label, month)
		}
		return YearMonth{Year: year, Month: time.Month(month)}, nil
	}

	fields := strings.Fields(strings.ReplaceAll(s, " de ", " "))
	if len(fields) == 2 {
		if month, ok := spanishMonths[fields[0]]; ok {
			if year, err := strconv.Atoi(fields[1]); err == nil {
				return YearMonth{Year: year, Month: month}, nil
			}
		}
	}

	return YearMonth{}, fmt.Errorf("cannot parse calendar month label %q", label)
}

// navigateToMonth steps the calendar one month at a time until the
// displayed (year, month) equals the target, rereading the header after
// every click so a missed click cannot drift the count.
func (w *Workflow) navigateToMonth(ctx context.Context, target YearMonth) error {
	sel := w.cfg.Selectors

	for steps := 0; ; steps++ {
		label, err := w.session.ReadText(ctx, sel.CalendarMonth, w.cfg.StepTimeout)
		if err != nil {
			return fmt.Errorf("failed to read calendar header: %w", err)
		}

		current, err := ParseMonthLabel(label)
		if err != nil {
			return err
		}

		cmp := current.Compare(target)
		if cmp == 0 {
			return nil
		}
		if steps >= MaxMonthSteps {
			return &NavigationBoundError{Current: current, Target: target, Bound: MaxMonthSteps}
		}

		arrow := sel.CalendarNext
		if cmp > 0 {
			arrow = sel.CalendarPrev
		}
		if err := w.click(ctx, arrow); err != nil {
			return fmt.Errorf("failed to step calendar: %w", err)
		}
	}
}

// selectDay clicks the cell addressed by the deterministic (year, month,
// day) identifier. Absence here means navigation and data disagree; the
// error is distinct so nobody retries it as a timing flake.
func (w *Workflow) selectDay(ctx context.Context, year int, month time.Month, day int) error {
	selector := fmt.Sprintf(w.cfg.Selectors.DayCell, year, int(month), day)

	if err := w.session.WaitReady(ctx, selector, w.cfg.StepTimeout); err != nil {
		return &DayCellError{Year: year, Month: month, Day: day, Selector: selector}
	}
	return w.click(ctx, selector)
}
