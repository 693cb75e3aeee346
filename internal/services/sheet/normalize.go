package sheet

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	isoDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	timePattern    = regexp.MustCompile(`(\d{1,2}):(\d{2})(:\d{2})?`)
)

// NormalizeFecha canonicalizes a date cell to dd/mm/yyyy text. Cells arrive
// as whatever the sheet author typed: "30/12/2025", "30-12-2025",
// "2025-12-30" or a full ISO datetime from a real date cell. Empty or
// unparsable input normalizes to empty, which downstream means "use the
// portal default".
func NormalizeFecha(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "NONE") {
		return ""
	}

	if m := isoDatePattern.FindString(s); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t.Format("02/01/2006")
		}
	}

	s2 := strings.ReplaceAll(s, "-", "/")
	if t, err := time.Parse("2/1/2006", s2); err == nil {
		return t.Format("02/01/2006")
	}

	return ""
}

// NormalizeHora canonicalizes a time cell to HH:MM text. Accepts "15:01",
// "15:01:00", "15:01:00.000" and single-digit hours. Empty or unparsable
// input normalizes to empty.
func NormalizeHora(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "NONE") {
		return ""
	}

	m := timePattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}

	if t, err := time.Parse("15:04", m[1]+":"+m[2]); err == nil {
		return t.Format("15:04")
	}
	return ""
}

// SplitCreationText splits the portal's creation datetime text
// ("dd/mm/yyyy HH:MM") into its date and time parts.
func SplitCreationText(text string) (date, clock string, err error) {
	t, err := time.Parse("02/01/2006 15:04", strings.TrimSpace(text))
	if err != nil {
		return "", "", fmt.Errorf("cannot parse portal creation datetime %q: %w", text, err)
	}
	return t.Format("02/01/2006"), t.Format("15:04"), nil
}

// PendingTicketCell reports whether a ticket cell marks the row as still
// pending: empty or the literal "NONE" in any case.
func PendingTicketCell(raw string) bool {
	s := strings.TrimSpace(raw)
	return s == "" || strings.EqualFold(s, "NONE")
}
