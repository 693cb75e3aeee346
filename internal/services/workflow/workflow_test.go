package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ticketero/internal/common"
	"github.com/ternarybob/ticketero/internal/interfaces"
	"github.com/ternarybob/ticketero/internal/models"
)

// fakeSession is a scripted PortalSession. Controls exist unless listed in
// missing; notReady controls exist but never become interactive.
type fakeSession struct {
	texts       map[string]string
	missing     map[string]bool
	notReady    map[string]bool
	failClick   map[string]bool // plain Click fails, ForceClick may still work
	options     map[string][]interfaces.OptionRef
	onClick     map[string]func(s *fakeSession)
	clicks      []string
	forceClicks []string
	fills       map[string]string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		texts:     map[string]string{},
		missing:   map[string]bool{},
		notReady:  map[string]bool{},
		failClick: map[string]bool{},
		options:   map[string][]interfaces.OptionRef{},
		onClick:   map[string]func(s *fakeSession){},
		fills:     map[string]string{},
	}
}

func (s *fakeSession) Start(ctx context.Context) error { return nil }
func (s *fakeSession) Close() error                    { return nil }

func (s *fakeSession) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	if s.missing[selector] {
		return fmt.Errorf("%w: %s", interfaces.ErrNotFound, selector)
	}
	if s.notReady[selector] {
		return fmt.Errorf("%w: %s", interfaces.ErrTimeout, selector)
	}
	return nil
}

func (s *fakeSession) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if s.missing[selector] {
		return fmt.Errorf("%w: %s", interfaces.ErrNotFound, selector)
	}
	if s.failClick[selector] {
		return fmt.Errorf("%w: %s", interfaces.ErrTimeout, selector)
	}
	s.clicks = append(s.clicks, selector)
	if hook := s.onClick[selector]; hook != nil {
		hook(s)
	}
	return nil
}

func (s *fakeSession) ForceClick(ctx context.Context, selector string, timeout time.Duration) error {
	if s.missing[selector] {
		return fmt.Errorf("%w: %s", interfaces.ErrNotFound, selector)
	}
	s.forceClicks = append(s.forceClicks, selector)
	if hook := s.onClick[selector]; hook != nil {
		hook(s)
	}
	return nil
}

func (s *fakeSession) Fill(ctx context.Context, selector, text string, timeout time.Duration) error {
	if s.missing[selector] {
		return fmt.Errorf("%w: %s", interfaces.ErrNotFound, selector)
	}
	s.fills[selector] = text
	return nil
}

func (s *fakeSession) ReadText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	if s.missing[selector] {
		return "", fmt.Errorf("%w: %s", interfaces.ErrNotFound, selector)
	}
	return s.texts[selector], nil
}

func (s *fakeSession) Options(ctx context.Context, selector, attr string, timeout time.Duration) ([]interfaces.OptionRef, error) {
	return s.options[selector], nil
}

func (s *fakeSession) clicked(selector string) bool {
	for _, c := range s.clicks {
		if c == selector {
			return true
		}
	}
	return false
}

func testConfig() Config {
	defaults := common.NewDefaultConfig()
	return Config{
		Selectors:    defaults.Portal.Selectors,
		StepTimeout:  time.Second,
		TypeLabel:    defaults.Run.TypeLabel,
		CategoryPath: defaults.Run.CategoryPath,
		ServicePath:  defaults.Run.ServicePath,
		GroupFilter:  defaults.Run.GroupFilter,
	}
}

func newTestWorkflow(session *fakeSession) *Workflow {
	return New(session, testConfig(), arbor.NewLogger())
}

// monthLabel installs a navigable calendar on the fake session: prev/next
// clicks update the header text.
func installCalendar(s *fakeSession, cfg Config, current YearMonth) {
	sel := cfg.Selectors
	ym := current
	render := func() {
		s.texts[sel.CalendarMonth] = fmt.Sprintf("%02d/%04d", int(ym.Month), ym.Year)
	}
	render()
	s.onClick[sel.CalendarPrev] = func(*fakeSession) { ym = ym.Prev(); render() }
	s.onClick[sel.CalendarNext] = func(*fakeSession) { ym = ym.Next(); render() }
}

// installHappyPortal scripts every control a full run touches.
func installHappyPortal(s *fakeSession, cfg Config) {
	sel := cfg.Selectors
	s.texts[sel.DateLabel] = "15/03/2026 09:05"
	s.texts[sel.ConfirmationID] = "REQ-301"
	installCalendar(s, cfg, YearMonth{Year: 2026, Month: time.March})
	s.options[sel.GroupOption] = []interfaces.OptionRef{
		{Selector: "#groupResults li:nth-child(1)", Attr: "Mesa de SOPORTE norte", Text: "Soporte norte"},
		{Selector: "#groupResults li:nth-child(2)", Attr: "Soporte sur", Text: "Soporte sur"},
	}
}

func TestYearMonthCompareAcrossYearBoundary(t *testing.T) {
	dec := YearMonth{Year: 2025, Month: time.December}
	jan := YearMonth{Year: 2026, Month: time.January}

	assert.Equal(t, -1, dec.Compare(jan))
	assert.Equal(t, 1, jan.Compare(dec))
	assert.Equal(t, 0, jan.Compare(jan))
}

func TestParseMonthLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    YearMonth
		wantErr bool
	}{
		{"marzo 2026", YearMonth{2026, time.March}, false},
		{"Marzo de 2026", YearMonth{2026, time.March}, false},
		{"DICIEMBRE 2025", YearMonth{2025, time.December}, false},
		{"03/2026", YearMonth{2026, time.March}, false},
		{"3 / 2026", YearMonth{2026, time.March}, false},
		{"13/2026", YearMonth{}, true},
		{"", YearMonth{}, true},
		{"whenever", YearMonth{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMonthLabel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNavigateToMonthForwardAcrossYear(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	installCalendar(session, cfg, YearMonth{Year: 2025, Month: time.December})
	w := New(session, cfg, arbor.NewLogger())

	err := w.navigateToMonth(context.Background(), YearMonth{Year: 2026, Month: time.February})
	require.NoError(t, err)

	label, _ := session.ReadText(context.Background(), cfg.Selectors.CalendarMonth, time.Second)
	assert.Equal(t, "02/2026", label)
	assert.Equal(t, 2, len(session.clicks))
}

func TestNavigateToMonthBackward(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	installCalendar(session, cfg, YearMonth{Year: 2026, Month: time.January})
	w := New(session, cfg, arbor.NewLogger())

	err := w.navigateToMonth(context.Background(), YearMonth{Year: 2025, Month: time.November})
	require.NoError(t, err)

	label, _ := session.ReadText(context.Background(), cfg.Selectors.CalendarMonth, time.Second)
	assert.Equal(t, "11/2025", label)
}

func TestNavigateToMonthAlreadyThere(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	installCalendar(session, cfg, YearMonth{Year: 2026, Month: time.March})
	w := New(session, cfg, arbor.NewLogger())

	require.NoError(t, w.navigateToMonth(context.Background(), YearMonth{Year: 2026, Month: time.March}))
	assert.Empty(t, session.clicks)
}

func TestNavigateToMonthRespectsBound(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	installCalendar(session, cfg, YearMonth{Year: 2026, Month: time.January})
	w := New(session, cfg, arbor.NewLogger())

	// 25 months away: one beyond the bound.
	err := w.navigateToMonth(context.Background(), YearMonth{Year: 2028, Month: time.February})
	require.Error(t, err)

	var boundErr *NavigationBoundError
	require.ErrorAs(t, err, &boundErr)
	assert.Equal(t, MaxMonthSteps, boundErr.Bound)
	assert.LessOrEqual(t, len(session.clicks), MaxMonthSteps)
}

func TestNavigateToMonthExactlyAtBound(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	installCalendar(session, cfg, YearMonth{Year: 2026, Month: time.January})
	w := New(session, cfg, arbor.NewLogger())

	// 24 months away: reachable, terminates at the target.
	err := w.navigateToMonth(context.Background(), YearMonth{Year: 2028, Month: time.January})
	require.NoError(t, err)
	assert.Equal(t, MaxMonthSteps, len(session.clicks))
}

func TestMinuteCandidates(t *testing.T) {
	assert.Equal(t, []string{"5", "05"}, minuteCandidates(5))
	assert.Equal(t, []string{"0", "00"}, minuteCandidates(0))
	assert.Equal(t, []string{"15"}, minuteCandidates(15))
}

func TestSetClockFallsBackToPaddedMinute(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	w := New(session, cfg, arbor.NewLogger())

	// Unpadded "5" does not exist in this portal build, padded "05" does.
	unpadded := fmt.Sprintf(cfg.Selectors.MinuteOption, "5")
	session.missing[unpadded] = true

	require.NoError(t, w.setClock(context.Background(), "09:05"))

	assert.True(t, session.clicked(fmt.Sprintf(cfg.Selectors.HourOption, "9")))
	assert.True(t, session.clicked(fmt.Sprintf(cfg.Selectors.MinuteOption, "05")))
}

func TestClickLadderFallsThroughToForceClick(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	w := New(session, cfg, arbor.NewLogger())

	// Control never reports ready and rejects plain clicks: only the
	// script click lands.
	session.notReady[cfg.Selectors.NewEntry] = true
	session.failClick[cfg.Selectors.NewEntry] = true

	require.NoError(t, w.click(context.Background(), cfg.Selectors.NewEntry))
	assert.Equal(t, []string{cfg.Selectors.NewEntry}, session.forceClicks)
	assert.Empty(t, session.clicks)
}

func TestClickLadderReportsLastFailure(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	w := New(session, cfg, arbor.NewLogger())

	session.missing[cfg.Selectors.NewEntry] = true

	err := w.click(context.Background(), cfg.Selectors.NewEntry)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestRunHappyPath(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	installHappyPortal(session, cfg)
	w := New(session, cfg, arbor.NewLogger())

	job := models.NewTicketJob(0, models.RowData{
		SheetRow: 4,
		Fecha:    "15/03/2026",
		Hora:     "09:05",
		Problema: "No enciende el monitor",
	})

	outcome, err := w.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "REQ-301", outcome.TicketID)
	assert.Equal(t, "15/03/2026 09:05", outcome.CreationText)
	assert.Equal(t, StateConfirmed, w.State())

	assert.Equal(t, "No enciende el monitor", session.fills[cfg.Selectors.TitleField])
	assert.Equal(t, "No enciende el monitor", session.fills[cfg.Selectors.DescriptionArea])
	assert.True(t, session.clicked("td[data-date='2026-03-15']"))
	assert.True(t, session.clicked(cfg.Selectors.SubmitButton))

	// First matching option wins, case-insensitive, even with a second match present.
	assert.True(t, session.clicked("#groupResults li:nth-child(1)"))
}

func TestRunTruncatesTitleKeepsDescription(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	installHappyPortal(session, cfg)
	w := New(session, cfg, arbor.NewLogger())

	long := strings.Repeat("ñ", TitleMaxLen+40)
	job := models.NewTicketJob(0, models.RowData{Problema: long})

	_, err := w.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, TitleMaxLen, len([]rune(session.fills[cfg.Selectors.TitleField])))
	assert.Equal(t, long, session.fills[cfg.Selectors.DescriptionArea])
}

func TestRunEmptyProblemFailsBeforeRemoteActions(t *testing.T) {
	session := newFakeSession()
	w := newTestWorkflow(session)

	job := models.NewTicketJob(3, models.RowData{Problema: "   "})

	_, err := w.Run(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyProblem)
	assert.Equal(t, StateAborted, w.State())
	assert.Empty(t, session.clicks)
	assert.Empty(t, session.fills)
}

func TestRunWithoutDateAcceptsPortalDefault(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	installHappyPortal(session, cfg)
	session.texts[cfg.Selectors.DateLabel] = "01/04/2026 11:30"
	w := New(session, cfg, arbor.NewLogger())

	job := models.NewTicketJob(0, models.RowData{Problema: "Proyector sin señal"})

	outcome, err := w.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "01/04/2026 11:30", outcome.CreationText)
	assert.False(t, session.clicked(cfg.Selectors.DateField))
}

func TestRunDayCellMissingFailsFast(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	installHappyPortal(session, cfg)
	session.missing["td[data-date='2026-03-15']"] = true
	w := New(session, cfg, arbor.NewLogger())

	job := models.NewTicketJob(0, models.RowData{
		Fecha:    "15/03/2026",
		Problema: "x",
	})

	_, err := w.Run(context.Background(), job)
	require.Error(t, err)

	var dayErr *DayCellError
	assert.ErrorAs(t, err, &dayErr)
	assert.Equal(t, StateAborted, w.State())
}

func TestRunStepTimeoutIsNamed(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	installHappyPortal(session, cfg)
	// Title field is gone from the form entirely.
	session.missing[cfg.Selectors.TitleField] = true
	w := New(session, cfg, arbor.NewLogger())

	job := models.NewTicketJob(0, models.RowData{Problema: "x"})

	_, err := w.Run(context.Background(), job)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "set-title-description", stepErr.Step)
}

func TestRunEmptyConfirmationIsNotCreated(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	installHappyPortal(session, cfg)
	session.texts[cfg.Selectors.ConfirmationID] = "  "
	w := New(session, cfg, arbor.NewLogger())

	job := models.NewTicketJob(0, models.RowData{Problema: "x"})

	_, err := w.Run(context.Background(), job)
	require.Error(t, err)
	assert.NotEqual(t, StateConfirmed, w.State())
}

func TestFilterSelectZeroMatches(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	session.options[cfg.Selectors.GroupOption] = []interfaces.OptionRef{
		{Selector: "#groupResults li:nth-child(1)", Attr: "Redes"},
	}
	w := New(session, cfg, arbor.NewLogger())

	err := w.filterSelect(context.Background(),
		cfg.Selectors.GroupFilter, cfg.Selectors.GroupOption, cfg.Selectors.GroupOptionAttr, "soporte")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no option matching")
}

func TestTreeSelectionWaitsForEachLevel(t *testing.T) {
	session := newFakeSession()
	cfg := testConfig()
	w := New(session, cfg, arbor.NewLogger())

	// The child node never renders: selection must fail on that node, not
	// blow past it.
	child := cfg.Selectors.CategoryTree + " " + fmt.Sprintf(cfg.Selectors.TreeNode, "Puesto de trabajo")
	session.missing[child] = true

	err := w.selectTreePath(context.Background(), cfg.Selectors.CategoryTree,
		[]string{"Soporte", "Puesto de trabajo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Puesto de trabajo")
	assert.True(t, session.clicked(cfg.Selectors.CategoryTree+" "+fmt.Sprintf(cfg.Selectors.TreeNode, "Soporte")))
}

func TestWrapStepErrorClassifiesTimeout(t *testing.T) {
	w := newTestWorkflow(newFakeSession())

	err := w.wrapStepError("submit", fmt.Errorf("wrapped: %w", interfaces.ErrTimeout))
	var timeoutErr *StepTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "submit", timeoutErr.Step)

	err = w.wrapStepError("submit", errors.New("boom"))
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "submit", stepErr.Step)
}
