// -----------------------------------------------------------------------
// Sheet Loader - Workbook parsing, header detection, job construction
// -----------------------------------------------------------------------

package sheet

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/ticketero/internal/models"
)

// Format identifies which header layout the workbook uses.
type Format string

const (
	// FormatOld sheets carry the legacy "TKT" ticket column.
	FormatOld Format = "OLD"
	// FormatNew sheets carry "TICKET" plus the building column and one
	// extra sub-header row under the headers.
	FormatNew Format = "NEW"
)

// RequiredColumns must all be present (case-insensitive) besides the ticket
// alias for a workbook to be loadable.
var RequiredColumns = []string{"FECHA", "HORA", "PROBLEMA", "SOLUCION"}

// TicketAliases are the accepted ticket-identifier headers, probed in order.
var TicketAliases = []string{"TKT", "TICKET"}

var (
	ErrNoHeaderRow       = errors.New("could not detect the header row")
	ErrUnknownFormat     = errors.New("unrecognized sheet format")
	ErrWorkbookEmpty     = errors.New("workbook contains no data")
	ErrMissingColumns    = errors.New("required columns missing")
	ErrNoTicketColumn    = errors.New("no ticket column found (TKT or TICKET)")
	ErrWorkbookNotExists = errors.New("workbook file does not exist")
)

// Workbook is a parsed spreadsheet: the job list plus enough layout
// information to write results back into the right cells.
type Workbook struct {
	Path      string
	SheetName string
	Format    Format
	Jobs      []*models.TicketJob

	// columns maps canonical upper-case header -> 0-based cell index in
	// the header row. The ticket alias is registered under "TICKET".
	columns map[string]int

	logger arbor.ILogger
}

// Load parses the workbook at path into jobs, one per data row in stable
// order. Layout errors (missing file, no headers, missing columns) are
// precondition failures raised before any job processing can begin.
func Load(path string, logger arbor.ILogger) (*Workbook, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkbookNotExists, path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrWorkbookEmpty, path)
	}

	headerIdx, err := detectHeaderRow(rows)
	if err != nil {
		return nil, err
	}

	columns := mapHeaders(rows[headerIdx])

	format, err := detectFormat(columns)
	if err != nil {
		return nil, err
	}

	ticketHeader, err := validateColumns(columns)
	if err != nil {
		return nil, err
	}
	// Canonical name for lookups regardless of which alias the sheet uses.
	columns["TICKET"] = columns[ticketHeader]

	wb := &Workbook{
		Path:      path,
		SheetName: sheetName,
		Format:    format,
		columns:   columns,
		logger:    logger,
	}

	dataStart := headerIdx + 1
	if format == FormatNew {
		// NEW sheets repeat a sub-header line under the headers.
		dataStart++
	}

	rowID := 0
	for i := dataStart; i < len(rows); i++ {
		if emptyRow(rows[i]) {
			continue
		}

		data := models.RowData{
			SheetRow: i + 1, // worksheet rows are 1-based
			Fecha:    NormalizeFecha(wb.cell(rows[i], "FECHA")),
			Hora:     NormalizeHora(wb.cell(rows[i], "HORA")),
			Problema: strings.TrimSpace(wb.cell(rows[i], "PROBLEMA")),
			Solucion: strings.TrimSpace(wb.cell(rows[i], "SOLUCION")),
			Ticket:   strings.TrimSpace(wb.cell(rows[i], "TICKET")),
		}

		wb.Jobs = append(wb.Jobs, models.NewTicketJob(rowID, data))
		rowID++
	}

	logger.Info().
		Str("path", path).
		Str("format", string(format)).
		Int("jobs", len(wb.Jobs)).
		Msg("Workbook loaded")

	return wb, nil
}

// PendingJobs returns the jobs whose ticket cell marks them as not yet
// registered in the sheet.
func (w *Workbook) PendingJobs() []*models.TicketJob {
	var pending []*models.TicketJob
	for _, job := range w.Jobs {
		if PendingTicketCell(job.Data.Ticket) {
			pending = append(pending, job)
		}
	}
	return pending
}

// cell returns the raw cell text under the canonical header for a row, or
// empty when the row is shorter than the header position.
func (w *Workbook) cell(row []string, header string) string {
	idx, ok := w.columns[header]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// detectHeaderRow finds the first row containing both FECHA and HORA.
// Sheets in the field often carry title banners above the real headers.
func detectHeaderRow(rows [][]string) (int, error) {
	for i, row := range rows {
		seen := map[string]bool{}
		for _, c := range row {
			seen[strings.ToUpper(strings.TrimSpace(c))] = true
		}
		if seen["FECHA"] && seen["HORA"] {
			return i, nil
		}
	}
	return 0, ErrNoHeaderRow
}

// mapHeaders maps clean upper-case header names to their cell index. Blank
// and "NONE" cells are not headers.
func mapHeaders(row []string) map[string]int {
	columns := make(map[string]int)
	for i, c := range row {
		h := strings.ToUpper(strings.TrimSpace(c))
		if h == "" || h == "NONE" {
			continue
		}
		if _, dup := columns[h]; !dup {
			columns[h] = i
		}
	}
	return columns
}

func detectFormat(columns map[string]int) (Format, error) {
	_, hasTKT := columns["TKT"]
	_, hasTicket := columns["TICKET"]
	_, hasEdificio := columns["EDIFICIO"]

	if hasTKT && !hasTicket {
		return FormatOld, nil
	}
	if hasTicket && hasEdificio {
		return FormatNew, nil
	}
	return "", ErrUnknownFormat
}

func validateColumns(columns map[string]int) (string, error) {
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	for _, alias := range TicketAliases {
		if _, ok := columns[alias]; ok {
			return alias, nil
		}
	}
	return "", ErrNoTicketColumn
}

func emptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
