// -----------------------------------------------------------------------
// Sheet Writer - Records run outcomes back into the source workbook
// -----------------------------------------------------------------------

package sheet

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/ticketero/internal/interfaces"
	"github.com/ternarybob/ticketero/internal/models"
)

var _ interfaces.SheetWriter = (*Workbook)(nil)

// WriteTicket stores the created ticket id into the ticket column at the
// job's originating worksheet row. The workbook is reopened and saved per
// write so a crash between jobs loses at most the current cell, and
// unrelated cells and formatting are untouched.
func (w *Workbook) WriteTicket(job *models.TicketJob) error {
	if job.TicketID == "" {
		return fmt.Errorf("job %d has no ticket id to write", job.RowID)
	}

	return w.updateCell("TICKET", job.Data.SheetRow, job.TicketID, false)
}

// WriteDateTime backfills FECHA and HORA from the portal-reported creation
// datetime, only where the sheet cell is still empty. Rows that already
// carry a date or time keep what the author wrote.
func (w *Workbook) WriteDateTime(job *models.TicketJob) error {
	if job.CreationText == "" {
		return nil
	}

	date, clock, err := SplitCreationText(job.CreationText)
	if err != nil {
		return err
	}

	if err := w.updateCell("FECHA", job.Data.SheetRow, date, true); err != nil {
		return err
	}
	return w.updateCell("HORA", job.Data.SheetRow, clock, true)
}

// updateCell writes value at (header column, sheet row). With onlyIfEmpty,
// a cell that already holds anything other than blank/NONE is left alone.
func (w *Workbook) updateCell(header string, sheetRow int, value string, onlyIfEmpty bool) error {
	col, ok := w.columns[header]
	if !ok {
		return fmt.Errorf("workbook has no %s column", header)
	}

	cell, err := excelize.CoordinatesToCellName(col+1, sheetRow)
	if err != nil {
		return fmt.Errorf("invalid cell coordinates for %s row %d: %w", header, sheetRow, err)
	}

	f, err := excelize.OpenFile(w.Path)
	if err != nil {
		return fmt.Errorf("failed to reopen workbook for write-back: %w", err)
	}
	defer f.Close()

	if onlyIfEmpty {
		current, err := f.GetCellValue(w.SheetName, cell)
		if err != nil {
			return fmt.Errorf("failed to read cell %s: %w", cell, err)
		}
		if !PendingTicketCell(current) {
			return nil
		}
	}

	if err := f.SetCellValue(w.SheetName, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	w.logger.Debug().
		Str("cell", cell).
		Str("value", value).
		Msg("Workbook cell updated")
	return nil
}
