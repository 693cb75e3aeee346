package sheet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/xuri/excelize/v2"

	"github.com/ternarybob/ticketero/internal/models"
)

// writeFixture builds a workbook from string rows, starting at worksheet
// row 1, and returns its path.
func writeFixture(t *testing.T, rows [][]string) string {
	t.Helper()

	f := excelize.NewFile()
	sheetName := f.GetSheetName(0)
	for i, row := range rows {
		for j, val := range row {
			if val == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheetName, cell, val))
		}
	}

	path := filepath.Join(t.TempDir(), "tickets.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func oldFormatFixture(t *testing.T) string {
	return writeFixture(t, [][]string{
		{"Planilla de soporte"}, // banner above the headers
		{},
		{"FECHA", "HORA", "PROBLEMA", "SOLUCION", "TKT"},
		{"", "", "No enciende el monitor", "Se cambió el cable", ""},
		{"15/03/2026", "09:05", "Sin acceso a red", "Se reinició el switch", "REQ-1"},
	})
}

func TestLoadOldFormat(t *testing.T) {
	wb, err := Load(oldFormatFixture(t), arbor.NewLogger())
	require.NoError(t, err)

	assert.Equal(t, FormatOld, wb.Format)
	require.Len(t, wb.Jobs, 2)

	job0 := wb.Jobs[0]
	assert.Equal(t, 0, job0.RowID)
	assert.Equal(t, 4, job0.Data.SheetRow)
	assert.Empty(t, job0.Data.Fecha)
	assert.Equal(t, "No enciende el monitor", job0.Data.Problema)
	assert.Equal(t, models.JobStatusPending, job0.Status)

	job1 := wb.Jobs[1]
	assert.Equal(t, 1, job1.RowID)
	assert.Equal(t, "15/03/2026", job1.Data.Fecha)
	assert.Equal(t, "09:05", job1.Data.Hora)
	assert.Equal(t, "REQ-1", job1.Data.Ticket)
}

func TestLoadNewFormatSkipsSubHeader(t *testing.T) {
	path := writeFixture(t, [][]string{
		{"FECHA", "HORA", "PROBLEMA", "SOLUCION", "TICKET", "EDIFICIO"},
		{"(dd/mm)", "(hh:mm)", "", "", "", ""}, // sub-header line
		{"2026-03-15", "9:05", "Proyector sin señal", "Se reconectó HDMI", "", "Rectoría"},
	})

	wb, err := Load(path, arbor.NewLogger())
	require.NoError(t, err)

	assert.Equal(t, FormatNew, wb.Format)
	require.Len(t, wb.Jobs, 1)
	assert.Equal(t, "15/03/2026", wb.Jobs[0].Data.Fecha)
	assert.Equal(t, "09:05", wb.Jobs[0].Data.Hora)
	assert.Equal(t, 3, wb.Jobs[0].Data.SheetRow)
}

func TestPendingJobsFiltersByTicketCell(t *testing.T) {
	path := writeFixture(t, [][]string{
		{"FECHA", "HORA", "PROBLEMA", "SOLUCION", "TKT"},
		{"", "", "a", "", ""},
		{"", "", "b", "", "NONE"},
		{"", "", "c", "", "REQ-2"},
	})

	wb, err := Load(path, arbor.NewLogger())
	require.NoError(t, err)
	require.Len(t, wb.Jobs, 3)

	pending := wb.PendingJobs()
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].Data.Problema)
	assert.Equal(t, "b", pending[1].Data.Problema)
}

func TestLoadMissingColumns(t *testing.T) {
	path := writeFixture(t, [][]string{
		{"FECHA", "HORA", "TKT"},
		{"", "", ""},
	})

	_, err := Load(path, arbor.NewLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "PROBLEMA")
	assert.Contains(t, err.Error(), "SOLUCION")
}

func TestLoadUnknownFormat(t *testing.T) {
	// TICKET without EDIFICIO is neither the old nor the new layout.
	path := writeFixture(t, [][]string{
		{"FECHA", "HORA", "PROBLEMA", "SOLUCION", "TICKET"},
		{"", "", "x", "", ""},
	})

	_, err := Load(path, arbor.NewLogger())
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLoadNoHeaderRow(t *testing.T) {
	path := writeFixture(t, [][]string{
		{"solo", "texto", "suelto"},
	})

	_, err := Load(path, arbor.NewLogger())
	assert.ErrorIs(t, err, ErrNoHeaderRow)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.xlsx"), arbor.NewLogger())
	assert.ErrorIs(t, err, ErrWorkbookNotExists)
}

func TestWriteTicket(t *testing.T) {
	path := oldFormatFixture(t)
	wb, err := Load(path, arbor.NewLogger())
	require.NoError(t, err)

	job := wb.Jobs[0]
	job.TicketID = "REQ-500"
	require.NoError(t, wb.WriteTicket(job))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetCellValue(wb.SheetName, "E4")
	require.NoError(t, err)
	assert.Equal(t, "REQ-500", got)

	// Neighboring cells untouched.
	prob, err := f.GetCellValue(wb.SheetName, "C4")
	require.NoError(t, err)
	assert.Equal(t, "No enciende el monitor", prob)
}

func TestWriteDateTimeOnlyFillsEmptyCells(t *testing.T) {
	path := writeFixture(t, [][]string{
		{"FECHA", "HORA", "PROBLEMA", "SOLUCION", "TKT"},
		{"", "14:30", "Teclado dañado", "", ""},
	})
	wb, err := Load(path, arbor.NewLogger())
	require.NoError(t, err)

	job := wb.Jobs[0]
	job.CreationText = "20/03/2026 10:15"
	require.NoError(t, wb.WriteDateTime(job))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	fecha, err := f.GetCellValue(wb.SheetName, "A2")
	require.NoError(t, err)
	assert.Equal(t, "20/03/2026", fecha)

	// HORA was authored in the sheet and must be preserved.
	hora, err := f.GetCellValue(wb.SheetName, "B2")
	require.NoError(t, err)
	assert.Equal(t, "14:30", hora)
}

func TestWriteDateTimeNoCreationTextIsNoop(t *testing.T) {
	wb, err := Load(oldFormatFixture(t), arbor.NewLogger())
	require.NoError(t, err)

	job := wb.Jobs[0]
	job.CreationText = ""
	assert.NoError(t, wb.WriteDateTime(job))
}
