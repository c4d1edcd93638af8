// Package workbook reads spreadsheet sources into header/row tables.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrSheetNotFound is returned when a named sheet is absent from a workbook.
var ErrSheetNotFound = errors.New("workbook: sheet not found")

// Sheet is one worksheet: the first non-blank row is the header, every later
// non-blank row is data.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Cell returns the value at col, or "" when the row is shorter.
func (s Sheet) Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// Workbook holds every parsed sheet in workbook order.
type Workbook struct {
	Sheets []Sheet
}

// Parse reads an xlsx document. Cells are read raw so numeric account codes
// are not rendered through the cell's display format.
func Parse(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("workbook: open: %w", err)
	}
	defer f.Close()

	wb := &Workbook{}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("workbook: read sheet %s: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, buildSheet(name, rows))
	}
	return wb, nil
}

func buildSheet(name string, rows [][]string) Sheet {
	sheet := Sheet{Name: name}
	headerFound := false
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if !headerFound {
			sheet.Header = trimAll(row)
			headerFound = true
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}

// Sheet looks a sheet up by name, ignoring case and surrounding whitespace.
func (w *Workbook) Sheet(name string) (Sheet, error) {
	if w == nil {
		return Sheet{}, fmt.Errorf("%w: %s", ErrSheetNotFound, name)
	}
	want := strings.TrimSpace(name)
	for _, s := range w.Sheets {
		if strings.EqualFold(strings.TrimSpace(s.Name), want) {
			return s, nil
		}
	}
	return Sheet{}, fmt.Errorf("%w: %s", ErrSheetNotFound, name)
}

// SheetNames lists sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	if w == nil {
		return nil
	}
	names := make([]string, len(w.Sheets))
	for i, s := range w.Sheets {
		names[i] = s.Name
	}
	return names
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = strings.TrimSpace(cell)
	}
	return out
}
