// Package export renders consolidated statements as CSV and XLSX.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/esgari/balance360/internal/balance"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	// comments bypass the csv writer, so anything it buffered goes first
	s.csv.Flush()
	line = strings.TrimRight(line, "\r\n") + "\r\n"
	_, err := s.buf.WriteString(line)
	return err
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}

// WriteCSV streams the adjusted consolidated statement: metadata comments,
// one row per line with per-entity columns, then the statement totals.
func WriteCSV(w io.Writer, stmt balance.Statement) error {
	streamer := newCSVStreamer(w)
	if err := writeMetadata(streamer, "Balance General Consolidado", stmt); err != nil {
		return err
	}
	header := append([]string{"Clasificacion", "Categoria"}, stmt.Entities...)
	header = append(header, "Acumulado", "Debe", "Haber", "Manual", "Totales")
	if err := streamer.writeRow(header); err != nil {
		return err
	}
	for _, line := range stmt.Lines {
		row := []string{string(line.Classification), line.Category}
		for _, e := range stmt.Entities {
			row = append(row, formatDecimal(line.Amount(e)))
		}
		row = append(row,
			formatDecimal(line.Total()),
			formatDecimal(line.Debit),
			formatDecimal(line.Credit),
			formatDecimal(line.Manual),
			formatDecimal(line.AdjustedTotal()),
		)
		if err := streamer.writeRow(row); err != nil {
			return err
		}
	}
	if err := streamer.writeRow([]string{""}); err != nil {
		return err
	}
	for _, row := range totalsRows(stmt.Totals) {
		if err := streamer.writeRow(row); err != nil {
			return err
		}
	}
	return streamer.Close()
}

func totalsRows(t balance.StatementTotals) [][]string {
	return [][]string{
		{"Totales", "Activo", formatDecimal(t.Activo)},
		{"Totales", "Pasivo", formatDecimal(t.Pasivo)},
		{"Totales", "Capital", formatDecimal(t.Capital)},
		{"Totales", "Diferencia", formatDecimal(t.Difference)},
		{"Totales", "Estado", string(t.Status)},
	}
}

func writeMetadata(streamer *csvStreamer, reportName string, stmt balance.Statement) error {
	if err := streamer.writeComment(fmt.Sprintf("# Report: %s", reportName)); err != nil {
		return err
	}
	entities := "none"
	if len(stmt.Entities) > 0 {
		entities = strings.Join(stmt.Entities, ",")
	}
	if err := streamer.writeComment(fmt.Sprintf("# Run: %s | Built: %s | Convention: %s | Entities: %s",
		stmt.RunID, stmt.BuiltAt.UTC().Format("2006-01-02T15:04:05Z"), stmt.Totals.Convention, entities)); err != nil {
		return err
	}
	if len(stmt.Warnings) == 0 {
		return streamer.writeComment("# Warnings: none")
	}
	joined := make([]string, len(stmt.Warnings))
	for i, w := range stmt.Warnings {
		joined[i] = strings.TrimSpace(w.String())
	}
	return streamer.writeComment("# Warnings: " + strings.Join(joined, "; "))
}

func formatDecimal(v decimal.Decimal) string {
	return v.StringFixed(2)
}
