package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/esgari/balance360/internal/balance"
)

// Sheet names of the XLSX export, in workbook order.
const (
	SheetPerEntity    = "Por Empresa"
	SheetConsolidated = "Consolidado"
	SheetSummary      = "Resumen"
	SheetUnmapped     = "Sin Mapeo"
	SheetIncome       = "Resultados"
)

// XLSXContentType is the media type of WriteXLSX output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// CurrencyFormat is the number format applied to every amount cell.
const CurrencyFormat = `$#,##0.00`

type xlsxWriter struct {
	f        *excelize.File
	currency int
	bold     int
}

// WriteXLSX renders the statement as a workbook. Amounts are stored as
// numbers with a currency format so the sheet stays computable.
func WriteXLSX(w io.Writer, stmt balance.Statement) error {
	f := excelize.NewFile()
	defer f.Close()

	numFmt := CurrencyFormat
	currency, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("export: currency style: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}
	xw := &xlsxWriter{f: f, currency: currency, bold: bold}

	if err := f.SetSheetName("Sheet1", SheetPerEntity); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}
	for _, name := range []string{SheetConsolidated, SheetSummary, SheetUnmapped, SheetIncome} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("export: add sheet %s: %w", name, err)
		}
	}

	steps := []func(balance.Statement) error{
		xw.perEntity,
		xw.consolidated,
		xw.summary,
		xw.unmapped,
		xw.income,
	}
	for _, step := range steps {
		if err := step(stmt); err != nil {
			return err
		}
	}
	f.SetActiveSheet(1)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}

// row writes values starting at column A; decimal values get the currency
// style.
func (x *xlsxWriter) row(sheet string, r int, values ...interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, r)
		if err != nil {
			return err
		}
		if d, ok := v.(decimal.Decimal); ok {
			if err := x.f.SetCellFloat(sheet, cell, d.Round(2).InexactFloat64(), -1, 64); err != nil {
				return err
			}
			if err := x.f.SetCellStyle(sheet, cell, cell, x.currency); err != nil {
				return err
			}
			continue
		}
		if err := x.f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func (x *xlsxWriter) header(sheet string, r int, values ...interface{}) error {
	if err := x.row(sheet, r, values...); err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, r)
	last, _ := excelize.CoordinatesToCellName(len(values), r)
	if err := x.f.SetCellStyle(sheet, first, last, x.bold); err != nil {
		return err
	}
	return x.f.SetColWidth(sheet, "A", "B", 34)
}

func (x *xlsxWriter) perEntity(stmt balance.Statement) error {
	r := 1
	if err := x.header(SheetPerEntity, r, "Empresa", "Clasificacion", "Categoria", "Saldo"); err != nil {
		return err
	}
	for _, res := range stmt.PerEntity {
		for _, l := range res.Lines {
			r++
			if err := x.row(SheetPerEntity, r, res.Entity, string(l.Classification), l.Category, l.Amount); err != nil {
				return err
			}
		}
	}
	return nil
}

func (x *xlsxWriter) consolidated(stmt balance.Statement) error {
	head := []interface{}{"Clasificacion", "Categoria"}
	for _, e := range stmt.Entities {
		head = append(head, e)
	}
	head = append(head, "Acumulado", "Debe", "Haber", "Manual", "Totales")
	if err := x.header(SheetConsolidated, 1, head...); err != nil {
		return err
	}
	r := 1
	for _, l := range stmt.Lines {
		r++
		values := []interface{}{string(l.Classification), l.Category}
		for _, e := range stmt.Entities {
			values = append(values, l.Amount(e))
		}
		values = append(values, l.Total(), l.Debit, l.Credit, l.Manual, l.AdjustedTotal())
		if err := x.row(SheetConsolidated, r, values...); err != nil {
			return err
		}
	}
	return nil
}

func (x *xlsxWriter) summary(stmt balance.Statement) error {
	t := stmt.Totals
	rows := [][]interface{}{
		{"Total Activo", t.Activo},
		{"Total Pasivo", t.Pasivo},
		{"Total Capital", t.Capital},
		{"Diferencia", t.Difference},
		{"Estado", string(t.Status)},
		{"Convencion", string(t.Convention)},
		{},
		{"Total Inversiones", stmt.Investments.TotalInvestments},
		{"Total Social", stmt.Investments.TotalSocial},
		{"Goodwill", stmt.Investments.Goodwill},
		{},
		{"Cuentas por cobrar no facturadas", stmt.Accruals.TotalPFacturar},
		{"IVA por pagar", stmt.Accruals.IVAPPagar},
		{"Provision de gastos", stmt.Accruals.ProvisionGastos},
		{"IVA por acreditar", stmt.Accruals.IVAPAcreditar},
		{"Fletes no facturados", stmt.Accruals.TotalGPorFacturar},
	}
	if err := x.header(SheetSummary, 1, "Concepto", "Valor"); err != nil {
		return err
	}
	for i, row := range rows {
		if err := x.row(SheetSummary, i+2, row...); err != nil {
			return err
		}
	}
	r := len(rows) + 3
	if err := x.header(SheetSummary, r, "Advertencias"); err != nil {
		return err
	}
	for _, w := range stmt.Warnings {
		r++
		if err := x.row(SheetSummary, r, w.String()); err != nil {
			return err
		}
	}
	return nil
}

func (x *xlsxWriter) unmapped(stmt balance.Statement) error {
	if err := x.header(SheetUnmapped, 1, "Empresa", "Cuenta", "Saldo"); err != nil {
		return err
	}
	for i, u := range stmt.Unmapped {
		if err := x.row(SheetUnmapped, i+2, u.Entity, u.Key.String(), u.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (x *xlsxWriter) income(stmt balance.Statement) error {
	if err := x.header(SheetIncome, 1, "Empresa", "Ingreso", "Gastos", "Utilidad"); err != nil {
		return err
	}
	r := 1
	for _, l := range stmt.Income.Entities {
		r++
		if err := x.row(SheetIncome, r, l.Entity, l.Ingreso, l.Gastos, l.Utilidad); err != nil {
			return err
		}
	}
	r++
	t := stmt.Income.Total
	return x.row(SheetIncome, r, "TOTAL", t.Ingreso, t.Gastos, t.Utilidad)
}
