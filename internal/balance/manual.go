package balance

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/esgari/balance360/internal/workbook"
)

// ManualSheet describes how one sheet of the manual workbook yields scalars.
// Mode "pairs" reads concept/value rows; mode "column_sum" sums one column
// into Key.
type ManualSheet struct {
	Sheet         string   `mapstructure:"sheet" json:"sheet" validate:"required"`
	Mode          string   `mapstructure:"mode" json:"mode" validate:"required,oneof=pairs column_sum"`
	Key           string   `mapstructure:"key" json:"key,omitempty" validate:"required_if=Mode column_sum"`
	ColumnAliases []string `mapstructure:"columns" json:"columns,omitempty" validate:"required_if=Mode column_sum"`
}

// ScalarKey turns a concept label into a context key:
// "Reconocimiento de Impuestos" becomes "reconocimiento_de_impuestos".
func ScalarKey(raw string) string {
	f := strings.ToLower(Fold(raw))
	var b strings.Builder
	lastUnderscore := true
	for _, r := range f {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// LoadScalars reads a concept/value sheet. The first occurrence of a concept
// wins; unreadable values count as zero.
func LoadScalars(sheet workbook.Sheet) (map[string]decimal.Decimal, error) {
	keyCol, keyOK := ResolveColumn(sheet.Header, ConceptColumnAliases)
	valCol, valOK := ResolveColumn(sheet.Header, ValueColumnAliases)
	var missing []string
	if !keyOK {
		missing = append(missing, ConceptColumnAliases[0])
	}
	if !valOK {
		missing = append(missing, ValueColumnAliases[0])
	}
	if len(missing) > 0 {
		return nil, &ConfigurationError{Source: "manual:" + sheet.Name, Missing: missing}
	}
	out := make(map[string]decimal.Decimal)
	for _, row := range sheet.Rows {
		key := ScalarKey(sheet.Cell(row, keyCol))
		if key == "" {
			continue
		}
		if _, dup := out[key]; dup {
			continue
		}
		v, ok := ParseCurrency(sheet.Cell(row, valCol))
		if !ok {
			v = decimal.Zero
		}
		out[key] = v
	}
	return out, nil
}

// SumColumn sums the first column matching aliases.
func SumColumn(sheet workbook.Sheet, aliases []string) (decimal.Decimal, error) {
	col, ok := ResolveColumn(sheet.Header, aliases)
	if !ok {
		col = containsColumn(sheet.Header, aliases)
	}
	if col < 0 {
		missing := "column"
		if len(aliases) > 0 {
			missing = aliases[0]
		}
		return decimal.Zero, &ConfigurationError{Source: "manual:" + sheet.Name, Missing: []string{missing}}
	}
	total := decimal.Zero
	for _, row := range sheet.Rows {
		if v, ok := ParseCurrency(sheet.Cell(row, col)); ok {
			total = total.Add(v)
		}
	}
	return total, nil
}

// containsColumn falls back to headers that contain an alias, which pivot
// exports produce ("Suma de ACCOUNTED_CR").
func containsColumn(header []string, aliases []string) int {
	for _, alias := range aliases {
		want := Fold(alias)
		if want == "" {
			continue
		}
		for i, h := range header {
			if strings.Contains(Fold(h), want) {
				return i
			}
		}
	}
	return -1
}

// LoadManualScalars applies every sheet definition to the manual workbook. Missing
// sheets or columns are reported as configuration warnings; the affected
// scalars are simply absent.
func LoadManualScalars(wb *workbook.Workbook, sheets []ManualSheet) (map[string]decimal.Decimal, []Warning) {
	out := make(map[string]decimal.Decimal)
	var warnings []Warning
	for _, ms := range sheets {
		sheet, err := wb.Sheet(ms.Sheet)
		if err != nil {
			warnings = append(warnings, newWarning(ConfigurationWarning, "", "manual: %v", err))
			continue
		}
		switch ms.Mode {
		case "column_sum":
			v, err := SumColumn(sheet, ms.ColumnAliases)
			if err != nil {
				warnings = append(warnings, newWarning(ConfigurationWarning, "", "%v", err))
				continue
			}
			if _, dup := out[ms.Key]; !dup {
				out[ms.Key] = v
			}
		default:
			values, err := LoadScalars(sheet)
			if err != nil {
				warnings = append(warnings, newWarning(ConfigurationWarning, "", "%v", err))
				continue
			}
			for k, v := range values {
				if _, dup := out[k]; !dup {
					out[k] = v
				}
			}
		}
	}
	return out, warnings
}
