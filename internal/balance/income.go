package balance

import "github.com/shopspring/decimal"

const (
	ScalarTotalIngresos     = "total_ingresos"
	ScalarTotalGastos       = "total_gastos"
	ScalarUtilidadEjercicio = "utilidad_ejercicio"
)

// IncomeLine is the result of one entity, or of the group when Entity is
// empty.
type IncomeLine struct {
	Entity   string          `json:"entity,omitempty"`
	Ingreso  decimal.Decimal `json:"ingreso"`
	Gastos   decimal.Decimal `json:"gastos"`
	Utilidad decimal.Decimal `json:"utilidad"`
}

// IncomeStatement lists per-entity results followed by the group total.
type IncomeStatement struct {
	Entities []IncomeLine `json:"entities"`
	Total    IncomeLine   `json:"total"`
}

// BuildIncomeStatement sums INGRESO and GASTOS per entity from consolidated
// lines. Under the signed ledger revenue already carries a credit (negative)
// balance, so Utilidad = INGRESO + GASTOS and a profit is negative, the same
// sign CAPITAL carries. Under the conventional layout Utilidad = INGRESO -
// GASTOS.
func BuildIncomeStatement(entities []string, lines []ConsolidatedLine, convention Convention) IncomeStatement {
	stmt := IncomeStatement{Entities: make([]IncomeLine, 0, len(entities))}
	total := IncomeLine{Ingreso: decimal.Zero, Gastos: decimal.Zero}
	for _, e := range entities {
		row := IncomeLine{Entity: e, Ingreso: decimal.Zero, Gastos: decimal.Zero}
		for _, l := range lines {
			switch l.Classification {
			case Ingreso:
				row.Ingreso = row.Ingreso.Add(l.Amount(e))
			case Gastos:
				row.Gastos = row.Gastos.Add(l.Amount(e))
			}
		}
		row.Utilidad = netIncome(row.Ingreso, row.Gastos, convention)
		total.Ingreso = total.Ingreso.Add(row.Ingreso)
		total.Gastos = total.Gastos.Add(row.Gastos)
		stmt.Entities = append(stmt.Entities, row)
	}
	total.Utilidad = netIncome(total.Ingreso, total.Gastos, convention)
	stmt.Total = total
	return stmt
}

func netIncome(ingreso, gastos decimal.Decimal, convention Convention) decimal.Decimal {
	if convention == Conventional {
		return ingreso.Sub(gastos)
	}
	return ingreso.Add(gastos)
}

// Scalars publishes the group totals for the adjustment context.
func (s IncomeStatement) Scalars() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		ScalarTotalIngresos:     s.Total.Ingreso,
		ScalarTotalGastos:       s.Total.Gastos,
		ScalarUtilidadEjercicio: s.Total.Utilidad,
	}
}
