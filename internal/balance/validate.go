package balance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Convention selects how the balance residual is computed.
type Convention string

const (
	// SignedLedger expects PASIVO and CAPITAL to carry negative balances, so
	// the residual is ACTIVO + PASIVO + CAPITAL.
	SignedLedger Convention = "signed"
	// Conventional expects positive balances on both sides, so the residual
	// is ACTIVO - (PASIVO + CAPITAL).
	Conventional Convention = "conventional"
)

// ParseConvention accepts "signed" or "conventional".
func ParseConvention(raw string) (Convention, error) {
	switch Convention(strings.ToLower(strings.TrimSpace(raw))) {
	case SignedLedger, "":
		return SignedLedger, nil
	case Conventional:
		return Conventional, nil
	default:
		return "", fmt.Errorf("balance: unknown sign convention %q", raw)
	}
}

// DefaultEpsilon is the currency tolerance for a balanced statement.
var DefaultEpsilon = decimal.NewFromInt(1)

// Status is the balance verdict.
type Status string

const (
	Balanced   Status = "balanced"
	Unbalanced Status = "unbalanced"
)

// StatementTotals are the top-level totals and residual of a statement.
type StatementTotals struct {
	Activo     decimal.Decimal `json:"total_activo"`
	Pasivo     decimal.Decimal `json:"total_pasivo"`
	Capital    decimal.Decimal `json:"total_capital"`
	Difference decimal.Decimal `json:"difference"`
	Convention Convention      `json:"convention"`
	Epsilon    decimal.Decimal `json:"epsilon"`
	Status     Status          `json:"status"`
}

// Balanced reports whether |Difference| < Epsilon.
func (t StatementTotals) Balanced() bool {
	return t.Status == Balanced
}

// Validate sums adjusted totals by classification and computes the residual.
// It never fails; an unbalanced statement is a normal result.
func Validate(lines []AdjustedLine, convention Convention, epsilon decimal.Decimal) StatementTotals {
	activo, pasivo, capital := decimal.Zero, decimal.Zero, decimal.Zero
	for _, l := range lines {
		switch l.Classification {
		case Activo:
			activo = activo.Add(l.AdjustedTotal())
		case Pasivo:
			pasivo = pasivo.Add(l.AdjustedTotal())
		case Capital:
			capital = capital.Add(l.AdjustedTotal())
		}
	}
	return totals(activo, pasivo, capital, convention, epsilon)
}

// ValidateEntity computes the same totals over a single entity's raw
// contributions, ignoring adjustments. The entity's result for the period is
// counted in CAPITAL.
func ValidateEntity(lines []ConsolidatedLine, entity string, convention Convention, epsilon decimal.Decimal) StatementTotals {
	activo, pasivo, capital := decimal.Zero, decimal.Zero, decimal.Zero
	ingreso, gastos := decimal.Zero, decimal.Zero
	for _, l := range lines {
		v := l.Amount(entity)
		switch l.Classification {
		case Activo:
			activo = activo.Add(v)
		case Pasivo:
			pasivo = pasivo.Add(v)
		case Capital:
			capital = capital.Add(v)
		case Ingreso:
			ingreso = ingreso.Add(v)
		case Gastos:
			gastos = gastos.Add(v)
		}
	}
	capital = capital.Add(netIncome(ingreso, gastos, convention))
	return totals(activo, pasivo, capital, convention, epsilon)
}

func totals(activo, pasivo, capital decimal.Decimal, convention Convention, epsilon decimal.Decimal) StatementTotals {
	if convention == "" {
		convention = SignedLedger
	}
	if epsilon.IsZero() || epsilon.IsNegative() {
		epsilon = DefaultEpsilon
	}
	var diff decimal.Decimal
	if convention == Conventional {
		diff = activo.Sub(pasivo.Add(capital))
	} else {
		diff = activo.Add(pasivo).Add(capital)
	}
	status := Unbalanced
	if diff.Abs().LessThan(epsilon) {
		status = Balanced
	}
	return StatementTotals{
		Activo:     activo,
		Pasivo:     pasivo,
		Capital:    capital,
		Difference: diff,
		Convention: convention,
		Epsilon:    epsilon,
		Status:     status,
	}
}
