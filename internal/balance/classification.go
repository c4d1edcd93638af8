package balance

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Classification is the top-level statement bucket of a mapped account.
type Classification string

const (
	Activo  Classification = "ACTIVO"
	Pasivo  Classification = "PASIVO"
	Capital Classification = "CAPITAL"
	Ingreso Classification = "INGRESO"
	Gastos  Classification = "GASTOS"
)

var classificationOrder = map[Classification]int{
	Activo:  0,
	Pasivo:  1,
	Capital: 2,
	Ingreso: 3,
	Gastos:  4,
}

var classificationAliases = map[string]Classification{
	"ACTIVO":   Activo,
	"ACTIVOS":  Activo,
	"PASIVO":   Pasivo,
	"PASIVOS":  Pasivo,
	"CAPITAL":  Capital,
	"INGRESO":  Ingreso,
	"INGRESOS": Ingreso,
	"GASTO":    Gastos,
	"GASTOS":   Gastos,
}

// ParseClassification folds case and accents before matching. Unknown values
// are rejected.
func ParseClassification(raw string) (Classification, bool) {
	c, ok := classificationAliases[Fold(raw)]
	return c, ok
}

// Valid reports whether c belongs to the closed set.
func (c Classification) Valid() bool {
	_, ok := classificationOrder[c]
	return ok
}

// IsBalanceSheet reports whether c takes part in the accounting equation.
func (c Classification) IsBalanceSheet() bool {
	return c == Activo || c == Pasivo || c == Capital
}

func (c Classification) rank() int {
	if r, ok := classificationOrder[c]; ok {
		return r
	}
	return len(classificationOrder)
}

// Classifications lists the closed set in statement order.
func Classifications() []Classification {
	return []Classification{Activo, Pasivo, Capital, Ingreso, Gastos}
}

// Fold upper-cases s, strips diacritics and collapses whitespace. It is the
// comparison form used for column headers, classifications and rule patterns.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(strings.Join(strings.Fields(out), " "))
}
