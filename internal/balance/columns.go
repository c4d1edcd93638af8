package balance

// Ordered header aliases. The first alias found in a header wins, so more
// specific names come first.
var (
	AccountColumnAliases        = []string{"Cuenta", "Descripción", "Código", "Clave"}
	AmountColumnAliases         = []string{"Saldo Final", "Saldo", "Importe", "Monto", "Total"}
	ClassificationColumnAliases = []string{"CLASIFICACION", "Clasificación"}
	CategoryColumnAliases       = []string{"CATEGORIA", "Categoría"}
	ConceptColumnAliases        = []string{"CONCEPTO", "INTEREMPRESA", "Clave"}
	ValueColumnAliases          = []string{"VALOR", "TOTALES", "Saldo Final", "Importe", "Monto"}
)

// ResolveColumn returns the index of the header matching the earliest alias.
// Matching folds case, accents and surrounding whitespace.
func ResolveColumn(header []string, aliases []string) (int, bool) {
	folded := make([]string, len(header))
	for i, h := range header {
		folded[i] = Fold(h)
	}
	for _, alias := range aliases {
		want := Fold(alias)
		if want == "" {
			continue
		}
		for i, h := range folded {
			if h == want {
				return i, true
			}
		}
	}
	return -1, false
}
