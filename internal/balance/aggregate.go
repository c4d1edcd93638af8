package balance

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// LineKey identifies a statement line.
type LineKey struct {
	Classification Classification `json:"classification"`
	Category       string         `json:"category"`
}

// ID renders the key as "CLASSIFICATION|CATEGORY", the form used to address
// manual overrides.
func (k LineKey) ID() string {
	return string(k.Classification) + "|" + k.Category
}

// ParseLineID is the inverse of LineKey.ID. Classification is folded; the
// category is normalized the same way mapping categories are.
func ParseLineID(id string) (LineKey, bool) {
	rawClass, rawCat, ok := strings.Cut(id, "|")
	if !ok {
		return LineKey{}, false
	}
	class, ok := ParseClassification(rawClass)
	if !ok {
		return LineKey{}, false
	}
	cat := normalizeCategory(rawCat)
	if cat == "" {
		return LineKey{}, false
	}
	return LineKey{Classification: class, Category: cat}, true
}

func lessLineKey(a, b LineKey) bool {
	if ra, rb := a.Classification.rank(), b.Classification.rank(); ra != rb {
		return ra < rb
	}
	return a.Category < b.Category
}

// EntityLine is one entity's total for one statement line.
type EntityLine struct {
	LineKey
	Entity string          `json:"entity"`
	Amount decimal.Decimal `json:"amount"`
}

// ConsolidatedLine carries one amount per entity. The total is always derived
// from those amounts.
type ConsolidatedLine struct {
	LineKey
	Amounts map[string]decimal.Decimal
}

// Amount returns the entity contribution, zero when the entity had no rows.
func (l ConsolidatedLine) Amount(entity string) decimal.Decimal {
	if v, ok := l.Amounts[entity]; ok {
		return v
	}
	return decimal.Zero
}

// Total sums the per-entity amounts.
func (l ConsolidatedLine) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range l.Amounts {
		total = total.Add(v)
	}
	return total
}

func (l ConsolidatedLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID             string                     `json:"id"`
		Classification Classification             `json:"classification"`
		Category       string                     `json:"category"`
		Amounts        map[string]decimal.Decimal `json:"amounts"`
		Total          decimal.Decimal            `json:"total"`
	}{l.ID(), l.Classification, l.Category, l.Amounts, l.Total()})
}

// AggregateEntity groups classified rows by line and sums them. Decimal
// addition is exact, so the result does not depend on row order.
func AggregateEntity(entity string, rows []ClassifiedRow) []EntityLine {
	sums := make(map[LineKey]decimal.Decimal)
	for _, r := range rows {
		k := LineKey{Classification: r.Classification, Category: r.Category}
		sums[k] = sums[k].Add(r.Amount)
	}
	lines := make([]EntityLine, 0, len(sums))
	for k, v := range sums {
		lines = append(lines, EntityLine{LineKey: k, Entity: entity, Amount: v})
	}
	sort.Slice(lines, func(i, j int) bool { return lessLineKey(lines[i].LineKey, lines[j].LineKey) })
	return lines
}

// Merge full-outer-joins per-entity summaries. Every line observed in any
// entity appears once, with a zero amount for each roster entity that had no
// activity on it.
func Merge(entities []string, perEntity [][]EntityLine) []ConsolidatedLine {
	roster := append([]string(nil), entities...)
	known := make(map[string]bool, len(roster))
	for _, e := range roster {
		known[e] = true
	}
	byKey := make(map[LineKey]map[string]decimal.Decimal)
	for _, lines := range perEntity {
		for _, l := range lines {
			if !known[l.Entity] {
				known[l.Entity] = true
				roster = append(roster, l.Entity)
			}
			amounts, ok := byKey[l.LineKey]
			if !ok {
				amounts = make(map[string]decimal.Decimal)
				byKey[l.LineKey] = amounts
			}
			amounts[l.Entity] = amounts[l.Entity].Add(l.Amount)
		}
	}
	out := make([]ConsolidatedLine, 0, len(byKey))
	for k, amounts := range byKey {
		for _, e := range roster {
			if _, ok := amounts[e]; !ok {
				amounts[e] = decimal.Zero
			}
		}
		out = append(out, ConsolidatedLine{LineKey: k, Amounts: amounts})
	}
	sort.Slice(out, func(i, j int) bool { return lessLineKey(out[i].LineKey, out[j].LineKey) })
	return out
}
