package balance

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Field is the adjustment column a rule writes to.
type Field string

const (
	Debit  Field = "debit"
	Credit Field = "credit"
)

// SourceKind selects where a rule reads its amount from.
type SourceKind string

const (
	// SourceLineTotal reads the consolidated total of the line being adjusted.
	SourceLineTotal SourceKind = "line_total"
	// SourceContext reads a named scalar from the adjustment context.
	SourceContext SourceKind = "context"
	// SourcePatternSum sums the consolidated totals of every line matching a
	// second pattern.
	SourcePatternSum SourceKind = "pattern_sum"
)

// Source is one term of a rule amount. A zero Factor counts as 1.
type Source struct {
	Kind           SourceKind     `mapstructure:"kind" json:"kind" validate:"required,oneof=line_total context pattern_sum"`
	Key            string         `mapstructure:"key" json:"key,omitempty" validate:"required_if=Kind context"`
	Pattern        string         `mapstructure:"pattern" json:"pattern,omitempty" validate:"required_if=Kind pattern_sum"`
	Classification Classification `mapstructure:"classification" json:"classification,omitempty" validate:"omitempty,oneof=ACTIVO PASIVO CAPITAL INGRESO GASTOS"`
	Factor         float64        `mapstructure:"factor" json:"factor,omitempty"`
}

// Rule is a named adjusting entry. Pattern is matched case- and
// accent-insensitively against the category; "|" separates alternatives.
// Lower Priority wins when several rules target the same field of a line.
type Rule struct {
	Name           string         `mapstructure:"name" json:"name" validate:"required"`
	Priority       int            `mapstructure:"priority" json:"priority"`
	Pattern        string         `mapstructure:"pattern" json:"pattern" validate:"required"`
	Classification Classification `mapstructure:"classification" json:"classification,omitempty" validate:"omitempty,oneof=ACTIVO PASIVO CAPITAL INGRESO GASTOS"`
	Field          Field          `mapstructure:"field" json:"field" validate:"required,oneof=debit credit"`
	Sources        []Source       `mapstructure:"sources" json:"sources" validate:"required,min=1,dive"`
}

// SyntheticLine is a statement line that exists only through its entry, such
// as consolidated goodwill. Pattern rules never touch it.
type SyntheticLine struct {
	Classification Classification `mapstructure:"classification" json:"classification" validate:"required,oneof=ACTIVO PASIVO CAPITAL INGRESO GASTOS"`
	Category       string         `mapstructure:"category" json:"category" validate:"required"`
	Field          Field          `mapstructure:"field" json:"field" validate:"required,oneof=debit credit"`
	Sources        []Source       `mapstructure:"sources" json:"sources" validate:"required,min=1,dive"`
}

// Key returns the statement line the synthetic entry produces.
func (s SyntheticLine) Key() LineKey {
	return LineKey{Classification: s.Classification, Category: normalizeCategory(s.Category)}
}

// AdjustmentContext carries the scalars rules may read and the manual
// overrides keyed by line ID.
type AdjustmentContext struct {
	Scalars   map[string]decimal.Decimal
	Overrides map[string]decimal.Decimal
}

// Scalar returns a context value, zero when absent.
func (c AdjustmentContext) Scalar(key string) decimal.Decimal {
	if v, ok := c.Scalars[key]; ok {
		return v
	}
	return decimal.Zero
}

// AdjustedLine is a consolidated line with its adjusting entries.
type AdjustedLine struct {
	ConsolidatedLine
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	Manual     decimal.Decimal
	DebitRule  string
	CreditRule string
	Shadowed   []string
	Synthetic  bool
}

// AdjustedTotal is total + debit - credit + manual, recomputed on every call.
func (l AdjustedLine) AdjustedTotal() decimal.Decimal {
	return l.Total().Add(l.Debit).Sub(l.Credit).Add(l.Manual)
}

func (l AdjustedLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID             string                     `json:"id"`
		Classification Classification             `json:"classification"`
		Category       string                     `json:"category"`
		Amounts        map[string]decimal.Decimal `json:"amounts"`
		Total          decimal.Decimal            `json:"total"`
		Debit          decimal.Decimal            `json:"debit"`
		Credit         decimal.Decimal            `json:"credit"`
		Manual         decimal.Decimal            `json:"manual"`
		AdjustedTotal  decimal.Decimal            `json:"adjusted_total"`
		DebitRule      string                     `json:"debit_rule,omitempty"`
		CreditRule     string                     `json:"credit_rule,omitempty"`
		Shadowed       []string                   `json:"shadowed,omitempty"`
		Synthetic      bool                       `json:"synthetic,omitempty"`
	}{
		l.ID(), l.Classification, l.Category, l.Amounts, l.Total(),
		l.Debit, l.Credit, l.Manual, l.AdjustedTotal(),
		l.DebitRule, l.CreditRule, l.Shadowed, l.Synthetic,
	})
}

// Adjuster applies a fixed rule table. Rules are sorted once by
// (Priority, Name) so results never depend on table order.
type Adjuster struct {
	rules     []compiledRule
	synthetic []SyntheticLine
}

type compiledRule struct {
	Rule
	match pattern
}

// NewAdjuster prepares rules and synthetic lines for repeated use.
func NewAdjuster(rules []Rule, synthetic []SyntheticLine) *Adjuster {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		compiled = append(compiled, compiledRule{Rule: r, match: compilePattern(r.Pattern)})
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Priority != compiled[j].Priority {
			return compiled[i].Priority < compiled[j].Priority
		}
		return compiled[i].Name < compiled[j].Name
	})
	return &Adjuster{rules: compiled, synthetic: append([]SyntheticLine(nil), synthetic...)}
}

// Adjust applies rules to lines without synthetic entries.
func Adjust(lines []ConsolidatedLine, rules []Rule, ctx AdjustmentContext) []AdjustedLine {
	return NewAdjuster(rules, nil).Adjust(lines, ctx)
}

// Adjust computes debit and credit for every line. Each field takes at most
// one rule: the first matching rule in priority order. Sources read only
// consolidated totals and context scalars, never another rule's output.
// Synthetic lines are appended, or claim the field on a line that already
// carries their key.
func (a *Adjuster) Adjust(lines []ConsolidatedLine, ctx AdjustmentContext) []AdjustedLine {
	if a == nil {
		a = &Adjuster{}
	}
	out := make([]AdjustedLine, 0, len(lines)+len(a.synthetic))
	index := make(map[LineKey]int, len(lines))
	for _, l := range lines {
		adj := AdjustedLine{ConsolidatedLine: l}
		for _, field := range []Field{Debit, Credit} {
			a.applyRules(&adj, field, lines, ctx)
		}
		index[l.LineKey] = len(out)
		out = append(out, adj)
	}

	for _, s := range a.synthetic {
		key := s.Key()
		amount := evaluate(s.Sources, decimal.Zero, lines, ctx)
		name := "synthetic:" + key.Category
		if i, exists := index[key]; exists {
			line := &out[i]
			if prev := line.rule(s.Field); prev != "" {
				line.Shadowed = append(line.Shadowed, prev)
			}
			line.set(s.Field, amount, name)
			continue
		}
		line := AdjustedLine{
			ConsolidatedLine: ConsolidatedLine{LineKey: key, Amounts: map[string]decimal.Decimal{}},
			Synthetic:        true,
		}
		line.set(s.Field, amount, name)
		index[key] = len(out)
		out = append(out, line)
	}

	for i := range out {
		if v, ok := ctx.Overrides[out[i].ID()]; ok {
			out[i].Manual = v
		} else {
			out[i].Manual = decimal.Zero
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return lessLineKey(out[i].LineKey, out[j].LineKey) })
	return out
}

func (a *Adjuster) applyRules(line *AdjustedLine, field Field, inputs []ConsolidatedLine, ctx AdjustmentContext) {
	applied := false
	for _, r := range a.rules {
		if r.Field != field || !r.matches(line.LineKey) {
			continue
		}
		if applied {
			line.Shadowed = append(line.Shadowed, r.Name)
			continue
		}
		line.set(field, evaluate(r.Sources, line.Total(), inputs, ctx), r.Name)
		applied = true
	}
}

func (r compiledRule) matches(k LineKey) bool {
	if r.Classification != "" && r.Classification != k.Classification {
		return false
	}
	return r.match.matches(k.Category)
}

func (l *AdjustedLine) set(field Field, amount decimal.Decimal, rule string) {
	switch field {
	case Debit:
		l.Debit, l.DebitRule = amount, rule
	case Credit:
		l.Credit, l.CreditRule = amount, rule
	}
}

func (l *AdjustedLine) rule(field Field) string {
	if field == Debit {
		return l.DebitRule
	}
	return l.CreditRule
}

func evaluate(sources []Source, lineTotal decimal.Decimal, inputs []ConsolidatedLine, ctx AdjustmentContext) decimal.Decimal {
	total := decimal.Zero
	for _, s := range sources {
		var v decimal.Decimal
		switch s.Kind {
		case SourceLineTotal:
			v = lineTotal
		case SourceContext:
			v = ctx.Scalar(s.Key)
		case SourcePatternSum:
			v = patternSum(inputs, compilePattern(s.Pattern), s.Classification)
		default:
			continue
		}
		factor := decimal.NewFromInt(1)
		if s.Factor != 0 {
			factor = decimal.NewFromFloat(s.Factor)
		}
		total = total.Add(v.Mul(factor))
	}
	return total
}

func patternSum(lines []ConsolidatedLine, p pattern, class Classification) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if class != "" && l.Classification != class {
			continue
		}
		if p.matches(l.Category) {
			sum = sum.Add(l.Total())
		}
	}
	return sum
}

// MissingScalars lists context keys referenced by rules or synthetic lines
// that ctx does not supply.
func MissingScalars(rules []Rule, synthetic []SyntheticLine, ctx AdjustmentContext) []string {
	seen := make(map[string]bool)
	var missing []string
	check := func(sources []Source) {
		for _, s := range sources {
			if s.Kind != SourceContext || seen[s.Key] {
				continue
			}
			seen[s.Key] = true
			if _, ok := ctx.Scalars[s.Key]; !ok {
				missing = append(missing, s.Key)
			}
		}
	}
	for _, r := range rules {
		check(r.Sources)
	}
	for _, s := range synthetic {
		check(s.Sources)
	}
	sort.Strings(missing)
	return missing
}

type pattern []string

func compilePattern(raw string) pattern {
	var p pattern
	for _, alt := range strings.Split(raw, "|") {
		if f := Fold(alt); f != "" {
			p = append(p, f)
		}
	}
	return p
}

func (p pattern) matches(category string) bool {
	folded := Fold(category)
	for _, alt := range p {
		if strings.Contains(folded, alt) {
			return true
		}
	}
	return false
}
