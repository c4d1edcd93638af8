package balance

import (
	"github.com/shopspring/decimal"

	"github.com/esgari/balance360/internal/workbook"
)

// LedgerRow is one account balance of one entity, after duplicate rows for
// the same account have been summed.
type LedgerRow struct {
	Entity string          `json:"entity"`
	Key    AccountKey      `json:"account"`
	Amount decimal.Decimal `json:"amount"`
}

// LoadStats counts the rows the loader recovered from.
type LoadStats struct {
	SourceRows    int `json:"source_rows"`
	DroppedRows   int `json:"dropped_rows"`
	ZeroedAmounts int `json:"zeroed_amounts"`
	MergedRows    int `json:"merged_rows"`
}

// Warnings converts non-zero counters into parse warnings.
func (s LoadStats) Warnings(entity string) []Warning {
	var out []Warning
	if s.DroppedRows > 0 {
		out = append(out, newWarning(ParseWarning, entity, "%d row(s) dropped: account identifier blank or unreadable", s.DroppedRows))
	}
	if s.ZeroedAmounts > 0 {
		out = append(out, newWarning(ParseWarning, entity, "%d amount(s) unreadable, treated as 0", s.ZeroedAmounts))
	}
	return out
}

// LoadLedger turns one entity sheet into ledger rows. The account and amount
// columns are resolved independently; a missing column fails with a
// ConfigurationError for this entity only. Output keeps the order in which
// each account first appears.
func LoadLedger(sheet workbook.Sheet, entity string) ([]LedgerRow, LoadStats, error) {
	var stats LoadStats
	keyCol, keyOK := ResolveColumn(sheet.Header, AccountColumnAliases)
	amtCol, amtOK := ResolveColumn(sheet.Header, AmountColumnAliases)
	var missing []string
	if !keyOK {
		missing = append(missing, AccountColumnAliases[0])
	}
	if !amtOK {
		missing = append(missing, AmountColumnAliases[0])
	}
	if len(missing) > 0 {
		return nil, stats, &ConfigurationError{Source: "ledger", Entity: entity, Missing: missing}
	}

	rows := make([]LedgerRow, 0, len(sheet.Rows))
	seen := make(map[AccountKey]int, len(sheet.Rows))
	for _, raw := range sheet.Rows {
		stats.SourceRows++
		key, ok := Normalize(sheet.Cell(raw, keyCol))
		if !ok {
			stats.DroppedRows++
			continue
		}
		amount, ok := ParseCurrency(sheet.Cell(raw, amtCol))
		if !ok {
			stats.ZeroedAmounts++
			amount = decimal.Zero
		}
		if i, dup := seen[key]; dup {
			rows[i].Amount = rows[i].Amount.Add(amount)
			stats.MergedRows++
			continue
		}
		seen[key] = len(rows)
		rows = append(rows, LedgerRow{Entity: entity, Key: key, Amount: amount})
	}
	return rows, stats, nil
}

// ConsolidateDuplicates sums rows sharing an entity and account key.
func ConsolidateDuplicates(rows []LedgerRow) []LedgerRow {
	type rowKey struct {
		entity string
		key    AccountKey
	}
	out := make([]LedgerRow, 0, len(rows))
	seen := make(map[rowKey]int, len(rows))
	for _, r := range rows {
		k := rowKey{entity: r.Entity, key: r.Key}
		if i, dup := seen[k]; dup {
			out[i].Amount = out[i].Amount.Add(r.Amount)
			continue
		}
		seen[k] = len(out)
		out = append(out, r)
	}
	return out
}

// AccountAmount returns the summed amount of key within rows.
func AccountAmount(rows []LedgerRow, key AccountKey) (decimal.Decimal, bool) {
	total := decimal.Zero
	found := false
	for _, r := range rows {
		if r.Key == key {
			total = total.Add(r.Amount)
			found = true
		}
	}
	return total, found
}
