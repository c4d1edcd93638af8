package balance

import "github.com/shopspring/decimal"

// ClassifiedRow is a ledger row joined with its mapping entry.
type ClassifiedRow struct {
	LedgerRow
	Classification Classification `json:"classification"`
	Category       string         `json:"category"`
}

// UnmappedRow is a ledger row with no mapping entry. It never reaches the
// statement but is kept for audit.
type UnmappedRow struct {
	LedgerRow
}

// Classify left-joins rows against mapping. Every row lands in exactly one
// of the two results, in input order.
func Classify(rows []LedgerRow, mapping *MappingTable) ([]ClassifiedRow, []UnmappedRow) {
	classified := make([]ClassifiedRow, 0, len(rows))
	var unmapped []UnmappedRow
	for _, r := range rows {
		entry, ok := mapping.Lookup(r.Key)
		if !ok {
			unmapped = append(unmapped, UnmappedRow{LedgerRow: r})
			continue
		}
		classified = append(classified, ClassifiedRow{
			LedgerRow:      r,
			Classification: entry.Classification,
			Category:       entry.Category,
		})
	}
	return classified, unmapped
}

// UnmappedTotal sums the amounts that were excluded from the statement.
func UnmappedTotal(rows []UnmappedRow) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Amount)
	}
	return total
}
