package balance

import (
	"strings"

	"github.com/esgari/balance360/internal/workbook"
)

// MappingEntry assigns a ledger account to a statement line.
type MappingEntry struct {
	Key            AccountKey     `json:"account"`
	Classification Classification `json:"classification"`
	Category       string         `json:"category"`
}

// MappingTable is the deduplicated chart-of-accounts lookup. It is immutable
// once loaded.
type MappingTable struct {
	entries []MappingEntry
	index   map[AccountKey]int
}

// NewMappingTable builds a table from entries in priority order. The first
// entry for a key wins; later duplicates are ignored.
func NewMappingTable(entries []MappingEntry) *MappingTable {
	t := &MappingTable{index: make(map[AccountKey]int, len(entries))}
	for _, e := range entries {
		if e.Key.IsZero() {
			continue
		}
		if _, dup := t.index[e.Key]; dup {
			continue
		}
		t.index[e.Key] = len(t.entries)
		t.entries = append(t.entries, e)
	}
	return t
}

// LoadMapping reads a mapping sheet. Missing key, classification or category
// columns fail with a ConfigurationError. Rows with a blank key are dropped;
// rows with an unknown classification are dropped with a warning.
func LoadMapping(sheet workbook.Sheet) (*MappingTable, []Warning, error) {
	keyCol, keyOK := ResolveColumn(sheet.Header, AccountColumnAliases)
	classCol, classOK := ResolveColumn(sheet.Header, ClassificationColumnAliases)
	catCol, catOK := ResolveColumn(sheet.Header, CategoryColumnAliases)
	var missing []string
	if !keyOK {
		missing = append(missing, AccountColumnAliases[0])
	}
	if !classOK {
		missing = append(missing, ClassificationColumnAliases[0])
	}
	if !catOK {
		missing = append(missing, CategoryColumnAliases[0])
	}
	if len(missing) > 0 {
		return nil, nil, &ConfigurationError{Source: "mapping", Missing: missing}
	}

	var (
		warnings []Warning
		entries  = make([]MappingEntry, 0, len(sheet.Rows))
		unknown  = make(map[string]int)
	)
	for _, row := range sheet.Rows {
		key, ok := Normalize(sheet.Cell(row, keyCol))
		if !ok {
			continue
		}
		rawClass := sheet.Cell(row, classCol)
		class, ok := ParseClassification(rawClass)
		if !ok {
			unknown[strings.TrimSpace(rawClass)]++
			continue
		}
		entries = append(entries, MappingEntry{
			Key:            key,
			Classification: class,
			Category:       normalizeCategory(sheet.Cell(row, catCol)),
		})
	}
	for raw, n := range unknown {
		if raw == "" {
			raw = "(blank)"
		}
		warnings = append(warnings, newWarning(ConfigurationWarning, "", "mapping: %d row(s) with unknown classification %q dropped", n, raw))
	}
	sortWarnings(warnings)
	return NewMappingTable(entries), warnings, nil
}

// Lookup returns the entry for key.
func (t *MappingTable) Lookup(key AccountKey) (MappingEntry, bool) {
	if t == nil {
		return MappingEntry{}, false
	}
	i, ok := t.index[key]
	if !ok {
		return MappingEntry{}, false
	}
	return t.entries[i], true
}

// Entries returns the deduplicated entries in source order.
func (t *MappingTable) Entries() []MappingEntry {
	if t == nil {
		return nil
	}
	return append([]MappingEntry(nil), t.entries...)
}

// Len reports the number of distinct keys.
func (t *MappingTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

func normalizeCategory(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), " "))
}
