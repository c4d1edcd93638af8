package balance

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testMapping() *MappingTable {
	return NewMappingTable([]MappingEntry{
		{Key: NumericKey(1000), Classification: Activo, Category: "CAJA"},
		{Key: NumericKey(1100), Classification: Activo, Category: "CAJA"},
		{Key: NumericKey(2000), Classification: Pasivo, Category: "PROVEEDORES"},
		{Key: NumericKey(3000), Classification: Capital, Category: "CAPITAL SOCIAL"},
	})
}

func TestClassifyPartitionsEveryRow(t *testing.T) {
	rows := []LedgerRow{
		{Entity: "A", Key: NumericKey(1000), Amount: decimal.NewFromInt(500)},
		{Entity: "A", Key: NumericKey(999999), Amount: decimal.NewFromInt(42)},
		{Entity: "A", Key: NumericKey(2000), Amount: decimal.NewFromInt(-200)},
	}
	classified, unmapped := Classify(rows, testMapping())
	require.Len(t, classified, 2)
	require.Len(t, unmapped, 1)
	require.Equal(t, len(rows), len(classified)+len(unmapped))

	require.Equal(t, NumericKey(999999), unmapped[0].Key)
	require.True(t, UnmappedTotal(unmapped).Equal(decimal.NewFromInt(42)))

	lines := AggregateEntity("A", classified)
	for _, l := range lines {
		require.NotEqual(t, "", l.Category)
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	require.True(t, total.Equal(decimal.NewFromInt(300)), "unmapped row must not reach totals")
}

func TestAggregateEntityIsOrderIndependent(t *testing.T) {
	var rows []ClassifiedRow
	for i := 0; i < 200; i++ {
		cat := "CAJA"
		class := Activo
		if i%3 == 0 {
			cat, class = "PROVEEDORES", Pasivo
		}
		rows = append(rows, ClassifiedRow{
			LedgerRow:      LedgerRow{Entity: "A", Key: NumericKey(int64(i)), Amount: decimal.NewFromFloat(float64(i) * 1.01)},
			Classification: class,
			Category:       cat,
		})
	}
	want := AggregateEntity("A", rows)

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 5; round++ {
		shuffled := append([]ClassifiedRow(nil), rows...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := AggregateEntity("A", shuffled)
		require.Len(t, got, len(want))
		for i := range want {
			require.Equal(t, want[i].LineKey, got[i].LineKey)
			require.True(t, want[i].Amount.Equal(got[i].Amount))
		}
	}
}

func TestMergeZeroFillsAbsentEntities(t *testing.T) {
	a := []EntityLine{
		{LineKey: LineKey{Activo, "CAJA"}, Entity: "A", Amount: decimal.NewFromInt(500)},
		{LineKey: LineKey{Pasivo, "PROVEEDORES"}, Entity: "A", Amount: decimal.NewFromInt(-200)},
	}
	b := []EntityLine{
		{LineKey: LineKey{Activo, "CAJA"}, Entity: "B", Amount: decimal.NewFromInt(100)},
		{LineKey: LineKey{Capital, "UTILIDADES"}, Entity: "B", Amount: decimal.NewFromInt(-5)},
	}
	merged := Merge([]string{"A", "B", "C"}, [][]EntityLine{a, b})
	require.Len(t, merged, 3)

	seen := make(map[LineKey]int)
	for _, l := range merged {
		seen[l.LineKey]++
		require.Len(t, l.Amounts, 3, "every roster entity has an amount")
	}
	for k, n := range seen {
		require.Equal(t, 1, n, "line %s appears more than once", k.ID())
	}

	require.Equal(t, Activo, merged[0].Classification)
	require.True(t, merged[0].Amount("A").Equal(decimal.NewFromInt(500)))
	require.True(t, merged[0].Amount("B").Equal(decimal.NewFromInt(100)))
	require.True(t, merged[0].Amount("C").IsZero())
	require.True(t, merged[0].Total().Equal(decimal.NewFromInt(600)))

	require.Equal(t, Pasivo, merged[1].Classification)
	require.True(t, merged[1].Amount("B").IsZero())
	require.Equal(t, Capital, merged[2].Classification)
	require.True(t, merged[2].Amount("A").IsZero())
}

func TestMergeIsCommutative(t *testing.T) {
	a := []EntityLine{{LineKey: LineKey{Activo, "CAJA"}, Entity: "A", Amount: decimal.NewFromInt(1)}}
	b := []EntityLine{{LineKey: LineKey{Activo, "CAJA"}, Entity: "B", Amount: decimal.NewFromInt(2)}}
	ab := Merge([]string{"A", "B"}, [][]EntityLine{a, b})
	ba := Merge([]string{"A", "B"}, [][]EntityLine{b, a})
	require.Len(t, ab, 1)
	require.Len(t, ba, 1)
	require.True(t, ab[0].Total().Equal(ba[0].Total()))
}

func TestLineIDRoundTrip(t *testing.T) {
	key := LineKey{Classification: Activo, Category: "CUENTAS POR COBRAR"}
	parsed, ok := ParseLineID("activo| cuentas  por cobrar ")
	require.True(t, ok)
	require.Equal(t, key, parsed)
	require.Equal(t, "ACTIVO|CUENTAS POR COBRAR", parsed.ID())

	_, ok = ParseLineID("ACTIVO")
	require.False(t, ok)
	_, ok = ParseLineID("ORDEN|X")
	require.False(t, ok)
}
