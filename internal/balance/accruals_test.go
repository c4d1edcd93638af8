package balance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBuildIncomeStatement(t *testing.T) {
	lines := []ConsolidatedLine{
		line(Ingreso, "VENTAS", map[string]int64{"A": -1000, "B": -500}),
		line(Gastos, "FLETES", map[string]int64{"A": 300}),
		line(Activo, "CAJA", map[string]int64{"A": 99}),
	}
	stmt := BuildIncomeStatement([]string{"A", "B"}, lines, SignedLedger)
	require.Len(t, stmt.Entities, 2)
	require.True(t, stmt.Entities[0].Utilidad.Equal(decimal.NewFromInt(-700)))
	require.True(t, stmt.Entities[1].Gastos.IsZero())
	require.True(t, stmt.Total.Ingreso.Equal(decimal.NewFromInt(-1500)))
	require.True(t, stmt.Total.Utilidad.Equal(decimal.NewFromInt(-1200)))
	require.True(t, stmt.Scalars()[ScalarTotalGastos].Equal(decimal.NewFromInt(300)))
	require.True(t, stmt.Scalars()[ScalarUtilidadEjercicio].Equal(decimal.NewFromInt(-1200)))
}

func TestBuildIncomeStatementConventional(t *testing.T) {
	lines := []ConsolidatedLine{
		line(Ingreso, "VENTAS", map[string]int64{"A": 1000}),
		line(Gastos, "FLETES", map[string]int64{"A": 300}),
	}
	stmt := BuildIncomeStatement([]string{"A"}, lines, Conventional)
	require.True(t, stmt.Total.Utilidad.Equal(decimal.NewFromInt(700)))
}

func TestComputeAccruals(t *testing.T) {
	income := IncomeStatement{Total: IncomeLine{
		Ingreso: decimal.NewFromInt(-1000),
		Gastos:  decimal.NewFromInt(400),
	}}
	manual := map[string]decimal.Decimal{
		ScalarIngresosReales:       decimal.NewFromInt(1500),
		ScalarGastosReales:         decimal.NewFromInt(450),
		ScalarImpuestos:            decimal.NewFromInt(20),
		ScalarReconocimientoManual: decimal.NewFromInt(7),
	}
	a := ComputeAccruals(income, manual, decimal.Zero)

	require.True(t, a.IngresosFacturados.Equal(decimal.NewFromInt(1000)))
	require.True(t, a.TotalPFacturados.Equal(decimal.NewFromInt(500)))
	require.True(t, a.IVAPPagar.Equal(decimal.NewFromInt(80)))
	require.True(t, a.TotalPFacturar.Equal(decimal.NewFromInt(580)))
	require.True(t, a.GastosFacturados.Equal(decimal.NewFromInt(400)))
	require.True(t, a.ProvisionGastos.Equal(decimal.NewFromInt(70)))
	require.True(t, a.IVAPAcreditar.Equal(decimal.NewFromInt(64)))
	require.True(t, a.TotalGPorFacturar.Equal(decimal.NewFromInt(464)))
	require.True(t, a.Scalars()[ScalarReconocimientoImpuestos].Equal(decimal.NewFromInt(7)))
}

func TestMergeScalarsLaterWins(t *testing.T) {
	merged := MergeScalars(
		map[string]decimal.Decimal{"goodwill": decimal.NewFromInt(1), "x": decimal.NewFromInt(2)},
		map[string]decimal.Decimal{"goodwill": decimal.NewFromInt(9)},
	)
	require.True(t, merged["goodwill"].Equal(decimal.NewFromInt(9)))
	require.True(t, merged["x"].Equal(decimal.NewFromInt(2)))
}
