package balance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestComputeInvestments(t *testing.T) {
	fixed := -14404988.06
	ledgers := map[string][]LedgerRow{
		"HOLDING": {
			{Entity: "HOLDING", Key: NumericKey(139000001), Amount: decimal.RequireFromString("15000000")},
		},
		"EHM": {
			{Entity: "EHM", Key: NumericKey(139000003), Amount: decimal.NewFromInt(2000)},
			{Entity: "EHM", Key: NumericKey(139000004), Amount: decimal.Zero},
		},
	}
	links := []InvestmentLink{
		{Name: "HDL-WH", Entity: "HOLDING", Account: "139000001", Social: &fixed},
		{Name: "EHM-FWD", Entity: "EHM", Account: "139000003"},
		{Name: "EHM-UBIKARGA", Entity: "EHM", Account: "139000004"},
		{Name: "FWD-WH", Entity: "FWD", Account: "125000001"},
	}
	summary := ComputeInvestments(links, ledgers)
	require.Len(t, summary.Lines, 2)
	require.Len(t, summary.Warnings, 2)
	for _, w := range summary.Warnings {
		require.Equal(t, InvestmentWarning, w.Kind)
	}

	require.True(t, summary.Lines[0].SocialFixed)
	require.True(t, summary.Lines[1].Social.Equal(decimal.NewFromInt(-2000)))

	require.True(t, summary.TotalInvestments.Equal(decimal.NewFromInt(15002000)))
	wantSocial := decimal.RequireFromString("-14404988.06").Sub(decimal.NewFromInt(2000))
	require.True(t, summary.TotalSocial.Equal(wantSocial), "got %s", summary.TotalSocial)
	require.True(t, summary.Goodwill.Equal(decimal.RequireFromString("-595011.94")), "got %s", summary.Goodwill)
	require.True(t, summary.CapitalSocialEliminado.Equal(wantSocial.Neg()))

	scalars := summary.Scalars()
	require.True(t, scalars[ScalarGoodwill].Equal(summary.Goodwill))
	require.True(t, scalars[ScalarTotalInvestments].Equal(summary.TotalInvestments))
}

func TestComputeInvestmentsEmpty(t *testing.T) {
	summary := ComputeInvestments(nil, nil)
	require.True(t, summary.Goodwill.IsZero())
	require.Empty(t, summary.Lines)
}
