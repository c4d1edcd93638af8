package balance

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadLedgerConsolidatesDuplicates(t *testing.T) {
	sheet := sheetOf("FWD",
		[]string{"Cuenta", "Nombre", "Saldo Final"},
		[]string{"1000", "Caja", "100"},
		[]string{"2000", "Proveedores", "$(20.00)"},
		[]string{"1000.0", "Caja", "50"},
	)
	rows, stats, err := LoadLedger(sheet, "FWD")
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Key != NumericKey(1000) || !rows[0].Amount.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected 1000 -> 150, got %s -> %s", rows[0].Key, rows[0].Amount)
	}
	if !rows[1].Amount.Equal(decimal.NewFromInt(-20)) {
		t.Fatalf("expected -20, got %s", rows[1].Amount)
	}
	if stats.MergedRows != 1 || stats.SourceRows != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	for _, r := range rows {
		if r.Entity != "FWD" {
			t.Fatalf("entity not stamped: %+v", r)
		}
	}
}

func TestLoadLedgerRecoversFromBadCells(t *testing.T) {
	sheet := sheetOf("WH",
		[]string{"Descripción", "Saldo"},
		[]string{"", "100"},
		[]string{"caja", "-"},
		[]string{"bancos", "abc"},
		[]string{"clientes", "300"},
	)
	rows, stats, err := LoadLedger(sheet, "WH")
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if stats.DroppedRows != 1 || stats.ZeroedAmounts != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !rows[0].Amount.IsZero() {
		t.Fatalf("dash should parse to zero, got %s", rows[0].Amount)
	}
	if ws := stats.Warnings("WH"); len(ws) != 2 || ws[0].Kind != ParseWarning {
		t.Fatalf("expected two parse warnings, got %+v", ws)
	}
}

func TestLoadLedgerMissingAmountColumn(t *testing.T) {
	sheet := sheetOf("EHM", []string{"Cuenta", "Nombre"}, []string{"1000", "Caja"})
	_, _, err := LoadLedger(sheet, "EHM")
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Entity != "EHM" {
		t.Fatalf("expected entity on error, got %v", err)
	}
}

func TestConsolidateDuplicatesAcrossEntities(t *testing.T) {
	rows := []LedgerRow{
		{Entity: "A", Key: NumericKey(1), Amount: decimal.NewFromInt(100)},
		{Entity: "B", Key: NumericKey(1), Amount: decimal.NewFromInt(7)},
		{Entity: "A", Key: NumericKey(1), Amount: decimal.NewFromInt(50)},
	}
	out := ConsolidateDuplicates(rows)
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	if !out[0].Amount.Equal(decimal.NewFromInt(150)) || !out[1].Amount.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("unexpected amounts %+v", out)
	}
}
