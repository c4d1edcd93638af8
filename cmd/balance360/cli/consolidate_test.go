package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/esgari/balance360/internal/balance"
)

func writeBook(t *testing.T, path string, sheets map[string][][]interface{}, order ...string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func fixtures(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	mapping := filepath.Join(dir, "mapeo.xlsx")
	ledger := filepath.Join(dir, "balanza.xlsx")
	writeBook(t, mapping, map[string][][]interface{}{
		"MAPEO": {
			{"Cuenta", "CLASIFICACION", "CATEGORIA"},
			{1000, "ACTIVO", "CAJA"},
			{2000, "PASIVO", "PROVEEDORES"},
			{3000, "CAPITAL", "CAPITAL SOCIAL"},
		},
	}, "MAPEO")
	writeBook(t, ledger, map[string][][]interface{}{
		"A": {
			{"Cuenta", "Saldo Final"},
			{1000, 500},
			{2000, -200},
			{3000, -300},
		},
		"B": {
			{"Cuenta", "Saldo Final"},
			{1000, 100},
		},
	}, "A", "B")
	return mapping, ledger
}

func TestConsolidateCommandBalancedJSON(t *testing.T) {
	mapping, ledger := fixtures(t)
	out := filepath.Join(t.TempDir(), "balance.xlsx")
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	code := ConsolidateCommand(context.Background(), ConsolidateOptions{
		Mapping:    mapping,
		Ledger:     ledger,
		Profile:    &balance.Profile{Entities: []string{"A"}},
		Out:        out,
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, code, stderr.String())
	require.Empty(t, stderr.String())

	var summary ConsolidateSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Equal(t, 3, summary.LineCount)
	require.Equal(t, out, summary.Output)

	info, err := os.Stat(out)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

func TestConsolidateCommandUnbalancedExitCode(t *testing.T) {
	mapping, ledger := fixtures(t)
	out := filepath.Join(t.TempDir(), "balance.csv")
	stdout := new(bytes.Buffer)

	code := ConsolidateCommand(context.Background(), ConsolidateOptions{
		Mapping:  mapping,
		Ledger:   ledger,
		Entities: []string{"a", "b"},
		Profile:  &balance.Profile{Entities: []string{"A"}},
		Out:      out,
		Stdout:   stdout,
		Stderr:   new(bytes.Buffer),
	})
	require.Equal(t, ExitUnbalanced, code)
	require.Contains(t, stdout.String(), "unbalanced")
	require.Contains(t, stdout.String(), "Written to "+out)

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(body), "Entities: A,B")
}

func TestConsolidateCommandUsageErrors(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := ConsolidateCommand(context.Background(), ConsolidateOptions{Ledger: "x.xlsx", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "--mapping")

	stderr.Reset()
	code = ConsolidateCommand(context.Background(), ConsolidateOptions{Mapping: "m.xlsx", Ledger: "l.xlsx", Out: "out.pdf", Stdout: new(bytes.Buffer), Stderr: stderr})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "unsupported output")

	stderr.Reset()
	code = ConsolidateCommand(context.Background(), ConsolidateOptions{
		Mapping: filepath.Join(t.TempDir(), "missing.xlsx"),
		Ledger:  "l.xlsx",
		Profile: &balance.Profile{Entities: []string{"A"}},
		Stdout:  new(bytes.Buffer),
		Stderr:  stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "consolidate:")
}
