package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/esgari/balance360/internal/balance"
	"github.com/esgari/balance360/internal/balance/overrides"
	"github.com/esgari/balance360/internal/balance/profile"
	"github.com/esgari/balance360/internal/export"
	"github.com/esgari/balance360/internal/workbook"
)

// ExitUnbalanced is returned by ConsolidateCommand when the statement does
// not balance.
const ExitUnbalanced = 10

// ConsolidateOptions defines available flags for the consolidate command.
type ConsolidateOptions struct {
	Mapping      string
	MappingSheet string
	Ledger       string
	Manual       string
	Entities     []string
	ProfilePath  string
	// Profile takes precedence over ProfilePath when set.
	Profile    *balance.Profile
	Convention string
	Epsilon    float64
	Out        string
	JSONOutput bool
	Sources    balance.WorkbookSource
	Logger     *slog.Logger
	Stdout     io.Writer
	Stderr     io.Writer
}

// ConsolidateSummary describes the JSON response for consolidate.
type ConsolidateSummary struct {
	OK        bool                    `json:"ok"`
	RunID     string                  `json:"run_id"`
	Totals    balance.StatementTotals `json:"totals"`
	Entities  []EntityOutcome         `json:"entities"`
	Unmapped  int                     `json:"unmapped"`
	Warnings  []balance.Warning       `json:"warnings"`
	Output    string                  `json:"output,omitempty"`
	LineCount int                     `json:"lines"`
}

// EntityOutcome reports the verdict of one entity.
type EntityOutcome struct {
	Entity   string         `json:"entity"`
	Loaded   bool           `json:"loaded"`
	Status   balance.Status `json:"status"`
	Unmapped int            `json:"unmapped"`
}

// ConsolidateCommand runs the pipeline once against local or remote
// workbooks, optionally writes an export and prints the outcome.
func ConsolidateCommand(ctx context.Context, opts ConsolidateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Mapping) == "" || strings.TrimSpace(opts.Ledger) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "consolidate: --mapping and --ledger are required")
		return 1
	}
	writeOut, err := exporterFor(opts.Out)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consolidate: %v\n", err)
		return 1
	}
	convention, err := balance.ParseConvention(opts.Convention)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consolidate: %v\n", err)
		return 1
	}
	prof, err := resolveProfile(opts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consolidate: %v\n", err)
		return 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sources := opts.Sources
	if sources == nil {
		sources = workbook.NewFetcher(workbook.WithLogger(logger))
	}
	entities := make([]string, 0, len(opts.Entities))
	for _, e := range opts.Entities {
		if e = strings.ToUpper(strings.TrimSpace(e)); e != "" {
			entities = append(entities, e)
		}
	}
	service := balance.NewService(balance.Config{
		MappingSource: opts.Mapping,
		MappingSheet:  opts.MappingSheet,
		LedgerSource:  opts.Ledger,
		ManualSource:  opts.Manual,
		Entities:      entities,
		Convention:    convention,
		Epsilon:       decimal.NewFromFloat(opts.Epsilon),
	}, prof, sources, overrides.NewMemoryStore(), logger)

	stmt, err := service.Build(ctx, balance.BuildOptions{})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consolidate: %v\n", err)
		return 1
	}

	if writeOut != nil {
		if err := writeFile(opts.Out, stmt, writeOut); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "consolidate: %v\n", err)
			return 1
		}
	}

	summary := buildConsolidateSummary(stmt, opts.Out)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "consolidate: encode json: %v\n", err)
			return 1
		}
	} else {
		renderConsolidateHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return ExitUnbalanced
	}
	return 0
}

func resolveProfile(opts ConsolidateOptions) (balance.Profile, error) {
	if opts.Profile != nil {
		return *opts.Profile, profile.Validate(*opts.Profile)
	}
	return profile.Load(opts.ProfilePath)
}

type exportFunc func(io.Writer, balance.Statement) error

func exporterFor(path string) (exportFunc, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return export.WriteCSV, nil
	case ".xlsx":
		return export.WriteXLSX, nil
	default:
		return nil, fmt.Errorf("unsupported output %q (expected .csv or .xlsx)", path)
	}
}

func writeFile(path string, stmt balance.Statement, write exportFunc) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f, stmt); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func buildConsolidateSummary(stmt balance.Statement, out string) ConsolidateSummary {
	entities := make([]EntityOutcome, 0, len(stmt.PerEntity))
	for _, e := range stmt.PerEntity {
		entities = append(entities, EntityOutcome{
			Entity:   e.Entity,
			Loaded:   e.Loaded,
			Status:   e.Totals.Status,
			Unmapped: e.Unmapped,
		})
	}
	warnings := stmt.Warnings
	if warnings == nil {
		warnings = []balance.Warning{}
	}
	return ConsolidateSummary{
		OK:        stmt.Totals.Balanced(),
		RunID:     stmt.RunID,
		Totals:    stmt.Totals,
		Entities:  entities,
		Unmapped:  len(stmt.Unmapped),
		Warnings:  warnings,
		Output:    out,
		LineCount: len(stmt.Lines),
	}
}

func renderConsolidateHuman(out io.Writer, s ConsolidateSummary) {
	_, _ = fmt.Fprintf(out, "Balance General Consolidado (run %s, %s convention)\n", s.RunID, s.Totals.Convention)
	_, _ = fmt.Fprintf(out, "  Activo:     %s\n", balance.FormatCurrency(s.Totals.Activo))
	_, _ = fmt.Fprintf(out, "  Pasivo:     %s\n", balance.FormatCurrency(s.Totals.Pasivo))
	_, _ = fmt.Fprintf(out, "  Capital:    %s\n", balance.FormatCurrency(s.Totals.Capital))
	_, _ = fmt.Fprintf(out, "  Diferencia: %s (%s)\n", balance.FormatCurrency(s.Totals.Difference), s.Totals.Status)
	_, _ = fmt.Fprintf(out, "%d line(s), %d unmapped row(s)\n", s.LineCount, s.Unmapped)
	for _, e := range s.Entities {
		state := string(e.Status)
		if !e.Loaded {
			state = "not loaded"
		}
		_, _ = fmt.Fprintf(out, " - %s: %s, %d unmapped\n", e.Entity, state, e.Unmapped)
	}
	if len(s.Warnings) > 0 {
		_, _ = fmt.Fprintf(out, "%d warning(s):\n", len(s.Warnings))
		for _, w := range s.Warnings {
			_, _ = fmt.Fprintf(out, " - %s\n", w.String())
		}
	}
	if s.Output != "" {
		_, _ = fmt.Fprintf(out, "Written to %s\n", s.Output)
	}
}
