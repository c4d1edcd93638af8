package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/esgari/balance360/internal/workbook"
)

// WorkbookSource resolves a source location into a parsed workbook. reload
// bypasses any memoized copy.
type WorkbookSource interface {
	Fetch(ctx context.Context, source string, reload bool) (*workbook.Workbook, error)
}

// OverrideStore persists manual overrides keyed by line ID.
type OverrideStore interface {
	List(ctx context.Context) (map[string]decimal.Decimal, error)
	Set(ctx context.Context, lineID string, amount decimal.Decimal) error
	Delete(ctx context.Context, lineID string) error
}

// Profile is the business configuration of a consolidation: roster, rule
// catalogue, synthetic lines, investment links and manual sheets.
type Profile struct {
	Entities    []string         `mapstructure:"entities" json:"entities" validate:"required,min=1,unique,dive,required"`
	Rules       []Rule           `mapstructure:"rules" json:"rules" validate:"dive"`
	Synthetic   []SyntheticLine  `mapstructure:"synthetic_lines" json:"synthetic_lines" validate:"dive"`
	Investments []InvestmentLink `mapstructure:"investments" json:"investments" validate:"dive"`
	Manual      []ManualSheet    `mapstructure:"manual" json:"manual" validate:"dive"`
	VATRate     float64          `mapstructure:"vat_rate" json:"vat_rate" validate:"gte=0,lt=1"`
}

// Config locates the sources and sets the validation policy.
type Config struct {
	MappingSource string
	MappingSheet  string
	LedgerSource  string
	ManualSource  string
	Entities      []string
	Convention    Convention
	Epsilon       decimal.Decimal
}

// BuildOptions tunes a single pipeline run.
type BuildOptions struct {
	Reload bool
}

// EntityResult is the per-entity outcome of a run.
type EntityResult struct {
	Entity   string          `json:"entity"`
	Loaded   bool            `json:"loaded"`
	Lines    []EntityLine    `json:"lines"`
	Totals   StatementTotals `json:"totals"`
	Stats    LoadStats       `json:"stats"`
	Unmapped int             `json:"unmapped"`
}

// Statement is the full result of one consolidation run.
type Statement struct {
	RunID       string                     `json:"run_id"`
	BuiltAt     time.Time                  `json:"built_at"`
	Entities    []string                   `json:"entities"`
	PerEntity   []EntityResult             `json:"per_entity"`
	Lines       []AdjustedLine             `json:"lines"`
	Totals      StatementTotals            `json:"totals"`
	Unmapped    []UnmappedRow              `json:"unmapped"`
	Income      IncomeStatement            `json:"income"`
	Investments InvestmentSummary          `json:"investments"`
	Accruals    Accruals                   `json:"accruals"`
	Scalars     map[string]decimal.Decimal `json:"scalars"`
	Warnings    []Warning                  `json:"warnings"`
	MappingSize int                        `json:"mapping_size"`
}

// Service runs the consolidation pipeline.
type Service struct {
	cfg       Config
	profile   Profile
	adjuster  *Adjuster
	sources   WorkbookSource
	overrides OverrideStore
	logger    *slog.Logger
	clock     func() time.Time
	newID     func() string
}

// NewService wires the pipeline. Entities from cfg take precedence over the
// profile roster. Repeated entities are dropped, keeping the first spelling.
func NewService(cfg Config, profile Profile, sources WorkbookSource, overrides OverrideStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "balance"))
	if len(cfg.Entities) == 0 {
		cfg.Entities = profile.Entities
	}
	entities, dropped := uniqueEntities(cfg.Entities)
	if len(dropped) > 0 {
		logger.Warn("duplicate entities ignored", slog.Any("entities", dropped))
	}
	cfg.Entities = entities
	if cfg.Convention == "" {
		cfg.Convention = SignedLedger
	}
	if cfg.Epsilon.IsZero() {
		cfg.Epsilon = DefaultEpsilon
	}
	return &Service{
		cfg:       cfg,
		profile:   profile,
		adjuster:  NewAdjuster(profile.Rules, profile.Synthetic),
		sources:   sources,
		overrides: overrides,
		logger:    logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
		newID: func() string {
			return uuid.NewString()
		},
	}
}

func uniqueEntities(in []string) (out, dropped []string) {
	seen := make(map[string]bool, len(in))
	out = make([]string, 0, len(in))
	for _, e := range in {
		key := strings.ToUpper(strings.TrimSpace(e))
		if seen[key] {
			dropped = append(dropped, e)
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out, dropped
}

// WithClock overrides the internal clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if s != nil && clock != nil {
		s.clock = clock
	}
}

// Entities returns the configured roster.
func (s *Service) Entities() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.cfg.Entities...)
}

// Build runs the pipeline end to end. Only an unusable mapping or an
// unreadable ledger workbook fail the run; every other problem becomes a
// warning on the statement.
func (s *Service) Build(ctx context.Context, opts BuildOptions) (Statement, error) {
	if s == nil || s.sources == nil {
		return Statement{}, errors.New("balance: service not configured")
	}
	start := s.clock()
	var warnings []Warning
	src := &runSources{sources: s.sources, reload: opts.Reload}

	mapping, mapWarnings, err := s.loadMapping(ctx, src)
	if err != nil {
		return Statement{}, err
	}
	warnings = append(warnings, mapWarnings...)

	if s.cfg.LedgerSource == "" {
		return Statement{}, fmt.Errorf("%w: ledger", ErrSourceNotConfigured)
	}
	ledgerWB, err := src.fetch(ctx, s.cfg.LedgerSource)
	if err != nil {
		return Statement{}, fmt.Errorf("balance: fetch ledger: %w", err)
	}

	results := make([]entityRun, len(s.cfg.Entities))
	g, gctx := errgroup.WithContext(ctx)
	for i, entity := range s.cfg.Entities {
		i, entity := i, entity
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = runEntity(ledgerWB, entity, mapping)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Statement{}, err
	}

	var (
		loaded    []string
		perEntity = make([][]EntityLine, 0, len(results))
		ledgers   = make(map[string][]LedgerRow, len(results))
		unmapped  []UnmappedRow
	)
	for _, r := range results {
		warnings = append(warnings, r.warnings...)
		if !r.result.Loaded {
			continue
		}
		loaded = append(loaded, r.result.Entity)
		perEntity = append(perEntity, r.result.Lines)
		ledgers[r.result.Entity] = r.rows
		unmapped = append(unmapped, r.unmapped...)
	}
	if len(loaded) == 0 {
		return Statement{}, ErrNoEntities
	}

	lines := Merge(loaded, perEntity)

	manual, manualWarnings := s.loadManual(ctx, src)
	warnings = append(warnings, manualWarnings...)

	income := BuildIncomeStatement(loaded, lines, s.cfg.Convention)
	investments := ComputeInvestments(s.profile.Investments, ledgers)
	warnings = append(warnings, investments.Warnings...)
	accruals := ComputeAccruals(income, manual, decimal.NewFromFloat(s.profile.VATRate))
	scalars := MergeScalars(income.Scalars(), investments.Scalars(), accruals.Scalars(), manual)

	adjCtx := AdjustmentContext{Scalars: scalars, Overrides: s.loadOverrides(ctx, &warnings)}
	for _, key := range MissingScalars(s.profile.Rules, s.profile.Synthetic, adjCtx) {
		warnings = append(warnings, newWarning(MissingScalarWarning, "", "context value %q not supplied, treated as 0", key))
	}
	adjusted := s.adjuster.Adjust(lines, adjCtx)
	totals := Validate(adjusted, s.cfg.Convention, s.cfg.Epsilon)
	if !totals.Balanced() {
		warnings = append(warnings, newWarning(ImbalanceWarning, "", "statement not balanced: difference %s (%s convention, epsilon %s)",
			totals.Difference.StringFixed(2), totals.Convention, totals.Epsilon.StringFixed(2)))
	}

	stmt := Statement{
		RunID:       s.newID(),
		BuiltAt:     start,
		Entities:    loaded,
		Lines:       adjusted,
		Totals:      totals,
		Unmapped:    unmapped,
		Income:      income,
		Investments: investments,
		Accruals:    accruals,
		Scalars:     scalars,
		MappingSize: mapping.Len(),
	}
	for _, r := range results {
		res := r.result
		if res.Loaded {
			res.Totals = ValidateEntity(lines, res.Entity, s.cfg.Convention, s.cfg.Epsilon)
		}
		stmt.PerEntity = append(stmt.PerEntity, res)
	}
	sortWarnings(warnings)
	stmt.Warnings = warnings

	s.logger.Info("consolidation built",
		slog.String("run_id", stmt.RunID),
		slog.Int("entities", len(loaded)),
		slog.Int("lines", len(adjusted)),
		slog.Int("unmapped", len(unmapped)),
		slog.String("status", string(totals.Status)),
		slog.String("difference", totals.Difference.StringFixed(2)),
		slog.Int("warnings", len(warnings)),
		slog.Duration("duration", s.clock().Sub(start)))
	return stmt, nil
}

type entityRun struct {
	result   EntityResult
	rows     []LedgerRow
	unmapped []UnmappedRow
	warnings []Warning
}

func runEntity(wb *workbook.Workbook, entity string, mapping *MappingTable) entityRun {
	run := entityRun{result: EntityResult{Entity: entity}}
	sheet, err := wb.Sheet(entity)
	if err != nil {
		run.warnings = append(run.warnings, newWarning(ConfigurationWarning, entity, "ledger sheet missing, entity skipped"))
		return run
	}
	rows, stats, err := LoadLedger(sheet, entity)
	run.result.Stats = stats
	if err != nil {
		run.warnings = append(run.warnings, newWarning(ConfigurationWarning, entity, "%v; entity skipped", err))
		return run
	}
	run.warnings = append(run.warnings, stats.Warnings(entity)...)
	classified, unmapped := Classify(rows, mapping)
	if len(unmapped) > 0 {
		run.warnings = append(run.warnings, newWarning(UnmappedAccount, entity, "%d account(s) without mapping, %s excluded from totals",
			len(unmapped), UnmappedTotal(unmapped).StringFixed(2)))
	}
	run.rows = rows
	run.unmapped = unmapped
	run.result.Loaded = true
	run.result.Lines = AggregateEntity(entity, classified)
	run.result.Unmapped = len(unmapped)
	return run
}

// runSources fetches the workbooks of one run. With reload set, each
// distinct source is re-downloaded once; later fetches of the same source
// reuse the fresh copy.
type runSources struct {
	sources  WorkbookSource
	reload   bool
	reloaded map[string]bool
}

func (r *runSources) fetch(ctx context.Context, source string) (*workbook.Workbook, error) {
	reload := r.reload && !r.reloaded[source]
	wb, err := r.sources.Fetch(ctx, source, reload)
	if err == nil && reload {
		if r.reloaded == nil {
			r.reloaded = make(map[string]bool)
		}
		r.reloaded[source] = true
	}
	return wb, err
}

func (s *Service) loadMapping(ctx context.Context, src *runSources) (*MappingTable, []Warning, error) {
	if s.cfg.MappingSource == "" {
		return nil, nil, fmt.Errorf("%w: mapping", ErrSourceNotConfigured)
	}
	wb, err := src.fetch(ctx, s.cfg.MappingSource)
	if err != nil {
		return nil, nil, fmt.Errorf("balance: fetch mapping: %w", err)
	}
	var sheet workbook.Sheet
	if s.cfg.MappingSheet != "" {
		sheet, err = wb.Sheet(s.cfg.MappingSheet)
		if err != nil {
			return nil, nil, &ConfigurationError{Source: "mapping", Detail: err.Error()}
		}
	} else {
		if len(wb.Sheets) == 0 {
			return nil, nil, &ConfigurationError{Source: "mapping", Detail: "workbook has no sheets"}
		}
		sheet = wb.Sheets[0]
	}
	return LoadMapping(sheet)
}

func (s *Service) loadManual(ctx context.Context, src *runSources) (map[string]decimal.Decimal, []Warning) {
	if s.cfg.ManualSource == "" || len(s.profile.Manual) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	wb, err := src.fetch(ctx, s.cfg.ManualSource)
	if err != nil {
		s.logger.Warn("fetch manual workbook", slog.Any("error", err))
		return map[string]decimal.Decimal{}, []Warning{newWarning(FetchWarning, "", "manual workbook unavailable: %v", err)}
	}
	return LoadManualScalars(wb, s.profile.Manual)
}

func (s *Service) loadOverrides(ctx context.Context, warnings *[]Warning) map[string]decimal.Decimal {
	if s.overrides == nil {
		return nil
	}
	values, err := s.overrides.List(ctx)
	if err != nil {
		s.logger.Warn("load overrides", slog.Any("error", err))
		*warnings = append(*warnings, newWarning(FetchWarning, "", "manual overrides unavailable: %v", err))
		return nil
	}
	return values
}

// Overrides lists the stored manual overrides sorted by line ID.
func (s *Service) Overrides(ctx context.Context) ([]Override, error) {
	if s == nil || s.overrides == nil {
		return nil, ErrOverridesDisabled
	}
	values, err := s.overrides.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Override, 0, len(values))
	for id, v := range values {
		out = append(out, Override{LineID: id, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineID < out[j].LineID })
	return out, nil
}

// SetOverride stores a manual amount for a line. The ID is canonicalized so
// "activo|caja" and "ACTIVO|CAJA" address the same line.
func (s *Service) SetOverride(ctx context.Context, lineID string, amount decimal.Decimal) (string, error) {
	if s == nil || s.overrides == nil {
		return "", ErrOverridesDisabled
	}
	key, ok := ParseLineID(lineID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidLineID, lineID)
	}
	if err := s.overrides.Set(ctx, key.ID(), amount); err != nil {
		return "", err
	}
	return key.ID(), nil
}

// ClearOverride removes the manual amount of a line.
func (s *Service) ClearOverride(ctx context.Context, lineID string) (string, error) {
	if s == nil || s.overrides == nil {
		return "", ErrOverridesDisabled
	}
	key, ok := ParseLineID(lineID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidLineID, lineID)
	}
	return key.ID(), s.overrides.Delete(ctx, key.ID())
}

// Override is one stored manual amount.
type Override struct {
	LineID string          `json:"line_id"`
	Amount decimal.Decimal `json:"amount"`
}
