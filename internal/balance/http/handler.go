// Package http exposes the consolidated statement over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/esgari/balance360/internal/balance"
	"github.com/esgari/balance360/internal/balance/history"
	"github.com/esgari/balance360/internal/export"
	"github.com/esgari/balance360/internal/platform/httpx"
)

// StatementService is the pipeline surface the handler needs.
type StatementService interface {
	Build(ctx context.Context, opts balance.BuildOptions) (balance.Statement, error)
	Entities() []string
	Overrides(ctx context.Context) ([]balance.Override, error)
	SetOverride(ctx context.Context, lineID string, amount decimal.Decimal) (string, error)
	ClearOverride(ctx context.Context, lineID string) (string, error)
}

// RunHistory records and lists past runs.
type RunHistory interface {
	Record(ctx context.Context, stmt balance.Statement, trigger string) error
	List(ctx context.Context, limit int) ([]history.Run, error)
}

// StatementObserver receives every freshly built statement.
type StatementObserver interface {
	ObserveStatement(stmt balance.Statement)
}

// CacheInvalidator shares statement invalidation with the other processes
// serving the same sources and overrides.
type CacheInvalidator interface {
	// Changed reports whether another process invalidated since the last call.
	Changed(ctx context.Context) bool
	// Publish tells the other processes to drop their statement.
	Publish(ctx context.Context) error
}

// Handler wires the HTTP layer for the consolidated balance.
type Handler struct {
	logger    *slog.Logger
	service   StatementService
	history   RunHistory
	observer  StatementObserver
	invalid   CacheInvalidator
	validate  *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// Option configures optional collaborators.
type Option func(*Handler)

// WithHistory records each build and enables GET /balance/runs.
func WithHistory(h RunHistory) Option {
	return func(handler *Handler) { handler.history = h }
}

// WithObserver forwards each build to o.
func WithObserver(o StatementObserver) Option {
	return func(handler *Handler) { handler.observer = o }
}

// WithInvalidation rebuilds the statement when another process reports new
// sources or overrides, and reports local override changes to them.
func WithInvalidation(inv CacheInvalidator) Option {
	return func(handler *Handler) { handler.invalid = inv }
}

// NewHandler constructs the handler instance.
func NewHandler(logger *slog.Logger, service StatementService, opts ...Option) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("balance handler: service required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	limiter := httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	h := &Handler{
		logger:    logger.With(slog.String("component", "balance.http")),
		service:   service,
		validate:  validator.New(),
		rateLimit: limiter,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// MountRoutes registers the /balance endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/balance", func(r chi.Router) {
		r.Get("/entities", h.HandleEntities)
		r.Get("/consolidated", h.HandleConsolidated)
		r.Get("/summary", h.HandleSummary)
		r.Get("/unmapped", h.HandleUnmapped)
		r.Get("/income", h.HandleIncome)
		r.Get("/investments", h.HandleInvestments)
		r.Get("/overrides", h.HandleListOverrides)
		r.Put("/overrides/{lineID}", h.HandlePutOverride)
		r.Delete("/overrides/{lineID}", h.HandleDeleteOverride)
		r.Get("/runs", h.HandleRuns)
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Get("/export.csv", h.HandleExportCSV)
			r.Get("/export.xlsx", h.HandleExportXLSX)
			r.Post("/reload", h.HandleReload)
		})
	})
}

// statement returns the cached statement or builds a new one. Concurrent
// builds of the same generation collapse into one.
func (h *Handler) statement(ctx context.Context, reload bool) (balance.Statement, error) {
	trigger := "http"
	if reload {
		trigger = "http-reload"
	}
	if h.invalid != nil && h.invalid.Changed(ctx) {
		h.logger.Info("statement invalidated by another process")
		reload, trigger = true, "invalidation"
	}

	var gen uint64
	if reload {
		gen = viewCache.Bust()
	} else {
		stmt, current, ok := viewCache.Load()
		if ok {
			recordCacheHit()
			return stmt, nil
		}
		gen = current
	}
	recordCacheMiss()
	return sharedBuild(ctx, buildKey(gen, reload), func(ctx context.Context) (balance.Statement, error) {
		start := time.Now()
		stmt, err := h.service.Build(ctx, balance.BuildOptions{Reload: reload})
		observeBuildDuration(reload, time.Since(start))
		if err != nil {
			return balance.Statement{}, err
		}
		h.afterBuild(ctx, stmt, trigger)
		if !viewCache.Store(gen, stmt) {
			recordDiscardedBuild()
			h.logger.Debug("statement superseded during build", slog.String("run_id", stmt.RunID))
		}
		return stmt, nil
	})
}

// invalidate drops the local statement and tells the other processes.
func (h *Handler) invalidate(ctx context.Context) {
	viewCache.Bust()
	h.publish(ctx)
}

func (h *Handler) publish(ctx context.Context) {
	if h.invalid == nil {
		return
	}
	if err := h.invalid.Publish(ctx); err != nil {
		h.logger.Warn("publish cache invalidation", slog.Any("error", err))
	}
}

func (h *Handler) afterBuild(ctx context.Context, stmt balance.Statement, trigger string) {
	if h.observer != nil {
		h.observer.ObserveStatement(stmt)
	}
	if h.history != nil {
		if err := h.history.Record(ctx, stmt, trigger); err != nil {
			h.logger.Warn("record run", slog.String("run_id", stmt.RunID), slog.Any("error", err))
		}
	}
	h.logger.Info("statement built",
		slog.String("run_id", stmt.RunID),
		slog.String("status", string(stmt.Totals.Status)),
		slog.String("difference", stmt.Totals.Difference.StringFixed(2)),
		slog.Int("warnings", len(stmt.Warnings)))
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (balance.Statement, bool) {
	stmt, err := h.statement(r.Context(), false)
	if err != nil {
		h.fail(w, err)
		return balance.Statement{}, false
	}
	if !stmt.Totals.Balanced() {
		w.Header().Set("X-Balance-Warning", fmt.Sprintf("statement not balanced: difference %s", stmt.Totals.Difference.StringFixed(2)))
	}
	return stmt, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, balance.ErrInvalidLineID):
		err = fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, balance.ErrOverridesDisabled), errors.Is(err, history.ErrNotFound):
		err = fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, balance.ErrNoEntities),
		errors.Is(err, balance.ErrConfiguration),
		errors.Is(err, balance.ErrSourceNotConfigured):
		err = fmt.Errorf("%w: %v", httpx.ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		err = fmt.Errorf("%w: %v", httpx.ErrUnavailable, err)
	}
	if httpx.StatusOf(err) >= http.StatusInternalServerError {
		h.logger.Error("balance request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// HandleEntities lists the configured roster.
func (h *Handler) HandleEntities(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"entities": h.service.Entities()})
}

// HandleConsolidated returns the adjusted consolidated lines.
func (h *Handler) HandleConsolidated(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, consolidatedView{
		RunID:    stmt.RunID,
		BuiltAt:  stmt.BuiltAt,
		Entities: stmt.Entities,
		Lines:    stmt.Lines,
		Totals:   stmt.Totals,
	})
}

// HandleSummary returns the totals, per-entity verdicts and warnings.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, newSummaryView(stmt))
}

// HandleUnmapped lists ledger rows without a mapping entry.
func (h *Handler) HandleUnmapped(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.load(w, r)
	if !ok {
		return
	}
	rows := stmt.Unmapped
	if entity := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("entity"))); entity != "" {
		filtered := rows[:0:0]
		for _, row := range rows {
			if row.Entity == entity {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"run_id": stmt.RunID,
		"count":  len(rows),
		"total":  balance.UnmappedTotal(rows),
		"rows":   rows,
	})
}

// HandleIncome returns the consolidated income statement and accruals.
func (h *Handler) HandleIncome(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"run_id":   stmt.RunID,
		"income":   stmt.Income,
		"accruals": stmt.Accruals,
	})
}

// HandleInvestments returns the investment elimination summary.
func (h *Handler) HandleInvestments(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"run_id":      stmt.RunID,
		"investments": stmt.Investments,
	})
}

// HandleExportCSV streams the statement as CSV.
func (h *Handler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", exportName(stmt, "csv")))
	if err := export.WriteCSV(w, stmt); err != nil {
		h.logger.Error("export csv", slog.Any("error", err))
	}
}

// HandleExportXLSX writes the statement as a workbook.
func (h *Handler) HandleExportXLSX(w http.ResponseWriter, r *http.Request) {
	stmt, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", export.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", exportName(stmt, "xlsx")))
	if err := export.WriteXLSX(w, stmt); err != nil {
		h.logger.Error("export xlsx", slog.Any("error", err))
	}
}

// HandleReload refetches every source and rebuilds the statement.
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	stmt, err := h.statement(r.Context(), true)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.publish(r.Context())
	if !stmt.Totals.Balanced() {
		w.Header().Set("X-Balance-Warning", fmt.Sprintf("statement not balanced: difference %s", stmt.Totals.Difference.StringFixed(2)))
	}
	httpx.JSON(w, http.StatusOK, newSummaryView(stmt))
}

type overrideRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
}

// HandleListOverrides lists stored manual amounts.
func (h *Handler) HandleListOverrides(w http.ResponseWriter, r *http.Request) {
	overrides, err := h.service.Overrides(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"overrides": overrides})
}

// HandlePutOverride stores the manual amount of one line.
func (h *Handler) HandlePutOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, fmt.Errorf("%w: amount must be a number", httpx.ErrValidation))
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.fail(w, fmt.Errorf("%w: amount: %v", httpx.ErrValidation, err))
		return
	}
	id, err := h.service.SetOverride(r.Context(), chi.URLParam(r, "lineID"), amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.invalidate(r.Context())
	h.logger.Info("override set", slog.String("line_id", id), slog.String("amount", amount.String()))
	httpx.JSON(w, http.StatusOK, balance.Override{LineID: id, Amount: amount})
}

// HandleDeleteOverride clears the manual amount of one line.
func (h *Handler) HandleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.ClearOverride(r.Context(), chi.URLParam(r, "lineID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.invalidate(r.Context())
	h.logger.Info("override cleared", slog.String("line_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// HandleRuns lists recorded runs, newest first.
func (h *Handler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.fail(w, fmt.Errorf("%w: run history not configured", httpx.ErrNotFound))
		return
	}
	limit := history.DefaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.fail(w, fmt.Errorf("%w: limit must be a positive integer", httpx.ErrValidation))
			return
		}
		limit = parsed
	}
	runs, err := h.history.List(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func exportName(stmt balance.Statement, ext string) string {
	stamp := stmt.BuiltAt.UTC().Format("20060102-150405")
	return fmt.Sprintf("balance-general-%s.%s", stamp, ext)
}
