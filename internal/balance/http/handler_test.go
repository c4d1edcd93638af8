package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/esgari/balance360/internal/balance"
	"github.com/esgari/balance360/internal/balance/history"
	_ "github.com/esgari/balance360/testing"
)

func init() {
	if err := SetupCacheMetrics(prometheus.NewRegistry()); err != nil {
		panic(err)
	}
}

type fakeService struct {
	mu        sync.Mutex
	builds    int
	reloads   int
	err       error
	overrides map[string]decimal.Decimal

	// started and gate, when set, hold the next build after it has read the
	// overrides.
	started chan struct{}
	gate    chan struct{}
}

func newFakeService() *fakeService {
	return &fakeService{overrides: map[string]decimal.Decimal{}}
}

func (f *fakeService) Build(_ context.Context, opts balance.BuildOptions) (balance.Statement, error) {
	f.mu.Lock()
	f.builds++
	if opts.Reload {
		f.reloads++
	}
	err := f.err
	manual := f.overrides["ACTIVO|CAJA"]
	started, gate := f.started, f.gate
	f.started, f.gate = nil, nil
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return balance.Statement{}, err
	}
	caja := balance.AdjustedLine{ConsolidatedLine: balance.ConsolidatedLine{
		LineKey: balance.LineKey{Classification: balance.Activo, Category: "CAJA"},
		Amounts: map[string]decimal.Decimal{"A": decimal.NewFromInt(500), "B": decimal.NewFromInt(100)},
	}}
	caja.Manual = manual
	prov := balance.AdjustedLine{ConsolidatedLine: balance.ConsolidatedLine{
		LineKey: balance.LineKey{Classification: balance.Pasivo, Category: "PROVEEDORES"},
		Amounts: map[string]decimal.Decimal{"A": decimal.NewFromInt(-500), "B": decimal.Zero},
	}}
	lines := []balance.AdjustedLine{caja, prov}
	return balance.Statement{
		RunID:    "run-1",
		BuiltAt:  time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC),
		Entities: []string{"A", "B"},
		Lines:    lines,
		Totals:   balance.Validate(lines, balance.SignedLedger, balance.DefaultEpsilon),
		Unmapped: []balance.UnmappedRow{{LedgerRow: balance.LedgerRow{Entity: "B", Key: balance.NumericKey(999999), Amount: decimal.NewFromInt(42)}}},
		Warnings: []balance.Warning{{Kind: balance.UnmappedAccount, Entity: "B", Message: "1 unmapped"}},
	}, nil
}

func (f *fakeService) Entities() []string { return []string{"A", "B"} }

func (f *fakeService) Overrides(context.Context) ([]balance.Override, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []balance.Override
	for id, v := range f.overrides {
		out = append(out, balance.Override{LineID: id, Amount: v})
	}
	return out, nil
}

func (f *fakeService) SetOverride(_ context.Context, lineID string, amount decimal.Decimal) (string, error) {
	key, ok := balance.ParseLineID(lineID)
	if !ok {
		return "", balance.ErrInvalidLineID
	}
	f.mu.Lock()
	f.overrides[key.ID()] = amount
	f.mu.Unlock()
	return key.ID(), nil
}

func (f *fakeService) ClearOverride(_ context.Context, lineID string) (string, error) {
	key, ok := balance.ParseLineID(lineID)
	if !ok {
		return "", balance.ErrInvalidLineID
	}
	f.mu.Lock()
	delete(f.overrides, key.ID())
	f.mu.Unlock()
	return key.ID(), nil
}

func (f *fakeService) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds
}

type memoryHistory struct {
	runs []history.Run
}

func (m *memoryHistory) Record(_ context.Context, stmt balance.Statement, trigger string) error {
	m.runs = append(m.runs, history.RunFromStatement(stmt, trigger))
	return nil
}

func (m *memoryHistory) List(_ context.Context, limit int) ([]history.Run, error) {
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

type countingObserver struct{ seen int }

type fakeInvalidator struct {
	mu        sync.Mutex
	changed   bool
	published int
}

func (f *fakeInvalidator) Changed(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.changed
	f.changed = false
	return changed
}

func (f *fakeInvalidator) Publish(context.Context) error {
	f.mu.Lock()
	f.published++
	f.mu.Unlock()
	return nil
}

func (f *fakeInvalidator) invalidate() {
	f.mu.Lock()
	f.changed = true
	f.mu.Unlock()
}

func (c *countingObserver) ObserveStatement(balance.Statement) { c.seen++ }

func newRouter(t *testing.T, svc StatementService, opts ...Option) http.Handler {
	t.Helper()
	BustViewCache()
	t.Cleanup(BustViewCache)
	h, err := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, opts...)
	require.NoError(t, err)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSummaryReportsImbalanceAndCaches(t *testing.T) {
	svc := newFakeService()
	obs := &countingObserver{}
	hist := &memoryHistory{}
	router := newRouter(t, svc, WithObserver(obs), WithHistory(hist))

	rec := do(t, router, http.MethodGet, "/balance/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("X-Balance-Warning"), "difference")

	var body struct {
		RunID  string `json:"run_id"`
		Totals struct {
			Difference string `json:"difference"`
			Status     string `json:"status"`
		} `json:"totals"`
		Unmapped  int `json:"unmapped"`
		PerEntity []struct {
			Entity string `json:"entity"`
		} `json:"per_entity"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "run-1", body.RunID)
	require.Equal(t, "unbalanced", body.Totals.Status)
	require.Equal(t, 1, body.Unmapped)

	rec = do(t, router, http.MethodGet, "/balance/consolidated", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, svc.buildCount(), "second view served from cache")
	require.Equal(t, 1, obs.seen)
	require.Len(t, hist.runs, 1)
	require.Equal(t, "http", hist.runs[0].Trigger)
}

func TestOverridePutBustsCacheAndRebalances(t *testing.T) {
	svc := newFakeService()
	router := newRouter(t, svc)

	rec := do(t, router, http.MethodGet, "/balance/summary", "")
	require.NotEmpty(t, rec.Header().Get("X-Balance-Warning"))

	rec = do(t, router, http.MethodPut, "/balance/overrides/activo%7Ccaja", `{"amount":"-100"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"line_id":"ACTIVO|CAJA"`)

	rec = do(t, router, http.MethodGet, "/balance/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("X-Balance-Warning"))
	require.Contains(t, rec.Body.String(), `"status":"balanced"`)
	require.Equal(t, 2, svc.buildCount())

	rec = do(t, router, http.MethodDelete, "/balance/overrides/ACTIVO%7CCAJA", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodGet, "/balance/summary", "")
	require.NotEmpty(t, rec.Header().Get("X-Balance-Warning"))
}

func TestOverridePutValidation(t *testing.T) {
	router := newRouter(t, newFakeService())

	rec := do(t, router, http.MethodPut, "/balance/overrides/ACTIVO%7CCAJA", `{"amount":"abc"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, "/balance/overrides/ACTIVO%7CCAJA", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, "/balance/overrides/CAJA", `{"amount":"1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestExportCSV(t *testing.T) {
	router := newRouter(t, newFakeService())
	rec := do(t, router, http.MethodGet, "/balance/export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "balance-general-20240331-120000.csv")
	require.Contains(t, rec.Body.String(), "# Report: Balance General Consolidado")
	require.Contains(t, rec.Body.String(), "CAJA")
}

func TestExportXLSX(t *testing.T) {
	router := newRouter(t, newFakeService())
	rec := do(t, router, http.MethodGet, "/balance/export.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Body.String(), "PK"), "xlsx is a zip archive")
}

func TestReloadForcesRebuild(t *testing.T) {
	svc := newFakeService()
	hist := &memoryHistory{}
	router := newRouter(t, svc, WithHistory(hist))

	do(t, router, http.MethodGet, "/balance/summary", "")
	rec := do(t, router, http.MethodPost, "/balance/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, svc.buildCount())
	require.Equal(t, 1, svc.reloads)
	require.Equal(t, "http-reload", hist.runs[1].Trigger)

	do(t, router, http.MethodGet, "/balance/summary", "")
	require.Equal(t, 2, svc.buildCount(), "reload refreshed the cache")
}

func TestBuildFailureMapsToProblem(t *testing.T) {
	svc := newFakeService()
	svc.err = balance.ErrNoEntities
	router := newRouter(t, svc)
	rec := do(t, router, http.MethodGet, "/balance/summary", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	svc.err = errors.New("boom")
	BustViewCache()
	rec = do(t, router, http.MethodGet, "/balance/summary", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "boom")
}

func TestUnmappedFilterAndRuns(t *testing.T) {
	hist := &memoryHistory{}
	router := newRouter(t, newFakeService(), WithHistory(hist))

	rec := do(t, router, http.MethodGet, "/balance/unmapped?entity=a", "")
	require.Contains(t, rec.Body.String(), `"count":0`)
	rec = do(t, router, http.MethodGet, "/balance/unmapped?entity=b", "")
	require.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(t, router, http.MethodGet, "/balance/runs?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"run-1"`)

	rec = do(t, router, http.MethodGet, "/balance/runs?limit=-1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunsWithoutHistory(t *testing.T) {
	router := newRouter(t, newFakeService())
	rec := do(t, router, http.MethodGet, "/balance/runs", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/balance/entities", "")
	require.JSONEq(t, `{"entities":["A","B"]}`, rec.Body.String())
}

func TestOverrideDuringBuildIsNotMaskedByStaleResult(t *testing.T) {
	svc := newFakeService()
	started, gate := make(chan struct{}), make(chan struct{})
	svc.started, svc.gate = started, gate
	router := newRouter(t, svc)

	inflight := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		inflight <- do(t, router, http.MethodGet, "/balance/summary", "")
	}()
	<-started

	rec := do(t, router, http.MethodPut, "/balance/overrides/ACTIVO%7CCAJA", `{"amount":"-100"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	close(gate)

	stale := <-inflight
	require.Equal(t, http.StatusOK, stale.Code)
	require.Contains(t, stale.Body.String(), `"status":"unbalanced"`, "the in-flight build read the old overrides")

	rec = do(t, router, http.MethodGet, "/balance/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"balanced"`)
	require.Equal(t, 2, svc.buildCount(), "the stale statement was not cached")

	do(t, router, http.MethodGet, "/balance/summary", "")
	require.Equal(t, 2, svc.buildCount())
}

func TestInvalidationFromAnotherProcessReloads(t *testing.T) {
	svc := newFakeService()
	hist := &memoryHistory{}
	inv := &fakeInvalidator{}
	router := newRouter(t, svc, WithHistory(hist), WithInvalidation(inv))

	do(t, router, http.MethodGet, "/balance/summary", "")
	do(t, router, http.MethodGet, "/balance/summary", "")
	require.Equal(t, 1, svc.buildCount())

	inv.invalidate()
	rec := do(t, router, http.MethodGet, "/balance/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, svc.buildCount())
	require.Equal(t, 1, svc.reloads, "a foreign refresh means the sources changed")
	require.Equal(t, "invalidation", hist.runs[1].Trigger)

	do(t, router, http.MethodGet, "/balance/summary", "")
	require.Equal(t, 2, svc.buildCount())
}

func TestLocalChangesArePublished(t *testing.T) {
	inv := &fakeInvalidator{}
	router := newRouter(t, newFakeService(), WithInvalidation(inv))

	do(t, router, http.MethodGet, "/balance/summary", "")
	require.Zero(t, inv.published)

	do(t, router, http.MethodPut, "/balance/overrides/ACTIVO%7CCAJA", `{"amount":"-100"}`)
	do(t, router, http.MethodDelete, "/balance/overrides/ACTIVO%7CCAJA", "")
	rec := do(t, router, http.MethodPost, "/balance/reload", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 3, inv.published)

	rec = do(t, router, http.MethodPut, "/balance/overrides/CAJA", `{"amount":"1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 3, inv.published, "rejected writes invalidate nothing")
}
