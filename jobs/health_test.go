package jobs

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func getHealth(t *testing.T, h *Handler) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	return rec
}

func TestHealthWithoutInspector(t *testing.T) {
	var inspector *asynq.Inspector
	rec := getHealth(t, NewHandler(inspector, quietLogger()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"archived":0,"paused":false}`, rec.Body.String())
}

func TestHealthReportsQueueInfo(t *testing.T) {
	info := &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Active: 1, Retry: 2, Paused: true}
	rec := getHealth(t, NewHandler(fakeInspector{info: info}, quietLogger()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":4,"active":1,"retry":2,"archived":0,"paused":true}`, rec.Body.String())
}

func TestHealthInspectorFailure(t *testing.T) {
	rec := getHealth(t, NewHandler(fakeInspector{err: errors.New("dial tcp: refused")}, quietLogger()))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.NotContains(t, rec.Body.String(), "refused")
}

func TestNewWorkerValidatesHandlers(t *testing.T) {
	opts := asynq.RedisClientOpt{Addr: "127.0.0.1:0"}

	_, err := NewWorker(WorkerConfig{RedisOpts: opts})
	require.ErrorContains(t, err, "no task handlers")

	_, err = NewWorker(WorkerConfig{RedisOpts: opts, Handlers: []TaskHandler{{Type: TaskBalanceRefresh}}})
	require.ErrorContains(t, err, "incomplete handler")

	job := NewBalanceRefreshJob(&stubBuilder{}, nil, quietLogger(), nil)
	_, err = NewWorker(WorkerConfig{
		RedisOpts: opts,
		Handlers:  []TaskHandler{{Type: TaskBalanceRefresh, Handler: job.Handle}},
		Cron:      []CronRegistration{{Spec: "not a cron", Task: asynq.NewTask(TaskBalanceRefresh, nil)}},
	})
	require.ErrorContains(t, err, "register cron")
}

func TestNewClientRequiresAddress(t *testing.T) {
	_, err := NewClient(asynq.RedisClientOpt{})
	require.Error(t, err)
}
