package jobs

import (
	"encoding/json"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBalanceRefresh rebuilds the consolidated statement.
	TaskBalanceRefresh = "balance:refresh"
	// DefaultRefreshCron runs the refresh daily at 02:00 UTC.
	DefaultRefreshCron = "0 2 * * *"
)

// BalanceRefreshPayload configures one refresh. A missing Reload means true
// so scheduled runs always pick up new workbooks.
type BalanceRefreshPayload struct {
	Reload  *bool  `json:"reload,omitempty"`
	Trigger string `json:"trigger,omitempty"`
}

func (p BalanceRefreshPayload) reload() bool {
	return p.Reload == nil || *p.Reload
}

func (p BalanceRefreshPayload) trigger() string {
	if t := strings.TrimSpace(p.Trigger); t != "" {
		return t
	}
	return "job"
}

// NewBalanceRefreshTask constructs a refresh task.
func NewBalanceRefreshTask(reload bool, trigger string) (*asynq.Task, error) {
	body, err := json.Marshal(BalanceRefreshPayload{Reload: &reload, Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceRefresh, body, asynq.Queue(QueueDefault)), nil
}

// BalanceRefreshCron schedules the daily refresh. An empty spec uses
// DefaultRefreshCron.
func BalanceRefreshCron(spec string) (CronRegistration, error) {
	if strings.TrimSpace(spec) == "" {
		spec = DefaultRefreshCron
	}
	task, err := NewBalanceRefreshTask(true, "cron")
	if err != nil {
		return CronRegistration{}, err
	}
	return CronRegistration{
		Spec:    spec,
		Task:    task,
		Options: []asynq.Option{asynq.MaxRetry(refreshMaxRetry)},
	}, nil
}
