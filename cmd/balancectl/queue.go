package main

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/esgari/balance360/cmd/balance360/cli"
	"github.com/esgari/balance360/jobs"
)

func (st *rootState) jobsCLI() (*cli.JobsCLI, error) {
	return cli.NewJobsCLI(asynq.RedisClientOpt{Addr: st.v.GetString("redis_addr")})
}

func newRefreshCmd(st *rootState) *cobra.Command {
	var reload bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Enqueue a " + jobs.TaskBalanceRefresh + " task for the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := st.jobsCLI()
			if err != nil {
				return err
			}
			defer c.Close()
			info, err := c.TriggerRefresh(cmd.Context(), reload)
			if err != nil {
				return fmt.Errorf("enqueue refresh: %w", err)
			}
			_, _ = fmt.Fprintf(st.stdout, "enqueued %s id=%s queue=%s reload=%t\n", info.Type, info.ID, info.Queue, reload)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reload, "reload", false, "refetch every source instead of reusing memoized workbooks")
	return cmd
}

func newQueueCmd(st *rootState) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show job queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := st.jobsCLI()
			if err != nil {
				return err
			}
			defer c.Close()
			stats, err := c.InspectQueue(cmd.Context())
			if err != nil {
				return fmt.Errorf("inspect queue: %w", err)
			}
			if asJSON {
				return json.NewEncoder(st.stdout).Encode(stats)
			}
			_, _ = fmt.Fprintf(st.stdout, "queue %s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			scheduled, err := c.ListScheduled(cmd.Context(), 10)
			if err != nil {
				return fmt.Errorf("list scheduled: %w", err)
			}
			for _, t := range scheduled {
				_, _ = fmt.Fprintf(st.stdout, " - %s %s at %s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
