package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/credinet/credinet/internal/app"
	"github.com/credinet/credinet/jobs"
)

// newJobClient is replaced in tests.
var newJobClient = func(cfg *app.Config) *jobs.Client {
	return jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Background job helpers",
	}
	cmd.AddCommand(jobsTriggerCmd())
	return cmd
}

func jobsTriggerCmd() *cobra.Command {
	var (
		asOf     string
		periodID int64
	)
	cmd := &cobra.Command{
		Use:       "trigger <task>",
		Short:     "Enqueue a background job now",
		Long:      "Enqueue one of: " + strings.Join(jobs.TaskNames(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobs.TaskNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			client := newJobClient(cfg)
			defer client.Close()

			var info *asynq.TaskInfo
			switch {
			case periodID > 0 && args[0] == jobs.TaskPeriodCutoff:
				info, err = client.EnqueueCutoff(cmd.Context(), periodID)
			case periodID > 0:
				return fmt.Errorf("--period only applies to %s", jobs.TaskPeriodCutoff)
			default:
				var day time.Time
				if asOf != "" {
					day, err = time.Parse(time.DateOnly, asOf)
					if err != nil {
						return fmt.Errorf("--as-of: expected YYYY-MM-DD")
					}
				}
				info, err = client.Trigger(cmd.Context(), args[0], day)
			}
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]string{"id": info.ID, "queue": info.Queue, "type": info.Type})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s on %s (id %s)\n", info.Type, info.Queue, info.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "business date YYYY-MM-DD, defaults to today")
	cmd.Flags().Int64Var(&periodID, "period", 0, "cut period id, cutoff only")
	return cmd
}
