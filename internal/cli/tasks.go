package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/metachan/internal/worker/scheduler"
)

func newTasksCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and run periodic tasks",
	}
	cmd.AddCommand(newTasksStatusCmd(st), newTasksRunCmd(st))
	return cmd
}

func newTasksStatusCmd(st *state) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last run and next due time of every task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				statuses, err := b.Tasks.GetAllTaskStatuses(ctx)
				if err != nil {
					return fmt.Errorf("reading task status: %w", err)
				}
				if jsonOut {
					return writeJSON(st.out, statuses)
				}

				st.header("%-14s %-10s %-22s %-8s %s", "TASK", "INTERVAL", "LAST RUN", "RESULT", "NEXT RUN")
				for _, s := range statuses {
					fmt.Fprintf(st.out, "%-14s %-10s %-22s %s %s\n",
						s.Name, s.Interval, formatTime(s.LastRun), resultLabel(s.LastStatus), formatTime(s.NextRun))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newTasksRunCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "run <name>",
		Short: "Run a task once now and record the result",
		Long: `Run a registered task immediately. The run is appended to the task log,
so the worker's next due check takes it into account.

Examples:
  metachanctl tasks run MappingSync
  metachanctl tasks run CachePurge`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return st.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				start := time.Now()
				if err := b.Tasks.RunNow(ctx, name); err != nil {
					if errors.Is(err, scheduler.ErrTaskNotFound) {
						return fmt.Errorf("unknown task %q", name)
					}
					return fmt.Errorf("task %s failed: %w", name, err)
				}
				st.ok("%s completed in %s", name, time.Since(start).Round(time.Millisecond))
				return nil
			})
		},
	}
}
