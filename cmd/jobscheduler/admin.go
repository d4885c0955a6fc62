package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iddaa-lens/jobscheduler/internal/app"
	"github.com/iddaa-lens/jobscheduler/pkg/coordination"
	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

// withOperator opens the configured store and hands an operator to fn
func withOperator(cmd *cobra.Command, f *flags, log *logger.Logger, fn func(context.Context, *coordination.Operator) error) error {
	cfg, err := f.load(cmd)
	if err != nil {
		return err
	}
	if cfg.Coordination.Backend == coordination.BackendMemory {
		return fmt.Errorf("the %s backend is private to a running process; use postgres or redis", coordination.BackendMemory)
	}

	ctx := cmd.Context()
	store, err := coordination.OpenStore(ctx, app.StoreOptions(cfg.Coordination))
	if err != nil {
		return fmt.Errorf("open coordination store: %w", err)
	}
	defer store.Close()

	return fn(ctx, coordination.NewOperator(store, log))
}

func newStopCommand(f *flags, log *logger.Logger) *cobra.Command {
	var instance string
	cmd := &cobra.Command{
		Use:   "stop JOB",
		Short: "Stop a job manually on one or all servers",
		Long: "Stop sets the manual stop flag. A manually stopped job stays stopped " +
			"across restarts and crash recovery until it is resumed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd, f, log, func(ctx context.Context, op *coordination.Operator) error {
				stopped, err := op.Stop(ctx, args[0], instance)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stopped %s on %s\n", args[0], strings.Join(stopped, ", "))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&instance, "on", "", "server instance id (default: all servers)")
	return cmd
}

func newResumeCommand(f *flags, log *logger.Logger) *cobra.Command {
	var instance string
	cmd := &cobra.Command{
		Use:   "resume JOB",
		Short: "Resume a manually stopped job on one or all servers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd, f, log, func(ctx context.Context, op *coordination.Operator) error {
				resumed, err := op.Resume(ctx, args[0], instance)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "resumed %s on %s\n", args[0], strings.Join(resumed, ", "))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&instance, "on", "", "server instance id (default: all servers)")
	return cmd
}

func newRescheduleCommand(f *flags, log *logger.Logger) *cobra.Command {
	var misfire string
	cmd := &cobra.Command{
		Use:   "reschedule JOB CRON",
		Short: "Change the cron expression of a job on every server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd, f, log, func(ctx context.Context, op *coordination.Operator) error {
				if err := op.Reschedule(ctx, args[0], args[1]); err != nil {
					return err
				}
				switch misfire {
				case "":
				case "catch-up", "catch_up":
					if err := op.SetMisfire(ctx, args[0], true); err != nil {
						return err
					}
				case "skip":
					if err := op.SetMisfire(ctx, args[0], false); err != nil {
						return err
					}
				default:
					return fmt.Errorf("unknown misfire policy %q, want catch-up or skip", misfire)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rescheduled %s to %q\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&misfire, "misfire", "", "misfire policy: catch-up or skip (default: unchanged)")
	return cmd
}

func newStatusCommand(f *flags, log *logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "status [JOB]",
		Short: "Show the stored state of one or all jobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOperator(cmd, f, log, func(ctx context.Context, op *coordination.Operator) error {
				names := args
				if len(names) == 0 {
					var err error
					if names, err = op.Jobs(ctx); err != nil {
						return err
					}
				}

				statuses := make([]coordination.JobStatus, 0, len(names))
				for _, name := range names {
					status, err := op.Status(ctx, name)
					if err != nil {
						return err
					}
					statuses = append(statuses, status)
				}
				return printJSON(cmd.OutOrStdout(), statuses)
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
