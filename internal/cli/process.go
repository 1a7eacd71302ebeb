package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/nd3-capture-pipeline/internal/config"
	"github.com/tendant/nd3-capture-pipeline/pkg/runner"
)

func newProcessCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "process <archive>...",
		Short: "Process archives once, one after another, without watching",
		Long: `Process runs each archive through the same pipeline the watcher uses and
waits for it to finish. Archives are processed in the order given.

Examples:
  nd3d process ./watch/incoming/capture1.tar.gz
  nd3d process --config nd3.yaml a.tar.gz b.tar.gz`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, args, version)
		},
	}
}

func runProcess(cmd *cobra.Command, args []string, version string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// one-shot runs never pick up durable work left by a daemon
	cfg.QueueBackend = config.QueueMemory

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	r, err := runner.New(ctx, *cfg, version)
	if err != nil {
		return err
	}
	defer r.Shutdown(time.Second)

	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		job, err := r.Process(ctx, path)
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAILED  %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "OK      %s -> %s\n", path, job.ID)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d archives failed", failed, len(args))
	}
	return nil
}
