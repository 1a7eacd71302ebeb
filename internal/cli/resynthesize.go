package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/nd3-capture-pipeline/internal/config"
	"github.com/tendant/nd3-capture-pipeline/pkg/runner"
)

func newResynthesizeCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "resynthesize <output-dir>...",
		Short: "Rebuild meta.json for existing output directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.QueueBackend = config.QueueMemory
			cfg.StoreDriver = config.StoreNone

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			r, err := runner.New(ctx, *cfg, version)
			if err != nil {
				return err
			}
			defer r.Shutdown(time.Second)

			for _, dir := range args {
				meta, err := r.Resynthesize(ctx, dir)
				if err != nil {
					return fmt.Errorf("%s: %w", dir, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", dir, meta.AkallCommand)
			}
			return nil
		},
	}
}
