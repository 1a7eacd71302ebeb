package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/nd3-capture-pipeline/internal/config"
	"github.com/tendant/nd3-capture-pipeline/internal/storage"
)

func newRecordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <record-id>",
		Short: "Print a persisted capture record as JSON",
		Long: `Record reads one row from the record store (STORE_DRIVER, STORE_DSN). The
record id is the _id carried by the fileProcessed event.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == config.StoreNone {
				return fmt.Errorf("record store is disabled (STORE_DRIVER=none)")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			store, err := storage.OpenSQLStore(ctx, cfg.StoreDriver, cfg.StoreDSN)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}
