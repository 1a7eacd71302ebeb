package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tendant/nd3-capture-pipeline/internal/dbosruntime"
	"github.com/tendant/nd3-capture-pipeline/pkg/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [workflow-id]",
		Short: "Show the running daemon's queue, or the state of one durable job",
		Long: `Without arguments status asks the running daemon for its queue through
the ops endpoint (METRICS_ADDR). With a workflow id it reads the durable
job state from the DBOS system database (DBOS_SYSTEM_DATABASE_URL).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var v interface{}
			if len(args) == 1 {
				if cfg.DBOSDatabaseURL == "" {
					return fmt.Errorf("DBOS_SYSTEM_DATABASE_URL is required to look up %s", args[0])
				}
				v, err = workflowStatus(ctx, cfg.DBOSDatabaseURL, args[0])
			} else {
				if cfg.MetricsAddr == "" {
					return fmt.Errorf("METRICS_ADDR is not set; cannot reach the daemon")
				}
				v, err = queueStatus(ctx, cfg.MetricsAddr)
			}
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(v)
		},
	}
}

func workflowStatus(ctx context.Context, databaseURL, id string) (*dbosruntime.WorkflowStatusInfo, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return dbosruntime.QueryWorkflowStatus(ctx, db, id)
}

// queueStatus asks the daemon listening on addr for its queue and health
func queueStatus(ctx context.Context, addr string) (map[string]interface{}, error) {
	c := client.New(addr)
	st, err := c.Queue(ctx)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", addr, err)
	}
	h, err := c.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", addr, err)
	}
	return map[string]interface{}{
		"health": h,
		"queue":  st,
	}, nil
}
