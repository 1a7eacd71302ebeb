package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/nd3-capture-pipeline/internal/watcher"
	"github.com/tendant/nd3-capture-pipeline/pkg/runner"
)

const shutdownTimeout = 30 * time.Second

func newWatchCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the incoming directory and process archives as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), version)
		},
	}
}

func runWatch(parent context.Context, version string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := runner.New(context.Background(), *cfg, version)
	if err != nil {
		return err
	}
	defer r.Shutdown(shutdownTimeout)

	log.Printf("nd3d %s starting", version)
	log.Printf("  Incoming:  %s", cfg.IncomingDir)
	log.Printf("  Processed: %s", cfg.ProcessedDir)
	log.Printf("  Queue:     %s", cfg.QueueBackend)

	var server *http.Server
	if cfg.MetricsAddr != "" {
		server = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           r.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("Ops server listening on %s", cfg.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Ops server failed: %v", err)
			}
		}()
	}

	if err := r.Watch(ctx); err != nil {
		var fatal *watcher.FatalIngestError
		if !errors.As(err, &fatal) {
			return err
		}
		// ingestion is down, the ops server and queued work are not
		log.Printf("Error: %v - ingestion disabled", err)
		<-ctx.Done()
	}

	log.Println("Shutting down...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Ops server forced to shutdown: %v", err)
		}
	}

	return nil
}
