package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/wesm/vaultsearch/internal/api"
	"github.com/wesm/vaultsearch/internal/events"
	"github.com/wesm/vaultsearch/internal/importer"
	"github.com/wesm/vaultsearch/internal/metrics"
	"github.com/wesm/vaultsearch/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search view as a daemon with an HTTP API",
	Long: `Run vaultsearch as a long-running daemon.

The daemon runs in the foreground and performs:
  - A live search view driven over HTTP (default: 127.0.0.1:8080)
  - An event stream of entity changes at /api/v1/sse
  - Prometheus metrics at /metrics
  - Optional: a subscription to a remote event stream ([events] origin)
  - Optional: scheduled index coverage backfill ([index] backfill_schedule)

Configure in config.toml:
  [server]
  api_port = 8080
  api_key = "secret"

  [events]
  origin = "https://events.example.com"
  identifier = "laptop"

  [index]
  backfill_schedule = "0 3 * * *"   # 3am daily (cron format)
  backfill_step_days = 30

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	s, engine, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	m := metrics.New(prometheus.NewRegistry())
	bus := events.NewBus(cfg.Events.Buffer, logger)

	prompts, err := newPromptConfirmer()
	if err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if cfg.BackfillEnabled() {
		backfill := scheduler.NewBackfill(engine, cfg.Index.BackfillStepDays, logger, m)
		sched = scheduler.New(backfill.Job()).WithLogger(logger)
		if err := sched.AddJob(scheduler.BackfillJob, cfg.Index.BackfillSchedule); err != nil {
			return fmt.Errorf("schedule backfill: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(cmd.Context())

	prog, err := startView(viewOptions(ctx, engine, prompts, m))
	if err != nil {
		return err
	}

	deps := api.Deps{
		View:    prog,
		Prompts: prompts,
		Writer:  importer.New(s, bus, logger),
		Folders: engine,
		Events:  bus,
		Metrics: m,
	}

	if sched != nil {
		deps.Scheduler = sched
		sched.Start()
	}

	apiServer := api.NewServer(cfg, deps, logger)

	// Local writes and remote events both reach the view through the bus.
	g.Go(func() error {
		return bus.Pump(ctx, prog.PublishUpdates)
	})

	if cfg.EventsEnabled() {
		client := events.NewSSEClient(sseConfig(), bus.Publish, logger, m)
		g.Go(func() error {
			if err := client.Run(ctx); err != nil && !errors.Is(err, events.ErrUnauthorized) {
				return fmt.Errorf("event stream: %w", err)
			}
			// Serving local writes continues without remote events.
			return nil
		})
	}

	g.Go(func() error {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := prog.Wait(); err != nil {
			return fmt.Errorf("search view: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return shutdown(apiServer, sched, prog.Quit)
	})

	printServeInfo(apiServer, sched)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// sseConfig builds the event stream client configuration.
func sseConfig() events.SSEConfig {
	sc := events.SSEConfig{
		Origin:     cfg.Events.Origin,
		Identifier: cfg.Events.Identifier,
	}
	if cfg.Account.UserID != "" {
		sc.UserIDs = []string{cfg.Account.UserID}
	}
	return sc
}

func printServeInfo(apiServer *api.Server, sched *scheduler.Scheduler) {
	fmt.Printf("vaultsearch daemon started\n")
	fmt.Printf("  API server: http://%s\n", apiServer.Addr())
	fmt.Printf("  Data directory: %s\n", cfg.Data.DataDir)
	if cfg.EventsEnabled() {
		fmt.Printf("  Event stream: %s\n", cfg.Events.Origin)
	}
	if sched != nil {
		for _, status := range sched.Status() {
			fmt.Printf("  %s: next run at %s\n", status.Name, status.NextRun.Local().Format("2006-01-02 15:04:05"))
		}
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// shutdown stops the API server, waits for running jobs and stops the view.
func shutdown(apiServer *api.Server, sched *scheduler.Scheduler, quit func()) error {
	fmt.Println("Shutting down API server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	if sched != nil {
		fmt.Println("Waiting for running jobs to complete...")
		select {
		case <-sched.Stop().Done():
		case <-time.After(30 * time.Second):
			fmt.Println("Shutdown timed out after 30 seconds.")
		}
	}

	quit()
	fmt.Println("Shutdown complete.")
	return nil
}
