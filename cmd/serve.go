package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MimeLyc/subtube/internal/config"
	"github.com/MimeLyc/subtube/internal/httpapi"
	"github.com/MimeLyc/subtube/internal/jobs"
	"github.com/MimeLyc/subtube/internal/library"
	"github.com/MimeLyc/subtube/internal/service"
	"github.com/MimeLyc/subtube/pkg/log"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const finishedJobRetention = 7 * 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the job queue and the watchlist schedule",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if n, err := store.PruneJobsBefore(cmd.Context(), time.Now().Add(-finishedJobRetention)); err != nil {
		log.Warn("Failed to prune finished jobs: %v", err)
	} else if n > 0 {
		log.Info("Pruned %d finished jobs", n)
	}

	queue := jobs.NewQueue(1, store)
	engine := cron.New()
	svc := service.New(*cfg, store, service.WithQueue(queue), service.WithCron(engine))
	svc.Start()
	defer queue.Stop()

	opts := []httpapi.Option{
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
		httpapi.WithSchedule(svc),
		httpapi.WithRuntimeSettingsApplier(svc.ApplyRuntimeSettings),
	}
	settings, err := config.NewRuntimeSettingsStore(config.RuntimeSettingsFilePath(), cfg.RuntimeSettings())
	if err != nil {
		log.Warn("Runtime settings disabled: %v", err)
	} else {
		opts = append(opts, httpapi.WithRuntimeSettingsStore(settings))
	}
	srv := httpapi.NewServer(library.NewManager(store), queue, svc, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runWithComponents(ctx, cfg, svc, engine, srv)
}

// runWithComponents schedules the watchlist, starts cron and serves HTTP
// until ctx is done.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, engine cronEngine, srv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}
	engine.Start()
	defer func() {
		<-engine.Stop().Done()
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}
