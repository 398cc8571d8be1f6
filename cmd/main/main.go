package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"catalog-sync/internal/config"
	"catalog-sync/internal/connector"
	recHnd "catalog-sync/internal/reconcile/handler"
	"catalog-sync/internal/reconcile/service"
	"catalog-sync/internal/schedule"
	"catalog-sync/internal/store"
	"catalog-sync/internal/syncer"
	serverhttp "catalog-sync/server/http"
)

// backend is what both store implementations provide.
type backend interface {
	store.Catalogue
	store.AuditSink
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}
	logger := config.SetupLogger(cfg)

	db, closer, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store")
	}
	defer closer.Close()

	client := &http.Client{Timeout: cfg.ConnectorTimeout}
	reg := connector.NewRegistry()
	reg.RegisterSupplier("http", connector.NewHTTPSupplier(client))
	reg.RegisterSupplier("feed", connector.NewFeedSupplier())
	reg.RegisterChannel("flat", connector.NewFlatChannel(client))
	reg.RegisterChannel("nested", connector.NewNestedChannel(client))

	orch := syncer.NewOrchestrator(db, db, reg, syncer.Options{
		SourceWorkers:    cfg.SourceWorkers,
		ConnectorTimeout: cfg.ConnectorTimeout,
		PullPageSize:     cfg.PullPageSize,
	}, logger)
	svc := syncer.NewService(db, db, orch, service.Options{
		Threshold: cfg.MatchThreshold,
		Workers:   cfg.DedupeWorkers,
	}, logger)

	var listener recHnd.ConfigListener
	var sched *schedule.Scheduler
	if cfg.SchedulerEnabled {
		sched = schedule.New(svc, logger)
		if err := sched.Start(); err != nil {
			logger.Fatal().Err(err).Msg("scheduler")
		}
		listener = sched
	}

	r := serverhttp.NewRouter(cfg, logger, recHnd.New(svc, listener, cfg.MaxUploadMB), db)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info().Str("addr", cfg.Addr()).Bool("persistent", cfg.DBPath != "").Msg("server starting")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if sched != nil {
		sched.Stop(ctx)
	}
	logger.Info().Msg("bye")
}

func openStore(cfg config.Config, logger zerolog.Logger) (backend, io.Closer, error) {
	if cfg.DBPath == "" {
		logger.Warn().Msg("db_path is empty, catalogue is kept in memory")
		return store.NewMemory(), nopCloser{}, nil
	}
	b, err := store.OpenBolt(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return b, b, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
