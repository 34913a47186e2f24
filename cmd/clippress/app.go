package main

import (
	"context"
	"fmt"
	"log/slog"

	"clippress/internal/ai"
	"clippress/internal/blob"
	"clippress/internal/config"
	"clippress/internal/dispatch"
	"clippress/internal/ingest"
	"clippress/internal/logging"
	"clippress/internal/notify"
	"clippress/internal/processing"
	"clippress/internal/publish"
	"clippress/internal/store"
)

// app holds the wired service stack shared by the CLI commands and the
// serve loop.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	blobs      *blob.Store
	registry   *dispatch.Registry
	dispatcher dispatch.Dispatcher
	ingest     *ingest.Service
	processing *processing.Orchestrator
	publish    *publish.Service
}

func buildApp(cfg *config.Config) (*app, error) {
	logger, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return buildAppWithLogger(cfg, logger)
}

func buildAppWithLogger(cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	blobs, err := blob.NewStore(cfg.Paths.BlobDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	registry := dispatch.NewRegistry()
	dispatcher, err := newDispatcher(cfg, registry, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	transcriber, err := ai.NewTranscriber(cfg)
	if err != nil {
		dispatcher.Close()
		st.Close()
		return nil, err
	}
	analyzer, err := ai.NewAnalyzer(cfg)
	if err != nil {
		dispatcher.Close()
		st.Close()
		return nil, err
	}

	notifier := notify.NewNotifier(cfg, logger)

	orchestrator := processing.NewOrchestrator(cfg, st, blobs, dispatcher, transcriber, analyzer, notifier, logger)
	ingestService := ingest.NewService(cfg, st, blobs, dispatcher, orchestrator, logger)
	publishService := publish.NewService(cfg, st, blobs, dispatcher, publish.NewHTTPPlatformClient(0), notifier, logger)

	ingestService.RegisterJobs(registry)
	orchestrator.RegisterJobs(registry)
	publishService.RegisterJobs(registry)

	if err := seedPlatforms(cfg, st); err != nil {
		dispatcher.Close()
		st.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		blobs:      blobs,
		registry:   registry,
		dispatcher: dispatcher,
		ingest:     ingestService,
		processing: orchestrator,
		publish:    publishService,
	}, nil
}

func newDispatcher(cfg *config.Config, registry *dispatch.Registry, logger *slog.Logger) (dispatch.Dispatcher, error) {
	switch cfg.Dispatcher.Mode {
	case "amqp":
		dispatcher, err := dispatch.NewAMQPDispatcher(registry, logger, cfg.Dispatcher.AMQPURL, cfg.Dispatcher.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("connect job broker: %w", err)
		}
		return dispatcher, nil
	default:
		return dispatch.NewLocalDispatcher(registry, logger, cfg.Workflow.WorkerCount), nil
	}
}

// seedPlatforms pushes the configured platform targets into the store so
// publish validation sees the current limits.
func seedPlatforms(cfg *config.Config, st *store.Store) error {
	ctx := context.Background()
	for _, seed := range cfg.Platforms {
		platform := &store.Platform{
			Name:             seed.Name,
			Endpoint:         seed.Endpoint,
			AccessToken:      seed.AccessToken,
			Active:           seed.Active,
			MaxVideoBytes:    seed.MaxVideoBytes,
			MaxDurationSecs:  seed.MaxDurationSecs,
			SupportedFormats: seed.SupportedFormats,
		}
		if err := st.UpsertPlatform(ctx, platform); err != nil {
			return fmt.Errorf("seed platform %s: %w", seed.Name, err)
		}
	}
	return nil
}

// shutdown tears the stack down. With drain set, in-process jobs are allowed
// to finish first so one-shot commands complete the work they queued.
func (a *app) shutdown(drain bool) {
	if drain {
		if local, ok := a.dispatcher.(*dispatch.LocalDispatcher); ok {
			local.Drain()
		}
	}
	if err := a.dispatcher.Close(); err != nil {
		a.logger.Warn("close dispatcher", logging.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", logging.Error(err))
	}
}
