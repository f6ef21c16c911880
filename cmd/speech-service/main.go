// main package for the speech-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/auraread/speech-service/internal/artifact"
	"github.com/auraread/speech-service/internal/config"
	"github.com/auraread/speech-service/internal/httpapi"
	"github.com/auraread/speech-service/internal/objectstore"
	"github.com/auraread/speech-service/internal/service"
	"github.com/auraread/speech-service/internal/speech"
	"github.com/auraread/speech-service/internal/worker"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "speech-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := logger.New(os.TempDir(), "speech-service-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	tempDir := artifact.ResolveDir(cfg.Speech.TempDir)

	dirErr := artifact.EnsureDir(tempDir)
	if dirErr != nil {
		return fmt.Errorf("failed to prepare audio directory: %w", dirErr)
	}

	registry := speech.NewRegistry(ctx, log, service.Backends(cfg, tempDir, log)...)
	orchestrator := speech.New(registry, cfg.BackendTimeout(), log)

	var (
		natsConnection   *nats.Conn
		jetstreamContext nats.JetStreamContext
	)

	if cfg.NATS.URL != "" {
		var err error

		natsConnection, jetstreamContext, err = connectNATS(cfg.NATS.URL)
		if err != nil {
			return err
		}

		defer natsConnection.Close()
	}

	directory, err := service.Documents(ctx, cfg, jetstreamContext)
	if err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.Worker.Enabled {
		natsWorker, workerErr := newWorker(cfg, natsConnection, jetstreamContext, orchestrator, log)
		if workerErr != nil {
			return workerErr
		}

		group.Go(func() error { return natsWorker.Run(groupCtx) })
	}

	server := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: httpapi.NewRouter(orchestrator, directory, routerOptions(cfg), log),
	}

	group.Go(func() error {
		log.System("Speech service listening on %s with engines %v", cfg.Server.ListenAddress, orchestrator.Engines())

		listenErr := server.ListenAndServe()
		if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", listenErr)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()

		log.System("Shutting down speech service")

		shutdownErr := server.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", shutdownErr)
		}

		return nil
	})

	return group.Wait()
}

func connectNATS(url string) (*nats.Conn, nats.JetStreamContext, error) {
	natsConnection, err := nats.Connect(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return natsConnection, jetstreamContext, nil
}

func newWorker(
	cfg *config.Config,
	natsConnection *nats.Conn,
	jetstreamContext nats.JetStreamContext,
	orchestrator *speech.Orchestrator,
	log *logger.Logger,
) (*worker.NatsWorker, error) {
	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	natsWorker, err := worker.NewNatsWorker(natsConnection, worker.Options{
		Subject:         cfg.NATS.TextProcessedSubject,
		ReplySubject:    cfg.NATS.AudioChunkCreatedSubject,
		DefaultLanguage: cfg.Speech.DefaultLanguage,
		PreferOffline:   !cfg.Worker.PreferOnline,
		HandleTimeout:   cfg.HandleTimeout(),
	}, store, orchestrator, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	return natsWorker, nil
}

func routerOptions(cfg *config.Config) httpapi.Options {
	return httpapi.Options{
		AuthTokens:      cfg.Server.AuthTokens,
		DefaultLanguage: cfg.Speech.DefaultLanguage,
		Mode:            cfg.Server.Mode,
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
