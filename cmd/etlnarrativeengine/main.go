// Command etlnarrativeengine runs the ETL Narrative Engine consumer: it
// loads configuration, wires the deduplication store, object-store client,
// Avro reader, clinical processor registry, training emitter, and retry
// scheduler together, then consumes from the broker until signaled to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hitoshura25/etl-narrative-engine/internal/avroreader"
	"github.com/hitoshura25/etl-narrative-engine/internal/clinical"
	"github.com/hitoshura25/etl-narrative-engine/internal/config"
	"github.com/hitoshura25/etl-narrative-engine/internal/consumer"
	"github.com/hitoshura25/etl-narrative-engine/internal/dedup"
	"github.com/hitoshura25/etl-narrative-engine/internal/logger"
	"github.com/hitoshura25/etl-narrative-engine/internal/objectstore"
	"github.com/hitoshura25/etl-narrative-engine/internal/retryscheduler"
	"github.com/hitoshura25/etl-narrative-engine/internal/telemetry"
	"github.com/hitoshura25/etl-narrative-engine/internal/trainingemitter"
)

const shutdownGracePeriod = 30 * time.Second

func main() {
	log := logger.NewDefault().WithComponent("main")

	if err := run(log); err != nil {
		log.Error("fatal startup error", "error", err.Error())
		os.Exit(1)
	}
}

func run(log logger.Logger) error {
	cfg, err := config.New(config.WithFile(configOverlayPath()))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.SetLevel(cfg.Logging.Level)

	if ran, err := maybeRunEnqueueCommand(cfg, log); ran {
		return err
	}

	telem, err := telemetry.New(&cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("bootstrapping telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telem.Shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown error", "error", err.Error())
		}
	}()

	store, err := dedup.New(&cfg.Dedup, log)
	if err != nil {
		return fmt.Errorf("constructing dedup store: %w", err)
	}
	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Initialize(initCtx); err != nil {
		return fmt.Errorf("initializing dedup store: %w", err)
	}
	defer store.Close()

	objects, err := objectstore.New(&cfg.ObjectStore, log)
	if err != nil {
		return fmt.Errorf("constructing object store client: %w", err)
	}

	schedulerConn, err := amqp.Dial(cfg.Broker.URL)
	if err != nil {
		return fmt.Errorf("dialing broker for retry scheduler: %w", err)
	}
	defer schedulerConn.Close()
	schedulerChannel, err := schedulerConn.Channel()
	if err != nil {
		return fmt.Errorf("opening retry-scheduler channel: %w", err)
	}
	defer schedulerChannel.Close()

	deps := &consumer.Deps{
		Store:       store,
		Objects:     objects,
		Avro:        avroreader.New(log),
		Processors:  clinical.NewRegistry(),
		Emitter:     trainingemitter.New(store, objects, log, cfg.Training.IncludeClinicalInsights),
		Scheduler:   retryscheduler.New(schedulerChannel, cfg.Broker.ExchangeName, cfg.Broker.QueueName, log),
		Metrics:     telem,
		Log:         log,
		Processing:  cfg.Processing,
		MaxRetries:  cfg.Broker.MaxRetries,
		RetryDelays: cfg.Broker.RetryDelays,
	}

	c := consumer.New(cfg.Broker, deps, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.StartConsuming(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("consumer exited unexpectedly", "error", err.Error())
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancelShutdown()
	return c.Stop(shutdownCtx)
}

// configOverlayPath returns the optional YAML overlay path, defaulting to a
// conventional location that WithFile treats as absent if it doesn't exist.
func configOverlayPath() string {
	if path := os.Getenv("ETL_CONFIG_FILE"); path != "" {
		return path
	}
	return "./config.yaml"
}
