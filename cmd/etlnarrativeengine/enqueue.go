package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hitoshura25/etl-narrative-engine/internal/config"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
	"github.com/hitoshura25/etl-narrative-engine/internal/logger"
)

// enqueueTestMessage publishes one well-formed ProcessingEnvelope onto the
// main exchange, for operators exercising a consumer deployment without the
// upstream upload service running. message_id/correlation_id generation
// mirrors the upload service's own use of a random UUID per upload.
func enqueueTestMessage(cfg *config.Config, log logger.Logger, recordType, objectKey, userID string) error {
	conn, err := amqp.Dial(cfg.Broker.URL)
	if err != nil {
		return fmt.Errorf("dialing broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	env := envelope.ProcessingEnvelope{
		MessageID:       uuid.NewString(),
		CorrelationID:   uuid.NewString(),
		UserID:          userID,
		RecordType:      envelope.RecordType(recordType),
		ObjectKey:       objectKey,
		Bucket:          cfg.ObjectStore.Bucket,
		UploadTimestamp: time.Now().UTC(),
		IdempotencyKey:  fmt.Sprintf("%s:%s", userID, uuid.NewString()),
		RoutingKey:      fmt.Sprintf("%s.%s", cfg.Broker.ExchangeName, recordType),
	}
	if err := env.Validate(); err != nil {
		return fmt.Errorf("building test envelope: %w", err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ch.PublishWithContext(ctx, cfg.Broker.ExchangeName, env.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publishing test envelope: %w", err)
	}

	log.Info("test_message_enqueued", "message_id", env.MessageID, "record_type", recordType, "object_key", objectKey)
	return nil
}

// maybeRunEnqueueCommand handles the `-enqueue-test` flag set, returning
// true if it ran (and the process should exit) rather than starting the
// consumer loop.
func maybeRunEnqueueCommand(cfg *config.Config, log logger.Logger) (bool, error) {
	enqueue := flag.Bool("enqueue-test", false, "publish one test envelope to the broker and exit")
	recordType := flag.String("record-type", string(envelope.StepsRecord), "record_type for the test envelope")
	objectKey := flag.String("object-key", "", "object store key for the test envelope")
	userID := flag.String("user-id", "test-user", "user_id for the test envelope")
	flag.Parse()

	if !*enqueue {
		return false, nil
	}
	if *objectKey == "" {
		return true, fmt.Errorf("-object-key is required with -enqueue-test")
	}
	return true, enqueueTestMessage(cfg, log, *recordType, *objectKey, *userID)
}
