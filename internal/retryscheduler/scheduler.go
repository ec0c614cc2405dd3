// Package retryscheduler implements the retry-scheduling protocol (C8): it
// declares per-delay TTL queues on demand and publishes delayed re-enqueue
// messages that dead-letter back to the main exchange once their TTL
// expires.
package retryscheduler

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
	"github.com/hitoshura25/etl-narrative-engine/internal/logger"
)

// Channel is the subset of *amqp.Channel the scheduler needs; narrowed to
// an interface so tests can substitute a fake.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Scheduler publishes delayed re-enqueue messages onto TTL-bounded delay
// queues, one per distinct delay duration.
type Scheduler struct {
	ch           Channel
	mainExchange string
	mainQueue    string
	log          logger.Logger
}

// New constructs a Scheduler bound to the given channel, main exchange, and
// main queue name (used to derive delay queue names).
func New(ch Channel, mainExchange, mainQueue string, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NoOp{}
	}
	return &Scheduler{ch: ch, mainExchange: mainExchange, mainQueue: mainQueue, log: log}
}

// ScheduleRetry increments env.RetryCount, declares (if needed) the delay
// queue for delaySeconds, and publishes env onto it. The broker dead-letters
// the message back to the main exchange under env's original routing key
// once the TTL expires.
func (s *Scheduler) ScheduleRetry(ctx context.Context, env *envelope.ProcessingEnvelope, delaySeconds int) error {
	if delaySeconds <= 0 {
		return fmt.Errorf("retryscheduler: delaySeconds must be positive, got %d", delaySeconds)
	}

	routingKey := env.RoutingKey
	if routingKey == "" {
		routingKey = s.mainQueue
	}

	queueName := DelayQueueName(s.mainQueue, delaySeconds)

	_, err := s.ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{
		"x-message-ttl":             int32(delaySeconds * 1000),
		"x-dead-letter-exchange":    s.mainExchange,
		"x-dead-letter-routing-key": routingKey,
	})
	if err != nil {
		return fmt.Errorf("retryscheduler: declaring delay queue %q: %w", queueName, err)
	}

	retried := *env
	retried.RetryCount = env.RetryCount + 1

	body, err := json.Marshal(retried)
	if err != nil {
		return fmt.Errorf("retryscheduler: marshaling retry envelope: %w", err)
	}

	if err := s.ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("retryscheduler: publishing to delay queue %q: %w", queueName, err)
	}

	s.log.Info("scheduled delayed retry", "delay_queue", queueName, "delay_seconds", delaySeconds, "retry_count", retried.RetryCount)
	return nil
}

// DelayQueueName derives the per-delay TTL queue name from the main queue
// name, matching the `<main_queue>_delay_<D>s` naming convention.
func DelayQueueName(mainQueue string, delaySeconds int) string {
	return fmt.Sprintf("%s_delay_%ds", mainQueue, delaySeconds)
}
