package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hitoshura25/etl-narrative-engine/internal/config"
	"github.com/hitoshura25/etl-narrative-engine/internal/logger"
)

// Consumer owns the broker connection and the worker goroutines that drain
// the main queue, dispatching each delivery into HandleDelivery.
type Consumer struct {
	broker config.BrokerConfig
	deps   *Deps
	log    logger.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	stopping bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New constructs a Consumer. deps must be fully populated before
// StartConsuming is called.
func New(broker config.BrokerConfig, deps *Deps, log logger.Logger) *Consumer {
	if log == nil {
		log = logger.NoOp{}
	}
	return &Consumer{
		broker: broker,
		deps:   deps,
		log:    log.WithComponent("consumer"),
	}
}

// StartConsuming connects to the broker, declares the topology, and blocks
// until ctx is canceled or Stop is called, then returns nil. Any connection
// failure, including the first dial, is logged and retried with exponential
// backoff (1s doubling to a 30s cap) rather than returned, so callers
// typically run it in its own goroutine.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if runCtx.Err() != nil {
			return nil
		}

		err := c.runOnce(runCtx)
		if runCtx.Err() != nil {
			return nil
		}
		if err != nil {
			c.log.Error("broker connection lost, reconnecting", "error", err.Error(), "backoff_seconds", backoff.Seconds())
		}

		select {
		case <-runCtx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOnce opens one connection/channel, declares topology, and consumes
// until the connection's close notification fires or runCtx is canceled.
func (c *Consumer) runOnce(runCtx context.Context) error {
	conn, err := amqp.DialConfig(c.broker.URL, amqp.Config{
		Properties: amqp.Table{"connection_name": "etl-narrative-engine-consumer"},
	})
	if err != nil {
		return fmt.Errorf("dialing broker: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer conn.Close()

	closeNotify := conn.NotifyClose(make(chan *amqp.Error, 1))

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.broker.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("setting qos: %w", err)
	}

	if err := declareTopology(ch, c.broker); err != nil {
		return fmt.Errorf("declaring topology: %w", err)
	}

	deliveries, err := ch.Consume(c.broker.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("registering consumer: %w", err)
	}

	c.log.Info("consumer_started", "queue", c.broker.QueueName, "prefetch", c.broker.PrefetchCount)

	for {
		select {
		case <-runCtx.Done():
			return nil
		case amqpErr, ok := <-closeNotify:
			if !ok {
				return nil
			}
			if amqpErr != nil {
				return fmt.Errorf("connection closed: %s", amqpErr.Error())
			}
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.wg.Add(1)
			go func(d amqp.Delivery) {
				defer c.wg.Done()
				HandleDelivery(runCtx, c.deps, d.Body, d.RoutingKey, &amqpAcker{delivery: d})
			}(delivery)
		}
	}
}

// declareTopology declares the topic exchange, main queue, dead-letter
// queue, and the binding between them, matching the original Python
// consumer's startup sequence exactly.
func declareTopology(ch *amqp.Channel, broker config.BrokerConfig) error {
	if err := ch.ExchangeDeclare(broker.ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange: %w", err)
	}

	queue, err := ch.QueueDeclare(broker.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declaring queue: %w", err)
	}

	if err := ch.QueueBind(queue.Name, broker.RoutingKeyPattern, broker.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("binding queue: %w", err)
	}

	if _, err := ch.QueueDeclare(broker.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring dead letter queue: %w", err)
	}

	return nil
}

// Stop cancels the consuming context and waits for in-flight deliveries to
// settle. Safe to call more than once.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	c.log.Info("stopping_consumer")
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.log.Warn("shutdown grace period elapsed with deliveries still in flight")
	}

	if conn != nil && !conn.IsClosed() {
		if err := conn.Close(); err != nil {
			return err
		}
	}
	c.log.Info("consumer_stopped")
	return nil
}

// amqpAcker adapts an amqp091-go Delivery to the pipeline's narrow Acker
// contract so HandleDelivery never imports the broker package directly.
type amqpAcker struct {
	delivery amqp.Delivery
}

func (a *amqpAcker) Ack() error           { return a.delivery.Ack(false) }
func (a *amqpAcker) NackRequeue() error   { return a.delivery.Nack(false, true) }
func (a *amqpAcker) NackNoRequeue() error { return a.delivery.Nack(false, false) }
