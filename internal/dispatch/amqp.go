package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"clippress/internal/logging"
)

type jobEnvelope struct {
	Handle  string            `json:"handle"`
	JobName string            `json:"job_name"`
	Args    map[string]string `json:"args"`
}

// AMQPDispatcher publishes job envelopes to a RabbitMQ queue and consumes
// them with the shared handler registry. Revocation is advisory: revoked
// handles are recorded locally and skipped before execution, but a job
// already running on a consumer cannot be stopped remotely.
type AMQPDispatcher struct {
	registry  *Registry
	logger    *slog.Logger
	queueName string

	conn    *amqp.Connection
	channel *amqp.Channel

	mu      sync.Mutex
	revoked map[Handle]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewAMQPDispatcher connects to RabbitMQ and declares the durable job queue.
func NewAMQPDispatcher(registry *Registry, logger *slog.Logger, url, queueName string) (*AMQPDispatcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dispatch: connect amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("dispatch: open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("dispatch: declare queue: %w", err)
	}
	return &AMQPDispatcher{
		registry:  registry,
		logger:    logger,
		queueName: queueName,
		conn:      conn,
		channel:   channel,
		revoked:   make(map[Handle]struct{}),
	}, nil
}

// Submit publishes a job envelope and returns its handle.
func (d *AMQPDispatcher) Submit(ctx context.Context, jobName string, args map[string]string) (Handle, error) {
	if _, ok := d.registry.Lookup(jobName); !ok {
		return "", fmt.Errorf("dispatch: unknown job %q", jobName)
	}
	handle := uuid.NewString()
	body, err := json.Marshal(jobEnvelope{Handle: handle, JobName: jobName, Args: args})
	if err != nil {
		return "", fmt.Errorf("dispatch: marshal envelope: %w", err)
	}
	err = d.channel.PublishWithContext(ctx, "", d.queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("dispatch: publish job: %w", err)
	}
	return handle, nil
}

// Consume runs the consumer loop until ctx is cancelled. It should be started
// once per worker process.
func (d *AMQPDispatcher) Consume(ctx context.Context) error {
	deliveries, err := d.channel.Consume(d.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("dispatch: consume: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				d.handleDelivery(ctx, delivery)
			}
		}
	}()
	return nil
}

func (d *AMQPDispatcher) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var envelope jobEnvelope
	if err := json.Unmarshal(delivery.Body, &envelope); err != nil {
		d.logger.Error("discarding malformed job envelope", logging.Error(err))
		_ = delivery.Reject(false)
		return
	}

	if d.isRevoked(envelope.Handle) {
		_ = delivery.Ack(false)
		return
	}

	handler, ok := d.registry.Lookup(envelope.JobName)
	if !ok {
		d.logger.Error("no handler for job", logging.String(logging.FieldJobName, envelope.JobName))
		_ = delivery.Reject(false)
		return
	}

	if err := handler(ctx, envelope.Args); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("job handler returned error",
			logging.String(logging.FieldJobName, envelope.JobName),
			logging.String(logging.FieldJobHandle, envelope.Handle),
			logging.Error(err),
		)
	}
	_ = delivery.Ack(false)
}

func (d *AMQPDispatcher) isRevoked(handle Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, revoked := d.revoked[handle]
	return revoked
}

// Revoke marks a handle so the consumer skips it before execution.
func (d *AMQPDispatcher) Revoke(handle Handle, _ bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[handle] = struct{}{}
	return nil
}

// Close shuts down the channel and connection after the consumer drains.
func (d *AMQPDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if err := d.channel.Close(); err != nil {
		_ = d.conn.Close()
		return err
	}
	err := d.conn.Close()
	d.wg.Wait()
	return err
}
