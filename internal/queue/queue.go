// Package queue carries classification jobs and description requests over
// RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JaimeStill/vigil/internal/metrics"
	"github.com/JaimeStill/vigil/pkg/lifecycle"
)

var (
	// ErrMalformed marks a message that can never be processed. It is
	// rejected without requeue.
	ErrMalformed = errors.New("malformed message")
	// ErrRequeue marks a failure whose outcome could not be recorded. The
	// message is returned to the queue.
	ErrRequeue = errors.New("requeue message")
	// ErrNotConnected is returned by Publish before the broker connection is open.
	ErrNotConnected = errors.New("broker not connected")
)

// HandlerFunc processes one message body.
type HandlerFunc func(ctx context.Context, body []byte) error

// Publisher sends JSON messages to a named queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, v any) error
}

// Broker owns the AMQP connection, a publishing channel, and consumers.
type Broker struct {
	cfg    *Config
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	pub  *amqp.Channel

	ready atomic.Bool
}

// New creates a Broker. No connection is made until Start.
func New(cfg *Config, logger *slog.Logger) *Broker {
	return &Broker{
		cfg:    cfg,
		logger: logger.With("system", "queue"),
	}
}

// Ready reports whether the broker connection and publishing channel are open.
func (b *Broker) Ready() bool {
	return b.ready.Load()
}

// Start registers startup and shutdown hooks that open and close the broker connection.
func (b *Broker) Start(lc *lifecycle.Coordinator) error {
	b.logger.Info("starting broker connection", "classify_queue", b.cfg.ClassifyQueue)

	lc.OnStartup(func() {
		if err := b.connect(); err != nil {
			b.logger.Error("broker connect failed", "error", err)
			return
		}
		b.logger.Info("broker connection established")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		b.close()
	})

	return nil
}

func (b *Broker) connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil && !b.conn.IsClosed() {
		return nil
	}

	conn, err := amqp.Dial(b.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open publish channel: %w", err)
	}

	for _, name := range []string{b.cfg.ClassifyQueue, b.cfg.DescribeQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
	}

	b.conn = conn
	b.pub = ch

	b.ready.Store(true)
	metrics.QueueConnected.Set(1)
	return nil
}

func (b *Broker) close() {
	b.ready.Store(false)
	metrics.QueueConnected.Set(0)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pub != nil {
		if err := b.pub.Close(); err != nil {
			b.logger.Warn("publish channel close failed", "error", err)
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			b.logger.Warn("broker connection close failed", "error", err)
			return
		}
	}
	b.logger.Info("broker connection closed")
}

// Publish sends v as a persistent JSON message to the named queue.
func (b *Broker) Publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	b.mu.Lock()
	ch := b.pub
	b.mu.Unlock()
	if ch == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeoutDuration())
	defer cancel()

	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// Consume runs a bounded worker pool over deliveries from queue until lc
// shuts down. A dropped channel is reopened after the reconnect delay.
func (b *Broker) Consume(lc *lifecycle.Coordinator, queue string, handler HandlerFunc) {
	lc.Go(func(ctx context.Context) {
		delay := b.cfg.ReconnectDelayDuration()
		for {
			if err := b.consume(ctx, queue, handler); err != nil {
				b.logger.Error("consumer stopped", "queue", queue, "error", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	})
}

func (b *Broker) consume(ctx context.Context, queue string, handler HandlerFunc) error {
	if err := b.connect(); err != nil {
		return err
	}

	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	b.logger.Info("consuming", "queue", queue, "workers", b.cfg.Workers)

	var wg sync.WaitGroup
	for range b.cfg.Workers {
		wg.Go(func() {
			for d := range deliveries {
				metrics.QueueLastDelivery.Set(metrics.NowUnixSeconds())
				metrics.QueueInFlight.Inc()
				Dispatch(ctx, d, d.Body, handler, b.logger)
				metrics.QueueInFlight.Dec()
			}
		})
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("delivery channel for %s closed", queue)
}

// Acknowledger settles a delivery. amqp.Delivery satisfies it.
type Acknowledger interface {
	Ack(multiple bool) error
	Reject(requeue bool) error
}

// Dispatch runs handler on body and settles the delivery. Success and
// recorded failures are acknowledged, ErrMalformed is rejected, and
// ErrRequeue returns the message to the queue.
func Dispatch(ctx context.Context, d Acknowledger, body []byte, handler HandlerFunc, logger *slog.Logger) {
	err := handler(ctx, body)

	var settleErr error
	switch {
	case err == nil:
		settleErr = d.Ack(false)
	case errors.Is(err, ErrMalformed):
		logger.WarnContext(ctx, "rejecting malformed message", "error", err)
		settleErr = d.Reject(false)
	case errors.Is(err, ErrRequeue):
		logger.WarnContext(ctx, "requeueing message", "error", err)
		settleErr = d.Reject(true)
	default:
		logger.InfoContext(ctx, "message processed with recorded failure", "error", err)
		settleErr = d.Ack(false)
	}

	if settleErr != nil {
		logger.ErrorContext(ctx, "settle delivery failed", "error", settleErr)
	}
}
