// Package amqp is the RabbitMQ transport for ingest requests and cost
// batches. The client carries a small circuit breaker and reconnecting
// consume loop so a flapping broker degrades ingestion instead of
// crashing the process.
package amqp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"costwatch/internal/log"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateHalfOpen
	StateOpen
)

const (
	maxFailures = 5
	openTimeout = 60 * time.Second
)

type Client struct {
	url          string
	exchangeName string
	requestQueue string
	batchQueue   string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, requestQueue, batchQueue string, logger *log.Logger) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		requestQueue: requestQueue,
		batchQueue:   batchQueue,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setupTopology(channel, c.exchangeName, c.requestQueue, c.batchQueue); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()
	return nil
}

func setupTopology(channel *amqp091.Channel, exchange string, queues ...string) error {
	err := channel.ExchangeDeclare(
		exchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range queues {
		if _, err := channel.QueueDeclare(
			queue,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		// Routing key matches the queue name on the direct exchange.
		if err := channel.QueueBind(queue, queue, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return nil
}

// PublishIngestRequest enqueues a backfill request for collectors.
func (c *Client) PublishIngestRequest(ctx context.Context, msg *IngestRequestMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal ingest request: %w", err)
	}
	if err := c.publish(ctx, c.requestQueue, body); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "published ingest request",
		log.FieldJobID, msg.JobID,
		log.FieldProvider, msg.Provider,
		log.FieldFrom, msg.Start.String(),
		log.FieldTo, msg.End.String(),
		log.FieldQueue, c.requestQueue)
	return nil
}

// PublishCostBatch enqueues one batch of cost lines for the worker.
func (c *Client) PublishCostBatch(ctx context.Context, msg *CostBatchMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal cost batch: %w", err)
	}
	if err := c.publish(ctx, c.batchQueue, body); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "published cost batch",
		log.FieldJobID, msg.JobID,
		log.FieldProvider, msg.Provider,
		log.FieldReceived, len(msg.Records),
		log.FieldQueue, c.batchQueue)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish to %s: circuit breaker is open", routingKey)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		c.recordFailure()
		return fmt.Errorf("publish to %s: not connected", routingKey)
	}

	err := channel.PublishWithContext(
		ctx,
		c.exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}
	c.recordSuccess()
	return nil
}

// ConsumeCostBatches delivers parsed batch messages to handler,
// reconnecting with backoff on connection loss. Handler errors nack and
// requeue; malformed messages are dropped.
func (c *Client) ConsumeCostBatches(ctx context.Context, handler func(context.Context, *CostBatchMessage) error) error {
	return c.consumeLoop(ctx, c.batchQueue, func(ctx context.Context, body []byte) error {
		msg, err := CostBatchMessageFromJSON(body)
		if err != nil {
			return &decodeError{err}
		}
		return handler(ctx, msg)
	})
}

// ConsumeIngestRequests delivers parsed ingest requests to handler.
func (c *Client) ConsumeIngestRequests(ctx context.Context, handler func(context.Context, *IngestRequestMessage) error) error {
	return c.consumeLoop(ctx, c.requestQueue, func(ctx context.Context, body []byte) error {
		msg, err := IngestRequestMessageFromJSON(body)
		if err != nil {
			return &decodeError{err}
		}
		return handler(ctx, msg)
	})
}

// decodeError marks messages that can never succeed and must not be
// requeued.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Client) consumeLoop(ctx context.Context, queue string, handle func(context.Context, []byte) error) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.consumeOnce(ctx, queue, handle)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		backoff := exponentialBackoff(attempt)
		attempt++
		c.logger.WarnContext(ctx, "consume connection lost, reconnecting",
			log.FieldQueue, queue, log.FieldError, err.Error(), "backoff", backoff.String())

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := c.connect(); err != nil {
			c.logger.WarnContext(ctx, "reconnect failed", log.FieldError, err.Error())
			continue
		}
		attempt = 0
	}
}

func (c *Client) consumeOnce(ctx context.Context, queue string, handle func(context.Context, []byte) error) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()
	if channel == nil {
		return fmt.Errorf("consume %s: connection closed", queue)
	}

	msgs, err := channel.Consume(
		queue,
		"",    // consumer
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", queue, err)
	}

	c.logger.InfoContext(ctx, "consuming", log.FieldQueue, queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consume %s: connection closed", queue)
			}
			if err := handle(ctx, delivery.Body); err != nil {
				if _, fatal := err.(*decodeError); fatal {
					c.logger.ErrorContext(ctx, "dropping malformed message",
						log.FieldQueue, queue, log.FieldError, err.Error())
					delivery.Nack(false, false)
					continue
				}
				c.logger.ErrorContext(ctx, "message handling failed, requeueing",
					log.FieldQueue, queue, log.FieldError, err.Error())
				delivery.Nack(false, true)
				continue
			}
			delivery.Ack(false)
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	expired := time.Since(c.lastFailure) > openTimeout
	c.mu.Unlock()
	if expired {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	count := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if count >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func exponentialBackoff(attempt int) time.Duration {
	backoff := time.Second << attempt
	if backoff > 30*time.Second || backoff <= 0 {
		return 30 * time.Second
	}
	return backoff
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection refused",
		"connection closed",
		"unexpected EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
