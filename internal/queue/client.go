// Package queue wraps an AMQP 0.9.1 channel for the task worker: consuming
// check_email tasks, acknowledging or rejecting them, and publishing
// single-shot RPC replies to a caller-supplied reply queue.
package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// TaskQueueName is the queue the worker consumes check_email tasks from.
const TaskQueueName = "tasks:check_email"

// Webhook describes a per-task callback fired after the pipeline completes.
type Webhook struct {
	OnEachEmail *struct {
		URL   string      `json:"url"`
		Extra interface{} `json:"extra,omitempty"`
	} `json:"on_each_email,omitempty"`
}

// Task is the broker → worker message body.
type Task struct {
	Input   interface{} `json:"input"`
	JobID   *int        `json:"job_id"`
	Webhook *Webhook    `json:"webhook"`
}

// IsSingleShot reports whether this task lacks a job_id: single-shot tasks
// reply synchronously, bulk tasks persist their result instead.
func (t Task) IsSingleShot() bool {
	return t.JobID == nil
}

// Connection bundles the AMQP connection and channel the worker uses. A
// single channel is shared across worker goroutines; amqp091-go channels are
// safe for concurrent Publish calls but not for concurrent Consume loops on
// the same consumer tag, so each worker goroutine calls Consume with its own
// tag against the same channel.
type Connection struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to the broker at addr and opens a single channel, declaring
// the task queue durable so tasks survive a broker restart.
func Dial(addr string) (*Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp qos: %w", err)
	}

	if _, err := ch.QueueDeclare(TaskQueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}

	return &Connection{conn: conn, ch: ch}, nil
}

// Close tears down the channel and connection.
func (c *Connection) Close() error {
	if err := c.ch.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

// Consume opens a delivery stream under the given consumer tag. Each worker
// goroutine should use a distinct tag.
func (c *Connection) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	return c.ch.Consume(TaskQueueName, consumerTag, false, false, false, false, nil)
}

// Ack acknowledges a single delivery.
func (c *Connection) Ack(d amqp.Delivery) error {
	return d.Ack(false)
}

// RejectRequeue rejects a delivery and asks the broker to requeue it.
func (c *Connection) RejectRequeue(d amqp.Delivery) error {
	return d.Reject(true)
}

// RejectPoison rejects a delivery without requeue — used only for messages
// whose body fails to parse.
func (c *Connection) RejectPoison(d amqp.Delivery) error {
	return d.Reject(false)
}

// PublishReply publishes payload to replyTo with the given correlation id
// and content-type application/json, replying in RPC mode to the queue that
// initiated the request.
func (c *Connection) PublishReply(ctx context.Context, replyTo, correlationID string, payload []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.ch.PublishWithContext(pubCtx, "", replyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          payload,
	})
}
