package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// RetryJob asks a worker to rerun evaluation for one session.
type RetryJob struct {
	SessionID string `json:"session_id"`
	Attempt   int    `json:"attempt"`
}

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishRetry enqueues an evaluation retry for immediate pickup.
func (p *Publisher) PublishRetry(ctx context.Context, sessionID string) error {
	return publish(ctx, p.ch, p.queue, RetryJob{SessionID: sessionID}, 0)
}

// declareTopology sets up the main queue, a delay queue that dead-letters
// back to main once a message expires, and a DLQ for rejected messages.
func declareTopology(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := retryQueue(queue)
	dlqQ := dlqQueue(queue)

	if _, err := ch.QueueDeclare(dlqQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", dlqQ, err)
	}
	if _, err := ch.QueueDeclare(retryQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": mainQ,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", retryQ, err)
	}
	if _, err := ch.QueueDeclare(mainQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqQ,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", mainQ, err)
	}
	return nil
}

// publish sends job to queue. A positive delay sets a per-message TTL, which
// is only meaningful on the retry queue.
func publish(ctx context.Context, ch *amqp.Channel, queue string, job RetryJob, delay time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	}
	if delay > 0 {
		msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}
	if err := ch.PublishWithContext(cctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

func retryQueue(queue string) string { return queue + ".retry" }
func dlqQueue(queue string) string   { return queue + ".dlq" }
