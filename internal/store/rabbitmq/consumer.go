package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MikeSquared-Agency/drill/internal/evaluation"
	"github.com/MikeSquared-Agency/drill/internal/session"
)

const (
	DefaultConcurrency = 2
	MaxConcurrency     = 50
	DefaultMaxAttempts = 5
	baseRetryDelay     = 5 * time.Second
)

// Retrier reruns the scoring step for a session.
type Retrier interface {
	RetryEvaluation(ctx context.Context, id uuid.UUID) (*session.TrainingSession, error)
}

type action int

const (
	actionAck action = iota
	actionRetry
	actionReject
)

func (a action) String() string {
	switch a {
	case actionAck:
		return "ack"
	case actionRetry:
		return "retry"
	}
	return "reject"
}

// Consumer is a bounded worker pool over the retry queue.
type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
	maxAttempts int
	retrier     Retrier
	logger      *slog.Logger
}

func NewConsumer(url, queue string, concurrency int, retrier Retrier, logger *slog.Logger) (*Consumer, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

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
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}

	return &Consumer{
		conn:        conn,
		ch:          ch,
		queue:       queue,
		concurrency: concurrency,
		maxAttempts: DefaultMaxAttempts,
		retrier:     retrier,
		logger:      logger,
	}, nil
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// Run consumes until ctx is cancelled or the delivery channel closes, then
// drains the workers.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("retry worker started", "queue", c.queue, "concurrency", c.concurrency)

	jobs := make(chan amqp.Delivery, c.concurrency*2)
	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				c.deliver(ctx, workerID, d)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("retry worker shutting down")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, workerID int, d amqp.Delivery) {
	start := time.Now()
	job, act, err := c.process(ctx, d.Body)

	log := c.logger.With("worker", workerID, "session_id", job.SessionID, "attempt", job.Attempt, "action", act.String(), "cost", time.Since(start))
	switch act {
	case actionAck:
		if err := d.Ack(false); err != nil {
			log.Error("ack failed", "error", err)
		}
		return
	case actionRetry:
		next := RetryJob{SessionID: job.SessionID, Attempt: job.Attempt + 1}
		if perr := publish(ctx, c.ch, retryQueue(c.queue), next, retryDelay(job.Attempt)); perr != nil {
			log.Error("schedule retry failed", "error", perr)
			_ = d.Nack(false, false)
			return
		}
		log.Warn("evaluation retry scheduled", "error", err)
		_ = d.Ack(false)
	default:
		log.Error("retry job rejected", "error", err)
		_ = d.Nack(false, false)
	}
}

// process runs one job and decides what happens to its delivery.
func (c *Consumer) process(ctx context.Context, body []byte) (RetryJob, action, error) {
	var job RetryJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, actionReject, fmt.Errorf("bad message: %w", err)
	}
	id, err := uuid.Parse(job.SessionID)
	if err != nil {
		return job, actionReject, fmt.Errorf("bad session id %q: %w", job.SessionID, err)
	}

	_, err = c.retrier.RetryEvaluation(ctx, id)
	return job, decide(err, job.Attempt, c.maxAttempts), err
}

func decide(err error, attempt, maxAttempts int) action {
	if err == nil {
		return actionAck
	}
	transient := errors.Is(err, evaluation.ErrUnavailable) ||
		errors.Is(err, evaluation.ErrInvalidResponse) ||
		errors.Is(err, session.ErrPersistence) ||
		errors.Is(err, session.ErrTransitionInFlight)
	if transient && attempt+1 < maxAttempts {
		return actionRetry
	}
	return actionReject
}

// retryDelay doubles per attempt, capped at 16x the base.
func retryDelay(attempt int) time.Duration {
	if attempt > 4 {
		attempt = 4
	}
	return baseRetryDelay << attempt
}
