// Package consumer runs the queue workers: poll, handle with retries, route
// poison messages to the dead-letter topic, commit. Nothing is ever dropped
// silently: a message leaves only by success or by a produced DLQ record.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/queue"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/retry"
)

// RejectError marks a message as poison: no retries, straight to the DLQ.
type RejectError struct {
	Reason string
	Err    error
}

func (e *RejectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rejected (%s): %v", e.Reason, e.Err)
	}
	return "rejected: " + e.Reason
}

func (e *RejectError) Unwrap() error { return e.Err }

// Reject wraps err as non-retryable with a machine-readable reason.
func Reject(reason string, err error) error {
	return &RejectError{Reason: reason, Err: err}
}

// Handler processes one message. Returning nil commits; a RejectError
// dead-letters immediately; any other error is retried per policy and
// dead-lettered on exhaustion.
type Handler func(ctx context.Context, m *queue.Message) error

// Config for one worker.
type Config struct {
	Name        string
	DLQTopic    string
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	PollTimeout time.Duration // per-poll wait before re-checking shutdown
}

// Stats are the worker's monotonic counters.
type Stats struct {
	Processed    uint64
	Retried      uint64
	DeadLettered uint64
}

// Worker drives one consume loop. A nil queue makes Run an inert wait, which
// is the degrade mode for a deployment without a broker.
type Worker struct {
	cfg     Config
	q       queue.Queue
	handler Handler
	log     *slog.Logger

	processed    atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64
}

func NewWorker(cfg Config, q queue.Queue, handler Handler, log *slog.Logger) *Worker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 200 * time.Millisecond
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 2 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		cfg:     cfg,
		q:       q,
		handler: handler,
		log:     log.With(slog.String("component", "consumer"), slog.String("worker", cfg.Name)),
	}
}

// Run consumes until ctx is cancelled. Returns nil on clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	if w.q == nil {
		w.log.Warn("no queue configured, worker idle")
		<-ctx.Done()
		return nil
	}
	w.log.Info("worker started")

	for {
		m, err := w.poll(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return fmt.Errorf("consumer %s: poll: %w", w.cfg.Name, err)
		}
		if m == nil {
			continue // poll timeout, loop to re-check shutdown
		}
		if err := w.handleMessage(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// poll waits up to PollTimeout for a message; (nil, nil) means try again.
func (w *Worker) poll(ctx context.Context) (*queue.Message, error) {
	pctx, cancel := context.WithTimeout(ctx, w.cfg.PollTimeout)
	defer cancel()

	m, err := w.q.Poll(pctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, nil
	}
	return m, err
}

// handleMessage runs the retry loop and settles the message. The commit is
// withheld when the DLQ produce fails so the broker redelivers; that is the
// no-silent-loss invariant.
func (w *Worker) handleMessage(ctx context.Context, m *queue.Message) error {
	policy := retry.Policy{
		MaxAttempts: w.cfg.MaxRetries,
		Base:        w.cfg.BackoffBase,
		Cap:         w.cfg.BackoffCap,
		Classify: func(err error) retry.Class {
			var rej *RejectError
			if errors.As(err, &rej) {
				return retry.Fatal
			}
			return retry.Retryable
		},
		OnRetry: func(attempt int, wait time.Duration, err error) {
			w.retried.Add(1)
			w.log.Warn("handler failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.String("topic", m.Topic),
				slog.Int64("offset", m.Offset),
				slog.Any("err", err))
		},
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return w.handler(ctx, m)
	})
	if err == nil {
		w.processed.Add(1)
		return w.commit(m)
	}
	if ctx.Err() != nil {
		// Shutdown mid-handling: leave uncommitted for redelivery.
		return nil
	}

	if dlqErr := w.deadLetter(ctx, m, err); dlqErr != nil {
		w.log.Error("dead-letter produce failed, leaving message uncommitted",
			slog.String("topic", m.Topic),
			slog.Int64("offset", m.Offset),
			slog.Any("err", dlqErr))
		return nil
	}
	w.deadLettered.Add(1)
	return w.commit(m)
}

func (w *Worker) commit(m *queue.Message) error {
	if err := w.q.Commit(m); err != nil {
		w.log.Error("offset commit failed",
			slog.String("topic", m.Topic),
			slog.Int64("offset", m.Offset),
			slog.Any("err", err))
	}
	return nil
}

// deadLetter republishes the ORIGINAL payload with the failure reason and
// provenance in headers, so the record can be replayed against its source.
func (w *Worker) deadLetter(ctx context.Context, m *queue.Message, cause error) error {
	if w.cfg.DLQTopic == "" {
		return fmt.Errorf("consumer %s: no dlq topic", w.cfg.Name)
	}
	reason := "handler_error"
	var rej *RejectError
	if errors.As(cause, &rej) {
		reason = rej.Reason
	}

	headers := map[string]string{
		"reason":           reason,
		"error":            queue.SanitizeHeader(cause.Error()),
		"worker":           w.cfg.Name,
		"origin_topic":     m.Topic,
		"origin_partition": strconv.FormatInt(int64(m.Partition), 10),
		"origin_offset":    strconv.FormatInt(m.Offset, 10),
	}
	w.log.Warn("dead-lettering message",
		slog.String("reason", reason),
		slog.String("topic", m.Topic),
		slog.Int64("offset", m.Offset))
	return w.q.Produce(ctx, w.cfg.DLQTopic, string(m.Key), m.Value, headers)
}

// Stats snapshots the counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Processed:    w.processed.Load(),
		Retried:      w.retried.Load(),
		DeadLettered: w.deadLettered.Load(),
	}
}
