// Package inproc is a bounded in-process task queue served by a fixed worker pool.
package inproc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

var errQueueClosed = errors.New("queue is shutting down")

type task struct {
	documentID string
	enqueuedAt time.Time
}

// DeadLetter is a task the handler gave up on.
type DeadLetter struct {
	DocumentID string
	Reason     string
	FailedAt   time.Time
}

type Queue struct {
	logger     *slog.Logger
	workers    int
	timeout    time.Duration
	observeLag func(time.Duration)

	ch chan task

	mu         sync.Mutex
	closed     bool
	subscribed bool

	dlMu        sync.Mutex
	deadLetters []DeadLetter
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan task, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithLagObserver(fn func(time.Duration)) Option {
	return func(q *Queue) {
		q.observeLag = fn
	}
}

func New(logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan task, 256),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// PublishDocumentUploaded blocks while the buffer is full, until ctx is done.
func (q *Queue) PublishDocumentUploaded(ctx context.Context, documentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.WrapError(domain.ErrTemporary, "inproc publish", errQueueClosed)
	}

	t := task{documentID: documentID, enqueuedAt: time.Now()}
	select {
	case q.ch <- t:
		return nil
	default:
	}
	q.logger.Warn("queue_full_backpressure", "document_id", documentID)
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return domain.WrapError(domain.ErrTemporary, "inproc publish", ctx.Err())
	}
}

// Close rejects further publishes. A running subscriber still drains what is
// buffered when its context ends.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *Queue) PublishDeadLetter(_ context.Context, documentID string, reason string) error {
	q.dlMu.Lock()
	defer q.dlMu.Unlock()
	q.deadLetters = append(q.deadLetters, DeadLetter{DocumentID: documentID, Reason: reason, FailedAt: time.Now().UTC()})
	q.logger.Error("task_dead_lettered", "document_id", documentID, "reason", reason)
	return nil
}

func (q *Queue) DeadLetters() []DeadLetter {
	q.dlMu.Lock()
	defer q.dlMu.Unlock()
	out := make([]DeadLetter, len(q.deadLetters))
	copy(out, q.deadLetters)
	return out
}

// SubscribeDocumentUploaded runs the worker pool until ctx is done, then
// drains tasks already buffered and returns.
func (q *Queue) SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error {
	q.mu.Lock()
	if q.subscribed {
		q.mu.Unlock()
		return errors.New("inproc queue already has a subscriber")
	}
	q.subscribed = true
	q.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			q.logger.Info("worker_started", "worker_id", workerID)
			for t := range q.ch {
				q.handle(ctx, workerID, t, handler)
			}
			q.logger.Info("worker_stopped", "worker_id", workerID)
		}(i + 1)
	}

	<-ctx.Done()
	q.mu.Lock()
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	wg.Wait()
	return nil
}

func (q *Queue) handle(ctx context.Context, workerID int, t task, handler func(context.Context, string) error) {
	if q.observeLag != nil {
		q.observeLag(time.Since(t.enqueuedAt))
	}
	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
	defer cancel()
	if err := handler(taskCtx, t.documentID); err != nil {
		q.logger.Error("worker_handler_failed", "worker_id", workerID, "document_id", t.documentID, "error", err)
	}
}
