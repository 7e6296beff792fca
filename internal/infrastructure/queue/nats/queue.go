package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/document-intelligence/internal/infrastructure/resilience"
)

const (
	DefaultSubject           = "documents.uploaded"
	DefaultDeadLetterSubject = "documents.deadletter"
	queueGroup               = "workers"
	publishedAtHeader        = "Published-At"
	defaultDrainTimeout      = 30 * time.Second
	drainPollInterval        = 50 * time.Millisecond
)

type Queue struct {
	conn              *nats.Conn
	subject           string
	deadLetterSubject string
	executor          *resilience.Executor
	observeLag        func(time.Duration)
	drainTimeout      time.Duration
}

type Options struct {
	DeadLetterSubject    string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// LagObserver receives the time each task spent queued before delivery.
	LagObserver func(time.Duration)
	// DrainTimeout bounds how long shutdown waits for buffered and
	// in-flight messages. Set it above the per-document process timeout.
	DrainTimeout time.Duration
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	if subject == "" {
		subject = DefaultSubject
	}
	deadLetter := options.DeadLetterSubject
	if deadLetter == "" {
		deadLetter = DefaultDeadLetterSubject
	}
	drainTimeout := options.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}

	conn, err := nats.Connect(
		url,
		nats.Name("document-intelligence"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:              conn,
		subject:           subject,
		deadLetterSubject: deadLetter,
		executor:          options.ResilienceExecutor,
		observeLag:        options.LagObserver,
		drainTimeout:      drainTimeout,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Healthy reports whether the connection is usable.
func (q *Queue) Healthy() bool {
	return q.conn != nil && q.conn.IsConnected()
}

func (q *Queue) PublishDocumentUploaded(ctx context.Context, documentID string) error {
	msg := nats.NewMsg(q.subject)
	msg.Data = []byte(documentID)
	msg.Header.Set(publishedAtHeader, time.Now().UTC().Format(time.RFC3339Nano))
	return q.publish(ctx, "nats.publish", msg)
}

type deadLetter struct {
	DocumentID string    `json:"document_id"`
	Reason     string    `json:"reason"`
	FailedAt   time.Time `json:"failed_at"`
}

func (q *Queue) PublishDeadLetter(ctx context.Context, documentID string, reason string) error {
	payload, err := json.Marshal(deadLetter{DocumentID: documentID, Reason: reason, FailedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	msg := nats.NewMsg(q.deadLetterSubject)
	msg.Data = payload
	return q.publish(ctx, "nats.publish_dead_letter", msg)
}

func (q *Queue) publish(ctx context.Context, operation string, msg *nats.Msg) error {
	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishError(operation, err)
	}
	return nil
}

// SubscribeDocumentUploaded blocks until ctx is cancelled, then drains the
// subscription so messages already delivered to this worker still run.
func (q *Queue) SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, q.deliver(ctx, handler))
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.waitDrained(sub); err != nil {
		return err
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// deliver runs handler on a context detached from ctx. Cancelling ctx stops
// new deliveries through Drain, not the document being processed.
func (q *Queue) deliver(ctx context.Context, handler func(context.Context, string) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		q.recordLag(msg)

		handlerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		documentID := string(msg.Data)
		if err := handler(handlerCtx, documentID); err != nil {
			slog.Error("worker_handler_failed", "document_id", documentID, "error", err)
		}
	}
}

func (q *Queue) waitDrained(sub *nats.Subscription) error {
	deadline := time.Now().Add(q.drainTimeout)
	for sub.IsValid() {
		if time.Now().After(deadline) {
			pending, _, _ := sub.Pending()
			return fmt.Errorf("nats drain: %d message(s) still pending after %s", pending, q.drainTimeout)
		}
		time.Sleep(drainPollInterval)
	}
	return nil
}

func (q *Queue) recordLag(msg *nats.Msg) {
	if q.observeLag == nil || msg.Header == nil {
		return
	}
	if lag, ok := queueLag(msg.Header.Get(publishedAtHeader), time.Now()); ok {
		q.observeLag(lag)
	}
}

func queueLag(publishedAt string, now time.Time) (time.Duration, bool) {
	if publishedAt == "" {
		return 0, false
	}
	ts, err := time.Parse(time.RFC3339Nano, publishedAt)
	if err != nil {
		return 0, false
	}
	return max(now.Sub(ts), 0), true
}
