package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/infrastructure/resilience"
)

// Queue carries ingestion jobs over a JetStream work-queue stream. Each job is
// acknowledged when a worker takes it, so it is processed at most once.
type Queue struct {
	conn        *nats.Conn
	js          jetstream.JetStream
	stream      jetstream.Stream
	subject     string
	consumer    string
	concurrency int
	executor    *resilience.Executor
}

type Options struct {
	Stream      string
	Consumer    string
	Concurrency int

	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(ctx context.Context, url, subject string, options Options) (*Queue, error) {
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
	streamName := options.Stream
	if streamName == "" {
		streamName = "CHAPTERFLOW_INGEST"
	}
	consumer := options.Consumer
	if consumer == "" {
		consumer = "ingest-workers"
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	conn, err := nats.Connect(
		url,
		nats.Name("chapterflow"),
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

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure jetstream stream %s: %w", streamName, err)
	}

	return &Queue{
		conn:        conn,
		js:          js,
		stream:      stream,
		subject:     subject,
		consumer:    consumer,
		concurrency: concurrency,
		executor:    options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) Enqueue(ctx context.Context, job domain.IngestionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal ingestion job: %w", err)
	}

	call := func(callCtx context.Context) error {
		if _, err := q.js.Publish(callCtx, q.subject, payload); err != nil {
			return wrapTemporaryIfNeeded(fmt.Errorf("jetstream publish: %w", err))
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// Consume runs handler on up to Concurrency jobs at once until ctx is done.
// In-flight handlers are waited for before returning.
func (q *Queue) Consume(ctx context.Context, handler func(context.Context, domain.IngestionJob) error) error {
	cons, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       q.consumer,
		FilterSubject: q.subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxAckPending: q.concurrency,
	})
	if err != nil {
		return fmt.Errorf("ensure jetstream consumer %s: %w", q.consumer, err)
	}

	msgs := make(chan jetstream.Msg)
	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg := <-msgs:
					q.handle(ctx, msg, handler)
				}
			}
		}()
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case msgs <- msg:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("jetstream consume: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	wg.Wait()
	return nil
}

func (q *Queue) handle(ctx context.Context, msg jetstream.Msg, handler func(context.Context, domain.IngestionJob) error) {
	var job domain.IngestionJob
	if err := json.Unmarshal(msg.Data(), &job); err != nil || job.DocumentID == "" {
		slog.Error("ingestion_job_malformed", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
		return
	}
	if err := msg.Ack(); err != nil {
		slog.Warn("ingestion_job_ack_failed", "document_id", job.DocumentID, "error", err)
	}
	if err := handler(ctx, job); err != nil {
		slog.Error("ingestion_job_failed", "document_id", job.DocumentID, "error", err)
	}
}
