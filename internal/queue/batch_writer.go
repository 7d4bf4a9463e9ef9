package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/VJean/velib/internal/records"
)

const (
	DefaultBatchSize     = 500
	DefaultFlushInterval = 2 * time.Second

	fetchRetryDelay = time.Second
	finalFlushWait  = 5 * time.Second

	storeRetryDelay    = 500 * time.Millisecond
	maxStoreRetryDelay = 30 * time.Second
)

// StoreFunc persists a batch of validated snapshots.
type StoreFunc func(ctx context.Context, recs []records.Record) (int, error)

type messageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// BatchWriter drains a Kafka consumer into the store. Offsets of a batch are
// committed only once the batch is stored. A batch that fails to store is
// retried with backoff, and nothing more is consumed until it succeeds.
type BatchWriter struct {
	source        messageSource
	store         StoreFunc
	batchSize     int
	flushInterval time.Duration
	retryDelay    time.Duration
	logger        *slog.Logger
}

func NewBatchWriter(consumer *Consumer, store StoreFunc, logger *slog.Logger) *BatchWriter {
	return newBatchWriter(consumer, store, DefaultBatchSize, DefaultFlushInterval, logger)
}

func newBatchWriter(source messageSource, store StoreFunc, batchSize int, flushInterval time.Duration, logger *slog.Logger) *BatchWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchWriter{
		source:        source,
		store:         store,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		retryDelay:    storeRetryDelay,
		logger:        logger.With("component", "kafka"),
	}
}

// Run consumes until ctx is done, then flushes what it holds and returns nil.
func (bw *BatchWriter) Run(ctx context.Context) error {
	msgCh := make(chan kafka.Message)
	fetchCtx, stopFetch := context.WithCancel(ctx)
	defer stopFetch()
	go bw.fetch(fetchCtx, msgCh)

	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	var batch []kafka.Message
	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushWait)
				if err := bw.flush(flushCtx, batch); err != nil {
					bw.logger.Error("kafka batch left uncommitted", "messages", len(batch), "error", err)
				}
				cancel()
			}
			return nil

		case <-ticker.C:
			if len(batch) > 0 {
				batch = bw.flushWithRetry(ctx, batch)
			}

		case msg := <-msgCh:
			batch = append(batch, msg)
			if len(batch) >= bw.batchSize {
				batch = bw.flushWithRetry(ctx, batch)
			}
		}
	}
}

func (bw *BatchWriter) fetch(ctx context.Context, out chan<- kafka.Message) {
	for {
		msg, err := bw.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			bw.logger.Warn("kafka fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(fetchRetryDelay):
			}
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// flushWithRetry flushes batch until it is stored or ctx is done. It returns
// nil once stored, otherwise the batch still pending.
func (bw *BatchWriter) flushWithRetry(ctx context.Context, batch []kafka.Message) []kafka.Message {
	delay := bw.retryDelay
	for {
		err := bw.flush(ctx, batch)
		if err == nil {
			return nil
		}
		bw.logger.Error("failed to store kafka batch", "messages", len(batch), "retry_in", delay, "error", err)
		select {
		case <-ctx.Done():
			return batch
		case <-time.After(delay):
		}
		delay = min(delay*2, maxStoreRetryDelay)
	}
}

// flush stores the valid snapshots of batch and commits it. Messages that fail
// to decode are logged and committed with the rest so they are not
// redelivered forever. A store error leaves the batch uncommitted.
func (bw *BatchWriter) flush(ctx context.Context, batch []kafka.Message) error {
	recs := make([]records.Record, 0, len(batch))
	for _, msg := range batch {
		rec, err := DecodeSnapshot(msg.Value)
		if err != nil {
			bw.logger.Warn("dropping kafka message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
			continue
		}
		recs = append(recs, rec)
	}

	if len(recs) > 0 {
		n, err := bw.store(ctx, recs)
		if err != nil {
			return err
		}
		bw.logger.Debug("stored kafka batch", "messages", len(batch), "rows", n)
	}

	// Stored rows are idempotent, so a failed commit only means redelivery.
	if err := bw.source.Commit(ctx, batch...); err != nil {
		bw.logger.Error("failed to commit offsets", "messages", len(batch), "error", err)
	}
	return nil
}
