package changelog

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering, batching, and redelivery for the Log.
//   - BufferSize: size of the internal channel (default 4096).
//   - MaxBatchRecords: deliver once this many records queue (default 100).
//   - MaxBatchWait: deliver after this duration even if the batch is small (default 250ms).
//   - ConsumerTimeout: per-consumer timeout while delivering (default 10s).
//   - MaxRedeliveries: how many times a failed record is re-attempted before
//     it is dropped with a warning (default 3).
//   - BaseContext: parent context passed to consumer calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize      int
	MaxBatchRecords int
	MaxBatchWait    time.Duration
	ConsumerTimeout time.Duration
	MaxRedeliveries int
	BaseContext     context.Context
	Logger          *zap.Logger
}

const (
	defaultBufferSize      = 4096
	defaultMaxBatchRecords = 100
	defaultMaxBatchWait    = 250 * time.Millisecond
	defaultConsumerTimeout = 10 * time.Second
	defaultMaxRedeliveries = 3
)

// Log assigns per-partition sequence tokens to appended records and delivers
// ordered batches to every registered consumer at least once. Failed records
// reported by a consumer are redelivered to that consumer only. Safe for
// concurrent use by multiple goroutines.
type Log struct {
	cfg       Config
	consumers []Consumer
	records   chan Record
	stopCh    chan struct{}
	doneCh    chan struct{}
	logger    *zap.Logger

	mu   sync.Mutex
	seqs map[string]uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewLog initializes a Log and starts the background delivery goroutine. The
// returned Log is immediately ready to accept records.
func NewLog(cfg Config, consumers ...Consumer) *Log {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchRecords <= 0 {
		cfg.MaxBatchRecords = defaultMaxBatchRecords
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.ConsumerTimeout <= 0 {
		cfg.ConsumerTimeout = defaultConsumerTimeout
	}
	if cfg.MaxRedeliveries <= 0 {
		cfg.MaxRedeliveries = defaultMaxRedeliveries
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Log{
		cfg:       cfg,
		consumers: append([]Consumer(nil), consumers...),
		records:   make(chan Record, cfg.BufferSize),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		logger:    logger,
		seqs:      make(map[string]uint64),
	}
	go l.run()
	return l
}

// Append stamps the record with the next sequence for its partition and
// enqueues it for delivery. Invalid records are discarded. Append blocks when
// the buffer is full; records are never silently dropped before delivery.
func (l *Log) Append(rec Record) {
	if l == nil || l.closed.Load() {
		return
	}
	if err := rec.Validate(); err != nil {
		l.logger.Debug("discarding invalid change record", zap.Error(err))
		return
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	l.mu.Lock()
	l.seqs[rec.PartitionKey]++
	rec.Sequence = l.seqs[rec.PartitionKey]
	l.mu.Unlock()

	select {
	case l.records <- rec:
	case <-l.stopCh:
	}
}

// Close drains buffered records, delivers them, and blocks until the
// background goroutine exits. Safe to call multiple times.
func (l *Log) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.stopCh)
	})
	select {
	case <-l.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("changelog close wait: %w", ctx.Err())
	}
}

func (l *Log) run() {
	defer close(l.doneCh)
	batch := make([]Record, 0, l.cfg.MaxBatchRecords)
	timer := time.NewTimer(l.cfg.MaxBatchWait)
	timer.Stop()
	timerActive := false
	for {
		select {
		case rec := <-l.records:
			batch = append(batch, rec)
			if len(batch) >= l.cfg.MaxBatchRecords {
				l.deliver(batch)
				batch = batch[:0]
				stopTimer(timer, &timerActive)
			} else {
				resetTimer(timer, &timerActive, l.cfg.MaxBatchWait)
			}
		case <-timer.C:
			timerActive = false
			if len(batch) > 0 {
				l.deliver(batch)
				batch = batch[:0]
			}
		case <-l.stopCh:
			stopTimer(timer, &timerActive)
			l.drain(batch)
			return
		}
	}
}

func (l *Log) drain(batch []Record) {
	for {
		select {
		case rec := <-l.records:
			batch = append(batch, rec)
			if len(batch) >= l.cfg.MaxBatchRecords {
				l.deliver(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				l.deliver(batch)
			}
			return
		}
	}
}

// deliver pushes one batch to every consumer, redelivering each consumer's
// reported failures until they succeed or the redelivery budget runs out.
func (l *Log) deliver(batch []Record) {
	if len(batch) == 0 {
		return
	}
	copyBatch := append([]Record(nil), batch...)
	for _, consumer := range l.consumers {
		if consumer == nil {
			continue
		}
		pending := copyBatch
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt > l.cfg.MaxRedeliveries {
				l.logger.Warn("dropping change records after redelivery budget",
					zap.Int("records", len(pending)),
					zap.Int("attempts", attempt),
				)
				break
			}
			pending = l.consume(consumer, pending)
		}
	}
}

func (l *Log) consume(consumer Consumer, batch []Record) []Record {
	ctx := l.cfg.BaseContext
	cancel := func() {}
	if l.cfg.ConsumerTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, l.cfg.ConsumerTimeout)
	}
	defer cancel()
	failed := consumer.Consume(ctx, batch)
	if len(failed) > 0 {
		l.logger.Debug("change records reported failed",
			zap.Int("failed", len(failed)),
			zap.Int("batch", len(batch)),
		)
	}
	return failed
}

func resetTimer(timer *time.Timer, active *bool, wait time.Duration) {
	if *active {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
	timer.Reset(wait)
	*active = true
}

func stopTimer(timer *time.Timer, active *bool) {
	if !*active {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	*active = false
}
