package clicks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sundayezeilo/shortlink/internal/idgen"
	"github.com/sundayezeilo/shortlink/internal/metrics"
)

const (
	DefaultFlushInterval  = 10 * time.Second
	DefaultFlushThreshold = 100
	DefaultMaxPending     = 10_000
	DefaultFlushTimeout   = 5 * time.Second

	// a warning is logged on the first drop and then every dropLogEvery drops
	dropLogEvery = 1000
)

// QueueConfig holds configuration for the queue. Zero values take defaults.
type QueueConfig struct {
	FlushInterval  time.Duration
	FlushThreshold int
	MaxPending     int
	FlushTimeout   time.Duration
	IDGenerator    idgen.Generator
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Now            func() time.Time
}

// FlushStats summarizes one flush.
type FlushStats struct {
	Events     int // queued clicks drained
	Aggregates int // rows attempted
	Stored     int
	Failed     int
}

// Queue accepts click events without blocking and writes them to the store in
// coalesced batches from a background goroutine.
type Queue struct {
	store Store

	mu      sync.Mutex
	pending []QueuedClick
	started bool
	stopped bool

	// serializes flushes so ticker, threshold and shutdown flushes never overlap
	flushMu sync.Mutex

	flushInterval  time.Duration
	flushThreshold int
	maxPending     int
	flushTimeout   time.Duration
	ids            idgen.Generator
	logger         *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time

	dropped atomic.Uint64

	kick     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewQueue creates a queue. Call Start to begin background flushing and Stop
// to flush what is left and shut down.
func NewQueue(store Store, cfg QueueConfig) *Queue {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = DefaultFlushThreshold
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = idgen.NewV7()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Queue{
		store:          store,
		flushInterval:  cfg.FlushInterval,
		flushThreshold: cfg.FlushThreshold,
		maxPending:     cfg.MaxPending,
		flushTimeout:   cfg.FlushTimeout,
		ids:            cfg.IDGenerator,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		now:            cfg.Now,
		kick:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Enqueue records ev for the next flush and returns immediately. It never
// touches the store. Events are dropped when the queue is full or stopped.
func (q *Queue) Enqueue(ev Event) {
	key, err := q.ids.Generate()
	if err != nil {
		q.drop(metrics.DropKeyError, "queue key generation failed", "error", err.Error())
		return
	}

	ev.SourceIP = orDefault(ev.SourceIP, Unknown)
	ev.Dimensions = ev.Dimensions.WithDefaults()
	qc := QueuedClick{Key: key, Event: ev, EnqueuedAt: q.now()}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.drop(metrics.DropStopped, "click queue stopped")
		return
	}
	if len(q.pending) >= q.maxPending {
		q.mu.Unlock()
		q.drop(metrics.DropQueueFull, "click queue full", "max_pending", q.maxPending)
		return
	}
	q.pending = append(q.pending, qc)
	n := len(q.pending)
	// under mu, or a stale depth can land after a racing drain reset it
	q.metrics.ClickEnqueued(n)
	q.mu.Unlock()

	if n >= q.flushThreshold {
		select {
		case q.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of events waiting for a flush.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush drains everything pending and writes it as aggregates. Failed writes
// are logged and dropped; their errors are joined into the returned error.
func (q *Queue) Flush(ctx context.Context) (FlushStats, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	batch := q.drain()
	if len(batch) == 0 {
		return FlushStats{}, nil
	}

	aggs := Coalesce(batch)
	stats := FlushStats{Events: len(batch), Aggregates: len(aggs)}

	ctx, cancel := context.WithTimeout(ctx, q.flushTimeout)
	defer cancel()

	start := time.Now()
	var errs []error
	var lostClicks int64
	for _, agg := range aggs {
		if err := q.store.UpsertClickAggregate(ctx, agg); err != nil {
			stats.Failed++
			lostClicks += agg.Count
			errs = append(errs, err)
			continue
		}
		stats.Stored++
	}
	elapsed := time.Since(start)

	q.metrics.ObserveFlush(stats.Stored, stats.Failed, elapsed)
	q.metrics.ClicksDroppedN(metrics.DropFlush, int(lostClicks))

	err := errors.Join(errs...)
	if err != nil {
		q.logger.ErrorContext(ctx, "click flush failed, batch dropped",
			"error", err.Error(),
			"events", stats.Events,
			"aggregates", stats.Aggregates,
			"failed", stats.Failed,
			"clicks_lost", lostClicks,
			"duration_ms", elapsed.Milliseconds(),
		)
		return stats, err
	}

	q.logger.DebugContext(ctx, "flushed click events",
		"events", stats.Events,
		"aggregates", stats.Aggregates,
		"duration_ms", elapsed.Milliseconds(),
	)
	return stats, nil
}

// Start launches the background flush loop. It is a no-op once started or stopped.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started || q.stopped {
		return
	}
	q.started = true
	go q.run()
}

// Stop rejects further events, flushes whatever is pending and waits for the
// flush loop to exit or ctx to end. Safe to call more than once.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		started := q.started
		q.mu.Unlock()

		close(q.stop)
		if !started {
			go func() {
				defer close(q.done)
				_, _ = q.Flush(context.Background())
			}()
		}
	})

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)

	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = q.Flush(context.Background())

		case <-q.kick:
			_, _ = q.Flush(context.Background())

		case <-q.stop:
			_, _ = q.Flush(context.Background())
			return
		}
	}
}

// drain swaps out the pending slice. Enqueues that race with it land in the
// fresh slice and are picked up by the next flush.
func (q *Queue) drain() []QueuedClick {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := q.pending
	q.pending = nil
	q.metrics.SetQueueDepth(0)
	return batch
}

func (q *Queue) drop(reason, msg string, attrs ...any) {
	q.metrics.ClicksDroppedN(reason, 1)

	n := q.dropped.Add(1)
	if n == 1 || n%dropLogEvery == 0 {
		q.logger.Warn(msg, append(attrs, "reason", reason, "dropped_total", n)...)
	}
}
