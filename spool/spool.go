// Package spool stages items in memory, flushes them in batches to a SQLite database and hands the
// stored batches to a process function until it succeeds.
//
// Items survive restarts when the spool is backed by a [File]. The staging buffer of the push
// worker is reused between flushes, so a steady stream of items doesn't allocate once the buffer
// has grown to the flush size.
package spool

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cutoff-dev/common"
	"github.com/cutoff-dev/common/buffer"
	"github.com/cutoff-dev/common/codec"
	"github.com/cutoff-dev/common/internal/sqlite"
	"github.com/cutoff-dev/common/logging"
)

var (
	ErrClosed = errors.New("spool is closed")
)

// Number of flushes and processings the averages in [Stats] are computed over.
const averageWindow = 64

const (
	reasonSize    = "size"
	reasonTimeout = "timeout"
	reasonManual  = "manual"
	reasonClose   = "close"
)

// ProcessFunc handles a batch of items. The batch is only valid until the function returns.
//
// A returned error makes the spool retry the batch according to the retry policy. Items pushed
// into the spool from the function are accepted even while the spool is closing.
type ProcessFunc[Item any] = func(ctx context.Context, spool *Spool[Item], batch iter.Seq[Item]) error

// Spool is a durable batching queue. All methods are safe for concurrent use.
type Spool[Item any] struct {
	cfg     *Config[Item]
	storage *sqlite.Storage
	metrics *metrics
	logger  *slog.Logger

	closing  *atomic.Bool
	batches  *atomic.Int64
	items    *atomic.Int64
	staged   *atomic.Int64
	capacity *atomic.Int64

	averagesMu   sync.Mutex
	batchSizes   *buffer.AveragingBuffer
	processTimes *buffer.AveragingBuffer

	push       chan Item
	flush      chan chan error
	flushed    chan struct{}
	pushExited chan struct{}

	// Push holds the read lock while sending. The push worker takes the write lock once it exits,
	// after which nothing is sent to the push channel anymore.
	pushMu   sync.RWMutex
	pushDone bool

	pushCtx   context.Context
	pushStop  func()
	pushGroup *errgroup.Group

	processCtx   context.Context
	processStop  func()
	processFunc  func(ctx context.Context, spool *Spool[Item], batch iter.Seq[Item]) error
	processGroup *errgroup.Group

	watchdog *common.Handle[error]
}

// New opens the storage and starts the workers of the spool. Batches left from a previous run
// of a file backed spool are processed again.
func New[Item any](
	processFunc ProcessFunc[Item],
	configFuncs ...func(*Config[Item]),
) (*Spool[Item], error) {
	if processFunc == nil {
		panic("process func can't be nil")
	}
	cfg := newConfig(configFuncs...)

	metrics, err := cfg.prometheus.metrics()
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	storage, err := sqlite.New(func(c *sqlite.Config) {
		if cfg.file != nil {
			c.File(cfg.file.path)
			c.Durable(cfg.file.durable)
		}
		c.Workers(cfg.workers + 1)
		c.Batches(cfg.batches)
		c.Cooldown(cfg.retryPolicy.Cooldown())
	})
	if err != nil {
		cfg.prometheus.unregister(metrics)
		return nil, fmt.Errorf("open storage: %w", err)
	}

	stats, err := storage.Stats(context.Background())
	if err != nil {
		cfg.prometheus.unregister(metrics)
		return nil, errors.Join(fmt.Errorf("get stats from storage: %w", err), storage.Close())
	}

	var (
		pushCtx_, pushStop       = context.WithCancel(context.Background())
		pushGroup, pushCtx       = errgroup.WithContext(pushCtx_)
		processCtx_, processStop = context.WithCancel(context.Background())
		processGroup, processCtx = errgroup.WithContext(processCtx_)
	)

	s := Spool[Item]{
		cfg:     cfg,
		storage: storage,
		metrics: metrics,
		logger:  cfg.logger,

		closing:  new(atomic.Bool),
		batches:  new(atomic.Int64),
		items:    new(atomic.Int64),
		staged:   new(atomic.Int64),
		capacity: new(atomic.Int64),

		batchSizes:   buffer.Averaging(averageWindow),
		processTimes: buffer.Averaging(averageWindow),

		push:       make(chan Item, cfg.flushSize),
		flush:      make(chan chan error),
		flushed:    make(chan struct{}, cfg.workers),
		pushExited: make(chan struct{}),

		pushCtx:   pushCtx,
		pushStop:  pushStop,
		pushGroup: pushGroup,

		processCtx:   processCtx,
		processStop:  processStop,
		processFunc:  processFunc,
		processGroup: processGroup,
	}

	s.batches.Store(int64(stats.Batches))
	s.items.Store(int64(stats.Items))
	s.metrics.batches.Set(float64(stats.Batches))
	s.metrics.items.Set(float64(stats.Items))

	s.logger.Info("spool opened", "batches", stats.Batches, "items", stats.Items)

	s.start()

	return &s, nil
}

// Push hands the item to the push worker. It blocks while the worker is busy flushing and the
// push channel, which holds up to flush size items, is full.
//
// Returns [ErrClosed] once [Spool.Close] was called, unless called from the process function.
func (s *Spool[Item]) Push(ctx context.Context, item Item) error {
	if s.closing.Load() {
		if !isProcessContext(ctx) {
			return ErrClosed
		}
		ctx = context.WithoutCancel(ctx)
	}

	s.pushMu.RLock()
	defer s.pushMu.RUnlock()
	if s.pushDone {
		return ErrClosed
	}

	select {
	case s.push <- item:
		s.metrics.itemsPushed.Inc()
		return nil
	case <-s.pushExited:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush stores every item pushed before the call, regardless of the flush size. It returns once
// the batch is in the storage, not when it is processed.
func (s *Spool[Item]) Flush(ctx context.Context) error {
	if s.closing.Load() {
		return ErrClosed
	}

	res := make(chan error, 1)
	select {
	case s.flush <- res:
	case <-s.pushExited:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the process workers, flushes the staged items and closes the storage. Batches that
// weren't processed stay in the storage.
//
// Subsequent calls return [ErrClosed]. If the spool was closed because one of its workers failed,
// they also return the error of that worker.
func (s *Spool[Item]) Close() error {
	if s.closing.Swap(true) {
		res, err := s.watchdog.Join()
		if res == nil && err == nil {
			return ErrClosed
		}
		return errors.Join(ErrClosed, res, err)
	}

	err := s.shutdown()
	_, _ = s.watchdog.Join()
	return err
}

// Stats returns a snapshot of the spool state.
func (s *Spool[Item]) Stats() Stats {
	stats := Stats{
		Batches:        int(s.batches.Load()),
		Items:          int(s.items.Load()),
		Staged:         int(s.staged.Load()),
		BufferCapacity: int(s.capacity.Load()),
	}

	s.averagesMu.Lock()
	defer s.averagesMu.Unlock()

	stats.AvgBatchSize, _ = s.batchSizes.Avg()
	if avg, ok := s.processTimes.Avg(); ok {
		stats.AvgProcessDuration = time.Duration(avg)
	}

	return stats
}

// Stats of a [Spool].
type Stats struct {
	// Batches is the number of stored batches.
	Batches int
	// Items is the number of items in stored batches.
	Items int
	// Staged is the number of items in the staging buffer.
	Staged int
	// BufferCapacity is the number of preallocated items in the staging buffer. Zero if the
	// buffer doesn't report its capacity.
	BufferCapacity int
	// AvgBatchSize is the average size of recently flushed batches.
	AvgBatchSize float64
	// AvgProcessDuration is the average duration of recent processings, retries included.
	AvgProcessDuration time.Duration
}

func (s *Spool[Item]) start() {
	s.pushGroup.Go(s.pushWorker)
	for i := range s.cfg.workers {
		s.processGroup.Go(func() error {
			return s.processWorker(i)
		})
	}
	s.watchdog = common.Spawn("spool-watchdog", func() error {
		select {
		case <-s.pushCtx.Done():
		case <-s.processCtx.Done():
		}
		if s.closing.Swap(true) {
			return nil
		}
		err := s.shutdown()
		s.logger.Error("spool closed after worker failure", "error", err)
		return err
	})
}

func (s *Spool[Item]) shutdown() error {
	errs := make([]error, 0)

	// Process workers go first so that they can push items back while the push worker still
	// accepts them.
	s.processStop()
	if err := s.processGroup.Wait(); err != nil {
		errs = append(errs, fmt.Errorf("process workers: %w", err))
	}

	s.pushStop()
	if err := s.pushGroup.Wait(); err != nil {
		errs = append(errs, fmt.Errorf("push worker: %w", err))
	}

	if err := s.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}

	s.cfg.prometheus.unregister(s.metrics)

	s.logger.Info("spool closed", "batches", s.batches.Load(), "items", s.items.Load())

	return errors.Join(errs...)
}

func (s *Spool[Item]) pushWorker() error {
	var (
		buf   = s.cfg.buffer.Derive()
		codec = s.cfg.codec.Derive()
	)
	s.updateCapacity(buf)

	err := s.pushLoop(buf, codec)

	// Wake up blocked senders, then wait for the ones already past the check.
	close(s.pushExited)
	s.pushMu.Lock()
	s.pushDone = true
	s.pushMu.Unlock()

	if err != nil {
		if left := buf.Len() + len(s.push); left > 0 {
			s.logger.Error("items lost after push worker failure", "items", left)
		}
		return err
	}
	if err := s.drain(buf, codec); err != nil {
		return err
	}
	return s.flushBuffer(buf, codec, reasonClose)
}

func (s *Spool[Item]) pushLoop(buf buffer.Buffer[Item], codec codec.Codec[Item]) error {
	tick := ticker(s.cfg.flushTimeout)
	for {
		select {
		case <-s.pushCtx.Done():
			return nil
		case res := <-s.flush:
			err := s.drain(buf, codec)
			if err == nil {
				err = s.flushBuffer(buf, codec, reasonManual)
			}
			res <- err
			if err != nil {
				return err
			}
		case <-tick:
			if err := s.flushBuffer(buf, codec, reasonTimeout); err != nil {
				return err
			}
		case item := <-s.push:
			if err := s.stage(buf, codec, item); err != nil {
				return err
			}
		}
	}
}

// drain stages the items waiting in the push channel.
func (s *Spool[Item]) drain(buf buffer.Buffer[Item], codec codec.Codec[Item]) error {
	for {
		select {
		case item := <-s.push:
			if err := s.stage(buf, codec, item); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Spool[Item]) stage(buf buffer.Buffer[Item], codec codec.Codec[Item], item Item) error {
	buf.Push(item)
	s.staged.Store(int64(buf.Len()))
	if buf.Len() >= s.cfg.flushSize {
		return s.flushBuffer(buf, codec, reasonSize)
	}
	return nil
}

func (s *Spool[Item]) flushBuffer(buf buffer.Buffer[Item], codec codec.Codec[Item], reason string) error {
	size := buf.Len()
	if size == 0 {
		return nil
	}

	data, err := codec.Encode(buf.Iter())
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	// The final flush happens after the push context is cancelled.
	id, err := s.storage.Push(context.Background(), data, size)
	if err != nil {
		return fmt.Errorf("push batch to storage: %w", err)
	}

	s.batches.Add(1)
	s.items.Add(int64(size))
	s.metrics.batches.Inc()
	s.metrics.items.Add(float64(size))
	s.metrics.itemsFlushed.WithLabelValues(reason).Add(float64(size))

	s.averagesMu.Lock()
	s.batchSizes.Push(uint64(size))
	s.averagesMu.Unlock()

	buf.Clear()
	s.staged.Store(0)
	s.updateCapacity(buf)

	s.logger.Debug("batch flushed", "id", id, "items", size, "reason", reason)
	notify(s.flushed, struct{}{})

	return nil
}

func (s *Spool[Item]) updateCapacity(buf buffer.Buffer[Item]) {
	c, ok := buf.(interface{ Capacity() int })
	if !ok {
		return
	}
	s.capacity.Store(int64(c.Capacity()))
	s.metrics.bufferCapacity.Set(float64(c.Capacity()))
}

func (s *Spool[Item]) processWorker(worker int) error {
	var (
		buf    = s.cfg.buffer.Derive()
		codec  = s.cfg.codec.Derive()
		ctx    = markProcessContext(s.processCtx)
		logger = s.logger.With("worker", worker)
		tick   <-chan time.Time
		wait   = false
	)

	for {
		if wait {
			select {
			case <-s.processCtx.Done():
				return nil
			case <-s.flushed:
			case <-tick:
			}
		}

		batches, err := s.storage.Claim(s.processCtx)
		if err != nil {
			if s.processCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("claim batches: %w", err)
		}
		if len(batches) == 0 {
			// Several workers may race for a single batch after one notification. The losers
			// wait for the next notification or for the earliest cooldown to end.
			stats, err := s.storage.Stats(s.processCtx)
			tick = nil
			if stats, ok := logging.OkOrLog(logger, slog.LevelWarn, stats, err); ok {
				tick = timer(time.Until(stats.NextClaim))
			}
			wait = true
			continue
		}
		wait = false

		var items int
		for _, batch := range batches {
			items += batch.Size
			if err := codec.Decode(batch.Data, buf); err != nil {
				return fmt.Errorf("decode batch %s: %w", batch.ID, err)
			}
		}

		var (
			policy     = s.cfg.retryPolicy.Derive()
			start      = time.Now()
			ok         bool
			processErr error
		)
		for policy.Attempt(ctx) {
			if processErr = s.processFunc(ctx, s, buf.Iter()); processErr == nil {
				ok = true
				break
			}
			s.metrics.processErrors.Inc()
			logger.Warn("process batch", "batches", len(batches), "items", items, "error", processErr)
		}
		elapsed := time.Since(start)
		s.metrics.processDuration.Observe(elapsed.Seconds())

		s.averagesMu.Lock()
		s.processTimes.Push(uint64(elapsed))
		s.averagesMu.Unlock()

		ids := make([]sqlite.BatchID, len(batches))
		for i, batch := range batches {
			ids[i] = batch.ID
		}

		// Storage must be updated even when the spool is closing.
		if ok {
			if err := s.storage.Delete(context.Background(), ids...); err != nil {
				return fmt.Errorf("delete batches: %w", err)
			}
			s.batches.Add(-int64(len(batches)))
			s.items.Add(-int64(items))
			s.metrics.batches.Sub(float64(len(batches)))
			s.metrics.items.Sub(float64(items))
			s.metrics.itemsProcessed.Add(float64(items))
		} else {
			if err := s.storage.Release(context.Background(), ids...); err != nil {
				return fmt.Errorf("release batches: %w", err)
			}
			logger.Info("batches released", "batches", len(batches), "cooldown", policy.Cooldown())
			notify(s.flushed, struct{}{})
		}

		buf.Clear()
	}
}

func notify[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func ticker(d time.Duration) <-chan time.Time {
	if d <= 0 {
		return nil
	}
	return time.Tick(d)
}

func timer(d time.Duration) <-chan time.Time {
	if d <= 0 {
		return nil
	}
	return time.After(d)
}

type processCtxMarker struct{}

func markProcessContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, processCtxMarker{}, true)
}

func isProcessContext(ctx context.Context) bool {
	v, ok := ctx.Value(processCtxMarker{}).(bool)
	return ok && v
}
