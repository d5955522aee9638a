// Package worker delivers queued document changes to a handler with
// at-least-once semantics: failed deliveries are retried with a backoff
// and successful ones are deduplicated by change id.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/pitchboard/internal/adapters/mq/queue"
	"github.com/okian/pitchboard/internal/domain/dedupe"
	"github.com/okian/pitchboard/pkg/logger"
	"github.com/okian/pitchboard/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 500 * time.Millisecond
	poolShutdownTimeout = 30 * time.Second
)

// Change is what workers read off the queue.
type Change = queue.Change

// Handler processes one delivered change.
type Handler interface {
	HandleChange(ctx context.Context, c Change) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, c Change) error

// HandleChange calls f.
func (f HandlerFunc) HandleChange(ctx context.Context, c Change) error { return f(ctx, c) } //nolint:gocritic // hugeParam

// Queue is the part of the queue a worker needs: it reads changes and
// puts failed ones back for redelivery.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Change
	Enqueue(ctx context.Context, c Change) bool
}

// Worker processes changes until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for pending retries to settle.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	deduper dedupe.Deduper
	name    string

	maxAttempts int
	backoff     time.Duration

	// mu guards stopped so no retry is added once retries.Wait may run.
	mu       sync.Mutex
	stopped  bool
	shutdown chan struct{}
	done     chan struct{}
	retries  sync.WaitGroup

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from q and delivering to h.
func NewInMemoryWorker(q Queue, h Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		handler:     h,
		name:        "worker",
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultRetryBackoff,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.deduper == nil {
		w.deduper = dedupe.NewInMemoryDeduper()
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	changes := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.process(ctx, c); err != nil {
				w.logger.Error(ctx, "change delivery failed",
					logger.String("change_id", c.ID),
					logger.String("path", c.Path),
					logger.Int("attempt", c.Attempt+1),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker. Pending retries are abandoned.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()
	select {
	case <-w.done:
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
	w.retries.Wait()
	return nil
}

func (w *InMemoryWorker) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.shutdown)
	}
}

// process delivers one change. A change id that was already delivered
// successfully is dropped. A failed delivery is forgotten by the deduper and
// scheduled for redelivery until maxAttempts is reached.
func (w *InMemoryWorker) process(ctx context.Context, c Change) error { //nolint:gocritic // hugeParam
	if w.deduper.SeenAndRecord(ctx, c.ID) {
		metrics.RecordTriggerDecision("duplicate")
		w.logger.Debug(ctx, "duplicate change dropped", logger.String("change_id", c.ID))
		return nil
	}

	err := w.handler.HandleChange(ctx, c)
	if err == nil {
		return nil
	}
	w.deduper.Unrecord(ctx, c.ID)
	metrics.RecordErrorByComponent("worker", "handler_error")

	if c.Attempt+1 >= w.maxAttempts {
		metrics.RecordWorkerFailure()
		return fmt.Errorf("giving up on change %s after %d attempts: %w", c.ID, c.Attempt+1, err)
	}
	w.scheduleRetry(ctx, c)
	return err
}

func (w *InMemoryWorker) scheduleRetry(ctx context.Context, c Change) { //nolint:gocritic // hugeParam
	c.Attempt++
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		metrics.RecordWorkerFailure()
		w.logger.Warn(ctx, "retry dropped during shutdown",
			logger.String("change_id", c.ID),
			logger.Int("attempt", c.Attempt+1),
		)
		return
	}
	w.retries.Add(1)
	w.mu.Unlock()
	metrics.RecordWorkerRetry()
	go func() {
		defer w.retries.Done()
		t := time.NewTimer(w.backoff * time.Duration(c.Attempt))
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case <-t.C:
		}
		if !w.queue.Enqueue(ctx, c) {
			metrics.RecordWorkerFailure()
			w.logger.Error(ctx, "could not requeue change for retry",
				logger.String("change_id", c.ID),
				logger.Int("attempt", c.Attempt+1),
			)
		}
	}()
}

// Pool manages multiple workers sharing one queue and one deduper.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates workerCount workers. opts apply to every worker; a
// deduper is created and shared unless one is passed with WithDeduper.
func NewPool(workerCount int, q Queue, h Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	shared := append([]Option{WithDeduper(dedupe.NewInMemoryDeduper())}, opts...)
	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append(append([]Option{}, shared...), WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(q, h, wopts...)
	}
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
}

// Shutdown closes the queue, lets workers drain what is already queued and
// waits for them up to ctx or an internal timeout. Workers still running
// after that are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
		w.stop()
		w.retries.Wait()
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
