// Package service wires the results pipeline, change delivery and event
// commands into the dependencies required by the HTTP API and the CLI.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/pitchboard/internal/adapters/docstore"
	changequeue "github.com/okian/pitchboard/internal/adapters/mq/queue"
	workerpool "github.com/okian/pitchboard/internal/adapters/mq/worker"
	"github.com/okian/pitchboard/internal/domain/dedupe"
	"github.com/okian/pitchboard/internal/domain/model"
	"github.com/okian/pitchboard/pkg/logger"
	"github.com/okian/pitchboard/pkg/metrics"
)

// Service implements the API dependencies for the results system.
type Service struct {
	mu sync.RWMutex

	store    docstore.Store
	commands *Commands
	pipeline *Pipeline
	notifier *Notifier

	queue      *changequeue.InMemoryQueue
	deduper    dedupe.Deduper
	workerPool *workerpool.Pool
	watchOnce  sync.Once

	sweepInterval time.Duration
	sweepNow      chan struct{}
	stopSweeper   context.CancelFunc
	sweeperDone   chan struct{}

	workerCount     int
	queueSize       int
	dedupeSize      int
	maxAttempts     int
	retryBackoff    time.Duration
	fetchTimeout    time.Duration
	pipelineTimeout time.Duration
	notifyHost      bool
	now             func() time.Time

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of delivery workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the change queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many delivered change ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRetry sets the delivery attempt limit and base backoff.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if backoff >= 0 {
			s.retryBackoff = backoff
		}
	}
}

// WithTimeouts bounds each collection fetch and each whole pipeline run.
func WithTimeouts(fetch, pipeline time.Duration) Option {
	return func(s *Service) {
		if fetch > 0 {
			s.fetchTimeout = fetch
		}
		if pipeline > 0 {
			s.pipelineTimeout = pipeline
		}
	}
}

// WithHostNotifications toggles the in-app notifications sent to a host
// when their event is created, goes live or ends.
func WithHostNotifications(enabled bool) Option {
	return func(s *Service) {
		s.notifyHost = enabled
	}
}

// WithSweepInterval sets how often ended events without results are
// looked for and computed.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithNow replaces the clock used for generated timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store. Commands, results and recompute
// work immediately; Start is needed only for change-driven runs.
func New(store docstore.Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		workerCount:     runtime.NumCPU(),
		queueSize:       10_000,
		dedupeSize:      dedupe.DefaultMaxSize,
		maxAttempts:     3,
		retryBackoff:    500 * time.Millisecond,
		fetchTimeout:    defaultFetchTimeout,
		pipelineTimeout: defaultPipelineTimeout,
		notifyHost:      true,
		sweepInterval:   defaultSweepInterval,
		sweepNow:        make(chan struct{}, 1),
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.commands = NewCommands(store)
	s.commands.now = s.now
	s.pipeline = NewPipeline(
		NewAggregator(store, s.fetchTimeout, s.logger.Named("aggregator")),
		NewWriter(store),
		WithPipelineTimeout(s.pipelineTimeout),
		WithClock(s.now),
		WithPipelineLogger(s.logger.Named("pipeline")),
	)
	if s.notifyHost {
		s.notifier = NewNotifier(store)
		s.notifier.now = s.now
	}
	return s
}

// Start subscribes to event document changes and starts the workers that
// deliver them to the pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting results service...")

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = changequeue.NewInMemoryQueue(changequeue.WithCapacity(s.queueSize))
	controller := NewController(s.pipeline, s.notifier, s.logger.Named("controller"))
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, controller,
		workerpool.WithDeduper(s.deduper),
		workerpool.WithMaxAttempts(s.maxAttempts),
		workerpool.WithRetryBackoff(s.retryBackoff),
	)
	s.workerPool.Start(context.WithoutCancel(ctx))
	s.watchOnce.Do(func() {
		s.store.Watch(model.IsEventPath, docstore.PublisherFunc(s.publish))
	})

	sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopSweeper = cancel
	s.sweeperDone = make(chan struct{})
	go s.runSweeper(sweepCtx, s.sweeperDone)

	s.started = true
	s.logger.Info(ctx, "results service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("maxAttempts", s.maxAttempts),
	)
	return nil
}

// publish forwards a committed event change to the delivery queue.
func (s *Service) publish(ctx context.Context, c docstore.Change) bool { //nolint:gocritic // hugeParam
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false
	}
	if !s.queue.Enqueue(ctx, c) {
		metrics.RecordErrorByComponent("service", "change_dropped")
		s.logger.Warn(ctx, "event change dropped by full queue; scheduling a sweep",
			logger.String("path", c.Path),
			logger.String("change_id", c.ID),
		)
		select {
		case s.sweepNow <- struct{}{}:
		default:
		}
		return false
	}
	return true
}

// Stop drains queued changes and stops the workers.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	pool := s.workerPool
	stopSweeper, sweeperDone := s.stopSweeper, s.sweeperDone
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping results service...")
	stopSweeper()
	select {
	case <-sweeperDone:
	case <-ctx.Done():
		return fmt.Errorf("stop sweeper: %w", ctx.Err())
	}
	if err := pool.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info(ctx, "results service stopped")
	return nil
}

// CreateEvent creates a new event in setup.
func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (model.Event, error) {
	return s.commands.CreateEvent(ctx, in)
}

// GetEvent loads an event.
func (s *Service) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	return s.commands.GetEvent(ctx, eventID)
}

// SetStatus moves an event through its lifecycle. Ending an event starts
// the results pipeline through the change feed.
func (s *Service) SetStatus(ctx context.Context, eventID string, status model.Status) (model.Event, error) {
	return s.commands.SetStatus(ctx, eventID, status)
}

// UpsertStartup creates or renames a startup in an event.
func (s *Service) UpsertStartup(ctx context.Context, eventID, startupID string, in UpsertStartupInput) (model.Startup, error) {
	return s.commands.UpsertStartup(ctx, eventID, startupID, in)
}

// Invest records an investment in a live event.
func (s *Service) Invest(ctx context.Context, eventID string, in InvestInput) (model.Investment, error) {
	return s.commands.Invest(ctx, eventID, in)
}

// Rate records a rating in a live event.
func (s *Service) Rate(ctx context.Context, eventID, startupID, raterID string, in RateInput) (model.Rating, error) {
	return s.commands.Rate(ctx, eventID, startupID, raterID, in)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"dedupeSize":   s.dedupeSize,
		"maxAttempts":  s.maxAttempts,
		"notifyHost":   s.notifyHost,
		"fetchTimeout": s.fetchTimeout.String(),
	}
	if s.started {
		queueLen := s.queue.Len(context.Background())
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}
