package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/pitchboard/internal/domain/leaderboard"
	"github.com/okian/pitchboard/internal/domain/model"
	"github.com/okian/pitchboard/internal/domain/trigger"
	"github.com/okian/pitchboard/pkg/logger"
	"github.com/okian/pitchboard/pkg/metrics"
)

var tracer = otel.Tracer("pitchboard.pipeline")

const (
	defaultPipelineTimeout = 60 * time.Second
	failureFlagTimeout     = 5 * time.Second
)

// Outcome summarises one pipeline call. Ran is false when the trigger
// guard decided not to compute.
type Outcome struct {
	Ran               bool      `json:"ran"`
	InvestmentEntries int       `json:"investmentEntries"`
	RatingEntries     int       `json:"ratingEntries"`
	Skipped           int       `json:"skipped"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

// Pipeline aggregates, ranks and persists the results of one event.
type Pipeline struct {
	agg     *Aggregator
	writer  *Writer
	timeout time.Duration
	now     func() time.Time
	logger  logger.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineTimeout bounds one whole run.
func WithPipelineTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithPipelineLogger sets the pipeline logger.
func WithPipelineLogger(l logger.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a Pipeline.
func NewPipeline(agg *Aggregator, w *Writer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		agg:     agg,
		writer:  w,
		timeout: defaultPipelineTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("pipeline")
	}
	return p
}

// Run computes results when the event moved into ended. Any other
// transition, including one whose before-image is already ended, is a
// no-op. A failed computation is recorded on the event and returned.
func (p *Pipeline) Run(ctx context.Context, eventID string, before, after model.Status) (Outcome, error) {
	decision := trigger.Decide(before, after)
	metrics.RecordTriggerDecision(string(decision))
	if decision != trigger.Run {
		p.logger.Debug(ctx, "skipping event change",
			logger.String("event_id", eventID),
			logger.String("before", string(before)),
			logger.String("after", string(after)),
		)
		return Outcome{}, nil
	}
	return p.Compute(ctx, eventID)
}

// Compute aggregates and writes results unconditionally.
func (p *Pipeline) Compute(ctx context.Context, eventID string) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Run",
		trace.WithAttributes(attribute.String("event.id", eventID)),
	)
	defer span.End()

	start := time.Now()
	out, err := p.compute(ctx, eventID)
	elapsed := float64(time.Since(start).Milliseconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordPipelineRun("failed", elapsed)
		metrics.RecordErrorByComponent("pipeline", "run_failed")
		p.logger.Error(ctx, "results computation failed",
			logger.String("event_id", eventID),
			logger.Error(err),
		)
		p.markFailed(ctx, eventID, err)
		return out, err
	}

	span.SetStatus(codes.Ok, "")
	metrics.RecordPipelineRun("ready", elapsed)
	p.logger.Info(ctx, "results ready",
		logger.String("event_id", eventID),
		logger.Int("investment_entries", out.InvestmentEntries),
		logger.Int("rating_entries", out.RatingEntries),
		logger.Int("skipped", out.Skipped),
		logger.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (p *Pipeline) compute(ctx context.Context, eventID string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out := Outcome{Ran: true}
	res, err := p.agg.Aggregate(ctx, eventID)
	if err != nil {
		return out, err
	}
	out.Skipped = len(res.Skipped)

	at := p.now()
	inv := leaderboard.Result(model.MetricInvestment, leaderboard.Build(res.Investments, res.Names))
	rat := leaderboard.Result(model.MetricRating, leaderboard.Build(res.Ratings, res.Names))
	inv.GeneratedAt, rat.GeneratedAt = at, at

	_, wspan := tracer.Start(ctx, "pipeline.Write")
	err = p.writer.WriteResults(ctx, eventID, inv, rat)
	if err == nil {
		err = p.writer.MarkReady(ctx, eventID, at)
	}
	if err != nil {
		wspan.RecordError(err)
		wspan.SetStatus(codes.Error, err.Error())
	}
	wspan.End()
	if err != nil {
		return out, err
	}

	metrics.UpdateLeaderboardEntries(string(model.MetricInvestment), len(inv.Leaderboard))
	metrics.UpdateLeaderboardEntries(string(model.MetricRating), len(rat.Leaderboard))
	out.InvestmentEntries = len(inv.Leaderboard)
	out.RatingEntries = len(rat.Leaderboard)
	out.GeneratedAt = at
	return out, nil
}

// markFailed is best effort. It runs on a context detached from the
// possibly expired run context and never replaces the run error.
func (p *Pipeline) markFailed(ctx context.Context, eventID string, cause error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureFlagTimeout)
	defer cancel()
	if err := p.writer.MarkFailed(fctx, eventID, cause, p.now()); err != nil {
		metrics.RecordFailureFlagError()
		p.logger.Error(ctx, "could not record results failure",
			logger.String("event_id", eventID),
			logger.Error(err),
		)
	}
}
