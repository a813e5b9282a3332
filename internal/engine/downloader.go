package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/datallboy/rangefetch/internal/app"
	"github.com/datallboy/rangefetch/internal/domain"
)

const tracerName = "github.com/datallboy/rangefetch/internal/engine"

// Downloader drives size discovery, segment fetches and the final digest.
type Downloader struct {
	ctx      *app.Context
	source   app.Source
	endpoint string
	onStart  func(domain.Resource, []domain.Window)
	throttle *rate.Limiter
	retry    RetryPolicy
	tracer   trace.Tracer
}

func NewDownloader(ctx *app.Context) *Downloader {
	cfg := ctx.Config
	return &Downloader{
		ctx:      ctx,
		source:   ctx.Source,
		endpoint: cfg.Endpoint,
		throttle: newThrottle(cfg.Download.RequestsPerSecond),
		retry: RetryPolicy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		},
		tracer: otel.Tracer(tracerName),
	}
}

// WithSource returns a copy of the downloader that fetches from src and
// records endpoint on new runs.
func (s *Downloader) WithSource(endpoint string, src app.Source) *Downloader {
	d := *s
	d.source = src
	d.endpoint = endpoint
	return &d
}

// OnStart registers fn to be called once the resource size is known and
// before the first segment is fetched.
func (s *Downloader) OnStart(fn func(domain.Resource, []domain.Window)) {
	s.onStart = fn
}

// NewRun creates the bookkeeping record for one download.
func (s *Downloader) NewRun() *domain.Run {
	cfg := s.ctx.Config
	return &domain.Run{
		ID:        ksuid.New().String(),
		Endpoint:  s.endpoint,
		Status:    domain.StatusRunning,
		Workers:   cfg.Download.Workers,
		Algorithm: cfg.Digest.Algorithm,
	}
}

// Download runs a fresh download from start to finish.
func (s *Downloader) Download(ctx context.Context) (*domain.Result, error) {
	return s.Execute(ctx, s.NewRun())
}

// Execute processes run from size discovery to digest. Any permanent error,
// or a transient one that outlives the retry budget, aborts the whole run.
func (s *Downloader) Execute(ctx context.Context, run *domain.Run) (*domain.Result, error) {
	run.StartedAt = time.Now()
	s.saveRun(run)

	res, err := s.execute(ctx, run)
	s.finalizeRun(run, res, err)

	return res, err
}

func (s *Downloader) execute(ctx context.Context, run *domain.Run) (*domain.Result, error) {
	cfg := s.ctx.Config

	resource, err := s.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("size discovery: %w", err)
	}

	windows := Partition(resource.TotalLength, cfg.Download.PacketSize)
	run.TotalLength = resource.TotalLength
	run.WindowCount = len(windows)

	s.ctx.Logger.Info("Starting download from %s: %d bytes in %d segments", resource.Endpoint, resource.TotalLength, len(windows))

	if s.onStart != nil {
		s.onStart(resource, windows)
	}

	buf := NewBuffer(resource.TotalLength)

	digester, err := NewDigester(cfg.Digest.Algorithm, cfg.Digest.Mode)
	if err != nil {
		return nil, err
	}

	if cfg.Download.Workers > 1 && len(windows) > 1 {
		err = s.runWorkerPool(ctx, run, buf, windows, digester)
	} else {
		err = s.runSequential(ctx, run, buf, windows, digester)
	}
	if err != nil {
		return nil, err
	}

	digest, err := digester.Finish(buf.Bytes())
	if err != nil {
		return nil, err
	}

	if s.ctx.Cache != nil {
		if err := s.ctx.Cache.Put(ctx, run.ID, buf.Bytes(), digest); err != nil {
			return nil, fmt.Errorf("saving payload: %w", err)
		}
	}

	return &domain.Result{
		RunID:    run.ID,
		Resource: resource,
		Windows:  windows,
		Data:     buf.Bytes(),
		Digest:   digest,
	}, nil
}

func (s *Downloader) discover(ctx context.Context) (domain.Resource, error) {
	var resource domain.Resource

	err := s.withRetry(ctx, "size discovery", func(ctx context.Context) error {
		if err := s.throttle.Wait(ctx); err != nil {
			return err
		}

		ctx, span := s.tracer.Start(ctx, "rangefetch.discover",
			trace.WithAttributes(attribute.String("endpoint", s.endpoint)))
		defer span.End()

		r, err := s.source.Discover(ctx)
		if err != nil {
			recordError(span, err)
			return err
		}

		span.SetAttributes(attribute.Int64("resource.length", int64(r.TotalLength)))
		resource = r
		return nil
	})

	return resource, err
}

// runSequential fetches windows strictly in order, one connection at a time.
func (s *Downloader) runSequential(ctx context.Context, run *domain.Run, buf *Buffer, windows []domain.Window, digester *Digester) error {
	for _, w := range windows {
		label := "segment " + w.String()
		err := s.withRetry(ctx, label, func(ctx context.Context) error {
			return s.fetchWindow(ctx, run, buf, w)
		})
		if err != nil {
			return err
		}

		digester.Complete(w, buf.Slice(w))
	}
	return nil
}

// fetchWindow performs one attempt at filling w.
func (s *Downloader) fetchWindow(ctx context.Context, run *domain.Run, buf *Buffer, w domain.Window) error {
	if err := s.throttle.Wait(ctx); err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "rangefetch.segment", trace.WithAttributes(
		attribute.Int("segment.index", w.Index),
		attribute.Int64("segment.start", w.Start),
		attribute.Int64("segment.length", w.Length),
	))
	defer span.End()

	dst, err := buf.Lend(w)
	if err != nil {
		recordError(span, err)
		return err
	}
	defer buf.Return(w)

	if err := s.source.Fetch(ctx, w, dst); err != nil {
		recordError(span, err)
		return err
	}

	run.BytesWritten.Add(uint64(w.Length))
	s.ctx.Logger.Info("Segment %s", w)

	return nil
}

// withRetry calls fn until it succeeds, fails permanently or runs out of attempts.
func (s *Downloader) withRetry(ctx context.Context, label string, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !domain.IsRetryable(err) {
			return err
		}

		if attempt >= s.retry.MaxAttempts {
			return fmt.Errorf("%s: %w after %d attempts: %w", label, domain.ErrRetriesExhausted, attempt, err)
		}

		s.ctx.Logger.Warn("[Retry] %s: Attempt %d/%d - Error: %v", label, attempt, s.retry.MaxAttempts, err)

		if err := sleep(ctx, s.retry.Delay(attempt)); err != nil {
			return err
		}
	}
}

func (s *Downloader) saveRun(run *domain.Run) {
	if s.ctx.Store == nil {
		return
	}
	if err := s.ctx.Store.SaveRun(run); err != nil {
		s.ctx.Logger.Warn("Could not record run %s: %v", run.ID, err)
	}
}

func (s *Downloader) finalizeRun(run *domain.Run, res *domain.Result, err error) {
	run.FinishedAt = time.Now()
	run.Downloaded = run.BytesWritten.Load()

	if err != nil {
		run.Status = domain.StatusFailed
		if errors.Is(err, context.Canceled) {
			run.Error = "Cancelled by user"
		} else {
			run.Error = err.Error()
		}
	} else {
		run.Status = domain.StatusCompleted
		run.Digest = res.Digest.Hex()
	}

	s.saveRun(run)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
