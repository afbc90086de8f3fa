// Package acquire requests one-shot position fixes without blocking callers.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
	"github.com/lcalzada-xor/geoview/internal/telemetry"
)

var tracer = otel.Tracer("github.com/lcalzada-xor/geoview/acquire")

// Acquirer wraps a LocationSource with timeout, staleness and error
// classification. It never retries.
type Acquirer struct {
	source ports.LocationSource
	logger *slog.Logger
	now    func() time.Time
}

// NewAcquirer creates an Acquirer. A nil source makes every request fail
// with domain.ErrUnavailable.
func NewAcquirer(source ports.LocationSource, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// AcquireOnce starts a location request and returns immediately.
func (a *Acquirer) AcquireOnce(ctx context.Context, opts domain.AcquireOptions) *Request {
	var cancel context.CancelFunc
	if opts.TimeoutMs > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout())
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	req := newRequest(cancel)

	go func() {
		defer cancel()

		ctx, span := tracer.Start(ctx, "acquire.once")
		span.SetAttributes(
			attribute.String("location.source", a.sourceName()),
			attribute.Bool("location.high_accuracy", opts.HighAccuracy),
			attribute.Int64("location.timeout_ms", opts.TimeoutMs),
			attribute.Int64("location.max_age_ms", opts.MaxAgeMs),
		)
		defer span.End()

		start := a.now()
		fix, err := a.acquire(ctx, opts)
		outcome := domain.Outcome(err)
		telemetry.ObserveAcquisition(a.sourceName(), string(outcome), a.now().Sub(start))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(outcome))
			a.logger.Debug("location request failed", "source", a.sourceName(), "outcome", outcome, "error", err)
		}
		req.complete(fix, err)
	}()

	return req
}

type sourceResult struct {
	fix domain.Fix
	err error
}

func (a *Acquirer) acquire(ctx context.Context, opts domain.AcquireOptions) (domain.Fix, error) {
	if a.source == nil {
		return domain.Fix{}, &domain.AcquireError{Err: domain.ErrUnavailable}
	}

	results := make(chan sourceResult, 1)
	go func() {
		fix, err := a.source.RequestPosition(ctx, opts)
		results <- sourceResult{fix: fix, err: err}
	}()

	select {
	case <-ctx.Done():
		return domain.Fix{}, a.wrap(contextError(ctx.Err()))
	case res := <-results:
		if res.err != nil {
			if ctx.Err() != nil {
				return domain.Fix{}, a.wrap(contextError(ctx.Err()))
			}
			return domain.Fix{}, a.wrap(classify(res.err))
		}
		return a.check(res.fix, opts)
	}
}

// check rejects fixes that are off the globe or older than MaxAgeMs.
func (a *Acquirer) check(fix domain.Fix, opts domain.AcquireOptions) (domain.Fix, error) {
	if !fix.Position.Valid() {
		err := &domain.OutOfRangeError{Latitude: fix.Position.Latitude, Longitude: fix.Position.Longitude}
		return domain.Fix{}, a.wrap(fmt.Errorf("%w: %v", domain.ErrUnavailable, err))
	}
	if opts.MaxAgeMs > 0 && fix.Age(a.now()) > opts.MaxAge() {
		return domain.Fix{}, a.wrap(fmt.Errorf("%w: fix is %s old", domain.ErrUnavailable, fix.Age(a.now()).Round(time.Millisecond)))
	}
	if fix.CapturedAt.IsZero() {
		fix.CapturedAt = a.now()
	}
	if fix.Source == "" {
		fix.Source = a.sourceName()
	}
	return fix, nil
}

func (a *Acquirer) wrap(err error) error {
	return &domain.AcquireError{Source: a.sourceName(), Err: err}
}

func (a *Acquirer) sourceName() string {
	if a.source == nil {
		return "none"
	}
	return a.source.Name()
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	return domain.ErrCanceled
}

// classify keeps location sentinels and folds anything else into ErrUnavailable.
func classify(err error) error {
	for _, known := range []error{
		domain.ErrPermissionDenied,
		domain.ErrUnavailable,
		domain.ErrTimeout,
		domain.ErrCanceled,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
}
