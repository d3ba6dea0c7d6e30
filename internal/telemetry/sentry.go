// Package telemetry wraps Sentry tracing and error reporting for the
// ingestion, indexing and retrieval paths.
package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/logging"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

const (
	serviceName  = "supportkb"
	flushTimeout = 5 * time.Second
)

type Config struct {
	DSN              string
	Environment      string
	Release          string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client and returns a flush func. An empty
// DSN disables reporting; spans are still created but never sent.
func Init(cfg Config, logger *zap.Logger) (func(), error) {
	logger = logging.OrNop(logger)
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       serviceName,
		Debug:            cfg.Debug,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		TracesSampler:    sampler(cfg.TracesSampleRate),
		BeforeSend:       dropClientErrors,
	})
	if err != nil {
		logger.Warn("sentry init failed, continuing without tracing", zap.Error(err))
		return func() {}, nil
	}

	logger.Info("sentry tracing initialized",
		zap.String("environment", cfg.Environment),
		zap.Float64("sample_rate", cfg.TracesSampleRate),
	)
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampler never traces health probes and keeps child spans with their root.
func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if strings.HasSuffix(ctx.Span.Name, " /health") {
			return 0
		}
		var root sentry.SpanID
		if ctx.Span.ParentSpanID != root {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

// dropClientErrors discards events for cancelled requests, which are not
// server faults.
func dropClientErrors(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint != nil && hint.OriginalException != nil {
		if errors.Is(hint.OriginalException, context.Canceled) {
			return nil
		}
	}
	return event
}

// SpanAttributes are the tags attached to pipeline spans.
type SpanAttributes struct {
	OrgID     string
	ArticleID string
	JobID     string
	Operation string
}

func (a SpanAttributes) apply(span *sentry.Span) {
	for tag, v := range map[string]string{
		"org_id":     a.OrgID,
		"article_id": a.ArticleID,
		"job_id":     a.JobID,
	} {
		if v != "" {
			span.SetTag(tag, v)
		}
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

// Span is a nil-safe handle over a Sentry span.
type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

func (s *Span) SetOK() {
	if s.inner != nil {
		s.inner.Status = sentry.SpanStatusOK
	}
}

// SetStatus sets the span status from the error's domain code without
// reporting it.
func (s *Span) SetStatus(err error) {
	if s.inner != nil && err != nil {
		s.inner.Status = statusFor(err)
	}
}

// SetError is SetStatus plus an exception report for server side failures.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.SetStatus(err)
	if reportable(err) {
		CaptureError(s.inner.Context(), err)
	}
}

func (s *Span) Context() context.Context {
	if s.inner != nil {
		return s.inner.Context()
	}
	return context.Background()
}

func statusFor(err error) sentry.SpanStatus {
	switch domain.ErrorCode(err) {
	case domain.ErrCodeValidation:
		return sentry.SpanStatusInvalidArgument
	case domain.ErrCodeNotFound:
		return sentry.SpanStatusNotFound
	case domain.ErrCodeConflict:
		return sentry.SpanStatusAborted
	case domain.ErrCodeTransientProvider:
		return sentry.SpanStatusUnavailable
	case domain.ErrCodePermanentProvider:
		return sentry.SpanStatusFailedPrecondition
	default:
		return sentry.SpanStatusInternalError
	}
}

func reportable(err error) bool {
	switch domain.ErrorCode(err) {
	case domain.ErrCodeValidation, domain.ErrCodeNotFound, domain.ErrCodeConflict:
		return false
	}
	return true
}

// StartSpan starts a child of the span in ctx, or a new transaction when
// there is none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

// StartTransaction starts a root span for work that does not arrive over
// HTTP, such as a consumed queue message.
func StartTransaction(ctx context.Context, name, op string) (context.Context, *Span) {
	opts := []sentry.SpanOption{sentry.WithTransactionName(name)}
	if op != "" {
		opts = append(opts, sentry.WithOpName(op))
	}
	span := sentry.StartSpan(ctx, op, opts...)
	return span.Context(), &Span{inner: span}
}

func CaptureError(ctx context.Context, err error) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

func AddBreadcrumb(ctx context.Context, category, message string) {
	crumb := &sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(crumb, nil)
		return
	}
	sentry.AddBreadcrumb(crumb)
}
