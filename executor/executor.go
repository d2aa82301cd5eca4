// Package executor wraps every plugin invocation with a deadline,
// exception capture, parameter sanitization, rate-limited crash logging,
// and a bounded crash history, so that a plugin failure of any kind never
// reaches the router as anything but a structured error.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	pluginhost "github.com/aria-project/pluginhost"
)

// DefaultTimeout is the global invocation deadline used when a call site
// does not request a narrower one.
const DefaultTimeout = 30 * time.Second

// Options configures an Executor.
type Options struct {
	DefaultTimeout   time.Duration
	RateLimitWindow  time.Duration
	RateLimitMax     int
	HistorySize      int
	Logger           *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.DefaultTimeout == 0 {
		o.DefaultTimeout = DefaultTimeout
	}
	if o.RateLimitWindow == 0 {
		o.RateLimitWindow = 60 * time.Second
	}
	if o.RateLimitMax == 0 {
		o.RateLimitMax = 5
	}
	if o.HistorySize == 0 {
		o.HistorySize = 100
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Invoke is the function signature of one plugin call: a method bound to a
// specific instance, taking sanitization-unaware parameters.
type Invoke func(ctx context.Context) (any, error)

// Executor wraps plugin calls in a timeout, crash capture, and
// rate-limited logging.
type Executor struct {
	opts    Options
	limiter *rateLimiter
	history *ringBuffer
	tracer  oteltrace.Tracer
	tp      *sdktrace.TracerProvider
}

// New builds an Executor. Call Shutdown when the host itself shuts down to
// flush the trace provider.
func New(opts Options) *Executor {
	opts = opts.withDefaults()
	tp := newTracerProvider(opts.Logger)
	return &Executor{
		opts:    opts,
		limiter: newRateLimiter(opts.RateLimitWindow, opts.RateLimitMax),
		history: newRingBuffer(opts.HistorySize),
		tracer:  tp.Tracer("pluginhost/executor"),
		tp:      tp,
	}
}

// Shutdown flushes the trace provider.
func (e *Executor) Shutdown(ctx context.Context) error {
	return e.tp.Shutdown(ctx)
}

// Result is the outcome of a timed, isolated invocation.
type Result struct {
	Value     any
	ElapsedMS int64
}

// Invoke runs fn under a deadline, converting timeouts and panics/errors
// into crash reports and a mapped error rather than letting them escape.
// requestID and params are used only for crash reporting, never mutated.
func (e *Executor) Invoke(ctx context.Context, plugin, method string, params map[string]any, requestID any, fn Invoke) (result Result, callErr error) {
	deadline := e.opts.DefaultTimeout
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cctx, span := e.tracer.Start(cctx, fmt.Sprintf("%s/%s", plugin, method), oteltrace.WithAttributes(
		attribute.String("plugin", plugin),
		attribute.String("method", method),
	))
	defer span.End()

	start := time.Now()

	type callOutcome struct {
		value any
		err   error
	}
	done := make(chan callOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(cctx)
		done <- callOutcome{value: v, err: err}
	}()

	select {
	case <-cctx.Done():
		elapsed := time.Since(start)
		span.SetStatus(codes.Error, "timeout")
		e.recordCrash(plugin, method, "TimeoutError", fmt.Sprintf("exceeded %s", deadline), requestID, params)
		return Result{ElapsedMS: elapsed.Milliseconds()}, pluginhost.NewTimeoutError("Executor.Invoke", fmt.Errorf("%s/%s exceeded %s", plugin, method, deadline))

	case outcome := <-done:
		elapsed := time.Since(start)
		if outcome.err != nil {
			span.SetStatus(codes.Error, outcome.err.Error())
			if errors.Is(outcome.err, pluginhost.ErrResourceExhausted) {
				e.recordCrash(plugin, method, "ResourceExhausted", outcome.err.Error(), requestID, params)
				return Result{ElapsedMS: elapsed.Milliseconds()}, pluginhost.NewResourceExhaustedError("Executor.Invoke", outcome.err)
			}
			e.recordCrash(plugin, method, "PluginException", outcome.err.Error(), requestID, params)
			return Result{ElapsedMS: elapsed.Milliseconds()}, pluginhost.NewExecutionError("Executor.Invoke", fmt.Errorf("%w", outcome.err))
		}
		span.SetStatus(codes.Ok, "")
		return Result{Value: outcome.value, ElapsedMS: elapsed.Milliseconds()}, nil
	}
}

// recordCrash builds a sanitized CrashReport, applies the rate limiter, and
// appends to the bounded history regardless of whether the full report was
// logged.
func (e *Executor) recordCrash(plugin, method, kind, message string, requestID any, params map[string]any) {
	now := time.Now().UTC()
	report := CrashReport{
		Plugin:    plugin,
		Method:    method,
		Exception: kind,
		Message:   message,
		Timestamp: now,
		RequestID: requestID,
		Params:    SanitizeParams(params),
	}

	decision := e.limiter.allow(plugin, now)
	if !decision.Allowed {
		report.Suppressed = true
		e.history.add(report)
		return
	}

	if decision.ResumedAfterSuppression {
		e.opts.Logger.Error("crash reporting resumed after suppression",
			"plugin", plugin, "suppressed_count", decision.SuppressedCount)
	}

	e.opts.Logger.Error("plugin invocation crashed",
		"plugin", plugin, "method", method, "exception", kind, "message", message,
		"request_id", requestID, "params", report.Params)

	e.history.add(report)
}

// CrashHistory returns a snapshot of the bounded crash ring buffer,
// oldest-first.
func (e *Executor) CrashHistory() []CrashReport {
	return e.history.snapshot()
}
