// Copyright 2026 The Dispatchkit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observe provides an OpenTelemetry implementation of the
// dispatch.ObservabilityRecorder contract: a request counter, a duration
// histogram, an in-flight gauge and a server span per dispatched request,
// all keyed by route pattern to keep cardinality bounded.
//
// Usage:
//
//	rec, err := observe.NewRecorder(
//		observe.WithMeterProvider(meterProvider),
//		observe.WithTracerProvider(tracerProvider),
//		observe.WithExcludePaths("/healthz", "/readyz"),
//	)
//	router := dispatch.MustNew(dispatch.WithObservability(rec))
package observe

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dispatchkit/dispatch"
)

const scopeName = "github.com/dispatchkit/dispatch/observe"

// Option configures a Recorder.
type Option func(*config)

type config struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	excludePaths   []string
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *config) {
		cfg.meterProvider = mp
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithExcludePaths excludes exact request paths from recording, typically
// health and readiness probes.
func WithExcludePaths(paths ...string) Option {
	return func(cfg *config) {
		cfg.excludePaths = append(cfg.excludePaths, paths...)
	}
}

// Recorder records one span and three metric streams per request:
//
//	http.server.request.count     counter
//	http.server.request.duration  histogram, seconds
//	http.server.active_requests   up-down counter
type Recorder struct {
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
	exclude  map[string]bool
}

var _ dispatch.ObservabilityRecorder = (*Recorder)(nil)

// NewRecorder builds a Recorder and registers its instruments.
func NewRecorder(opts ...Option) (*Recorder, error) {
	cfg := config{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	meter := cfg.meterProvider.Meter(scopeName)

	requests, err := meter.Int64Counter("http.server.request.count",
		metric.WithDescription("Number of dispatched HTTP requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of dispatched HTTP requests"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	rec := &Recorder{
		tracer:   cfg.tracerProvider.Tracer(scopeName),
		requests: requests,
		duration: duration,
		active:   active,
	}
	if len(cfg.excludePaths) > 0 {
		rec.exclude = make(map[string]bool, len(cfg.excludePaths))
		for _, p := range cfg.excludePaths {
			rec.exclude[p] = true
		}
	}
	return rec, nil
}

type requestState struct {
	span   trace.Span
	start  time.Time
	method string
}

// OnRequestStart opens the server span and bumps the in-flight gauge.
// Excluded paths return a nil state, which skips OnRequestEnd entirely.
func (r *Recorder) OnRequestStart(ctx context.Context, req *http.Request) (context.Context, any) {
	if r.exclude[req.URL.Path] {
		return ctx, nil
	}

	r.active.Add(ctx, 1)
	ctx, span := r.tracer.Start(ctx, req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.URL.Path),
		))
	return ctx, &requestState{span: span, start: time.Now(), method: req.Method}
}

// OnRequestEnd records the metrics and closes the span. The span name is
// rewritten to "METHOD pattern" once the matched route is known.
func (r *Recorder) OnRequestEnd(ctx context.Context, state any, status int, size int64, routePattern string) {
	st := state.(*requestState)
	elapsed := time.Since(st.start)

	attrs := metric.WithAttributes(
		attribute.String("http.request.method", st.method),
		attribute.Int("http.response.status_code", status),
		attribute.String("http.route", routePattern),
	)
	r.requests.Add(ctx, 1, attrs)
	r.duration.Record(ctx, elapsed.Seconds(), attrs)
	r.active.Add(ctx, -1)

	if routePattern != "" {
		st.span.SetName(st.method + " " + routePattern)
		st.span.SetAttributes(attribute.String("http.route", routePattern))
	}
	st.span.SetAttributes(
		attribute.Int("http.response.status_code", status),
		attribute.Int64("http.response.body.size", size),
	)
	if status >= http.StatusInternalServerError {
		st.span.SetStatus(codes.Error, http.StatusText(status))
	}
	st.span.End()
}
