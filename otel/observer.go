// Package otel provides OpenTelemetry integration for tool invocations.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/toolbridge/tool"
)

// InvokeObserver records tool invocation signals into OpenTelemetry.
type InvokeObserver struct {
	tracer trace.Tracer

	invocations metric.Int64Counter
	failures    metric.Int64Counter
	timeouts    metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewInvokeObserver creates an observer bound to the provided meter/tracer.
func NewInvokeObserver(meter metric.Meter, tracer trace.Tracer) (*InvokeObserver, error) {
	invocations, err := meter.Int64Counter(
		"toolbridge.invocations",
		metric.WithDescription("Number of tool invocations"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter(
		"toolbridge.failures",
		metric.WithDescription("Number of invocations that failed before or during execution"),
	)
	if err != nil {
		return nil, err
	}
	timeouts, err := meter.Int64Counter(
		"toolbridge.timeouts",
		metric.WithDescription("Number of invocations killed by timeout"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"toolbridge.latency",
		metric.WithDescription("Invocation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &InvokeObserver{
		tracer:      tracer,
		invocations: invocations,
		failures:    failures,
		timeouts:    timeouts,
		latency:     latency,
	}, nil
}

// InvokeStarted implements tool.Observer. Per-invocation state lives in the
// finish observation, so nothing is recorded here.
func (o *InvokeObserver) InvokeStarted(toolName, requestID string) {}

// InvokeFinished records one completed invocation attempt.
func (o *InvokeObserver) InvokeFinished(obs tool.InvokeObservation) {
	if o == nil {
		return
	}

	success := obs.Code == "" && obs.ExitCode == 0
	attrs := []attribute.KeyValue{
		attribute.String("tool_name", obs.Tool),
		attribute.String("runtime", string(obs.Runtime)),
		attribute.Bool("success", success),
	}
	if obs.Code != "" {
		attrs = append(attrs,
			attribute.String("error_stage", string(obs.Stage)),
			attribute.String("error_code", obs.Code),
		)
	} else {
		attrs = append(attrs, attribute.Int("exit_code", obs.ExitCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.invocations.Add(ctx, 1, options)
	o.latency.Record(ctx, obs.Duration.Seconds(), options)
	if obs.Code != "" {
		o.failures.Add(ctx, 1, options)
	}
	if obs.TimedOut {
		o.timeouts.Add(ctx, 1, options)
	}

	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(attrs...))
	span.SetAttributes(attribute.String("request_id", obs.RequestID))
	if obs.Code != "" {
		span.SetStatus(codes.Error, obs.Code)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

var _ tool.Observer = (*InvokeObserver)(nil)
