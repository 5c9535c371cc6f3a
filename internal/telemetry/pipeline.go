package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StringAttribute creates a string attribute
func StringAttribute(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// StringSliceAttribute creates a string slice attribute
func StringSliceAttribute(key string, value []string) attribute.KeyValue {
	return attribute.StringSlice(key, value)
}

// Int64Attribute creates an int64 attribute
func Int64Attribute(key string, value int64) attribute.KeyValue {
	return attribute.Int64(key, value)
}

// Float64Attribute creates a float64 attribute
func Float64Attribute(key string, value float64) attribute.KeyValue {
	return attribute.Float64(key, value)
}

// BoolAttribute creates a bool attribute
func BoolAttribute(key string, value bool) attribute.KeyValue {
	return attribute.Bool(key, value)
}

// StageResult describes what a pipeline stage did to its input.
type StageResult struct {
	RowsIn   int
	RowsOut  int
	Warnings int
}

// PipelineTracer wraps each preparation stage in a span.
type PipelineTracer struct {
	tracer trace.Tracer
}

// NewPipelineTracer creates a tracer on the global provider.
func NewPipelineTracer() *PipelineTracer {
	return &PipelineTracer{tracer: GetPipelineTracer()}
}

// NewPipelineTracerWith creates a tracer from a specific provider.
func NewPipelineTracerWith(tp trace.TracerProvider) *PipelineTracer {
	return &PipelineTracer{tracer: tp.Tracer(ServiceName + "/pipeline")}
}

// TraceStage starts a span named after stage and tagged with symbol.
func (pt *PipelineTracer) TraceStage(ctx context.Context, stage string, symbol string) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, "pipeline."+stage, trace.WithAttributes(
		attribute.String("pipeline.stage", stage),
		attribute.String("pipeline.symbol", symbol),
	))
}

// EndStage records the result or error on span and ends it.
func (pt *PipelineTracer) EndStage(span trace.Span, result StageResult, err error) {
	defer span.End()
	span.SetAttributes(
		attribute.Int("pipeline.rows_in", result.RowsIn),
		attribute.Int("pipeline.rows_out", result.RowsOut),
		attribute.Int("pipeline.warnings", result.Warnings),
	)
	if err != nil {
		RecordError(span, err)
		return
	}
	span.SetStatus(codes.Ok, "")
}
