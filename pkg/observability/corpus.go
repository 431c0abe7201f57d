// Corpus-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Corpus semantic convention attributes.
var (
	// Training record attributes
	AttrRecordID      = attribute.Key("fincorpus.record.id")
	AttrRecordStatus  = attribute.Key("fincorpus.record.status")
	AttrStatementType = attribute.Key("fincorpus.statement.type")

	// Pipeline attributes
	AttrPipelineStage = attribute.Key("fincorpus.pipeline.stage")
	AttrFilingID      = attribute.Key("fincorpus.filing.id")
	AttrSource        = attribute.Key("fincorpus.source")

	// Dataset attributes
	AttrDatasetID   = attribute.Key("fincorpus.dataset.id")
	AttrDatasetSize = attribute.Key("fincorpus.dataset.size")

	// Audit chain attributes
	AttrChainSeq  = attribute.Key("fincorpus.chain.seq")
	AttrEventType = attribute.Key("fincorpus.chain.event_type")

	// Sampling attributes
	AttrSampleMethod = attribute.Key("fincorpus.sample.method")
	AttrSampleSize   = attribute.Key("fincorpus.sample.size")
)

// RecordOperation creates attributes for lifecycle record operations.
func RecordOperation(recordID, status, statementType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRecordID.String(recordID),
		AttrRecordStatus.String(status),
		AttrStatementType.String(statementType),
	}
}

// PipelineOperation creates attributes for pipeline stage operations.
func PipelineOperation(stage, filingID, source string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPipelineStage.String(stage),
		AttrFilingID.String(filingID),
		AttrSource.String(source),
	}
}

// DatasetOperation creates attributes for dataset assembly operations.
func DatasetOperation(datasetID string, size int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDatasetID.String(datasetID),
		AttrDatasetSize.Int64(size),
	}
}

// ChainOperation creates attributes for audit chain operations.
func ChainOperation(seq int64, eventType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrChainSeq.Int64(seq),
		AttrEventType.String(eventType),
	}
}

// SampleOperation creates attributes for sampling calculator operations.
func SampleOperation(method string, size int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSampleMethod.String(method),
		AttrSampleSize.Int64(size),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus sets the span status based on error.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
