package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments is exactly the §6.6 metric surface — no extras, no renames.
type Instruments struct {
	MessagesProcessedTotal  metric.Int64Counter
	MessagesInProgress      metric.Int64UpDownCounter
	ProcessingDuration      metric.Float64Histogram
	AvroRecordsParsedTotal  metric.Int64Counter
	AvroParseErrorsTotal    metric.Int64Counter
	QualityScore            metric.Float64Histogram
	QuarantinedTotal         metric.Int64Counter
	TrainingExamplesEmitted  metric.Int64Counter
	DuplicatesTotal          metric.Int64Counter
	RetriesTotal             metric.Int64Counter
	DeadLetterTotal          metric.Int64Counter
	ConsumerStatus           metric.Int64UpDownCounter
	BrokerStatus             metric.Int64UpDownCounter
	StoreStatus              metric.Int64UpDownCounter
}

func buildInstruments(meter metric.Meter) (Instruments, error) {
	var ins Instruments
	var err error

	if ins.MessagesProcessedTotal, err = meter.Int64Counter("messages_processed_total",
		metric.WithDescription("Total messages processed, by record_type and status")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.MessagesInProgress, err = meter.Int64UpDownCounter("messages_in_progress",
		metric.WithDescription("Messages currently being processed")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.ProcessingDuration, err = meter.Float64Histogram("processing_duration_seconds",
		metric.WithDescription("End-to-end message processing duration"),
		metric.WithUnit("s")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.AvroRecordsParsedTotal, err = meter.Int64Counter("avro_records_parsed_total",
		metric.WithDescription("Total Avro records successfully parsed")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.AvroParseErrorsTotal, err = meter.Int64Counter("avro_parse_errors_total",
		metric.WithDescription("Total Avro parse failures, by kind")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.QualityScore, err = meter.Float64Histogram("quality_score",
		metric.WithDescription("Distribution of validation quality scores")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.QuarantinedTotal, err = meter.Int64Counter("quarantined_total",
		metric.WithDescription("Total messages quarantined, by reason")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.TrainingExamplesEmitted, err = meter.Int64Counter("training_examples_emitted_total",
		metric.WithDescription("Total training examples appended")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.DuplicatesTotal, err = meter.Int64Counter("duplicates_total",
		metric.WithDescription("Total duplicate deliveries suppressed")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.RetriesTotal, err = meter.Int64Counter("retries_total",
		metric.WithDescription("Total retry-scheduling events, by attempt")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.DeadLetterTotal, err = meter.Int64Counter("dead_letter_total",
		metric.WithDescription("Total messages dead-lettered, by reason")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.ConsumerStatus, err = meter.Int64UpDownCounter("consumer_status",
		metric.WithDescription("1 if the consumer loop is running")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.BrokerStatus, err = meter.Int64UpDownCounter("broker_status",
		metric.WithDescription("1 if the broker connection is up")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}
	if ins.StoreStatus, err = meter.Int64UpDownCounter("store_status",
		metric.WithDescription("1 if the dedup store connection is up")); err != nil {
		return ins, fmt.Errorf("telemetry: %w", err)
	}

	return ins, nil
}

// RecordMessageProcessed increments messages_processed_total{record_type,status}.
func (t *Telemetry) RecordMessageProcessed(ctx context.Context, recordType, status string) {
	t.Instruments.MessagesProcessedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("record_type", recordType),
		attribute.String("status", status),
	))
}

// RecordProcessingDuration records processing_duration_seconds{record_type}.
func (t *Telemetry) RecordProcessingDuration(ctx context.Context, recordType string, seconds float64) {
	t.Instruments.ProcessingDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("record_type", recordType),
	))
}

// RecordQualityScore records quality_score{record_type}.
func (t *Telemetry) RecordQualityScore(ctx context.Context, recordType string, score float64) {
	t.Instruments.QualityScore.Record(ctx, score, metric.WithAttributes(
		attribute.String("record_type", recordType),
	))
}

// RecordQuarantined increments quarantined_total{record_type,reason}.
func (t *Telemetry) RecordQuarantined(ctx context.Context, recordType, reason string) {
	t.Instruments.QuarantinedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("record_type", recordType),
		attribute.String("reason", reason),
	))
}

// RecordRetry increments retries_total{record_type,attempt}.
func (t *Telemetry) RecordRetry(ctx context.Context, recordType string, attempt int) {
	t.Instruments.RetriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("record_type", recordType),
		attribute.Int("attempt", attempt),
	))
}

// RecordDeadLetter increments dead_letter_total{record_type,reason}.
func (t *Telemetry) RecordDeadLetter(ctx context.Context, recordType, reason string) {
	t.Instruments.DeadLetterTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("record_type", recordType),
		attribute.String("reason", reason),
	))
}

// RecordDuplicate increments duplicates_total{record_type}.
func (t *Telemetry) RecordDuplicate(ctx context.Context, recordType string) {
	t.Instruments.DuplicatesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("record_type", recordType),
	))
}

// RecordTrainingExampleEmitted increments training_examples_emitted_total{record_type}.
func (t *Telemetry) RecordTrainingExampleEmitted(ctx context.Context, recordType string) {
	t.Instruments.TrainingExamplesEmitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("record_type", recordType),
	))
}

// RecordAvroRecordsParsed increments avro_records_parsed_total{record_type}.
func (t *Telemetry) RecordAvroRecordsParsed(ctx context.Context, recordType string, n int) {
	t.Instruments.AvroRecordsParsedTotal.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("record_type", recordType),
	))
}

// RecordAvroParseError increments avro_parse_errors_total{record_type,kind}.
func (t *Telemetry) RecordAvroParseError(ctx context.Context, recordType, kind string) {
	t.Instruments.AvroParseErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("record_type", recordType),
		attribute.String("kind", kind),
	))
}

// SetStatus sets one of the {consumer,broker,store}_status gauges to 1 (up)
// or 0 (down), implemented as an up/down counter delta since OTEL has no
// direct synchronous gauge set primitive.
func SetStatus(ctx context.Context, gauge metric.Int64UpDownCounter, up bool, previouslyUp *bool) {
	if previouslyUp != nil && *previouslyUp == up {
		return
	}
	delta := int64(1)
	if !up {
		delta = -1
	}
	gauge.Add(ctx, delta)
	if previouslyUp != nil {
		*previouslyUp = up
	}
}
