// Package consumer implements the Consumer Core (C6): the per-message
// state machine that ties every other component together, plus the AMQP
// 0-9-1 broker plumbing that feeds it deliveries.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hitoshura25/etl-narrative-engine/internal/clinical"
	"github.com/hitoshura25/etl-narrative-engine/internal/config"
	"github.com/hitoshura25/etl-narrative-engine/internal/dedup"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
	"github.com/hitoshura25/etl-narrative-engine/internal/errkind"
	"github.com/hitoshura25/etl-narrative-engine/internal/logger"
	"github.com/hitoshura25/etl-narrative-engine/internal/objectstore"
	"github.com/hitoshura25/etl-narrative-engine/internal/trainingemitter"
	"github.com/hitoshura25/etl-narrative-engine/internal/validation"
)

// RetryScheduler is the capability C8 provides to C6: schedule a delayed
// re-delivery of env, incrementing its retry count.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, env *envelope.ProcessingEnvelope, delaySeconds int) error
}

// AvroParser is the capability C4 provides to C6: decode a raw blob into
// ordered record maps for a given record type. *avroreader.Reader satisfies
// this; tests substitute a fake to exercise the pipeline without real Avro
// container bytes.
type AvroParser interface {
	ParseRecords(avroData []byte, expectedType envelope.RecordType) ([]map[string]interface{}, error)
}

// Metrics is the narrow subset of the telemetry surface the pipeline
// touches; nil-safe so tests and minimal wiring can omit it.
type Metrics interface {
	RecordMessageProcessed(ctx context.Context, recordType, status string)
	RecordProcessingDuration(ctx context.Context, recordType string, seconds float64)
	RecordQualityScore(ctx context.Context, recordType string, score float64)
	RecordQuarantined(ctx context.Context, recordType, reason string)
	RecordRetry(ctx context.Context, recordType string, attempt int)
	RecordDeadLetter(ctx context.Context, recordType, reason string)
	RecordDuplicate(ctx context.Context, recordType string)
	RecordTrainingExampleEmitted(ctx context.Context, recordType string)
	RecordAvroRecordsParsed(ctx context.Context, recordType string, n int)
	RecordAvroParseError(ctx context.Context, recordType, kind string)
}

type noopMetrics struct{}

func (noopMetrics) RecordMessageProcessed(context.Context, string, string)    {}
func (noopMetrics) RecordProcessingDuration(context.Context, string, float64) {}
func (noopMetrics) RecordQualityScore(context.Context, string, float64)       {}
func (noopMetrics) RecordQuarantined(context.Context, string, string)         {}
func (noopMetrics) RecordRetry(context.Context, string, int)                  {}
func (noopMetrics) RecordDeadLetter(context.Context, string, string)          {}
func (noopMetrics) RecordDuplicate(context.Context, string)                   {}
func (noopMetrics) RecordTrainingExampleEmitted(context.Context, string)      {}
func (noopMetrics) RecordAvroRecordsParsed(context.Context, string, int)      {}
func (noopMetrics) RecordAvroParseError(context.Context, string, string)      {}

// Acker is how the pipeline settles a delivery; broker-specific code
// supplies the implementation, the pipeline never touches the wire protocol.
type Acker interface {
	Ack() error
	NackRequeue() error
	NackNoRequeue() error
}

// Deps bundles every component the message state machine calls into.
type Deps struct {
	Store       dedup.Store
	Objects     objectstore.Client
	Avro        AvroParser
	Processors  *clinical.Registry
	Emitter     *trainingemitter.Emitter
	Scheduler   RetryScheduler
	Metrics     Metrics
	Log         logger.Logger
	Processing  config.ProcessingConfig
	MaxRetries  int
	RetryDelays []int
}

func (d *Deps) metrics() Metrics {
	if d.Metrics == nil {
		return noopMetrics{}
	}
	return d.Metrics
}

func (d *Deps) log() logger.Logger {
	if d.Log == nil {
		return logger.NoOp{}
	}
	return d.Log
}

// parseEnvelope decodes the delivery body, defaulting RoutingKey to the
// delivery's own routing key when the payload omitted one. It returns the
// decoded envelope even when the required-field invariant fails, so the
// caller can still route a validation failure through the usual
// classify/quarantine path instead of discarding it blind.
func parseEnvelope(body []byte, routingKey string) (*envelope.ProcessingEnvelope, error) {
	var env envelope.ProcessingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope json: %w", err)
	}
	if env.RoutingKey == "" {
		env.RoutingKey = routingKey
	}
	if err := env.Validate(); err != nil {
		return &env, err
	}
	return &env, nil
}

// HandleDelivery runs the full per-message state machine from §4.6 over one
// raw broker payload: parse envelope, dedup check, fetch+parse+process,
// emit training output, and settle the delivery via acker exactly once.
func HandleDelivery(ctx context.Context, deps *Deps, body []byte, routingKey string, acker Acker) {
	start := time.Now()

	env, err := parseEnvelope(body, routingKey)
	if err != nil {
		if env == nil {
			deps.log().Error("failed to decode envelope json, dead-lettering", "error", err.Error())
			_ = acker.NackNoRequeue()
			return
		}
		// Envelope decoded but failed the required-field invariant: a
		// validation-kind failure, which is quarantinable rather than a bare
		// dead-letter (§8 boundary behavior).
		log := deps.log().WithField("record_type", string(env.RecordType))
		settleFailure(ctx, deps, env, log, errkind.New("consumer.parseEnvelope", errkind.Validation, err), acker)
		return
	}

	log := deps.log().WithField("idempotency_key", env.IdempotencyKey).WithField("record_type", string(env.RecordType))

	already, err := deps.Store.IsAlreadyProcessed(ctx, env.IdempotencyKey)
	if err != nil {
		log.Error("dedup check failed", "error", err.Error())
		_ = acker.NackRequeue()
		return
	}
	if already {
		deps.metrics().RecordDuplicate(ctx, string(env.RecordType))
		log.Info("duplicate delivery, skipping")
		_ = acker.Ack()
		return
	}

	if err := deps.Store.MarkStarted(ctx, env.IdempotencyKey, env); err != nil {
		log.Error("mark_started failed", "error", err.Error())
		_ = acker.NackRequeue()
		return
	}

	deadline := time.Duration(deps.Processing.ProcessingTimeoutSeconds) * time.Second
	if deadline <= 0 {
		deadline = 300 * time.Second
	}
	procCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	result, handleErr := handle(procCtx, deps, env)
	if handleErr == nil {
		duration := time.Since(start)
		if markErr := deps.Store.MarkCompleted(ctx, env.IdempotencyKey, duration, result.RecordsProcessed, result.Narrative, result.QualityScore); markErr != nil {
			log.Error("mark_completed failed", "error", markErr.Error())
		}
		deps.metrics().RecordMessageProcessed(ctx, string(env.RecordType), "completed")
		deps.metrics().RecordProcessingDuration(ctx, string(env.RecordType), duration.Seconds())
		deps.metrics().RecordQualityScore(ctx, string(env.RecordType), result.QualityScore)
		_ = acker.Ack()
		return
	}

	settleFailure(ctx, deps, env, log, handleErr, acker)
}

// handlerResult carries what HandleDelivery needs to record on success.
type handlerResult struct {
	Narrative        string
	RecordsProcessed int
	QualityScore     float64
}

// handle implements fetch-blob → parse-records → validate → route-processor
// → process → emit-training, returning a classified error on any failure.
func handle(ctx context.Context, deps *Deps, env *envelope.ProcessingEnvelope) (handlerResult, error) {
	maxBytes := int64(deps.Processing.MaxFileSizeMB) * 1024 * 1024
	blob, err := deps.Objects.Get(ctx, env.ObjectKey, maxBytes)
	if err != nil {
		return handlerResult{}, fmt.Errorf("fetching blob: %w", err)
	}

	records, err := deps.Avro.ParseRecords(blob, env.RecordType)
	if err != nil {
		deps.metrics().RecordAvroParseError(ctx, string(env.RecordType), string(errkind.Classify(deps.log(), err)))
		return handlerResult{}, fmt.Errorf("parsing avro records: %w", err)
	}
	if len(records) == 0 {
		return handlerResult{}, errkind.New("consumer.handle", errkind.Processing, errors.New("zero-record avro blob"))
	}
	deps.metrics().RecordAvroRecordsParsed(ctx, string(env.RecordType), len(records))

	validationResult := validation.Validate(records, env.RecordType, deps.Processing.DataQualityThreshold)
	if !validationResult.IsValid {
		return handlerResult{}, errkind.New("consumer.handle", errkind.DataQuality,
			fmt.Errorf("quality score %.2f below threshold %.2f", validationResult.QualityScore, deps.Processing.DataQualityThreshold))
	}

	processor, err := deps.Processors.ForRecordType(env.RecordType)
	if err != nil {
		return handlerResult{}, err
	}
	defer processor.Cleanup()

	clinicalResult := processor.Process(records, env, validationResult)
	if !clinicalResult.Success {
		return handlerResult{}, errkind.New("consumer.handle", errkind.Processing,
			fmt.Errorf("processor failed: %s", clinicalResult.ErrorMessage))
	}

	wrote, err := deps.Emitter.Emit(ctx, clinicalResult, trainingemitter.SourceMeta{
		RecordType:    env.RecordType,
		ObjectKey:     env.ObjectKey,
		UserID:        env.UserID,
		CorrelationID: env.CorrelationID,
	})
	if err != nil {
		return handlerResult{}, fmt.Errorf("emitting training example: %w", err)
	}
	if wrote {
		deps.metrics().RecordTrainingExampleEmitted(ctx, string(env.RecordType))
	}

	return handlerResult{
		Narrative:        clinicalResult.Narrative,
		RecordsProcessed: clinicalResult.RecordsProcessed,
		QualityScore:     clinicalResult.QualityScore,
	}, nil
}

// settleFailure classifies handleErr and carries out exactly one of
// retry/quarantine/dead_letter/alert, acking or nacking per §4.6's
// discipline.
func settleFailure(ctx context.Context, deps *Deps, env *envelope.ProcessingEnvelope, log logger.Logger, handleErr error, acker Acker) {
	kind := errkind.Classify(deps.log(), handleErr)
	action := errkind.DecideAction(kind, env.RetryCount, deps.MaxRetries)

	log = log.WithField("kind", string(kind)).WithField("action", string(action))
	log.Warn("message processing failed", "error", handleErr.Error())

	switch action {
	case errkind.ActionRetry:
		delay := errkind.RetryDelay(deps.RetryDelays, env.RetryCount)
		if err := deps.Scheduler.ScheduleRetry(ctx, env, delay); err != nil {
			log.Error("failed to schedule retry, treating as permanent failure", "error", err.Error())
			_ = deps.Store.MarkFailed(ctx, env.IdempotencyKey, "failed to schedule retry: "+err.Error(), "infrastructure_error")
			deps.metrics().RecordMessageProcessed(ctx, string(env.RecordType), "failed")
			_ = acker.Ack()
			return
		}
		deps.metrics().RecordRetry(ctx, string(env.RecordType), env.RetryCount+1)
		_ = acker.Ack()

	case errkind.ActionQuarantine:
		reason := string(kind)
		if qErr := quarantineBlob(ctx, deps, env, reason); qErr != nil {
			log.Error("failed to move blob to quarantine", "error", qErr.Error())
		}
		_ = deps.Store.MarkFailed(ctx, env.IdempotencyKey, handleErr.Error(), string(kind))
		deps.metrics().RecordQuarantined(ctx, string(env.RecordType), reason)
		deps.metrics().RecordMessageProcessed(ctx, string(env.RecordType), "failed")
		_ = acker.Ack()

	case errkind.ActionAlert:
		_ = deps.Store.MarkFailed(ctx, env.IdempotencyKey, handleErr.Error(), string(kind))
		deps.metrics().RecordDeadLetter(ctx, string(env.RecordType), "alert:"+string(kind))
		deps.metrics().RecordMessageProcessed(ctx, string(env.RecordType), "failed")
		_ = acker.NackNoRequeue()

	default: // errkind.ActionDeadLetter
		_ = deps.Store.MarkFailed(ctx, env.IdempotencyKey, handleErr.Error(), string(kind))
		deps.metrics().RecordDeadLetter(ctx, string(env.RecordType), string(kind))
		deps.metrics().RecordMessageProcessed(ctx, string(env.RecordType), "failed")
		_ = acker.NackNoRequeue()
	}
}

// quarantineMetadata is the sibling `.metadata.json` written next to every
// quarantined blob, mirroring the reason/timestamp/original-key fields the
// original data lake attaches as object metadata on its quarantine copy.
type quarantineMetadata struct {
	QuarantineReason    string `json:"quarantine_reason"`
	QuarantineTimestamp string `json:"quarantine_timestamp"`
	OriginalKey         string `json:"original_key"`
}

func quarantineBlob(ctx context.Context, deps *Deps, env *envelope.ProcessingEnvelope, reason string) error {
	blob, err := deps.Objects.Get(ctx, env.ObjectKey, 0)
	if err != nil {
		return fmt.Errorf("re-fetching blob for quarantine: %w", err)
	}

	now := time.Now().UTC()
	blobKey, metadataKey := quarantineObjectKeys(deps.Processing.QuarantinePrefix, env.ObjectKey, reason, now)

	if err := deps.Objects.Put(ctx, blobKey, blob, "application/octet-stream"); err != nil {
		return fmt.Errorf("writing quarantined blob: %w", err)
	}

	metaBytes, err := json.Marshal(quarantineMetadata{
		QuarantineReason:    reason,
		QuarantineTimestamp: now.Format(time.RFC3339),
		OriginalKey:         env.ObjectKey,
	})
	if err != nil {
		return fmt.Errorf("encoding quarantine metadata: %w", err)
	}
	if err := deps.Objects.Put(ctx, metadataKey, metaBytes, "application/json"); err != nil {
		return fmt.Errorf("writing quarantine metadata: %w", err)
	}
	return nil
}

// quarantineObjectKeys builds the quarantined blob key and its sibling
// metadata key: quarantine/<reason>/<ts>_<basename>.avro and the same
// prefix with a .metadata.json extension, flattening the original
// directory structure down to the file's basename.
func quarantineObjectKeys(quarantinePrefix, objectKey, reason string, ts time.Time) (blobKey, metadataKey string) {
	filename := path.Base(objectKey)
	baseName := strings.TrimSuffix(filename, path.Ext(filename))
	stamped := fmt.Sprintf("%s_%s", ts.Format("20060102_150405"), baseName)
	prefix := fmt.Sprintf("%s/%s/%s", quarantinePrefix, reason, stamped)
	return prefix + ".avro", prefix + ".metadata.json"
}
