// Package trainingemitter implements the training-output stage (C7):
// domain routing, content-hash deduplication, and append-only JSONL
// emission to the training bucket.
package trainingemitter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshura25/etl-narrative-engine/internal/dedup"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
	"github.com/hitoshura25/etl-narrative-engine/internal/errkind"
	"github.com/hitoshura25/etl-narrative-engine/internal/logger"
	"github.com/hitoshura25/etl-narrative-engine/internal/objectstore"
)

// SourceMeta carries the envelope fields needed to route and label a
// training line, independent of the full ProcessingEnvelope so callers
// can emit from any context that has read a processed blob.
type SourceMeta struct {
	RecordType    envelope.RecordType
	ObjectKey     string
	UserID        string
	CorrelationID string
}

// Emitter appends clinically-annotated narratives to per-domain, per-month
// JSONL training files, deduplicated by content hash.
type Emitter struct {
	store                   dedup.Store
	objects                 objectstore.Client
	log                     logger.Logger
	includeClinicalInsights bool

	locks sync.Map // training key -> *sync.Mutex
}

// New constructs an Emitter. includeClinicalInsights controls whether the
// per-line metadata carries the processor's clinical_insights map.
func New(store dedup.Store, objects objectstore.Client, log logger.Logger, includeClinicalInsights bool) *Emitter {
	if log == nil {
		log = logger.NoOp{}
	}
	return &Emitter{
		store:                   store,
		objects:                 objects,
		log:                     log,
		includeClinicalInsights: includeClinicalInsights,
	}
}

// Emit writes one training line for result's narrative, deduplicated by
// SHA-256(narrative || "::" || object_key). It returns true if a new line
// was written, false if an identical line had already been emitted.
func (e *Emitter) Emit(ctx context.Context, result envelope.ClinicalResult, src SourceMeta) (bool, error) {
	if result.Narrative == "" {
		return false, errkind.New("trainingemitter.Emit", errkind.Validation,
			fmt.Errorf("refusing to emit training example with empty narrative"))
	}

	domain, ok := envelope.DomainFor(src.RecordType)
	if !ok {
		return false, errkind.New("trainingemitter.Emit", errkind.Processing,
			fmt.Errorf("no health domain mapped for record type %q", src.RecordType))
	}

	contentHash := hashNarrative(result.Narrative, src.ObjectKey)
	trainingKey := dedup.TrainingKey(contentHash)

	already, err := e.store.IsAlreadyProcessed(ctx, trainingKey)
	if err != nil {
		return false, fmt.Errorf("trainingemitter: checking dedup: %w", err)
	}
	if already {
		e.log.Debug("training example already emitted, skipping", "content_hash", contentHash)
		return false, nil
	}

	now := time.Now().UTC()
	objectKey := outputObjectKey(domain, now)

	example := buildExample(result, src, domain, contentHash, now, e.includeClinicalInsights)
	line, err := json.Marshal(example)
	if err != nil {
		return false, fmt.Errorf("trainingemitter: marshaling training example: %w", err)
	}

	mu := e.lockFor(objectKey)
	mu.Lock()
	defer mu.Unlock()

	err = e.objects.AppendViaReadModifyWrite(ctx, objectKey, func(existing []byte) ([]byte, error) {
		return appendLine(existing, line), nil
	})
	if err != nil {
		return false, fmt.Errorf("trainingemitter: appending training line: %w", err)
	}

	if err := e.store.MarkStarted(ctx, trainingKey, &envelope.ProcessingEnvelope{
		MessageID:      contentHash,
		CorrelationID:  src.CorrelationID,
		UserID:         src.UserID,
		RecordType:     src.RecordType,
		ObjectKey:      objectKey,
		IdempotencyKey: trainingKey,
	}); err != nil {
		return false, fmt.Errorf("trainingemitter: recording dedup marker: %w", err)
	}

	return true, nil
}

func (e *Emitter) lockFor(key string) *sync.Mutex {
	actual, _ := e.locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func hashNarrative(narrative, objectKey string) string {
	sum := sha256.Sum256([]byte(narrative + "::" + objectKey))
	return hex.EncodeToString(sum[:])
}

func outputObjectKey(domain envelope.HealthDomain, at time.Time) string {
	return fmt.Sprintf("training/%s/%04d/%02d/health_journal_%04d_%02d.jsonl",
		domain, at.Year(), at.Month(), at.Year(), at.Month())
}

func appendLine(existing []byte, line []byte) []byte {
	out := make([]byte, 0, len(existing)+len(line)+1)
	out = append(out, existing...)
	out = append(out, line...)
	out = append(out, '\n')
	return out
}

func buildExample(result envelope.ClinicalResult, src SourceMeta, domain envelope.HealthDomain, contentHash string, at time.Time, includeInsights bool) envelope.TrainingExample {
	metadata := map[string]interface{}{
		"record_type":          string(src.RecordType),
		"user_id":              src.UserID,
		"correlation_id":       src.CorrelationID,
		"processing_timestamp": at.Format(time.RFC3339),
		"quality_score":        result.QualityScore,
		"record_count":         result.RecordsProcessed,
		"health_domain":        string(domain),
		"content_hash":         contentHash,
	}
	if includeInsights {
		metadata["clinical_insights"] = result.ClinicalInsights
	}

	return envelope.TrainingExample{
		Instruction: instructionFor(src.RecordType),
		Input:       inputFor(src.RecordType, result.RecordsProcessed),
		Output:      result.Narrative,
		Metadata:    metadata,
	}
}

var instructionByRecordType = map[envelope.RecordType]string{
	envelope.BloodGlucoseRecord:              "Analyze the following blood glucose readings and provide a clinical summary of glycemic control, variability, and notable events.",
	envelope.HeartRateRecord:                 "Analyze the following heart rate measurements and summarize resting heart rate, exercise response, and any abnormal events.",
	envelope.SleepSessionRecord:              "Analyze the following sleep session data and summarize duration, sleep-stage quality, and consistency patterns.",
	envelope.StepsRecord:                     "Analyze the following daily step counts and summarize activity level against recommended targets.",
	envelope.ActiveCaloriesBurnedRecord:      "Analyze the following active calorie burn data and summarize exercise intensity against daily targets.",
	envelope.HeartRateVariabilityRmssdRecord: "Analyze the following heart rate variability (RMSSD) readings and summarize recovery status and trend.",
}

func instructionFor(rt envelope.RecordType) string {
	if instr, ok := instructionByRecordType[rt]; ok {
		return instr
	}
	return "Analyze the following health data and provide a clinical summary."
}

func inputFor(rt envelope.RecordType, recordCount int) string {
	return fmt.Sprintf("Record type: %s. Number of records: %d.", string(rt), recordCount)
}
