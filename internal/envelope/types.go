// Package envelope holds the wire and domain types shared by the consumer,
// the dedup store, and the training emitter.
package envelope

import "time"

// RecordType is one of the six closed domain tags carried on every
// ProcessingEnvelope.
type RecordType string

const (
	BloodGlucoseRecord              RecordType = "BloodGlucoseRecord"
	HeartRateRecord                 RecordType = "HeartRateRecord"
	SleepSessionRecord              RecordType = "SleepSessionRecord"
	StepsRecord                     RecordType = "StepsRecord"
	ActiveCaloriesBurnedRecord      RecordType = "ActiveCaloriesBurnedRecord"
	HeartRateVariabilityRmssdRecord RecordType = "HeartRateVariabilityRmssdRecord"
)

// HealthDomain is the closed set of training-output groupings.
type HealthDomain string

const (
	MetabolicDiabetes      HealthDomain = "metabolic_diabetes"
	CardiovascularFitness  HealthDomain = "cardiovascular_fitness"
	SleepWellness          HealthDomain = "sleep_wellness"
	PhysicalActivity       HealthDomain = "physical_activity"
	GeneralHealth          HealthDomain = "general_health"
)

// domainByRecordType is the total, static mapping from §6.1.
var domainByRecordType = map[RecordType]HealthDomain{
	BloodGlucoseRecord:              MetabolicDiabetes,
	HeartRateRecord:                 CardiovascularFitness,
	SleepSessionRecord:              SleepWellness,
	StepsRecord:                     PhysicalActivity,
	ActiveCaloriesBurnedRecord:      PhysicalActivity,
	HeartRateVariabilityRmssdRecord: CardiovascularFitness,
}

// DomainFor resolves the health domain for a record type. ok is false for
// any type outside the closed taxonomy.
func DomainFor(rt RecordType) (HealthDomain, bool) {
	d, ok := domainByRecordType[rt]
	return d, ok
}

// ProcessingEnvelope is the inbound broker message, produced by the upload
// service and consumed by the consumer core.
type ProcessingEnvelope struct {
	MessageID        string     `json:"message_id"`
	CorrelationID    string     `json:"correlation_id"`
	UserID           string     `json:"user_id"`
	RecordType       RecordType `json:"record_type"`
	ObjectKey        string     `json:"key"`
	Bucket           string     `json:"bucket"`
	ContentHash      string     `json:"content_hash,omitempty"`
	FileSizeBytes    int64      `json:"file_size_bytes,omitempty"`
	RecordCount      int        `json:"record_count,omitempty"`
	UploadTimestamp  time.Time  `json:"upload_timestamp_utc,omitempty"`
	IdempotencyKey   string     `json:"idempotency_key"`
	RetryCount       int        `json:"retry_count"`
	RoutingKey       string     `json:"routing_key,omitempty"`
	Priority         int        `json:"priority,omitempty"`
}

// Validate checks the required-keys invariant from §6.2.
func (e *ProcessingEnvelope) Validate() error {
	switch {
	case e.MessageID == "":
		return errMissingField("message_id")
	case e.CorrelationID == "":
		return errMissingField("correlation_id")
	case e.UserID == "":
		return errMissingField("user_id")
	case e.Bucket == "":
		return errMissingField("bucket")
	case e.ObjectKey == "":
		return errMissingField("key")
	case e.RecordType == "":
		return errMissingField("record_type")
	case e.IdempotencyKey == "":
		return errMissingField("idempotency_key")
	}
	return nil
}

type missingFieldError struct{ field string }

func (e *missingFieldError) Error() string {
	return "envelope missing required field: " + e.field
}

func errMissingField(field string) error { return &missingFieldError{field: field} }

// ProcessingStatus is the terminal/non-terminal state of a ProcessingRecord.
type ProcessingStatus string

const (
	StatusStarted   ProcessingStatus = "started"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
)

// ProcessingRecord is the C1 dedup-store row, keyed by IdempotencyKey.
type ProcessingRecord struct {
	IdempotencyKey        string           `json:"idempotency_key"`
	MessageID             string           `json:"message_id"`
	CorrelationID         string           `json:"correlation_id"`
	UserID                string           `json:"user_id"`
	RecordType            RecordType       `json:"record_type"`
	ObjectKey             string           `json:"object_key"`
	Status                ProcessingStatus `json:"status"`
	StartedAt             time.Time        `json:"started_at"`
	CompletedAt           *time.Time       `json:"completed_at,omitempty"`
	ProcessingTimeSeconds *float64         `json:"processing_time_seconds,omitempty"`
	RecordsProcessed      *int             `json:"records_processed,omitempty"`
	QualityScore          *float64         `json:"quality_score,omitempty"`
	NarrativePreview      string           `json:"narrative_preview,omitempty"`
	ErrorMessage          string           `json:"error_message,omitempty"`
	ErrorKind             string           `json:"error_kind,omitempty"`
	ExpiresAt             time.Time        `json:"expires_at"`
}

// ClinicalResult is what a Processor returns for a single envelope.
type ClinicalResult struct {
	Success               bool                   `json:"success"`
	Narrative             string                 `json:"narrative,omitempty"`
	ErrorMessage          string                 `json:"error_message,omitempty"`
	ProcessingTimeSeconds float64                `json:"processing_time_seconds"`
	RecordsProcessed      int                    `json:"records_processed"`
	QualityScore          float64                `json:"quality_score"`
	ClinicalInsights      map[string]interface{} `json:"clinical_insights"`
}

// TrainingExample is one JSONL output line.
type TrainingExample struct {
	Instruction string                 `json:"instruction"`
	Input       string                 `json:"input"`
	Output      string                 `json:"output"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

const narrativePreviewLimit = 200

// TruncatedPreview returns narrative truncated to the ≤200-char invariant
// for ProcessingRecord.NarrativePreview.
func TruncatedPreview(narrative string) string {
	if len(narrative) <= narrativePreviewLimit {
		return narrative
	}
	return narrative[:narrativePreviewLimit]
}
