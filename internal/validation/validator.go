// Package validation computes the lightweight data-quality assessment
// (C5's ValidationResult) that gates training emission. It intentionally
// does not implement clinical-range physiological checks — those require a
// per-record-type table of medically plausible value bounds that is kept
// out of scope here; this validator covers record completeness and
// chronological consistency only, matching the two portions of the
// reference quality score the engine depends on for `is_valid`/
// `quality_score` decisions, not the specific scoring weights.
package validation

import (
	"sort"

	"github.com/hitoshura25/etl-narrative-engine/internal/clinical"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

// Weights for the two scoring dimensions this validator covers. Normalized
// so they sum to 1.0 without a physiological-range term.
const (
	completenessWeight = 0.6
	temporalWeight     = 0.4
)

// anchorFields mirrors the avroreader's expected-shape check — the fields
// a record of this type must carry to be considered complete.
var anchorFields = map[envelope.RecordType][]string{
	envelope.BloodGlucoseRecord:              {"value_mg_dL", "timestamp"},
	envelope.HeartRateRecord:                 {"samples"},
	envelope.SleepSessionRecord:              {"start", "end", "stages"},
	envelope.StepsRecord:                     {"step_count", "timestamp"},
	envelope.ActiveCaloriesBurnedRecord:      {"calories", "timestamp"},
	envelope.HeartRateVariabilityRmssdRecord: {"rmssd_ms", "timestamp"},
}

// timestampFields lists the candidate timestamp keys checked for
// chronological ordering, in the fallback order the clinical processors use.
var timestampFields = []string{"timestamp", "start", "timeEpochMillis", "startTime"}

// Validate assesses completeness and temporal ordering of records against
// the data-quality threshold, returning the ValidationResult handed to the
// record_type's Processor.
func Validate(records []map[string]interface{}, recordType envelope.RecordType, threshold float64) clinical.ValidationResult {
	if len(records) == 0 {
		return clinical.ValidationResult{IsValid: false, QualityScore: 0, Issues: []string{"no records found in file"}}
	}

	completeness := completenessScore(records, recordType)
	temporal := temporalScore(records)
	score := completenessWeight*completeness + temporalWeight*temporal

	var issues []string
	if completeness < 0.8 {
		issues = append(issues, "data completeness below optimal")
	}
	if temporal < 1.0 {
		issues = append(issues, "timestamps not in chronological order")
	}

	return clinical.ValidationResult{
		IsValid:      score >= threshold,
		QualityScore: score,
		Issues:       issues,
	}
}

func completenessScore(records []map[string]interface{}, recordType envelope.RecordType) float64 {
	required, known := anchorFields[recordType]
	if !known || len(required) == 0 {
		return 1.0
	}

	var complete int
	for _, rec := range records {
		ok := true
		for _, field := range required {
			if v, present := rec[field]; !present || v == nil {
				ok = false
				break
			}
		}
		if ok {
			complete++
		}
	}
	return float64(complete) / float64(len(records))
}

func temporalScore(records []map[string]interface{}) float64 {
	timestamps := make([]float64, 0, len(records))
	for _, rec := range records {
		ts, ok := clinical.FirstTimestamp(rec, timestampFields...)
		if !ok {
			continue
		}
		timestamps = append(timestamps, float64(ts.UnixNano()))
	}
	if len(timestamps) < 2 {
		return 1.0
	}
	if sort.Float64sAreSorted(timestamps) {
		return 1.0
	}
	return 0.5
}
