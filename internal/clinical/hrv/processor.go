// Package hrv implements the clinical processor for
// HeartRateVariabilityRmssdRecord data: RMSSD classification and a
// first-half-vs-second-half trend analysis.
package hrv

import (
	"fmt"
	"sort"
	"time"

	"github.com/hitoshura25/etl-narrative-engine/internal/clinical"
	"github.com/hitoshura25/etl-narrative-engine/internal/clinical/stats"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

type reading struct {
	rmssd     float64
	timestamp time.Time
}

// Processor classifies RMSSD readings and reports a recovery trend.
type Processor struct{}

func New() *Processor           { return &Processor{} }
func (p *Processor) Initialize() error { return nil }
func (p *Processor) Cleanup() error    { return nil }

func (p *Processor) Process(records []map[string]interface{}, env *envelope.ProcessingEnvelope, validation clinical.ValidationResult) envelope.ClinicalResult {
	start := time.Now()

	readings := extractReadings(records)
	if len(readings) == 0 {
		return envelope.ClinicalResult{
			Success:               false,
			ErrorMessage:          "no valid HRV readings found",
			ProcessingTimeSeconds: time.Since(start).Seconds(),
		}
	}

	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.rmssd
	}

	avg := stats.Mean(values)
	category, recoveryStatus := classify(avg)

	var narrative string
	narrative = fmt.Sprintf("Heart rate variability (HRV RMSSD) data shows %d reading(s) with average of %.1f ms.", len(readings), stats.Round1(avg))
	narrative += " " + statusText(recoveryStatus, avg)

	var trendInsights map[string]interface{}
	if len(readings) >= 7 {
		trend := stats.AnalyzeTrend(values)
		direction, description := hrvTrendText(trend)
		narrative += " " + description
		trendInsights = map[string]interface{}{
			"trend":          direction,
			"change_percent": trend.ChangePercent,
			"description":    description,
		}
	} else {
		trendInsights = map[string]interface{}{"insufficient_data": true}
	}

	min, max := stats.MinMax(values)

	return envelope.ClinicalResult{
		Success:               true,
		Narrative:             narrative,
		ProcessingTimeSeconds: time.Since(start).Seconds(),
		RecordsProcessed:      len(records),
		QualityScore:          validation.QualityScore,
		ClinicalInsights: map[string]interface{}{
			"record_type":    string(envelope.HeartRateVariabilityRmssdRecord),
			"total_readings": len(readings),
			"metrics": map[string]interface{}{
				"total_readings":  len(readings),
				"avg_hrv_rmssd":   stats.Round1(avg),
				"min_hrv":         min,
				"max_hrv":         max,
				"std_dev":         stats.Round1(stats.StdDev(values)),
				"hrv_category":    category,
				"recovery_status": recoveryStatus,
			},
			"trends": trendInsights,
		},
	}
}

func extractReadings(records []map[string]interface{}) []reading {
	var out []reading
	for _, rec := range records {
		rmssd, ok := clinical.FirstFloat64(rec, "rmssd_ms", "inMilliseconds")
		if !ok {
			continue
		}
		ts, ok := clinical.FirstTimestamp(rec, "timestamp", "timeEpochMillis")
		if !ok {
			continue
		}
		out = append(out, reading{rmssd: rmssd, timestamp: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].timestamp.Before(out[j].timestamp) })
	return out
}

func classify(avg float64) (category, recoveryStatus string) {
	switch {
	case avg < 20:
		return "very_low", "poor"
	case avg < 40:
		return "low", "below_average"
	case avg < 60:
		return "average", "normal"
	case avg < 80:
		return "good", "good"
	default:
		return "excellent", "excellent"
	}
}

func statusText(recoveryStatus string, avg float64) string {
	switch recoveryStatus {
	case "excellent":
		return fmt.Sprintf("HRV is excellent (%.1f ms), indicating superior cardiovascular fitness and recovery capacity.", stats.Round1(avg))
	case "good":
		return fmt.Sprintf("HRV is good (%.1f ms), indicating healthy recovery and stress management.", stats.Round1(avg))
	case "normal":
		return fmt.Sprintf("HRV is in normal range (%.1f ms).", stats.Round1(avg))
	default:
		return fmt.Sprintf("HRV is below optimal (%.1f ms). Low HRV may indicate stress, poor recovery, or overtraining. Consider rest and recovery.", stats.Round1(avg))
	}
}

func hrvTrendText(t stats.Trend) (direction, description string) {
	switch {
	case t.ChangePercent > 10:
		return "improving", fmt.Sprintf("HRV is improving over time (+%.1f%%), indicating better recovery and adaptation to training.", t.ChangePercent)
	case t.ChangePercent < -10:
		return "declining", fmt.Sprintf("HRV is declining over time (%.1f%%), which may indicate overtraining or increased stress.", t.ChangePercent)
	default:
		return "stable", "HRV remains stable over the period."
	}
}
