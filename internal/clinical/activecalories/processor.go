// Package activecalories implements the clinical processor for
// ActiveCaloriesBurnedRecord data: daily aggregation against exercise-
// intensity calorie bands.
package activecalories

import (
	"fmt"
	"time"

	"github.com/hitoshura25/etl-narrative-engine/internal/clinical"
	"github.com/hitoshura25/etl-narrative-engine/internal/clinical/stats"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

// Processor aggregates active-calorie burn by day.
type Processor struct{}

func New() *Processor           { return &Processor{} }
func (p *Processor) Initialize() error { return nil }
func (p *Processor) Cleanup() error    { return nil }

func (p *Processor) Process(records []map[string]interface{}, env *envelope.ProcessingEnvelope, validation clinical.ValidationResult) envelope.ClinicalResult {
	start := time.Now()

	entries := extractCalorieRecords(records)
	if len(entries) == 0 {
		return envelope.ClinicalResult{
			Success:               false,
			ErrorMessage:          "no valid calorie records found",
			ProcessingTimeSeconds: time.Since(start).Seconds(),
		}
	}

	daily := aggregateDaily(entries)
	narrative, metrics := narrativeAndMetrics(daily)

	return envelope.ClinicalResult{
		Success:               true,
		Narrative:             narrative,
		ProcessingTimeSeconds: time.Since(start).Seconds(),
		RecordsProcessed:      len(records),
		QualityScore:          validation.QualityScore,
		ClinicalInsights: map[string]interface{}{
			"record_type":    string(envelope.ActiveCaloriesBurnedRecord),
			"total_records":  len(entries),
			"daily_calories": daily,
			"metrics":        metrics,
		},
	}
}

type calorieRecord struct {
	calories float64
	date     string
}

func extractCalorieRecords(records []map[string]interface{}) []calorieRecord {
	var out []calorieRecord
	for _, rec := range records {
		calories, ok := clinical.FirstFloat64(rec, "calories", "inCalories", "inKilocalories")
		start, okStart := clinical.FirstTimestamp(rec, "timestamp", "startTime")
		if !ok || !okStart || calories <= 0 {
			continue
		}
		out = append(out, calorieRecord{calories: calories, date: start.Format("2006-01-02")})
	}
	return out
}

func aggregateDaily(records []calorieRecord) map[string]float64 {
	daily := make(map[string]float64)
	for _, r := range records {
		daily[r.date] += r.calories
	}
	return daily
}

const dailyTarget = 500.0

func narrativeAndMetrics(daily map[string]float64) (string, map[string]interface{}) {
	values := make([]float64, 0, len(daily))
	total, metTarget := 0.0, 0
	maxCal, minCal := 0.0, -1.0
	for _, cal := range daily {
		values = append(values, cal)
		total += cal
		if cal >= dailyTarget {
			metTarget++
		}
		if cal > maxCal {
			maxCal = cal
		}
		if minCal < 0 || cal < minCal {
			minCal = cal
		}
	}

	avg := stats.Round1(stats.Mean(values))
	totalDays := len(daily)

	narrative := fmt.Sprintf("Active calorie burn data shows %d day(s) with average of %.0f active calories burned per day.", totalDays, avg)

	switch {
	case avg > 600:
		narrative += fmt.Sprintf(" Activity level is very high (%.0f cal/day), indicating intensive exercise routine.", avg)
	case avg > 400:
		narrative += fmt.Sprintf(" Activity level is good (%.0f cal/day), meeting moderate exercise recommendations.", avg)
	case avg > 200:
		narrative += fmt.Sprintf(" Activity level is moderate (%.0f cal/day). Consider increasing to 400-600 calories for optimal fitness.", avg)
	default:
		narrative += fmt.Sprintf(" Activity level is low (%.0f cal/day). Aim for 300-600 active calories daily through exercise.", avg)
	}

	metrics := map[string]interface{}{
		"total_days":          totalDays,
		"avg_daily_calories":  avg,
		"max_daily_calories":  stats.Round1(maxCal),
		"min_daily_calories":  stats.Round1(minCal),
		"days_meeting_target": metTarget,
		"total_calories":      stats.Round1(total),
	}

	return narrative, metrics
}
