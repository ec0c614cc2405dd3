// Package steps implements the clinical processor for StepsRecord data:
// daily aggregation against the WHO 10,000-step target.
package steps

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hitoshura25/etl-narrative-engine/internal/clinical"
	"github.com/hitoshura25/etl-narrative-engine/internal/clinical/stats"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

const dailyTarget = 10000

// Processor aggregates step counts by day and reports against the daily
// target.
type Processor struct{}

func New() *Processor           { return &Processor{} }
func (p *Processor) Initialize() error { return nil }
func (p *Processor) Cleanup() error    { return nil }

func (p *Processor) Process(records []map[string]interface{}, env *envelope.ProcessingEnvelope, validation clinical.ValidationResult) envelope.ClinicalResult {
	start := time.Now()

	counts := extractStepRecords(records)
	if len(counts) == 0 {
		return envelope.ClinicalResult{
			Success:               false,
			ErrorMessage:          "no valid step records found",
			ProcessingTimeSeconds: time.Since(start).Seconds(),
		}
	}

	daily := aggregateDaily(counts)
	narrative, metrics := narrativeAndMetrics(daily)

	return envelope.ClinicalResult{
		Success:               true,
		Narrative:             narrative,
		ProcessingTimeSeconds: time.Since(start).Seconds(),
		RecordsProcessed:      len(records),
		QualityScore:          validation.QualityScore,
		ClinicalInsights: map[string]interface{}{
			"record_type":   string(envelope.StepsRecord),
			"total_records": len(counts),
			"daily_steps":   daily,
			"metrics":       metrics,
		},
	}
}

type stepRecord struct {
	count int
	date  string
}

func extractStepRecords(records []map[string]interface{}) []stepRecord {
	var out []stepRecord
	for _, rec := range records {
		count, ok := clinical.Float64(rec, "step_count")
		if !ok {
			count, ok = clinical.Float64(rec, "count")
		}
		start, okStart := clinical.FirstTimestamp(rec, "timestamp", "startTime")
		if !ok || !okStart || count <= 0 {
			continue
		}
		out = append(out, stepRecord{count: int(count), date: start.Format("2006-01-02")})
	}
	return out
}

func aggregateDaily(records []stepRecord) map[string]int {
	daily := make(map[string]int)
	for _, r := range records {
		daily[r.date] += r.count
	}
	return daily
}

func narrativeAndMetrics(daily map[string]int) (string, map[string]interface{}) {
	dates := make([]string, 0, len(daily))
	values := make([]float64, 0, len(daily))
	total, metTarget, maxSteps, minSteps := 0, 0, 0, -1
	for date, count := range daily {
		dates = append(dates, date)
		values = append(values, float64(count))
		total += count
		if count >= dailyTarget {
			metTarget++
		}
		if count > maxSteps {
			maxSteps = count
		}
		if minSteps == -1 || count < minSteps {
			minSteps = count
		}
	}
	sort.Strings(dates)

	avg := int(stats.Mean(values) + 0.5)
	totalDays := len(daily)

	var parts []string
	parts = append(parts, fmt.Sprintf("Step count data shows %d day(s) with average of %d steps per day.", totalDays, avg))

	switch {
	case avg >= dailyTarget:
		parts = append(parts, "Activity level is excellent, meeting WHO recommendation of 10,000 steps daily.")
	case avg >= 7500:
		parts = append(parts, fmt.Sprintf("Activity level is good (%d steps), approaching recommended 10,000 steps.", avg))
	default:
		parts = append(parts, fmt.Sprintf("Activity level is below recommended (%d steps). Aim for 10,000 steps daily for optimal health.", avg))
	}

	if totalDays >= 7 {
		targetPct := float64(metTarget) / float64(totalDays) * 100
		parts = append(parts, fmt.Sprintf("%d of %d days (%.0f%%) met the 10,000-step target.", metTarget, totalDays, targetPct))
	}

	metrics := map[string]interface{}{
		"total_days":          totalDays,
		"avg_daily_steps":     avg,
		"max_daily_steps":     maxSteps,
		"min_daily_steps":     minSteps,
		"days_meeting_target": metTarget,
		"total_steps":         total,
	}

	return strings.Join(parts, " "), metrics
}
