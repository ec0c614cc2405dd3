// Package sleep implements the clinical processor for SleepSessionRecord
// data: per-session duration/bedtime/stage analysis and multi-night
// consistency patterns.
package sleep

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hitoshura25/etl-narrative-engine/internal/clinical"
	"github.com/hitoshura25/etl-narrative-engine/internal/clinical/stats"
	"github.com/hitoshura25/etl-narrative-engine/internal/envelope"
)

type stageSpan struct {
	stage string
	start time.Time
	end   time.Time
}

type sessionRecord struct {
	start  time.Time
	end    time.Time
	stages []stageSpan
}

type stageBreakdown struct {
	durations   map[string]float64
	percentages map[string]float64
	efficiency  float64
	distribution string
}

type analyzedSession struct {
	sessionRecord
	durationHours   float64
	durationCategory string
	durationQuality  string
	bedtimeQuality   string
	waketimeQuality  string
	stages           stageBreakdown
}

// Processor reports duration, bedtime/waketime quality, sleep-stage
// distribution, and multi-night consistency for sleep sessions.
type Processor struct{}

func New() *Processor                { return &Processor{} }
func (p *Processor) Initialize() error { return nil }
func (p *Processor) Cleanup() error    { return nil }

func (p *Processor) Process(records []map[string]interface{}, env *envelope.ProcessingEnvelope, validation clinical.ValidationResult) envelope.ClinicalResult {
	start := time.Now()

	sessions := extractSessions(records)
	if len(sessions) == 0 {
		return envelope.ClinicalResult{
			Success:               false,
			ErrorMessage:          "no valid sleep sessions found",
			ProcessingTimeSeconds: time.Since(start).Seconds(),
		}
	}

	analyzed := make([]analyzedSession, 0, len(sessions))
	for _, s := range sessions {
		analyzed = append(analyzed, analyzeSession(s))
	}

	narrative := generateNarrative(analyzed)

	perSession := make([]map[string]interface{}, 0, len(analyzed))
	for _, a := range analyzed {
		perSession = append(perSession, map[string]interface{}{
			"start":             a.start.Format(time.RFC3339),
			"end":               a.end.Format(time.RFC3339),
			"duration_hours":    stats.Round1(a.durationHours),
			"duration_category": a.durationCategory,
			"duration_quality":  a.durationQuality,
			"bedtime_quality":   a.bedtimeQuality,
			"waketime_quality":  a.waketimeQuality,
			"stage_durations":   a.stages.durations,
			"stage_percentages": a.stages.percentages,
			"sleep_efficiency":  stats.Round1(a.stages.efficiency),
			"stage_distribution": a.stages.distribution,
		})
	}

	insights := map[string]interface{}{
		"record_type":    string(envelope.SleepSessionRecord),
		"total_sessions": len(analyzed),
		"sessions":       perSession,
	}

	if len(analyzed) >= 7 {
		insights["patterns"] = analyzePatterns(analyzed)
	}

	return envelope.ClinicalResult{
		Success:               true,
		Narrative:             narrative,
		ProcessingTimeSeconds: time.Since(start).Seconds(),
		RecordsProcessed:      len(records),
		QualityScore:          validation.QualityScore,
		ClinicalInsights:      insights,
	}
}

func extractSessions(records []map[string]interface{}) []sessionRecord {
	var out []sessionRecord
	for _, rec := range records {
		start, okStart := clinical.FirstTimestamp(rec, "start", "startTime")
		end, okEnd := clinical.FirstTimestamp(rec, "end", "endTime")
		if !okStart || !okEnd || !end.After(start) {
			continue
		}

		var stages []stageSpan
		raw, _ := rec["stages"].([]interface{})
		for _, item := range raw {
			sub, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			stageName, okStage := clinical.String(sub, "stage")
			stageStart, okStageStart := clinical.FirstTimestamp(sub, "start", "startTime")
			stageEnd, okStageEnd := clinical.FirstTimestamp(sub, "end", "endTime")
			if !okStage || !okStageStart || !okStageEnd || !stageEnd.After(stageStart) {
				continue
			}
			stages = append(stages, stageSpan{stage: strings.ToUpper(stageName), start: stageStart, end: stageEnd})
		}

		out = append(out, sessionRecord{start: start, end: end, stages: stages})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return out
}

func analyzeSession(s sessionRecord) analyzedSession {
	durationHours := s.end.Sub(s.start).Hours()
	category, quality := durationCategoryAndQuality(durationHours)

	return analyzedSession{
		sessionRecord:    s,
		durationHours:    durationHours,
		durationCategory: category,
		durationQuality:  quality,
		bedtimeQuality:   timeOfDayQuality(s.start.Hour(), 21, 23, 20, 24),
		waketimeQuality:  timeOfDayQuality(s.end.Hour(), 5, 8, 5, 8),
		stages:           analyzeStages(s.stages, durationHours),
	}
}

func durationCategoryAndQuality(hours float64) (category, quality string) {
	switch {
	case hours < 6:
		return "insufficient", "poor"
	case hours < 7:
		return "short", "fair"
	case hours <= 9:
		return "optimal", "good"
	case hours <= 10:
		return "long", "good"
	default:
		return "excessive", "fair"
	}
}

// timeOfDayQuality classifies an hour-of-day against an "optimal" closed
// interval and a wider "acceptable" half-open interval; optimalHigh/
// acceptableHigh follow the bedtime convention of wrapping past midnight
// never being passed here (waketime windows stay within one calendar day).
func timeOfDayQuality(hour, optimalLow, optimalHigh, acceptableLow, acceptableHigh int) string {
	switch {
	case hour >= optimalLow && hour <= optimalHigh:
		return "optimal"
	case hour >= acceptableLow && hour < acceptableHigh:
		return "acceptable"
	default:
		return "suboptimal"
	}
}

func analyzeStages(stages []stageSpan, sessionHours float64) stageBreakdown {
	durations := map[string]float64{"LIGHT": 0, "DEEP": 0, "REM": 0, "AWAKE": 0}
	for _, s := range stages {
		hours := s.end.Sub(s.start).Hours()
		if _, known := durations[s.stage]; !known {
			continue
		}
		durations[s.stage] += hours
	}

	total := durations["LIGHT"] + durations["DEEP"] + durations["REM"] + durations["AWAKE"]
	if total == 0 {
		total = sessionHours
	}

	awake := durations["AWAKE"]
	percentages := make(map[string]float64, len(durations))
	for stage, d := range durations {
		pct := 0.0
		if total > 0 {
			pct = d / total * 100
		}
		percentages[stage] = stats.Round1(pct)
		durations[stage] = stats.Round1(d)
	}

	efficiency := 0.0
	if total > 0 {
		efficiency = 100 * (total - awake) / total
	}

	deepPct, remPct, awakePct := percentages["DEEP"], percentages["REM"], percentages["AWAKE"]
	var distribution string
	switch {
	case deepPct >= 15 && deepPct <= 25 && remPct >= 20 && remPct <= 25 && awakePct <= 5:
		distribution = "optimal"
	case deepPct < 12 && remPct < 15 && awakePct > 8:
		distribution = "poor"
	default:
		distribution = "fair"
	}

	return stageBreakdown{
		durations:    durations,
		percentages:  percentages,
		efficiency:   efficiency,
		distribution: distribution,
	}
}

func analyzePatterns(sessions []analyzedSession) map[string]interface{} {
	durations := make([]float64, len(sessions))
	bedtimeHours := make([]float64, len(sessions))
	var weekdayDurations, weekendDurations []float64

	for i, s := range sessions {
		durations[i] = s.durationHours
		bedtimeHours[i] = float64(s.start.Hour()) + float64(s.start.Minute())/60
		switch s.start.Weekday() {
		case time.Saturday, time.Sunday:
			weekendDurations = append(weekendDurations, s.durationHours)
		default:
			weekdayDurations = append(weekdayDurations, s.durationHours)
		}
	}

	durationStdDev := stats.StdDev(durations)
	bedtimeStdDev := stats.StdDev(bedtimeHours)

	weekdayMean, weekendMean := 0.0, 0.0
	if len(weekdayDurations) > 0 {
		weekdayMean = stats.Mean(weekdayDurations)
	}
	if len(weekendDurations) > 0 {
		weekendMean = stats.Mean(weekendDurations)
	}

	sleepDebt := len(weekdayDurations) > 0 && len(weekendDurations) > 0 &&
		abs(weekendMean-weekdayMean) > 1.0

	return map[string]interface{}{
		"duration_consistency": consistencyTier(durationStdDev),
		"bedtime_consistency":  consistencyTier(bedtimeStdDev),
		"duration_std_dev":     stats.Round1(durationStdDev),
		"bedtime_std_dev":      stats.Round1(bedtimeStdDev),
		"weekday_avg_hours":    stats.Round1(weekdayMean),
		"weekend_avg_hours":    stats.Round1(weekendMean),
		"weekend_sleep_debt":   sleepDebt,
	}
}

// consistencyTier bands standard-deviation-in-hours into a qualitative
// regularity label; under an hour of spread is consistent, under two is
// moderate, beyond that is irregular.
func consistencyTier(stdDev float64) string {
	switch {
	case stdDev < 1.0:
		return "consistent"
	case stdDev < 2.0:
		return "moderate"
	default:
		return "irregular"
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func generateNarrative(sessions []analyzedSession) string {
	var parts []string

	durations := make([]float64, len(sessions))
	for i, s := range sessions {
		durations[i] = s.durationHours
	}
	avgHours := stats.Mean(durations)

	parts = append(parts, fmt.Sprintf(
		"Sleep data shows %d session(s) with average duration of %.1f hours.", len(sessions), stats.Round1(avgHours)))

	_, avgQuality := durationCategoryAndQuality(avgHours)
	switch avgQuality {
	case "good":
		parts = append(parts, "Average sleep duration is in the optimal range for adult sleep health.")
	case "fair":
		parts = append(parts, "Average sleep duration is outside the typical optimal range; review bedtime and waketime consistency.")
	default:
		parts = append(parts, "Average sleep duration is insufficient. Consistently short sleep is associated with elevated health risks.")
	}

	var optimalDist, poorDist int
	var effValues []float64
	for _, s := range sessions {
		switch s.stages.distribution {
		case "optimal":
			optimalDist++
		case "poor":
			poorDist++
		}
		effValues = append(effValues, s.stages.efficiency)
	}
	avgEfficiency := stats.Round1(stats.Mean(effValues))
	parts = append(parts, fmt.Sprintf("Average sleep efficiency is %.1f%%.", avgEfficiency))

	if poorDist > 0 {
		parts = append(parts, fmt.Sprintf(
			"%d of %d session(s) show poor sleep-stage distribution (low deep/REM sleep, elevated wakefulness).", poorDist, len(sessions)))
	} else if optimalDist == len(sessions) {
		parts = append(parts, "Sleep-stage distribution is optimal across all recorded sessions.")
	}

	if len(sessions) >= 7 {
		patterns := analyzePatterns(sessions)
		if patterns["weekend_sleep_debt"].(bool) {
			parts = append(parts, "Sleep duration differs by more than an hour between weekdays and weekends, suggesting accumulated sleep debt.")
		}
		parts = append(parts, fmt.Sprintf(
			"Sleep duration consistency is %s and bedtime consistency is %s across the period.",
			patterns["duration_consistency"], patterns["bedtime_consistency"]))
	}

	return strings.Join(parts, " ")
}
