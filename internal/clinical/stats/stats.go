// Package stats holds the small arithmetic helpers shared by all six
// clinical processors: mean, standard deviation, coefficient of variation,
// in-range/below/above percentages, min/max, half-split trend analysis, and
// one-decimal rounding. Kept in one place so no processor
// reimplements its own rounding or edge-case handling.
package stats

import "math"

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the sample standard deviation of values (n-1 denominator),
// or 0 when fewer than two values are given.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// CoefficientOfVariation returns 100*stddev/mean, or 0 when mean is 0.
func CoefficientOfVariation(values []float64) float64 {
	m := Mean(values)
	if m == 0 {
		return 0
	}
	return StdDev(values) / m * 100
}

// PercentInRange returns the percentage of values within [low, high]
// inclusive.
func PercentInRange(values []float64, low, high float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v >= low && v <= high {
			count++
		}
	}
	return float64(count) / float64(len(values)) * 100
}

// PercentBelow returns the percentage of values strictly below threshold.
func PercentBelow(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v < threshold {
			count++
		}
	}
	return float64(count) / float64(len(values)) * 100
}

// PercentAbove returns the percentage of values strictly above threshold.
func PercentAbove(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return 0
	}
	count := 0
	for _, v := range values {
		if v > threshold {
			count++
		}
	}
	return float64(count) / float64(len(values)) * 100
}

// MinMax returns the minimum and maximum of values. Callers must ensure
// values is non-empty.
func MinMax(values []float64) (min, max float64) {
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Trend is AnalyzeTrend's result: the percentage change between the mean of
// the first and second half of a series, with Direction "improving" below
// −5%, "worsening" above +5%, and "stable" otherwise.
type Trend struct {
	Direction        string
	ChangePercent    float64
	FirstPeriodMean  float64
	SecondPeriodMean float64
}

// AnalyzeTrend splits values at the midpoint and compares period means.
// Callers should only invoke this once they have enough samples (each
// processor has its own minimum-sample-count gate).
func AnalyzeTrend(values []float64) Trend {
	mid := len(values) / 2
	firstMean := Mean(values[:mid])
	secondMean := Mean(values[mid:])

	var changePercent float64
	if firstMean != 0 {
		changePercent = (secondMean - firstMean) / firstMean * 100
	}

	direction := "stable"
	switch {
	case changePercent < -5:
		direction = "improving"
	case changePercent > 5:
		direction = "worsening"
	}

	return Trend{
		Direction:        direction,
		ChangePercent:    round1(changePercent),
		FirstPeriodMean:  round1(firstMean),
		SecondPeriodMean: round1(secondMean),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round1 rounds v to one decimal place, the precision every processor's
// narrative numbers are reported at.
func Round1(v float64) float64 {
	return round1(v)
}
