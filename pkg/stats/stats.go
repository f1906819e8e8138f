// Package stats summarises transition durations.
//
// Quantiles use the nearest-rank method on the ascending-sorted list:
// rank = ceil(p*n), 1-indexed, clamped to [1, n]. No interpolation is done,
// so results are always observed durations and are reproducible.
package stats

import (
	"math"
	"sort"
)

// Summary holds duration statistics in milliseconds.
type Summary struct {
	Mean   float64 `json:"mean"`
	Median int64   `json:"median"`
	P90    int64   `json:"p90"`
	Min    int64   `json:"min"`
	Max    int64   `json:"max"`
}

// Mean returns the arithmetic mean, or 0 for an empty list.
func Mean(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum / float64(len(values))
}

// QuantileSorted returns the nearest-rank p-quantile of an ascending list.
func QuantileSorted(sortedAsc []int64, p float64) int64 {
	n := len(sortedAsc)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(n)))
	idx := min(max(rank-1, 0), n-1)
	return sortedAsc[idx]
}

// Summarize computes mean/median/p90/min/max. An empty list yields zeros.
// The input slice is not modified.
func Summarize(durationsMs []int64) Summary {
	if len(durationsMs) == 0 {
		return Summary{}
	}

	sorted := make([]int64, len(durationsMs))
	copy(sorted, durationsMs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return Summary{
		Mean:   Mean(durationsMs),
		Median: QuantileSorted(sorted, 0.5),
		P90:    QuantileSorted(sorted, 0.9),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}
