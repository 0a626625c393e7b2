package stats

import (
	"math"
	"sort"
)

// Summary describes one connection's latency samples for one second.
// All values are microseconds.
type Summary struct {
	Avg    float64 `json:"avg"`
	Median int64   `json:"median"`
	Stddev float64 `json:"stddev"`
	P50    int64   `json:"p50"`
	P75    int64   `json:"p75"`
	P90    int64   `json:"p90"`
	P95    int64   `json:"p95"`
	P99    int64   `json:"p99"`
	P999   int64   `json:"p999"`
}

// Summarize reduces a set of latency samples to a Summary. An empty set
// yields the zero Summary rather than an error.
//
// The median is the element at ascending sorted position ceil((N+1)/2):
// for even N this is the upper-middle element, not an interpolated
// median. Percentiles use nearest-rank selection, round(P*N), with the
// index clamped to [1, N] so very small sets never select out of range.
// The standard deviation is the population form (divide by N).
func Summarize(samples []int64) Summary {
	n := len(samples)
	if n == 0 {
		return Summary{}
	}

	sorted := make([]int64, n)
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	avg := float64(sum) / float64(n)

	var sq float64
	for _, v := range sorted {
		d := float64(v) - avg
		sq += d * d
	}

	return Summary{
		Avg:    avg,
		Median: sorted[(n+2)/2-1],
		Stddev: math.Sqrt(sq / float64(n)),
		P50:    nearestRank(sorted, 0.50),
		P75:    nearestRank(sorted, 0.75),
		P90:    nearestRank(sorted, 0.90),
		P95:    nearestRank(sorted, 0.95),
		P99:    nearestRank(sorted, 0.99),
		P999:   nearestRank(sorted, 0.999),
	}
}

func nearestRank(sorted []int64, p float64) int64 {
	idx := int(math.Round(p * float64(len(sorted))))
	if idx < 1 {
		idx = 1
	}
	if idx > len(sorted) {
		idx = len(sorted)
	}
	return sorted[idx-1]
}
