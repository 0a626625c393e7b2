package stats

import (
	"math"
	"testing"
)

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(nil)
	if got != (Summary{}) {
		t.Errorf("Summarize(nil) = %+v, want all-zero summary", got)
	}
	got = Summarize([]int64{})
	if got != (Summary{}) {
		t.Errorf("Summarize([]) = %+v, want all-zero summary", got)
	}
}

func TestSummarizeSingle(t *testing.T) {
	got := Summarize([]int64{10})
	if got.Avg != 10 {
		t.Errorf("Avg = %v, want 10", got.Avg)
	}
	if got.Median != 10 {
		t.Errorf("Median = %d, want 10", got.Median)
	}
	if got.Stddev != 0 {
		t.Errorf("Stddev = %v, want 0", got.Stddev)
	}
	for name, p := range map[string]int64{
		"P50": got.P50, "P75": got.P75, "P90": got.P90,
		"P95": got.P95, "P99": got.P99, "P999": got.P999,
	} {
		if p != 10 {
			t.Errorf("%s = %d, want 10", name, p)
		}
	}
}

func TestSummarizeEvenMedianIsUpperMiddle(t *testing.T) {
	// Position ceil((4+1)/2) = 3 in the ascending sort, not an
	// interpolation of the two middle elements.
	got := Summarize([]int64{4, 1, 3, 2})
	if got.Median != 3 {
		t.Errorf("Median = %d, want 3 (upper-middle element)", got.Median)
	}
	// Nearest rank for p50 over N=4 is round(0.5*4) = 2.
	if got.P50 != 2 {
		t.Errorf("P50 = %d, want 2", got.P50)
	}
}

func TestSummarizePopulationStddev(t *testing.T) {
	got := Summarize([]int64{2, 4})
	if got.Avg != 3 {
		t.Errorf("Avg = %v, want 3", got.Avg)
	}
	// Population form: sqrt(((2-3)^2 + (4-3)^2) / 2) = 1.
	if math.Abs(got.Stddev-1) > 1e-9 {
		t.Errorf("Stddev = %v, want 1", got.Stddev)
	}
}

func TestSummarizePercentileMonotonicity(t *testing.T) {
	sets := [][]int64{
		{5},
		{1, 2},
		{9, 1, 7, 3, 5},
		{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000},
		{42, 42, 42, 42},
	}
	for _, samples := range sets {
		s := Summarize(samples)
		ordered := []int64{s.P50, s.P75, s.P90, s.P95, s.P99, s.P999}
		for i := 1; i < len(ordered); i++ {
			if ordered[i-1] > ordered[i] {
				t.Errorf("samples %v: percentile order %v not monotonic", samples, ordered)
				break
			}
		}
	}
}

func TestNearestRankClampsSmallSets(t *testing.T) {
	// round(0.25 * 1) = 0 would select out of range; the index is
	// clamped to 1.
	if got := nearestRank([]int64{7}, 0.25); got != 7 {
		t.Errorf("nearestRank([7], 0.25) = %d, want 7", got)
	}
	// round(0.999 * 2) = 2 stays in range.
	if got := nearestRank([]int64{1, 2}, 0.999); got != 2 {
		t.Errorf("nearestRank([1 2], 0.999) = %d, want 2", got)
	}
}
