package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Quantile returns the q-th quantile of ascending-sorted values using linear
// interpolation between closest ranks.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Sorted returns an ascending copy of values.
func Sorted(values []float64) []float64 {
	out := append([]float64(nil), values...)
	sort.Float64s(out)
	return out
}

// Median of values; NaN for an empty slice.
func Median(values []float64) float64 {
	return Quantile(Sorted(values), 0.5)
}

// Mean of values; NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// SampleStd is the n-1 standard deviation; zero when fewer than two values.
func SampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// RankFirst ranks values ascending from 1..n, breaking ties by position.
func RankFirst(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })
	ranks := make([]float64, len(values))
	for r, i := range idx {
		ranks[i] = float64(r + 1)
	}
	return ranks
}

// QCut partitions values into q equal-population buckets using quantile
// edges. Duplicate edges are dropped, so fewer than q buckets may result.
// It returns the 0-based bucket index of every value and the bucket count.
func QCut(values []float64, q int) ([]int, int) {
	out := make([]int, len(values))
	if len(values) == 0 || q < 1 {
		return out, 0
	}

	sorted := Sorted(values)
	edges := make([]float64, 0, q+1)
	for i := 0; i <= q; i++ {
		e := Quantile(sorted, float64(i)/float64(q))
		if len(edges) == 0 || e > edges[len(edges)-1] {
			edges = append(edges, e)
		}
	}
	buckets := len(edges) - 1
	if buckets < 1 {
		// every value is identical
		return out, 1
	}

	for i, v := range values {
		// first edge is inclusive, the rest right-closed
		b := sort.SearchFloat64s(edges[1:], v)
		if b >= buckets {
			b = buckets - 1
		}
		out[i] = b
	}
	return out, buckets
}
