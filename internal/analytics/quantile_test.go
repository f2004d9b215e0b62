package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantileLinear(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.0, Quantile(s, 0))
	assert.Equal(t, 1.75, Quantile(s, 0.25))
	assert.Equal(t, 2.5, Quantile(s, 0.5))
	assert.Equal(t, 4.0, Quantile(s, 1))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
}

func TestRankFirstBreaksTiesByPosition(t *testing.T) {
	assert.Equal(t, []float64{3, 1, 4, 2}, RankFirst([]float64{5, 1, 5, 1}))
}

func TestQCutEqualPopulation(t *testing.T) {
	values := make([]float64, 10)
	for i := range values {
		values[i] = float64(i + 1)
	}
	buckets, n := QCut(values, 5)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{0, 0, 1, 1, 2, 2, 3, 3, 4, 4}, buckets)
}

func TestQCutCollapsesDuplicateEdges(t *testing.T) {
	values := []float64{1, 1, 1, 1, 1, 1, 1, 1, 2, 3}
	buckets, n := QCut(values, 5)
	assert.Less(t, n, 5)
	assert.Equal(t, 0, buckets[0])
	assert.Equal(t, n-1, buckets[9])

	same, n := QCut([]float64{7, 7, 7}, 5)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{0, 0, 0}, same)
}

func TestSampleStd(t *testing.T) {
	assert.Equal(t, 0.0, SampleStd([]float64{3}))
	assert.InDelta(t, 1.2909944, SampleStd([]float64{1, 2, 3, 4}), 1e-6)
}
