package segment

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// fit is one k-means solution.
type fit struct {
	K          int
	Labels     []int
	Centroids  [][]float64
	Inertia    float64
	Iterations int
	Silhouette float64
}

// kmeans runs Lloyd's algorithm nInit times from k-means++ seeds drawn from a
// generator seeded with seed, and keeps the solution with the lowest inertia.
func kmeans(points [][]float64, k int, seed int64, nInit, maxIter int) fit {
	rng := rand.New(rand.NewSource(seed))
	var best fit
	for run := 0; run < nInit; run++ {
		f := lloyd(points, seedCentroids(points, k, rng), maxIter)
		if run == 0 || f.Inertia < best.Inertia {
			best = f
		}
	}
	best.K = k
	return best
}

func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clonePoint(points[rng.Intn(n)]))

	d2 := make([]float64, n)
	for i, p := range points {
		d2[i] = sqDist(p, centroids[0])
	}
	for len(centroids) < k {
		total := floats.Sum(d2)
		next := rng.Intn(n)
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range d2 {
				if d == 0 {
					continue
				}
				next = i
				target -= d
				if target <= 0 {
					break
				}
			}
		}
		c := clonePoint(points[next])
		centroids = append(centroids, c)
		for i, p := range points {
			if d := sqDist(p, c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centroids
}

func lloyd(points, centroids [][]float64, maxIter int) fit {
	n, k, dim := len(points), len(centroids), len(points[0])
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	counts := make([]int, k)

	iter := 0
	for ; iter < maxIter; iter++ {
		if !assign(points, centroids, labels) {
			break
		}
		for c := range sums {
			floats.Scale(0, sums[c])
			counts[c] = 0
		}
		for i, p := range points {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}
		var taken map[int]bool
		for c := range centroids {
			if counts[c] > 0 {
				floats.ScaleTo(centroids[c], 1/float64(counts[c]), sums[c])
				continue
			}
			// empty cluster: move it onto the point worst served by its centroid
			if taken == nil {
				taken = make(map[int]bool)
			}
			far := farthest(points, centroids, labels, taken)
			taken[far] = true
			copy(centroids[c], points[far])
		}
	}
	assign(points, centroids, labels)

	var inertia float64
	for i, p := range points {
		inertia += sqDist(p, centroids[labels[i]])
	}
	return fit{K: k, Labels: labels, Centroids: centroids, Inertia: inertia, Iterations: iter}
}

// assign moves every point to its nearest centroid and reports whether any
// label changed. Ties go to the lower centroid index.
func assign(points, centroids [][]float64, labels []int) bool {
	changed := false
	for i, p := range points {
		best, bestDist := 0, math.Inf(1)
		for c, centroid := range centroids {
			if d := sqDist(p, centroid); d < bestDist {
				best, bestDist = c, d
			}
		}
		if labels[i] != best {
			labels[i] = best
			changed = true
		}
	}
	return changed
}

func farthest(points, centroids [][]float64, labels []int, taken map[int]bool) int {
	idx, maxDist := 0, -1.0
	for i, p := range points {
		if taken[i] {
			continue
		}
		if d := sqDist(p, centroids[labels[i]]); d > maxDist {
			idx, maxDist = i, d
		}
	}
	return idx
}

// silhouette returns the mean silhouette coefficient of the labelling, or -1
// when fewer than two clusters are populated. Points in singleton clusters
// score 0.
func silhouette(points [][]float64, labels []int, k int) float64 {
	n := len(points)
	sizes := make([]int, k)
	for _, l := range labels {
		sizes[l]++
	}
	populated := 0
	for _, s := range sizes {
		if s > 0 {
			populated++
		}
	}
	if populated < 2 || populated >= n {
		return -1
	}

	// dist[i][c] is the summed distance from point i to all points of cluster c
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, k)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(points[i], points[j], 2)
			dist[i][labels[j]] += d
			dist[j][labels[i]] += d
		}
	}

	var total float64
	for i := range points {
		own := labels[i]
		if sizes[own] <= 1 {
			continue
		}
		a := dist[i][own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for c, size := range sizes {
			if c == own || size == 0 {
				continue
			}
			if m := dist[i][c] / float64(size); m < b {
				b = m
			}
		}
		if denom := math.Max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(n)
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clonePoint(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}
