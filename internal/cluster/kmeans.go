// Package cluster partitions a region's households into village
// clusters using Lloyd's algorithm, optionally seeded by known village
// centers.
package cluster

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Point is a coordinate in (lon, lat) order.
type Point struct {
	X float64
	Y float64
}

// Options tunes a k-means fit.
type Options struct {
	// Init supplies initial centers. When set, a single refinement run
	// starts from these centers and Restarts is ignored.
	Init []Point
	// Restarts is the number of random restarts when Init is nil.
	Restarts int
	// MaxIter caps Lloyd iterations per run.
	MaxIter int
	// Tol is the center-movement threshold for convergence, in
	// coordinate units.
	Tol float64
	// Seed drives the restart RNGs. Each restart r uses Seed+r so the
	// whole fit is reproducible regardless of scheduling.
	Seed int64
}

// Result is a converged (or iteration-capped) k-means partition.
type Result struct {
	Labels     []int
	Centers    []Point
	Inertia    float64
	Iterations int
	Converged  bool
}

const (
	defaultMaxIter  = 300
	defaultTol      = 1e-7
	defaultRestarts = 10
)

// Fit clusters points into k groups minimizing within-cluster squared
// Euclidean distance. With Init set it refines the given centers in a
// single run; otherwise it runs multiple random restarts in parallel
// and keeps the lowest-inertia partition, ties broken by first-seen
// restart order.
func Fit(ctx context.Context, points []Point, k int, opts Options) (*Result, error) {
	if k <= 0 {
		return nil, eris.Errorf("cluster: k must be positive, got %d", k)
	}
	if len(points) == 0 {
		return nil, eris.New("cluster: no points to cluster")
	}
	if k > len(points) {
		return nil, eris.Errorf("cluster: k=%d exceeds point count %d", k, len(points))
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = defaultMaxIter
	}
	if opts.Tol <= 0 {
		opts.Tol = defaultTol
	}

	if opts.Init != nil {
		if len(opts.Init) != k {
			return nil, eris.Errorf("cluster: %d initial centers for k=%d", len(opts.Init), k)
		}
		res := lloyd(points, append([]Point(nil), opts.Init...), opts.MaxIter, opts.Tol)
		return res, nil
	}

	restarts := opts.Restarts
	if restarts <= 0 {
		restarts = defaultRestarts
	}

	results := make([]*Result, restarts)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < restarts; r++ {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			rng := rand.New(rand.NewSource(opts.Seed + int64(r)))
			init := sampleCenters(rng, points, k)
			res := lloyd(points, init, opts.MaxIter, opts.Tol)
			mu.Lock()
			results[r] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "cluster: restarts")
	}

	// Lowest inertia wins; ties keep the earliest restart.
	best := results[0]
	for _, res := range results[1:] {
		if res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

// sampleCenters picks k distinct points as initial centers.
func sampleCenters(rng *rand.Rand, points []Point, k int) []Point {
	idx := rng.Perm(len(points))[:k]
	sort.Ints(idx)
	centers := make([]Point, k)
	for i, j := range idx {
		centers[i] = points[j]
	}
	return centers
}

// lloyd runs the assign/update loop until centers stop moving or
// maxIter is reached.
func lloyd(points []Point, centers []Point, maxIter int, tol float64) *Result {
	k := len(centers)
	labels := make([]int, len(points))
	tol2 := tol * tol

	var iter int
	converged := false
	for iter = 0; iter < maxIter; iter++ {
		assign(points, centers, labels)

		next, counts := means(points, labels, k)
		reseedEmpty(points, centers, labels, next, counts)

		var maxShift float64
		for i := range centers {
			if s := sqDist(centers[i], next[i]); s > maxShift {
				maxShift = s
			}
		}
		copy(centers, next)

		if maxShift <= tol2 {
			converged = true
			iter++
			break
		}
	}

	assign(points, centers, labels)
	var inertia float64
	for i, p := range points {
		inertia += sqDist(p, centers[labels[i]])
	}

	return &Result{
		Labels:     labels,
		Centers:    centers,
		Inertia:    inertia,
		Iterations: iter,
		Converged:  converged,
	}
}

// assign labels each point with its nearest center, ties to the lower
// center index.
func assign(points []Point, centers []Point, labels []int) {
	for i, p := range points {
		best, bestD := 0, math.Inf(1)
		for c, ctr := range centers {
			if d := sqDist(p, ctr); d < bestD {
				best, bestD = c, d
			}
		}
		labels[i] = best
	}
}

// means computes per-cluster centroids and member counts.
func means(points []Point, labels []int, k int) ([]Point, []int) {
	sums := make([]Point, k)
	counts := make([]int, k)
	for i, p := range points {
		l := labels[i]
		sums[l].X += p.X
		sums[l].Y += p.Y
		counts[l]++
	}
	for c := range sums {
		if counts[c] > 0 {
			sums[c].X /= float64(counts[c])
			sums[c].Y /= float64(counts[c])
		}
	}
	return sums, counts
}

// reseedEmpty relocates any empty cluster's center to the point
// farthest from its currently assigned center. Deterministic: the
// scan order fixes which point is chosen on ties.
func reseedEmpty(points []Point, centers []Point, labels []int, next []Point, counts []int) {
	for c := range next {
		if counts[c] > 0 {
			continue
		}
		far, farD := 0, -1.0
		for i, p := range points {
			if d := sqDist(p, centers[labels[i]]); d > farD {
				far, farD = i, d
			}
		}
		next[c] = points[far]
	}
}

func sqDist(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}
