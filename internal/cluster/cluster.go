package cluster

import (
	"context"
	"math"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/model"
)

// Params are the clustering parameters for one region.
type Params struct {
	// ClusterCount is the target K when no seeds are supplied.
	ClusterCount int
	// SmallThreshold flags clusters with fewer member households.
	SmallThreshold int
	// Restarts is the number of random restarts for unseeded runs.
	Restarts int
	// Seed is the per-region RNG seed.
	Seed int64
}

// RegionClusters is the clusterer output for one region.
type RegionClusters struct {
	Region     string
	Households []model.Household
	Clusters   []model.VillageCluster
	Stats      model.ClusterStats
	Skipped    int
}

// ClusterRegion partitions a region's households into village
// clusters. When seeds are given, K is the seed count and cluster
// identity is re-bound to the nearest seed after convergence, so a
// cluster traces back to the named village that seeded it. Households
// with non-finite coordinates are skipped and counted; a region with
// no valid households yields an empty result, not an error.
func ClusterRegion(ctx context.Context, region string, households []model.Household, seeds []model.Seed, p Params) (*RegionClusters, error) {
	log := zap.L().With(zap.String("region", region))

	valid, skipped := filterFinite(households)
	if skipped > 0 {
		log.Warn("skipped households with malformed coordinates", zap.Int("skipped", skipped))
	}
	rc := &RegionClusters{Region: region, Skipped: skipped}
	if len(valid) == 0 {
		log.Warn("no valid households, returning empty result")
		return rc, nil
	}

	k := p.ClusterCount
	seeded := len(seeds) > 0
	if seeded {
		k = len(seeds)
	}
	if k > len(valid) {
		// One cluster per household rather than failing.
		k = len(valid)
	}
	if k <= 0 {
		return nil, eris.Errorf("cluster: invalid cluster count %d for region %s", k, region)
	}

	points := make([]Point, len(valid))
	for i, h := range valid {
		points[i] = Point{X: h.Lon, Y: h.Lat}
	}

	opts := Options{Restarts: p.Restarts, Seed: p.Seed}
	if seeded {
		opts.Init = make([]Point, k)
		for i, s := range seeds[:k] {
			opts.Init[i] = Point{X: s.Lon, Y: s.Lat}
		}
	}

	res, err := Fit(ctx, points, k, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "cluster: fit region %s", region)
	}
	if !res.Converged {
		log.Warn("clustering did not converge", zap.Int("iterations", res.Iterations))
	}

	// Map raw k-means labels to final cluster ids and names.
	ids := make([]int, k)
	names := make([]string, k)
	if seeded {
		seedPts := make([]Point, k)
		for i, s := range seeds[:k] {
			seedPts[i] = Point{X: s.Lon, Y: s.Lat}
		}
		for c, s := range matchSeeds(res.Centers, seedPts) {
			ids[c] = s
			names[c] = seeds[s].Name
		}
	} else {
		for c := 0; c < k; c++ {
			ids[c] = c
			names[c] = strconv.Itoa(c)
		}
	}

	// Attach assignments and collect members per cluster.
	members := make(map[int][]string, k)
	rc.Households = make([]model.Household, len(valid))
	for i, h := range valid {
		id := ids[res.Labels[i]]
		h.Cluster = id
		rc.Households[i] = h
		members[id] = append(members[id], h.ID)
	}

	rc.Clusters = make([]model.VillageCluster, 0, k)
	for c := 0; c < k; c++ {
		id := ids[c]
		count := len(members[id])
		rc.Clusters = append(rc.Clusters, model.VillageCluster{
			Region:       region,
			ID:           id,
			Name:         names[c],
			Lon:          res.Centers[c].X,
			Lat:          res.Centers[c].Y,
			Count:        count,
			Small:        count < p.SmallThreshold,
			HouseholdIDs: members[id],
		})
	}
	sort.Slice(rc.Clusters, func(i, j int) bool { return rc.Clusters[i].ID < rc.Clusters[j].ID })

	rc.Stats = Describe(rc.Clusters)

	log.Debug("clustered region",
		zap.Int("households", len(valid)),
		zap.Int("clusters", k),
		zap.Float64("inertia", res.Inertia),
	)
	return rc, nil
}

// matchSeeds maps each converged centroid to a seed by greedy stable
// matching: all (centroid, seed) pairs ordered by squared distance,
// then seed index, then centroid index, assigned greedily so the
// result is a bijection even when seeds are nearly equidistant.
func matchSeeds(centers, seeds []Point) []int {
	type pair struct {
		c, s int
		d    float64
	}
	pairs := make([]pair, 0, len(centers)*len(seeds))
	for c := range centers {
		for s := range seeds {
			pairs = append(pairs, pair{c: c, s: s, d: sqDist(centers[c], seeds[s])})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].d != pairs[j].d {
			return pairs[i].d < pairs[j].d
		}
		if pairs[i].s != pairs[j].s {
			return pairs[i].s < pairs[j].s
		}
		return pairs[i].c < pairs[j].c
	})

	assigned := make([]int, len(centers))
	for i := range assigned {
		assigned[i] = -1
	}
	taken := make([]bool, len(seeds))
	for _, p := range pairs {
		if assigned[p.c] >= 0 || taken[p.s] {
			continue
		}
		assigned[p.c] = p.s
		taken[p.s] = true
	}
	return assigned
}

// Describe computes household-count statistics across a region's
// clusters, including the share of small villages.
func Describe(clusters []model.VillageCluster) model.ClusterStats {
	if len(clusters) == 0 {
		return model.ClusterStats{}
	}
	counts := make([]float64, len(clusters))
	var sum float64
	var small int
	for i, c := range clusters {
		counts[i] = float64(c.Count)
		sum += counts[i]
		if c.Small {
			small++
		}
	}
	sort.Float64s(counts)

	return model.ClusterStats{
		Villages: len(clusters),
		Mean:     sum / float64(len(counts)),
		Min:      counts[0],
		Max:      counts[len(counts)-1],
		P25:      percentile(counts, 0.25),
		Median:   percentile(counts, 0.50),
		P75:      percentile(counts, 0.75),
		SmallPct: 100 * float64(small) / float64(len(clusters)),
	}
}

// percentile interpolates linearly between order statistics, matching
// the convention of common numeric packages.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// filterFinite drops households whose coordinates are NaN or infinite.
func filterFinite(households []model.Household) ([]model.Household, int) {
	valid := make([]model.Household, 0, len(households))
	skipped := 0
	for _, h := range households {
		if !finite(h.Lon) || !finite(h.Lat) {
			skipped++
			continue
		}
		valid = append(valid, h)
	}
	return valid, skipped
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
