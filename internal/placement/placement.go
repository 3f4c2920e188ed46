// Package placement picks candidate health facility locations for a
// region by clustering its households into as many groups as
// facilities requested and proposing each group's centroid as a site.
package placement

import (
	"context"
	"fmt"
	"hash/fnv"

	olc "github.com/google/open-location-code/go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/cluster"
	"github.com/sells-group/siteplan/internal/model"
)

// Params controls facility placement for a single region.
type Params struct {
	// FacilityCount is the requested number of facilities. It is
	// clamped to the region's household count.
	FacilityCount int
	Restarts      int
	Seed          int64
}

// PlaceRegion proposes optimal facility sites for one region. The
// supplied households must already carry their cluster assignment so
// each facility can be attributed to its dominant village.
func PlaceRegion(ctx context.Context, region string, households []model.Household, clusters []model.VillageCluster, p Params) ([]model.Facility, error) {
	if len(households) == 0 {
		return nil, nil
	}
	m := p.FacilityCount
	if m <= 0 {
		return nil, eris.Errorf("placement: invalid facility count %d for region %s", m, region)
	}
	if m > len(households) {
		m = len(households)
	}

	points := make([]cluster.Point, len(households))
	for i, h := range households {
		points[i] = cluster.Point{X: h.Lon, Y: h.Lat}
	}

	res, err := cluster.Fit(ctx, points, m, cluster.Options{
		Restarts: p.Restarts,
		Seed:     regionSeed(p.Seed, region),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "placement: fit region %s", region)
	}

	names := make(map[int]string, len(clusters))
	for _, c := range clusters {
		names[c.ID] = c.Name
	}

	admPath := model.RegionParts(region)
	facilities := make([]model.Facility, m)
	for f := 0; f < m; f++ {
		lon, lat := res.Centers[f].X, res.Centers[f].Y
		facilities[f] = model.Facility{
			ID:       fmt.Sprintf("%s_%d", region, f),
			Lon:      lon,
			Lat:      lat,
			AdmPath:  admPath,
			Kind:     model.FacilityOptimal,
			Region:   region,
			Village:  names[dominantCluster(res.Labels, households, f)],
			PlusCode: olc.Encode(lat, lon, 10),
		}
	}

	zap.L().Debug("placed facilities",
		zap.String("region", region),
		zap.Int("requested", p.FacilityCount),
		zap.Int("placed", m),
	)
	return facilities, nil
}

// dominantCluster returns the village cluster id holding the most
// households assigned to facility f, lowest id on ties.
func dominantCluster(labels []int, households []model.Household, f int) int {
	counts := make(map[int]int)
	for i, l := range labels {
		if l == f {
			counts[households[i].Cluster]++
		}
	}
	best, bestN := 0, -1
	for id, n := range counts {
		if n > bestN || (n == bestN && id < best) {
			best, bestN = id, n
		}
	}
	return best
}

// regionSeed mixes the configured seed with a stable hash of the
// region key so regions cluster independently but reproducibly.
func regionSeed(seed int64, region string) int64 {
	h := fnv.New64a()
	h.Write([]byte(region))
	return seed ^ int64(h.Sum64())
}
