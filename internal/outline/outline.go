// Package outline draws village boundaries around clustered
// households. Clusters with at least three non-collinear member
// coordinates get their convex hull; anything smaller gets a fixed
// square buffer around the cluster center so every village still has
// a drawable shape.
package outline

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/model"
)

// Attach computes and sets the Boundary ring of every cluster in
// place. Household coordinates are looked up by id from the supplied
// slice, which must contain every member of every cluster.
func Attach(clusters []model.VillageCluster, households []model.Household) ([]model.VillageCluster, error) {
	byID := make(map[string][2]float64, len(households))
	for _, h := range households {
		byID[h.ID] = [2]float64{h.Lon, h.Lat}
	}

	buffered := 0
	out := make([]model.VillageCluster, len(clusters))
	for i, c := range clusters {
		coords := make([][2]float64, 0, len(c.HouseholdIDs))
		for _, id := range c.HouseholdIDs {
			pt, ok := byID[id]
			if !ok {
				return nil, eris.Errorf("outline: cluster %s/%d references unknown household %s", c.Region, c.ID, id)
			}
			coords = append(coords, pt)
		}

		ring := convexHull(coords)
		if ring == nil {
			ring = squareBuffer(c.Lon, c.Lat)
			buffered++
		}
		c.Boundary = toBoundary(ring)
		out[i] = c
	}

	if buffered > 0 {
		zap.L().Debug("buffered degenerate clusters", zap.Int("count", buffered))
	}
	return out, nil
}

func toBoundary(ring [][2]float64) [][]float64 {
	b := make([][]float64, len(ring))
	for i, c := range ring {
		b[i] = []float64{c[0], c[1]}
	}
	return b
}
