package coverage

import (
	"sort"

	"github.com/sells-group/siteplan/internal/model"
)

// Curve builds the empirical coverage curve for a region from raw
// nearest-facility distances. Distances come out sorted ascending and
// each fraction is the share of households within that distance, so
// the final fraction is always 1 for a non-empty input.
func Curve(region string, records []model.DistanceRecord) model.CoverageCurve {
	c := model.CoverageCurve{Region: region}
	n := len(records)
	if n == 0 {
		return c
	}

	c.Distances = make([]float64, n)
	for i, r := range records {
		c.Distances[i] = r.Distance
	}
	sort.Float64s(c.Distances)

	c.Fractions = make([]float64, n)
	for i := range c.Fractions {
		c.Fractions[i] = float64(i+1) / float64(n)
	}
	return c
}

// Merge rebuilds a single coverage curve from several regions' raw
// distances. The global fractions come from re-ranking the
// concatenated samples, never from averaging per-region curves.
func Merge(curves []model.CoverageCurve) model.CoverageCurve {
	var all []model.DistanceRecord
	for _, c := range curves {
		for _, d := range c.Distances {
			all = append(all, model.DistanceRecord{Distance: d})
		}
	}
	return Curve("", all)
}
