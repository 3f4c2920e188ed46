// Package coverage measures how well a set of facilities serves a
// population: the household-to-nearest-facility distances and the
// empirical coverage curve they induce.
package coverage

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteplan/internal/model"
)

// earthRadius is the spherical earth radius in meters used to project
// lon/lat onto Cartesian coordinates.
const earthRadius = 6378137.0

// DefaultMetricOrder is the Minkowski order used when none is
// configured. Values between 1 and 2 approximate travel along partial
// road networks better than straight-line distance.
const DefaultMetricOrder = 1.54

type xyz struct{ x, y, z float64 }

func toCartesian(lon, lat float64) xyz {
	latR := lat * math.Pi / 180
	lonR := lon * math.Pi / 180
	return xyz{
		x: earthRadius * math.Cos(latR) * math.Cos(lonR),
		y: earthRadius * math.Cos(latR) * math.Sin(lonR),
		z: earthRadius * math.Sin(latR),
	}
}

// minkowski returns the order-p Minkowski distance between two
// Cartesian points, in meters.
func minkowski(a, b xyz, p float64) float64 {
	if p == 2 {
		dx, dy, dz := a.x-b.x, a.y-b.y, a.z-b.z
		return math.Sqrt(dx*dx + dy*dy + dz*dz)
	}
	s := math.Pow(math.Abs(a.x-b.x), p) +
		math.Pow(math.Abs(a.y-b.y), p) +
		math.Pow(math.Abs(a.z-b.z), p)
	return math.Pow(s, 1/p)
}

// Nearest computes, for every household, its distance to the nearest
// facility under the order-p Minkowski metric. Facilities of mixed
// kinds must not be passed together; callers evaluate optimal and
// baseline sets separately.
func Nearest(households []model.Household, facilities []model.Facility, p float64) ([]model.DistanceRecord, error) {
	if len(facilities) == 0 {
		return nil, eris.New("coverage: no facilities to measure against")
	}
	if p < 1 {
		return nil, eris.Errorf("coverage: invalid metric order %g", p)
	}

	fxyz := make([]xyz, len(facilities))
	for i, f := range facilities {
		fxyz[i] = toCartesian(f.Lon, f.Lat)
	}

	kind := facilities[0].Kind
	records := make([]model.DistanceRecord, len(households))
	for i, h := range households {
		hx := toCartesian(h.Lon, h.Lat)
		best, bestD := 0, math.Inf(1)
		for j, fx := range fxyz {
			if d := minkowski(hx, fx, p); d < bestD {
				best, bestD = j, d
			}
		}
		records[i] = model.DistanceRecord{
			HouseholdID: h.ID,
			FacilityID:  facilities[best].ID,
			Distance:    bestD,
			Kind:        kind,
		}
	}
	return records, nil
}
