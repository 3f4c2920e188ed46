package outline

import (
	"sort"

	geom "github.com/twpayne/go-geom"
)

// bufferHalfWidth is the half-width in degrees of the square drawn
// around clusters too small or too collinear to form a polygon.
const bufferHalfWidth = 0.0001

// convexHull computes the convex hull of the given coordinates using
// Andrew's monotone chain and returns it as a closed CCW ring. It
// returns nil when the points do not span two dimensions.
func convexHull(coords [][2]float64) [][2]float64 {
	pts := dedupe(coords)
	if len(pts) < 3 {
		return nil
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	build := func(ordered [][2]float64) [][2]float64 {
		var chain [][2]float64
		for _, p := range ordered {
			for len(chain) >= 2 && cross(chain[len(chain)-2], chain[len(chain)-1], p) <= 0 {
				chain = chain[:len(chain)-1]
			}
			chain = append(chain, p)
		}
		return chain
	}

	lower := build(pts)
	reversed := make([][2]float64, len(pts))
	for i, p := range pts {
		reversed[len(pts)-1-i] = p
	}
	upper := build(reversed)

	hull := append(lower[:len(lower)-1], upper[:len(upper)-1]...)
	if len(hull) < 3 {
		// All points collinear.
		return nil
	}
	return closeRing(hull)
}

// squareBuffer returns a closed ring tracing a small axis-aligned
// square around the given center.
func squareBuffer(lon, lat float64) [][2]float64 {
	return [][2]float64{
		{lon - bufferHalfWidth, lat - bufferHalfWidth},
		{lon + bufferHalfWidth, lat - bufferHalfWidth},
		{lon + bufferHalfWidth, lat + bufferHalfWidth},
		{lon - bufferHalfWidth, lat + bufferHalfWidth},
		{lon - bufferHalfWidth, lat - bufferHalfWidth},
	}
}

func cross(o, a, b [2]float64) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func dedupe(coords [][2]float64) [][2]float64 {
	seen := make(map[[2]float64]struct{}, len(coords))
	out := make([][2]float64, 0, len(coords))
	for _, c := range coords {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func closeRing(ring [][2]float64) [][2]float64 {
	if len(ring) == 0 {
		return ring
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

// Polygon converts a closed ring into a go-geom polygon in lon/lat
// order, suitable for GeoJSON and shapefile export.
func Polygon(ring [][]float64) *geom.Polygon {
	flat := make([]float64, 0, len(ring)*2)
	for _, c := range ring {
		flat = append(flat, c[0], c[1])
	}
	p := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
	return p
}
