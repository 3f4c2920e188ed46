package export

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/siteplan/internal/model"
	"github.com/sells-group/siteplan/internal/outline"
)

// WriteVillageShapes writes village boundary polygons as both an ESRI
// shapefile and a GeoJSON feature collection.
func WriteVillageShapes(dir string, admCols []string, clusters []model.VillageCluster) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "export: create shapes directory")
	}
	if err := writeShapefile(filepath.Join(dir, "village_shapes.shp"), admCols, clusters); err != nil {
		return err
	}
	return writeShapesGeoJSON(filepath.Join(dir, "village_shapes.geojson"), admCols, clusters)
}

// WriteFacilitiesGeoJSON writes facilities as a GeoJSON point layer.
func WriteFacilitiesGeoJSON(dir, name string, facilities []model.Facility) error {
	fc := geojson.FeatureCollection{}
	for _, f := range facilities {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       f.ID,
			Geometry: geom.NewPointFlat(geom.XY, []float64{f.Lon, f.Lat}),
			Properties: map[string]any{
				"facility_id": f.ID,
				"village":     f.Village,
				"plus":        f.PlusCode,
				"region":      f.Region,
			},
		})
	}
	return writeGeoJSON(filepath.Join(dir, name+".geojson"), &fc)
}

func writeShapefile(path string, admCols []string, clusters []model.VillageCluster) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}

	fields := make([]shp.Field, 0, len(admCols)+2)
	for _, c := range admCols {
		fields = append(fields, shp.StringField(c, 64))
	}
	fields = append(fields,
		shp.NumberField("cluster", 10),
		shp.NumberField("households", 10),
	)
	if err := w.SetFields(fields); err != nil {
		w.Close()
		return eris.Wrapf(err, "export: set shapefile fields %s", path)
	}

	for _, c := range clusters {
		row := int(w.Write(toShpPolygon(c.Boundary)))

		adm := admPath(model.RegionParts(c.Region), len(admCols))
		for i, v := range adm {
			if err := w.WriteAttribute(row, i, v); err != nil {
				w.Close()
				return eris.Wrapf(err, "export: write shapefile attribute %s", path)
			}
		}
		if err := w.WriteAttribute(row, len(admCols), c.ID); err != nil {
			w.Close()
			return eris.Wrapf(err, "export: write shapefile attribute %s", path)
		}
		if err := w.WriteAttribute(row, len(admCols)+1, c.Count); err != nil {
			w.Close()
			return eris.Wrapf(err, "export: write shapefile attribute %s", path)
		}
	}
	w.Close()

	// go-shp names the attribute file "<base>dbf" with no dot; move
	// it to the extension every shapefile consumer expects.
	base := strings.TrimSuffix(path, ".shp")
	if _, err := os.Stat(base + "dbf"); err == nil {
		if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
			return eris.Wrapf(err, "export: rename attribute file for %s", path)
		}
	}
	return nil
}

// toShpPolygon converts a closed lon/lat ring into a shapefile
// polygon. Shapefile outer rings wind clockwise, the reverse of the
// ring orientation used everywhere else here.
func toShpPolygon(ring [][]float64) *shp.Polygon {
	pts := make([]shp.Point, len(ring))
	for i, c := range ring {
		pts[len(ring)-1-i] = shp.Point{X: c[0], Y: c[1]}
	}

	box := shp.Box{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts {
		if p.X < box.MinX {
			box.MinX = p.X
		}
		if p.Y < box.MinY {
			box.MinY = p.Y
		}
		if p.X > box.MaxX {
			box.MaxX = p.X
		}
		if p.Y > box.MaxY {
			box.MaxY = p.Y
		}
	}

	return &shp.Polygon{
		Box:       box,
		NumParts:  1,
		NumPoints: int32(len(pts)),
		Parts:     []int32{0},
		Points:    pts,
	}
}

func writeShapesGeoJSON(path string, admCols []string, clusters []model.VillageCluster) error {
	fc := geojson.FeatureCollection{}
	for _, c := range clusters {
		props := map[string]any{
			"cluster":    c.ID,
			"name":       c.Name,
			"households": c.Count,
			"small":      c.Small,
		}
		adm := admPath(model.RegionParts(c.Region), len(admCols))
		for i, col := range admCols {
			props[col] = adm[i]
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         c.Region + "_" + strconv.Itoa(c.ID),
			Geometry:   outline.Polygon(c.Boundary),
			Properties: props,
		})
	}
	return writeGeoJSON(path, &fc)
}

func writeGeoJSON(path string, fc *geojson.FeatureCollection) error {
	raw, err := fc.MarshalJSON()
	if err != nil {
		return eris.Wrapf(err, "export: encode %s", path)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}
