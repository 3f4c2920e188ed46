package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteplan/internal/model"
)

var admCols = []string{"adm1", "adm2"}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteLocationsSorted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteLocations(dir, []string{"BFA:Sanguie", "BFA:Nayala"}))

	rows := readCSV(t, filepath.Join(dir, "locations.csv"))
	assert.Equal(t, [][]string{
		{"location"},
		{"BFA:Nayala"},
		{"BFA:Sanguie"},
	}, rows)
}

func TestWriteClusteredHouseholds(t *testing.T) {
	dir := t.TempDir()
	hh := []model.Household{
		{ID: "a", Lon: -1.5, Lat: 12.25, AdmPath: []string{"BFA", "Nayala"}, Cluster: 3},
		{ID: "b", Lon: -1.6, Lat: 12.35, AdmPath: []string{"BFA", "Nayala"}, Cluster: 0},
	}
	optimal := map[string]float64{"a": 1234.567, "b": 89.1}
	baseline := map[string]float64{"a": 4321.0}

	require.NoError(t, WriteClusteredHouseholds(dir, admCols, hh, optimal, baseline))
	rows := readCSV(t, filepath.Join(dir, "clustered_households.csv"))

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"adm1", "adm2", "cluster", "lon", "lat", "hh_minkowski", "baseline_hh_minkowski"}, rows[0])
	assert.Equal(t, []string{"BFA", "Nayala", "3", "-1.5", "12.25", "1234.57", "4321.00"}, rows[1])
	// No baseline distance leaves the cell empty.
	assert.Equal(t, "", rows[2][6])
}

func TestWriteClusterCounts(t *testing.T) {
	dir := t.TempDir()
	clusters := []model.VillageCluster{
		{Region: "BFA:Nayala", ID: 0, Count: 45},
		{Region: "BFA:Nayala", ID: 1, Count: 12, Small: true},
	}

	require.NoError(t, WriteClusterCounts(dir, admCols, clusters))
	rows := readCSV(t, filepath.Join(dir, "cluster_counts.csv"))

	assert.Equal(t, []string{"adm1", "adm2", "cluster", "counts", "small"}, rows[0])
	assert.Equal(t, []string{"BFA", "Nayala", "1", "12", "true"}, rows[2])
}

func TestWriteClusterStats(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteClusterStats(dir, model.ClusterStats{
		Villages: 2, Mean: 28.5, Min: 12, Max: 45, P25: 20.25, Median: 28.5, P75: 36.75, SmallPct: 50,
	}))
	rows := readCSV(t, filepath.Join(dir, "cluster_stats.csv"))

	assert.Equal(t, []string{"metric", "households"}, rows[0])
	assert.Equal(t, []string{"villages", "2"}, rows[1])
	assert.Equal(t, []string{"median", "28.50"}, rows[5])
	assert.Equal(t, []string{"small_pct", "50.00"}, rows[8])
}

func TestWriteFacilities(t *testing.T) {
	dir := t.TempDir()
	fac := []model.Facility{
		{ID: "BFA:Nayala_0", Lon: -1.5, Lat: 12.25, AdmPath: []string{"BFA", "Nayala"},
			Village: "Toma", PlusCode: "6FG57QJ2+22"},
	}

	require.NoError(t, WriteFacilities(dir, "facilities", admCols, fac))
	rows := readCSV(t, filepath.Join(dir, "facilities.csv"))

	assert.Equal(t, []string{"adm1", "adm2", "village", "lon", "lat", "plus", "facility_id"}, rows[0])
	assert.Equal(t, []string{"BFA", "Nayala", "Toma", "-1.5", "12.25", "6FG57QJ2+22", "BFA:Nayala_0"}, rows[1])
}

func TestWriteCoverageUnits(t *testing.T) {
	dir := t.TempDir()
	curve := model.CoverageCurve{
		Distances: []float64{500, 1500},
		Fractions: []float64{0.5, 1},
	}

	require.NoError(t, WriteCoverage(dir, "population_coverage_optimal", curve))
	rows := readCSV(t, filepath.Join(dir, "population_coverage_optimal.csv"))

	assert.Equal(t, []string{"distance_km", "coverage_pct"}, rows[0])
	assert.Equal(t, []string{"0.5000", "50.00"}, rows[1])
	assert.Equal(t, []string{"1.5000", "100.00"}, rows[2])
}

func TestWriteFacilitiesGeoJSON(t *testing.T) {
	dir := t.TempDir()
	fac := []model.Facility{
		{ID: "f0", Lon: -1.5, Lat: 12.25, Village: "Toma", PlusCode: "x", Region: "BFA:Nayala"},
	}
	require.NoError(t, WriteFacilitiesGeoJSON(dir, "facilities", fac))

	raw, err := os.ReadFile(filepath.Join(dir, "facilities.geojson"))
	require.NoError(t, err)

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "FeatureCollection", doc.Type)
	require.Len(t, doc.Features, 1)
	assert.Equal(t, "Point", doc.Features[0].Geometry.Type)
	assert.Equal(t, []float64{-1.5, 12.25}, doc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "Toma", doc.Features[0].Properties["village"])
}

func TestWriteVillageShapes(t *testing.T) {
	dir := t.TempDir()
	ring := [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	clusters := []model.VillageCluster{
		{Region: "BFA:Nayala", ID: 0, Name: "Toma", Count: 40, Boundary: ring},
	}

	require.NoError(t, WriteVillageShapes(dir, admCols, clusters))

	for _, name := range []string{"village_shapes.shp", "village_shapes.shx", "village_shapes.dbf", "village_shapes.geojson"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}

	// The attribute table must carry the shapefile extension, not the
	// dotless name the writer library produces.
	_, err := os.Stat(filepath.Join(dir, "village_shapesdbf"))
	assert.True(t, os.IsNotExist(err))

	raw, err := os.ReadFile(filepath.Join(dir, "village_shapes.geojson"))
	require.NoError(t, err)
	var doc struct {
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Features, 1)
	assert.Equal(t, "Polygon", doc.Features[0].Geometry.Type)
	assert.Equal(t, "Nayala", doc.Features[0].Properties["adm2"])
}

func TestToShpPolygonReversesWinding(t *testing.T) {
	ring := [][]float64{{0, 0}, {2, 0}, {2, 2}, {0, 0}}
	p := toShpPolygon(ring)
	assert.EqualValues(t, 4, p.NumPoints)
	assert.EqualValues(t, []int32{0}, p.Parts)
	// First input point comes out last.
	assert.Equal(t, 0.0, p.Points[3].X)
	assert.Equal(t, 2.0, p.Points[1].X)
	assert.Equal(t, 0.0, p.Box.MinX)
	assert.Equal(t, 2.0, p.Box.MaxX)
}
