// Package export renders pipeline results into the files the result
// viewer reads: CSV tables, GeoJSON layers, and ESRI shapefiles.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteplan/internal/model"
)

// WriteLocations writes the list of processed region keys.
func WriteLocations(dir string, regions []string) error {
	sorted := append([]string(nil), regions...)
	sort.Strings(sorted)

	rows := [][]string{{"location"}}
	for _, r := range sorted {
		rows = append(rows, []string{r})
	}
	return writeCSV(filepath.Join(dir, "locations.csv"), rows)
}

// WriteClusteredHouseholds writes one row per household with its
// village assignment and nearest-facility distances. Distance maps
// are keyed by household id; a household absent from a map gets an
// empty cell, which is how the baseline columns read when no baseline
// file was configured.
func WriteClusteredHouseholds(dir string, admCols []string, households []model.Household, optimal, baseline map[string]float64) error {
	header := append(append([]string{}, admCols...),
		"cluster", "lon", "lat", "hh_minkowski", "baseline_hh_minkowski")
	rows := [][]string{header}

	for _, h := range households {
		row := append(append([]string{}, admPath(h.AdmPath, len(admCols))...),
			strconv.Itoa(h.Cluster),
			formatCoord(h.Lon),
			formatCoord(h.Lat),
			formatDistance(optimal, h.ID),
			formatDistance(baseline, h.ID),
		)
		rows = append(rows, row)
	}
	return writeCSV(filepath.Join(dir, "clustered_households.csv"), rows)
}

// WriteClusterCounts writes per-village household counts.
func WriteClusterCounts(dir string, admCols []string, clusters []model.VillageCluster) error {
	header := append(append([]string{}, admCols...), "cluster", "counts", "small")
	rows := [][]string{header}

	for _, c := range clusters {
		row := append(append([]string{}, admPath(model.RegionParts(c.Region), len(admCols))...),
			strconv.Itoa(c.ID),
			strconv.Itoa(c.Count),
			strconv.FormatBool(c.Small),
		)
		rows = append(rows, row)
	}
	return writeCSV(filepath.Join(dir, "cluster_counts.csv"), rows)
}

// WriteClusterStats writes summary statistics of village sizes as
// metric/value pairs.
func WriteClusterStats(dir string, s model.ClusterStats) error {
	rows := [][]string{
		{"metric", "households"},
		{"villages", strconv.Itoa(s.Villages)},
		{"mean", formatStat(s.Mean)},
		{"min", formatStat(s.Min)},
		{"p25", formatStat(s.P25)},
		{"median", formatStat(s.Median)},
		{"p75", formatStat(s.P75)},
		{"max", formatStat(s.Max)},
		{"small_pct", formatStat(s.SmallPct)},
	}
	return writeCSV(filepath.Join(dir, "cluster_stats.csv"), rows)
}

// WriteFacilities writes placed or baseline facilities as CSV.
func WriteFacilities(dir, name string, admCols []string, facilities []model.Facility) error {
	header := append(append([]string{}, admCols...),
		"village", "lon", "lat", "plus", "facility_id")
	rows := [][]string{header}

	for _, f := range facilities {
		row := append(append([]string{}, admPath(f.AdmPath, len(admCols))...),
			f.Village,
			formatCoord(f.Lon),
			formatCoord(f.Lat),
			f.PlusCode,
			f.ID,
		)
		rows = append(rows, row)
	}
	return writeCSV(filepath.Join(dir, name+".csv"), rows)
}

// WriteCoverage writes a coverage curve with distances in kilometers
// and coverage as a percentage.
func WriteCoverage(dir, name string, curve model.CoverageCurve) error {
	rows := [][]string{{"distance_km", "coverage_pct"}}
	for i, d := range curve.Distances {
		rows = append(rows, []string{
			strconv.FormatFloat(d/1000, 'f', 4, 64),
			strconv.FormatFloat(curve.Fractions[i]*100, 'f', 2, 64),
		})
	}
	return writeCSV(filepath.Join(dir, name+".csv"), rows)
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}

// admPath pads or truncates an admin path to the expected width so
// every row has the same number of cells.
func admPath(path []string, width int) []string {
	out := make([]string, width)
	copy(out, path)
	return out
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatStat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatDistance(m map[string]float64, id string) string {
	d, ok := m[id]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.2f", d)
}
