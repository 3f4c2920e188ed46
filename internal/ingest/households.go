// Package ingest loads the pipeline's input tables: household
// coordinates, optional village centers, and optional baseline
// facilities. All free-text admin names are Unicode-normalized on the
// way in so region keys compare equal regardless of source encoding.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/model"
)

// Schema names the columns expected in the household table.
type Schema struct {
	// IDCol is the household id column. When empty or absent from
	// the file, ids are synthesized from the row number.
	IDCol   string
	LonCol  string
	LatCol  string
	AdmCols []string
}

// DefaultSchema matches the conventional column layout.
func DefaultSchema(idCol string, admCols []string) Schema {
	return Schema{IDCol: idCol, LonCol: "lon", LatCol: "lat", AdmCols: admCols}
}

// ReadHouseholds loads the household table from a CSV file. Rows with
// unparsable coordinates are skipped with a warning; a missing
// required column is an error.
func ReadHouseholds(path string, s Schema) ([]model.Household, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open households file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read households header")
	}
	cols := indexColumns(header)

	lonIdx, err := requireCol(cols, s.LonCol, path)
	if err != nil {
		return nil, err
	}
	latIdx, err := requireCol(cols, s.LatCol, path)
	if err != nil {
		return nil, err
	}
	admIdx := make([]int, len(s.AdmCols))
	for i, c := range s.AdmCols {
		if admIdx[i], err = requireCol(cols, c, path); err != nil {
			return nil, err
		}
	}
	idIdx := -1
	if s.IDCol != "" {
		if i, ok := cols[s.IDCol]; ok {
			idIdx = i
		}
	}

	var (
		households []model.Household
		skipped    int
		row        int
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read households row %d", row+2)
		}
		row++

		lon, lonErr := strconv.ParseFloat(rec[lonIdx], 64)
		lat, latErr := strconv.ParseFloat(rec[latIdx], 64)
		if lonErr != nil || latErr != nil {
			skipped++
			continue
		}

		id := ""
		if idIdx >= 0 {
			id = rec[idIdx]
		}
		if id == "" {
			id = fmt.Sprintf("hh_%d", row)
		}

		admPath := make([]string, len(admIdx))
		for i, idx := range admIdx {
			admPath[i] = normalizeName(rec[idx])
		}

		households = append(households, model.Household{
			ID:      id,
			Lon:     lon,
			Lat:     lat,
			AdmPath: admPath,
		})
	}

	if skipped > 0 {
		zap.L().Warn("skipped household rows with unparsable coordinates",
			zap.String("file", path),
			zap.Int("skipped", skipped),
		)
	}
	if len(households) == 0 {
		return nil, eris.Errorf("ingest: no usable household rows in %s", path)
	}
	return households, nil
}

// PartitionByRegion groups households by their admin path key.
func PartitionByRegion(households []model.Household) map[string][]model.Household {
	out := make(map[string][]model.Household)
	for _, h := range households {
		key := h.Region()
		out[key] = append(out[key], h)
	}
	return out
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[normalizeName(h)] = i
	}
	return cols
}

func requireCol(cols map[string]int, name, path string) (int, error) {
	i, ok := cols[name]
	if !ok {
		return 0, eris.Errorf("ingest: %s is missing required column %q", path, name)
	}
	return i, nil
}
