package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/model"
)

// ReadVillageCenters loads known village center points from a CSV
// file and groups them by region key. The file needs name, lon and
// lat columns plus the same admin columns as the household table.
func ReadVillageCenters(path string, admCols []string) (map[string][]model.Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open village centers file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read village centers header")
	}
	cols := indexColumns(header)

	nameIdx, err := requireCol(cols, "name", path)
	if err != nil {
		return nil, err
	}
	lonIdx, err := requireCol(cols, "lon", path)
	if err != nil {
		return nil, err
	}
	latIdx, err := requireCol(cols, "lat", path)
	if err != nil {
		return nil, err
	}
	admIdx := make([]int, len(admCols))
	for i, c := range admCols {
		if admIdx[i], err = requireCol(cols, c, path); err != nil {
			return nil, err
		}
	}

	seeds := make(map[string][]model.Seed)
	skipped := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read village centers row")
		}

		lon, lonErr := strconv.ParseFloat(rec[lonIdx], 64)
		lat, latErr := strconv.ParseFloat(rec[latIdx], 64)
		if lonErr != nil || latErr != nil {
			skipped++
			continue
		}

		admPath := make([]string, len(admIdx))
		for i, idx := range admIdx {
			admPath[i] = normalizeName(rec[idx])
		}
		key := model.RegionKey(admPath)
		seeds[key] = append(seeds[key], model.Seed{
			Name: normalizeName(rec[nameIdx]),
			Lon:  lon,
			Lat:  lat,
		})
	}

	if skipped > 0 {
		zap.L().Warn("skipped village center rows with unparsable coordinates",
			zap.String("file", path),
			zap.Int("skipped", skipped),
		)
	}
	return seeds, nil
}
