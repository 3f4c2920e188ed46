package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	olc "github.com/google/open-location-code/go"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/siteplan/internal/model"
)

// ReadBaseline loads existing facility locations from a CSV or XLSX
// file, chosen by extension. A name column is optional; ids fall back
// to the row number.
func ReadBaseline(path string, admCols []string) ([]model.Facility, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readXLSXRows(path)
	default:
		rows, err = readCSVRows(path)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("ingest: baseline file %s is empty", path)
	}

	cols := indexColumns(rows[0])
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
	nameIdx := -1
	if i, ok := cols["name"]; ok {
		nameIdx = i
	}

	var facilities []model.Facility
	skipped := 0
	for n, rec := range rows[1:] {
		if len(rec) <= lonIdx || len(rec) <= latIdx {
			skipped++
			continue
		}
		lon, lonErr := strconv.ParseFloat(rec[lonIdx], 64)
		lat, latErr := strconv.ParseFloat(rec[latIdx], 64)
		if lonErr != nil || latErr != nil {
			skipped++
			continue
		}

		admPath := make([]string, len(admIdx))
		ok := true
		for i, idx := range admIdx {
			if len(rec) <= idx {
				ok = false
				break
			}
			admPath[i] = normalizeName(rec[idx])
		}
		if !ok {
			skipped++
			continue
		}

		id := fmt.Sprintf("baseline_%d", n+1)
		if nameIdx >= 0 && nameIdx < len(rec) && rec[nameIdx] != "" {
			id = normalizeName(rec[nameIdx])
		}

		facilities = append(facilities, model.Facility{
			ID:       id,
			Lon:      lon,
			Lat:      lat,
			AdmPath:  admPath,
			Kind:     model.FacilityBaseline,
			Region:   model.RegionKey(admPath),
			PlusCode: olc.Encode(lat, lon, 10),
		})
	}

	if skipped > 0 {
		zap.L().Warn("skipped baseline rows with unparsable coordinates",
			zap.String("file", path),
			zap.Int("skipped", skipped),
		)
	}
	return facilities, nil
}

// PartitionBaseline groups baseline facilities by region key.
func PartitionBaseline(facilities []model.Facility) map[string][]model.Facility {
	out := make(map[string][]model.Facility)
	for _, f := range facilities {
		out[f.Region] = append(out[f.Region], f)
	}
	return out
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open baseline file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read baseline file")
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSXRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open baseline workbook")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("ingest: baseline workbook %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = c.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
