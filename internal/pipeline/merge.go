package pipeline

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteplan/internal/cluster"
	"github.com/sells-group/siteplan/internal/coverage"
	"github.com/sells-group/siteplan/internal/model"
)

// Merge combines per-region results into one country-level result.
// Coverage curves are rebuilt from the concatenated raw distances,
// never averaged from the per-region curves. A household id appearing
// in more than one region means the input partitioning is broken and
// aborts the merge.
func Merge(results []*model.RegionResult) (*model.RegionResult, error) {
	merged := &model.RegionResult{Region: "all"}

	seen := make(map[string]string)
	var optimalCurves, baselineCurves []model.CoverageCurve

	// Drop nil and empty results before sorting so the comparator
	// never dereferences a nil pointer.
	sorted := make([]*model.RegionResult, 0, len(results))
	for _, r := range results {
		if r.Empty() {
			continue
		}
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Region < sorted[j].Region })

	for _, r := range sorted {
		for _, rec := range r.Optimal {
			if prev, dup := seen[rec.HouseholdID]; dup && prev != r.Region {
				return nil, eris.Errorf("pipeline: household %s appears in regions %s and %s", rec.HouseholdID, prev, r.Region)
			}
			seen[rec.HouseholdID] = r.Region
		}

		merged.Households += r.Households
		merged.Skipped += r.Skipped
		merged.Clusters = append(merged.Clusters, r.Clusters...)
		merged.Facilities = append(merged.Facilities, r.Facilities...)
		merged.Optimal = append(merged.Optimal, r.Optimal...)
		merged.Baseline = append(merged.Baseline, r.Baseline...)
		if r.Curve != nil {
			optimalCurves = append(optimalCurves, *r.Curve)
		}
		if r.BaselineCurve != nil {
			baselineCurves = append(baselineCurves, *r.BaselineCurve)
		}
	}

	merged.Stats = cluster.Describe(merged.Clusters)
	if len(optimalCurves) > 0 {
		c := coverage.Merge(optimalCurves)
		c.Region = merged.Region
		merged.Curve = &c
	}
	if len(baselineCurves) > 0 {
		c := coverage.Merge(baselineCurves)
		c.Region = merged.Region
		merged.BaselineCurve = &c
	}
	return merged, nil
}
