// Package pipeline orchestrates a full placement run: ingest,
// per-region clustering and placement fanned out across a bounded
// worker pool, and the final merge into country-level results.
package pipeline

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/siteplan/internal/cache"
	"github.com/sells-group/siteplan/internal/cluster"
	"github.com/sells-group/siteplan/internal/config"
	"github.com/sells-group/siteplan/internal/coverage"
	"github.com/sells-group/siteplan/internal/export"
	"github.com/sells-group/siteplan/internal/ingest"
	"github.com/sells-group/siteplan/internal/model"
	"github.com/sells-group/siteplan/internal/outline"
	"github.com/sells-group/siteplan/internal/placement"
	"github.com/sells-group/siteplan/internal/store"
)

// Pipeline runs the full recommendation flow for one configured run.
type Pipeline struct {
	cfg   *config.Config
	store store.Store
	cache *cache.Cache
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, c *cache.Cache) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, cache: c}
}

// regionInput is everything one region task needs, and doubles as the
// cache fingerprint input for that region.
type regionInput struct {
	Region     string            `json:"region"`
	Households []model.Household `json:"households"`
	Seeds      []model.Seed      `json:"seeds,omitempty"`
	Baseline   []model.Facility  `json:"baseline,omitempty"`
}

// Run executes the pipeline and records progress in the store. Region
// failures are recoverable: they are counted and logged but do not
// abort sibling regions or the merge.
func (p *Pipeline) Run(ctx context.Context) (*model.RunResult, error) {
	log := zap.L().With(zap.String("run", p.cfg.RunName))

	households, err := ingest.ReadHouseholds(p.cfg.Data.HouseholdsFile,
		ingest.DefaultSchema(p.cfg.Data.IDCol, p.cfg.Data.AdmCols))
	if err != nil {
		return nil, err
	}

	var seeds map[string][]model.Seed
	if p.cfg.Data.VillageCentersFile != "" {
		if seeds, err = ingest.ReadVillageCenters(p.cfg.Data.VillageCentersFile, p.cfg.Data.AdmCols); err != nil {
			return nil, err
		}
	}

	var baseline map[string][]model.Facility
	if p.cfg.Data.HasBaseline() {
		all, err := ingest.ReadBaseline(p.cfg.Data.BaselineFile, p.cfg.Data.AdmCols)
		if err != nil {
			return nil, err
		}
		baseline = ingest.PartitionBaseline(all)
	}

	run, err := p.store.CreateRun(ctx, p.cfg.RunName)
	if err != nil {
		return nil, err
	}
	if err := p.store.UpdateRunStatus(ctx, run.ID, model.RunStatusClustering); err != nil {
		return nil, err
	}

	byRegion := ingest.PartitionByRegion(households)
	regions := make([]string, 0, len(byRegion))
	for r := range byRegion {
		regions = append(regions, r)
	}
	sort.Strings(regions)

	log.Info("starting run",
		zap.String("run_id", run.ID),
		zap.Int("households", len(households)),
		zap.Int("regions", len(regions)),
		zap.Int("workers", p.cfg.Args.Workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Args.Workers)

	var (
		mu        sync.Mutex
		results   []*model.RegionResult
		failed    []string
		succeeded atomic.Int64
		cacheHits atomic.Int64
	)

	for _, region := range regions {
		in := regionInput{
			Region:     region,
			Households: byRegion[region],
			Seeds:      seeds[region],
			Baseline:   baseline[region],
		}
		g.Go(func() error {
			rlog := zap.L().With(zap.String("region", region))
			start := time.Now()

			rec, err := p.store.CreateRegion(gctx, run.ID, region)
			if err != nil {
				rlog.Error("region bookkeeping failed", zap.Error(err))
				mu.Lock()
				failed = append(failed, region)
				mu.Unlock()
				return nil
			}

			result, hit, err := p.processRegion(gctx, run.ID, in)
			status := model.RegionStatusComplete
			errMsg := ""
			switch {
			case err != nil:
				status = model.RegionStatusFailed
				errMsg = err.Error()
				rlog.Error("region failed", zap.Error(err))
				mu.Lock()
				failed = append(failed, region)
				mu.Unlock()
			case result.Empty():
				status = model.RegionStatusSkipped
				rlog.Warn("region skipped, no usable households")
			default:
				succeeded.Add(1)
				if hit {
					cacheHits.Add(1)
				}
				mu.Lock()
				results = append(results, result)
				mu.Unlock()
			}

			if cErr := p.store.CompleteRegion(gctx, rec.ID, status, errMsg, time.Since(start).Milliseconds()); cErr != nil {
				rlog.Warn("failed to record region outcome", zap.Error(cErr))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: region fan-out")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: cancelled")
	}

	if err := p.store.UpdateRunStatus(ctx, run.ID, model.RunStatusMerging); err != nil {
		return nil, err
	}

	// Global artifacts only exist when at least one region produced
	// data; an all-failed run gets a summary row and nothing else.
	merged := &model.RegionResult{}
	if len(results) > 0 {
		if merged, err = Merge(results); err != nil {
			if sErr := p.store.UpdateRunStatus(ctx, run.ID, model.RunStatusFailed); sErr != nil {
				log.Warn("failed to mark run failed", zap.Error(sErr))
			}
			return nil, err
		}
		if err := p.exportMerged(regions, merged); err != nil {
			return nil, err
		}
	}

	summary := &model.RunResult{
		RegionsTotal:     len(regions),
		RegionsSucceeded: int(succeeded.Load()),
		RegionsFailed:    len(failed),
		FailedRegions:    failed,
		Households:       merged.Households,
		Villages:         len(merged.Clusters),
		Facilities:       len(merged.Facilities),
		CacheHits:        int(cacheHits.Load()),
		Merged:           len(results) > 0,
	}
	if err := p.store.UpdateRunResult(ctx, run.ID, summary); err != nil {
		return nil, err
	}

	log.Info("run complete",
		zap.Int("succeeded", summary.RegionsSucceeded),
		zap.Int("failed", summary.RegionsFailed),
		zap.Int("cache_hits", summary.CacheHits),
	)
	return summary, nil
}

// processRegion runs cluster, outline, placement and coverage for one
// region, consulting the cache first. The bool reports a cache hit.
func (p *Pipeline) processRegion(ctx context.Context, runID string, in regionInput) (*model.RegionResult, bool, error) {
	key, err := cache.Fingerprint("region", in, p.cfg.Args)
	if err != nil {
		return nil, false, err
	}

	var result model.RegionResult
	if p.cache.Get(key, &result) {
		if err := p.exportRegion(in, &result); err != nil {
			return nil, false, err
		}
		// The cache carries computed results, not run records; every
		// run persists its own distance rows.
		p.saveDistances(ctx, runID, in.Region, &result)
		return &result, true, nil
	}

	rc, err := cluster.ClusterRegion(ctx, in.Region, in.Households, in.Seeds, cluster.Params{
		ClusterCount:   p.cfg.Args.ClusterCountPerRegion,
		SmallThreshold: p.cfg.Args.SmallVillageThreshold,
		Restarts:       p.cfg.Args.Restarts,
		Seed:           p.cfg.Args.RandomSeed,
	})
	if err != nil {
		return nil, false, err
	}

	result = model.RegionResult{
		Region:     in.Region,
		Households: len(rc.Households),
		Skipped:    rc.Skipped,
		Stats:      rc.Stats,
	}
	if len(rc.Households) == 0 {
		return &result, false, nil
	}

	if result.Clusters, err = outline.Attach(rc.Clusters, rc.Households); err != nil {
		return nil, false, err
	}

	if result.Facilities, err = placement.PlaceRegion(ctx, in.Region, rc.Households, result.Clusters, placement.Params{
		FacilityCount: p.cfg.Args.FacilityCountPerRegion,
		Restarts:      p.cfg.Args.Restarts,
		Seed:          p.cfg.Args.RandomSeed,
	}); err != nil {
		return nil, false, err
	}

	order := p.cfg.Args.DistanceMetricOrder
	if result.Optimal, err = coverage.Nearest(rc.Households, result.Facilities, order); err != nil {
		return nil, false, err
	}
	curve := coverage.Curve(in.Region, result.Optimal)
	result.Curve = &curve

	if len(in.Baseline) > 0 {
		if result.Baseline, err = coverage.Nearest(rc.Households, in.Baseline, order); err != nil {
			return nil, false, err
		}
		bCurve := coverage.Curve(in.Region, result.Baseline)
		result.BaselineCurve = &bCurve
	}

	if err := p.cache.Put(key, &result); err != nil {
		zap.L().Warn("cache store failed", zap.String("region", in.Region), zap.Error(err))
	}
	if err := p.exportRegion(in, &result); err != nil {
		return nil, false, err
	}
	p.saveDistances(ctx, runID, in.Region, &result)
	return &result, false, nil
}

// saveDistances persists a region's distance records, best effort.
func (p *Pipeline) saveDistances(ctx context.Context, runID, region string, r *model.RegionResult) {
	records := append(append([]model.DistanceRecord{}, r.Optimal...), r.Baseline...)
	if err := p.store.SaveDistances(ctx, runID, records); err != nil {
		zap.L().Warn("failed to persist distances", zap.String("region", region), zap.Error(err))
	}
}

// exportRegion writes the per-region result files. Cluster
// assignments are re-derived from the result's member lists so cached
// results export identically to fresh ones.
func (p *Pipeline) exportRegion(in regionInput, r *model.RegionResult) error {
	dir := p.regionDir(in.Region)
	admCols := p.cfg.Data.AdmCols

	assigned := assignHouseholds(in.Households, r.Clusters)
	if err := export.WriteClusteredHouseholds(dir, admCols, assigned,
		distanceByHousehold(r.Optimal), distanceByHousehold(r.Baseline)); err != nil {
		return err
	}
	if err := export.WriteClusterCounts(dir, admCols, r.Clusters); err != nil {
		return err
	}
	if err := export.WriteClusterStats(dir, r.Stats); err != nil {
		return err
	}
	if err := export.WriteVillageShapes(dir, admCols, r.Clusters); err != nil {
		return err
	}
	if err := export.WriteFacilities(dir, "facilities", admCols, r.Facilities); err != nil {
		return err
	}
	if err := export.WriteFacilitiesGeoJSON(dir, "facilities", r.Facilities); err != nil {
		return err
	}
	if r.Curve != nil {
		if err := export.WriteCoverage(dir, "population_coverage_optimal", *r.Curve); err != nil {
			return err
		}
	}
	if r.BaselineCurve != nil {
		if err := export.WriteCoverage(dir, "population_coverage_baseline", *r.BaselineCurve); err != nil {
			return err
		}
	}
	return nil
}

// exportMerged writes the country-level files at the run root.
func (p *Pipeline) exportMerged(regions []string, merged *model.RegionResult) error {
	dir := p.runDir()
	if err := export.WriteLocations(dir, regions); err != nil {
		return err
	}
	if err := export.WriteClusterStats(dir, merged.Stats); err != nil {
		return err
	}
	if err := export.WriteFacilities(dir, "facilities", p.cfg.Data.AdmCols, merged.Facilities); err != nil {
		return err
	}
	if err := export.WriteFacilitiesGeoJSON(dir, "facilities", merged.Facilities); err != nil {
		return err
	}
	if merged.Curve != nil {
		if err := export.WriteCoverage(dir, "population_coverage_optimal", *merged.Curve); err != nil {
			return err
		}
	}
	if merged.BaselineCurve != nil {
		if err := export.WriteCoverage(dir, "population_coverage_baseline", *merged.BaselineCurve); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runDir() string {
	return filepath.Join(p.cfg.Data.ResultsDir, p.cfg.RunName)
}

func (p *Pipeline) regionDir(region string) string {
	parts := append([]string{p.runDir()}, model.RegionParts(region)...)
	return filepath.Join(parts...)
}

// assignHouseholds stamps each household with the cluster id whose
// member list contains it.
func assignHouseholds(households []model.Household, clusters []model.VillageCluster) []model.Household {
	byID := make(map[string]int, len(households))
	for _, c := range clusters {
		for _, id := range c.HouseholdIDs {
			byID[id] = c.ID
		}
	}
	out := make([]model.Household, 0, len(households))
	for _, h := range households {
		id, ok := byID[h.ID]
		if !ok {
			continue
		}
		h.Cluster = id
		out = append(out, h)
	}
	return out
}

func distanceByHousehold(records []model.DistanceRecord) map[string]float64 {
	m := make(map[string]float64, len(records))
	for _, r := range records {
		m[r.HouseholdID] = r.Distance
	}
	return m
}
