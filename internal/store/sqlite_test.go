package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteplan/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "burkina-west")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusClustering))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusClustering, got.Status)
	assert.Equal(t, "burkina-west", got.Name)
	assert.Nil(t, got.Result)

	result := &model.RunResult{
		RegionsTotal:     3,
		RegionsSucceeded: 2,
		RegionsFailed:    1,
		FailedRegions:    []string{"BFA:Sud"},
		Households:       1200,
		Villages:         40,
		Facilities:       6,
		CacheHits:        1,
		Merged:           true,
	}
	require.NoError(t, s.UpdateRunResult(ctx, run.ID, result))

	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, result, got.Result)
}

func TestSQLiteRunResultAllRegionsFailed(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "doomed")
	require.NoError(t, err)
	require.NoError(t, s.UpdateRunResult(ctx, run.ID, &model.RunResult{
		RegionsTotal:  2,
		RegionsFailed: 2,
		FailedRegions: []string{"A", "B"},
	}))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
}

func TestSQLiteGetRunNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
}

func TestSQLiteUpdateMissingRun(t *testing.T) {
	s := newTestSQLiteStore(t)
	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusComplete)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteListRuns(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := s.CreateRun(ctx, "first")
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, "second")
	require.NoError(t, err)
	require.NoError(t, s.UpdateRunStatus(ctx, a.ID, model.RunStatusComplete))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	complete, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, a.ID, complete[0].ID)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteRegionLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "regions")
	require.NoError(t, err)

	ok, err := s.CreateRegion(ctx, run.ID, "BFA:Nayala")
	require.NoError(t, err)
	failed, err := s.CreateRegion(ctx, run.ID, "BFA:Sud")
	require.NoError(t, err)

	require.NoError(t, s.CompleteRegion(ctx, ok.ID, model.RegionStatusComplete, "", 1500))
	require.NoError(t, s.CompleteRegion(ctx, failed.ID, model.RegionStatusFailed, "no valid households", 20))

	regions, err := s.ListRegions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, regions, 2)

	byRegion := map[string]model.RegionRecord{}
	for _, r := range regions {
		byRegion[r.Region] = r
	}
	assert.Equal(t, model.RegionStatusComplete, byRegion["BFA:Nayala"].Status)
	assert.EqualValues(t, 1500, byRegion["BFA:Nayala"].DurationMS)
	assert.Empty(t, byRegion["BFA:Nayala"].Error)
	assert.Equal(t, model.RegionStatusFailed, byRegion["BFA:Sud"].Status)
	assert.Equal(t, "no valid households", byRegion["BFA:Sud"].Error)
}

func TestSQLiteCompleteMissingRegion(t *testing.T) {
	s := newTestSQLiteStore(t)
	err := s.CompleteRegion(context.Background(), "missing", model.RegionStatusComplete, "", 0)
	require.Error(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), configWithDriver("oracle"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpenDefaultsToSQLite(t *testing.T) {
	cfg := configWithDriver("")
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "default.db")
	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &SQLiteStore{}, s)
}

func TestSQLiteSaveDistances(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "dist")
	require.NoError(t, err)

	records := []model.DistanceRecord{
		{HouseholdID: "h1", FacilityID: "f1", Kind: model.FacilityOptimal, Distance: 120.5},
		{HouseholdID: "h2", FacilityID: "f1", Kind: model.FacilityBaseline, Distance: 900},
	}
	require.NoError(t, s.SaveDistances(ctx, run.ID, records))
	require.NoError(t, s.SaveDistances(ctx, run.ID, nil))

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM distances WHERE run_id = ?`, run.ID).Scan(&n))
	assert.Equal(t, 2, n)
}
