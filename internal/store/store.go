// Package store persists run metadata and per-region outcomes so runs
// can be inspected after the fact and served over the results API.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteplan/internal/config"
	"github.com/sells-group/siteplan/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the placement pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, name string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Regions
	CreateRegion(ctx context.Context, runID, region string) (*model.RegionRecord, error)
	CompleteRegion(ctx context.Context, regionID string, status model.RegionStatus, errMsg string, durationMS int64) error
	ListRegions(ctx context.Context, runID string) ([]model.RegionRecord, error)

	// Distances
	SaveDistances(ctx context.Context, runID string, records []model.DistanceRecord) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs the store named by the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
