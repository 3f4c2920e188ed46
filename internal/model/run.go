package model

import "time"

// RunStatus tracks a planning run through its lifecycle.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusClustering RunStatus = "clustering"
	RunStatusPlacing    RunStatus = "placing"
	RunStatusMerging    RunStatus = "merging"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// RegionStatus tracks one region task within a run.
type RegionStatus string

const (
	RegionStatusRunning  RegionStatus = "running"
	RegionStatusComplete RegionStatus = "complete"
	RegionStatusSkipped  RegionStatus = "skipped"
	RegionStatusFailed   RegionStatus = "failed"
)

// Run is a persisted record of one planning run.
type Run struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult is the summary stored when a run finishes.
type RunResult struct {
	RegionsTotal     int      `json:"regions_total"`
	RegionsSucceeded int      `json:"regions_succeeded"`
	RegionsFailed    int      `json:"regions_failed"`
	FailedRegions    []string `json:"failed_regions,omitempty"`
	Households       int      `json:"households"`
	Villages         int      `json:"villages"`
	Facilities       int      `json:"facilities"`
	CacheHits        int      `json:"cache_hits"`
	Merged           bool     `json:"merged"`
}

// RegionRecord is a persisted per-region outcome within a run.
type RegionRecord struct {
	ID         string       `json:"id"`
	RunID      string       `json:"run_id"`
	Region     string       `json:"region"`
	Status     RegionStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	DurationMS int64        `json:"duration_ms"`
	StartedAt  time.Time    `json:"started_at"`
}
