// Package model defines the domain types shared across the planning pipeline.
package model

import "strings"

// FacilityKind distinguishes recommended placements from pre-existing sites.
type FacilityKind string

const (
	// FacilityOptimal is a placement recommended by the optimizer.
	FacilityOptimal FacilityKind = "optimal"
	// FacilityBaseline is a pre-existing facility supplied by the user.
	FacilityBaseline FacilityKind = "baseline"
)

// Household is a single household location. Immutable once loaded;
// only the cluster assignment is set later, by the clusterer.
type Household struct {
	ID      string   `json:"hh_id"`
	Lon     float64  `json:"lon"`
	Lat     float64  `json:"lat"`
	AdmPath []string `json:"adm_path"`
	Cluster int      `json:"cluster"`
}

// Region returns the household's region key.
func (h Household) Region() string {
	return RegionKey(h.AdmPath)
}

// RegionKey joins admin names into a colon-separated region key.
func RegionKey(admPath []string) string {
	return strings.Join(admPath, ":")
}

// RegionParts splits a region key back into its admin names.
func RegionParts(region string) []string {
	return strings.Split(strings.TrimSpace(region), ":")
}

// Seed is a user-supplied village center used to initialize and label
// a cluster.
type Seed struct {
	Name string  `json:"name"`
	Lon  float64 `json:"lon"`
	Lat  float64 `json:"lat"`
}

// VillageCluster is one village: a cluster of households with its
// centroid and, once built, its boundary polygon.
type VillageCluster struct {
	Region       string   `json:"region"`
	ID           int      `json:"cluster"`
	Name         string   `json:"name"`
	Lon          float64  `json:"lon"`
	Lat          float64  `json:"lat"`
	Count        int      `json:"counts"`
	Small        bool     `json:"small"`
	HouseholdIDs []string `json:"household_ids"`
	// Boundary is a closed linear ring of [lon, lat] pairs
	// (first point repeated last). Attached by the shape builder.
	Boundary [][]float64 `json:"boundary,omitempty"`
}

// ClusterStats summarizes household counts across a region's clusters.
type ClusterStats struct {
	Villages int     `json:"villages"`
	Mean     float64 `json:"mean"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	P25      float64 `json:"p25"`
	Median   float64 `json:"median"`
	P75      float64 `json:"p75"`
	SmallPct float64 `json:"small_pct"`
}

// Facility is a health facility site, recommended or baseline.
type Facility struct {
	ID       string       `json:"facility_id"`
	Lon      float64      `json:"lon"`
	Lat      float64      `json:"lat"`
	AdmPath  []string     `json:"adm_path"`
	Kind     FacilityKind `json:"kind"`
	Region   string       `json:"region"`
	Village  string       `json:"village,omitempty"`
	PlusCode string       `json:"plus,omitempty"`
}

// DistanceRecord is one household's distance to its nearest facility
// of a given kind.
type DistanceRecord struct {
	HouseholdID string       `json:"hh_id"`
	FacilityID  string       `json:"facility_id"`
	Distance    float64      `json:"distance"`
	Kind        FacilityKind `json:"kind"`
}

// CoverageCurve is the empirical CDF of household-to-facility
// distances for one region (or the merged run).
type CoverageCurve struct {
	Region    string    `json:"region"`
	Distances []float64 `json:"distances"`
	Fractions []float64 `json:"fractions"`
}

// RegionResult aggregates everything computed for one region. It is
// the unit of parallel work and of caching, and is never mutated once
// produced.
type RegionResult struct {
	Region        string           `json:"region"`
	Households    int              `json:"households"`
	Skipped       int              `json:"skipped"`
	Clusters      []VillageCluster `json:"clusters"`
	Stats         ClusterStats     `json:"stats"`
	Facilities    []Facility       `json:"facilities"`
	Optimal       []DistanceRecord `json:"optimal"`
	Baseline      []DistanceRecord `json:"baseline,omitempty"`
	Curve         *CoverageCurve   `json:"curve,omitempty"`
	BaselineCurve *CoverageCurve   `json:"baseline_curve,omitempty"`
}

// Empty reports whether the region produced no usable data.
func (r *RegionResult) Empty() bool {
	return r == nil || r.Households == 0
}
