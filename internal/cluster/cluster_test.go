package cluster

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteplan/internal/model"
)

func makeHouseholds(region string, coords [][2]float64) []model.Household {
	admPath := model.RegionParts(region)
	hh := make([]model.Household, len(coords))
	for i, c := range coords {
		hh[i] = model.Household{
			ID:      region + "_hh_" + string(rune('a'+i)),
			Lon:     c[0],
			Lat:     c[1],
			AdmPath: admPath,
		}
	}
	return hh
}

func TestClusterRegionMemberCountsSumToHouseholds(t *testing.T) {
	hh := makeHouseholds("BFA:Nayala", [][2]float64{
		{0, 0}, {0.1, 0}, {0, 0.1}, {3, 3}, {3.1, 3}, {3, 3.1}, {6, 0}, {6.1, 0.1},
	})

	rc, err := ClusterRegion(context.Background(), "BFA:Nayala", hh, nil, Params{
		ClusterCount: 3, SmallThreshold: 2, Restarts: 5, Seed: 11,
	})
	require.NoError(t, err)
	require.Len(t, rc.Clusters, 3)

	total := 0
	for _, c := range rc.Clusters {
		total += c.Count
		assert.Len(t, c.HouseholdIDs, c.Count)
	}
	assert.Equal(t, len(hh), total)
	assert.Len(t, rc.Households, len(hh))
}

func TestClusterRegionSeededRebindsToNearestSeed(t *testing.T) {
	// Two seeds far apart, households split evenly near each. Seed
	// order is deliberately reversed relative to household order so a
	// correct rebinding cannot be an accident of iteration order.
	hh := makeHouseholds("BFA:Sud", [][2]float64{
		{10, 10}, {10.1, 10}, {10, 10.1},
		{0, 0}, {0.1, 0}, {0, 0.1},
	})
	seeds := []model.Seed{
		{Name: "villageA", Lon: 0.05, Lat: 0.05},
		{Name: "villageB", Lon: 10.05, Lat: 10.05},
	}

	rc, err := ClusterRegion(context.Background(), "BFA:Sud", hh, seeds, Params{SmallThreshold: 1})
	require.NoError(t, err)
	require.Len(t, rc.Clusters, 2)

	// Cluster 0 is villageA near the origin, cluster 1 villageB.
	assert.Equal(t, "villageA", rc.Clusters[0].Name)
	assert.InDelta(t, 0.033, rc.Clusters[0].Lon, 0.05)
	assert.Equal(t, "villageB", rc.Clusters[1].Name)
	assert.InDelta(t, 10.033, rc.Clusters[1].Lon, 0.05)

	// Each household carries the id of the seed nearest its group.
	for _, h := range rc.Households {
		if h.Lon > 5 {
			assert.Equal(t, 1, h.Cluster)
		} else {
			assert.Equal(t, 0, h.Cluster)
		}
	}
}

func TestClusterRegionClampsKToHouseholdCount(t *testing.T) {
	hh := makeHouseholds("BFA:Petit", [][2]float64{{0, 0}, {1, 1}})

	rc, err := ClusterRegion(context.Background(), "BFA:Petit", hh, nil, Params{
		ClusterCount: 5, SmallThreshold: 1, Restarts: 2,
	})
	require.NoError(t, err)
	assert.Len(t, rc.Clusters, 2)
}

func TestClusterRegionSkipsMalformedCoordinates(t *testing.T) {
	hh := makeHouseholds("BFA:Mixte", [][2]float64{{0, 0}, {0.1, 0.1}})
	hh = append(hh,
		model.Household{ID: "bad_nan", Lon: math.NaN(), Lat: 1},
		model.Household{ID: "bad_inf", Lon: 1, Lat: math.Inf(1)},
	)

	rc, err := ClusterRegion(context.Background(), "BFA:Mixte", hh, nil, Params{
		ClusterCount: 1, SmallThreshold: 1, Restarts: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rc.Skipped)
	assert.Len(t, rc.Households, 2)
}

func TestClusterRegionEmptyIsNotAnError(t *testing.T) {
	rc, err := ClusterRegion(context.Background(), "BFA:Vide", nil, nil, Params{ClusterCount: 3})
	require.NoError(t, err)
	assert.Empty(t, rc.Clusters)
	assert.Empty(t, rc.Households)
}

func TestClusterRegionIdenticalCoordinates(t *testing.T) {
	coords := make([][2]float64, 10)
	for i := range coords {
		coords[i] = [2]float64{-3.5, 12.25}
	}
	hh := makeHouseholds("BFA:Uniforme", coords)

	rc, err := ClusterRegion(context.Background(), "BFA:Uniforme", hh, nil, Params{
		ClusterCount: 1, SmallThreshold: 5, Restarts: 2,
	})
	require.NoError(t, err)
	require.Len(t, rc.Clusters, 1)
	assert.InDelta(t, -3.5, rc.Clusters[0].Lon, 1e-12)
	assert.InDelta(t, 12.25, rc.Clusters[0].Lat, 1e-12)
	assert.Equal(t, 10, rc.Clusters[0].Count)
	assert.False(t, rc.Clusters[0].Small)
}

func TestMatchSeedsIsABijection(t *testing.T) {
	centers := []Point{{0, 0}, {0.1, 0.1}, {5, 5}}
	seeds := []Point{{0.05, 0.05}, {0.12, 0.12}, {5, 5}}

	m := matchSeeds(centers, seeds)
	seen := map[int]bool{}
	for _, s := range m {
		assert.False(t, seen[s], "seed assigned twice")
		seen[s] = true
	}
	assert.Len(t, seen, 3)
	// The exact center-seed pair wins its seed outright.
	assert.Equal(t, 2, m[2])
}

func TestMatchSeedsTieBreaksByLowerSeedIndex(t *testing.T) {
	// One centroid exactly between two seeds: the lower seed index wins.
	centers := []Point{{1, 0}}
	seeds := []Point{{0, 0}, {2, 0}}
	m := matchSeeds(centers, seeds)
	assert.Equal(t, 0, m[0])
}

func TestDescribe(t *testing.T) {
	clusters := []model.VillageCluster{
		{Count: 10, Small: true},
		{Count: 20},
		{Count: 30},
		{Count: 40},
	}
	s := Describe(clusters)
	assert.Equal(t, 4, s.Villages)
	assert.InDelta(t, 25, s.Mean, 1e-9)
	assert.InDelta(t, 10, s.Min, 1e-9)
	assert.InDelta(t, 40, s.Max, 1e-9)
	assert.InDelta(t, 25, s.Median, 1e-9)
	assert.InDelta(t, 17.5, s.P25, 1e-9)
	assert.InDelta(t, 32.5, s.P75, 1e-9)
	assert.InDelta(t, 25.0, s.SmallPct, 1e-9)
}

func TestDescribeEmpty(t *testing.T) {
	assert.Zero(t, Describe(nil))
}
