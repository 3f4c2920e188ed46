package placement

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteplan/internal/model"
)

func TestPlaceRegionTwoGroups(t *testing.T) {
	hh := []model.Household{
		{ID: "a", Lon: 0, Lat: 0, Cluster: 0},
		{ID: "b", Lon: 0.1, Lat: 0, Cluster: 0},
		{ID: "c", Lon: 10, Lat: 10, Cluster: 1},
		{ID: "d", Lon: 10.1, Lat: 10, Cluster: 1},
	}
	clusters := []model.VillageCluster{
		{ID: 0, Name: "ouaga"},
		{ID: 1, Name: "bobo"},
	}

	fac, err := PlaceRegion(context.Background(), "BFA:Centre", hh, clusters, Params{
		FacilityCount: 2, Restarts: 5, Seed: 42,
	})
	require.NoError(t, err)
	require.Len(t, fac, 2)

	names := map[string]bool{}
	for i, f := range fac {
		assert.Equal(t, model.FacilityOptimal, f.Kind)
		assert.Equal(t, "BFA:Centre", f.Region)
		assert.Equal(t, []string{"BFA", "Centre"}, f.AdmPath)
		assert.NotEmpty(t, f.PlusCode)
		assert.Equal(t, fmt.Sprintf("BFA:Centre_%d", i), f.ID)
		names[f.Village] = true
	}
	assert.True(t, names["ouaga"])
	assert.True(t, names["bobo"])
}

func TestPlaceRegionClampsToHouseholdCount(t *testing.T) {
	hh := []model.Household{
		{ID: "a", Lon: 1, Lat: 1},
		{ID: "b", Lon: 2, Lat: 2},
	}

	fac, err := PlaceRegion(context.Background(), "BFA:Nord", hh, nil, Params{
		FacilityCount: 3, Restarts: 2, Seed: 7,
	})
	require.NoError(t, err)
	assert.Len(t, fac, 2)
}

func TestPlaceRegionEmpty(t *testing.T) {
	fac, err := PlaceRegion(context.Background(), "BFA:Vide", nil, nil, Params{FacilityCount: 3})
	require.NoError(t, err)
	assert.Nil(t, fac)
}

func TestPlaceRegionRejectsZeroCount(t *testing.T) {
	hh := []model.Household{{ID: "a"}}
	_, err := PlaceRegion(context.Background(), "BFA:X", hh, nil, Params{FacilityCount: 0})
	require.Error(t, err)
}

func TestRegionSeedStableAndDistinct(t *testing.T) {
	assert.Equal(t, regionSeed(42, "BFA:A"), regionSeed(42, "BFA:A"))
	assert.NotEqual(t, regionSeed(42, "BFA:A"), regionSeed(42, "BFA:B"))
}

func TestDominantClusterTieBreaksLow(t *testing.T) {
	hh := []model.Household{
		{Cluster: 3}, {Cluster: 1},
	}
	assert.Equal(t, 1, dominantCluster([]int{0, 0}, hh, 0))
}
