package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegionKeyRoundTrip(t *testing.T) {
	path := []string{"BFA", "Boucle du Mouhoun", "Balave"}
	key := RegionKey(path)
	assert.Equal(t, "BFA:Boucle du Mouhoun:Balave", key)
	assert.Equal(t, path, RegionParts(key))
}

func TestHouseholdRegion(t *testing.T) {
	h := Household{ID: "hh_1", AdmPath: []string{"BFA", "Nayala"}}
	assert.Equal(t, "BFA:Nayala", h.Region())
}

func TestRegionResultEmpty(t *testing.T) {
	var nilResult *RegionResult
	assert.True(t, nilResult.Empty())
	assert.True(t, (&RegionResult{Region: "a"}).Empty())
	assert.False(t, (&RegionResult{Region: "a", Households: 3}).Empty())
}
