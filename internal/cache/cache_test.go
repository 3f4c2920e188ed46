package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Region string   `json:"region"`
	Values []string `json:"values"`
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), true)
	require.NoError(t, err)
	return c
}

func TestFingerprintStable(t *testing.T) {
	a, err := Fingerprint("cluster", []string{"h1", "h2"}, map[string]int{"k": 20})
	require.NoError(t, err)
	b, err := Fingerprint("cluster", []string{"h1", "h2"}, map[string]int{"k": 20})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintSensitiveToStageInputsAndParams(t *testing.T) {
	base, _ := Fingerprint("cluster", []string{"h1"}, map[string]int{"k": 20})
	stage, _ := Fingerprint("place", []string{"h1"}, map[string]int{"k": 20})
	inputs, _ := Fingerprint("cluster", []string{"h2"}, map[string]int{"k": 20})
	params, _ := Fingerprint("cluster", []string{"h1"}, map[string]int{"k": 21})

	assert.NotEqual(t, base, stage)
	assert.NotEqual(t, base, inputs)
	assert.NotEqual(t, base, params)
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	key, err := Fingerprint("cluster", "inputs", "params")
	require.NoError(t, err)

	in := payload{Region: "BFA:Centre", Values: []string{"a", "b"}}
	require.NoError(t, c.Put(key, in))

	var out payload
	require.True(t, c.Get(key, &out))
	assert.Equal(t, in, out)
}

func TestGetMissesOnAbsentKey(t *testing.T) {
	c := newTestCache(t)
	var out payload
	assert.False(t, c.Get("0000000000000000000000000000000000000000000000000000000000000000", &out))
}

func TestGetEvictsCorruptEntry(t *testing.T) {
	c := newTestCache(t)
	key, _ := Fingerprint("cluster", "inputs", "params")
	require.NoError(t, c.Put(key, payload{Region: "X"}))

	path := c.path(key)
	require.NoError(t, os.WriteFile(path, []byte(`{"sha256":"bad","payload":{}}`), 0o644))

	var out payload
	assert.False(t, c.Get(key, &out))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "damaged entry should be removed")

	// A fresh Put heals the slot.
	require.NoError(t, c.Put(key, payload{Region: "Y"}))
	require.True(t, c.Get(key, &out))
	assert.Equal(t, "Y", out.Region)
}

func TestGetEvictsUnparsableEntry(t *testing.T) {
	c := newTestCache(t)
	key, _ := Fingerprint("cluster", "inputs", "params")
	require.NoError(t, c.Put(key, payload{}))
	require.NoError(t, os.WriteFile(c.path(key), []byte("not json"), 0o644))

	var out payload
	assert.False(t, c.Get(key, &out))
	_, err := os.Stat(c.path(key))
	assert.True(t, os.IsNotExist(err))
}

func TestEntriesShardedByKeyPrefix(t *testing.T) {
	c := newTestCache(t)
	key, _ := Fingerprint("cluster", "inputs", "params")
	require.NoError(t, c.Put(key, payload{}))
	assert.Equal(t, filepath.Join(c.dir, key[:2], key+".json"), c.path(key))
	_, err := os.Stat(c.path(key))
	require.NoError(t, err)
}

func TestDisabledCacheNeverHits(t *testing.T) {
	c, err := New("", false)
	require.NoError(t, err)
	key, _ := Fingerprint("cluster", "inputs", "params")
	require.NoError(t, c.Put(key, payload{Region: "X"}))
	var out payload
	assert.False(t, c.Get(key, &out))
}

func TestClear(t *testing.T) {
	c := newTestCache(t)
	key, _ := Fingerprint("cluster", "inputs", "params")
	require.NoError(t, c.Put(key, payload{}))
	require.NoError(t, c.Clear())
	var out payload
	assert.False(t, c.Get(key, &out))
	// The root survives for subsequent writes.
	require.NoError(t, c.Put(key, payload{}))
	assert.True(t, c.Get(key, &out))
}
