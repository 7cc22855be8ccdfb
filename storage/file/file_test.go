package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadMissingFileIsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does", "not", "exist.json"))
	counters, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, counters)
}

func TestStore_SaveCreatesDirectoryAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "usage_counters.json")
	s := New(path)
	require.NoError(t, s.Save(map[string]int{"p1": 5}))

	_, err := os.Stat(path)
	require.NoError(t, err)

	counters, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 5, counters["p1"])
}

func TestStore_LoadMalformedFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage_counters.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	s := New(path)
	counters, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, counters)
}

func TestStore_SaveOverwritesPreviousState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage_counters.json")
	s := New(path)
	require.NoError(t, s.Save(map[string]int{"p1": 1}))
	require.NoError(t, s.Save(map[string]int{"p1": 2, "p2": 3}))

	counters, _ := s.Load()
	assert.Equal(t, 2, counters["p1"])
	assert.Equal(t, 3, counters["p2"])
}
