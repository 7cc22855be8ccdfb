// Package file provides the default gateway.QuotaStore: a JSON file on
// local disk, written via a temp-then-rename so a crash mid-write cannot
// corrupt the previously persisted counters.
package file

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Store persists counters to Path. Reads tolerate a missing or malformed
// file by returning an empty map; they never fail startup.
type Store struct {
	Path string
}

// New returns a Store writing to path, creating its parent directory on
// first Save if needed.
func New(path string) *Store {
	return &Store{Path: path}
}

// Load reads the persisted counter map. A missing or malformed file yields
// an empty map and a nil error.
func (s *Store) Load() (map[string]int, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return map[string]int{}, nil
	}

	var counters map[string]int
	if err := json.Unmarshal(raw, &counters); err != nil {
		return map[string]int{}, nil
	}
	if counters == nil {
		counters = map[string]int{}
	}
	return counters, nil
}

// Save writes counters as JSON to Path, via write-to-temp + rename.
func (s *Store) Save(counters map[string]int) error {
	dir := filepath.Dir(s.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	data, err := json.Marshal(counters)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".usage_counters-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, s.Path)
}
