package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"miniSwap/internal/model"
)

// Mirror is the persisted form of the store.
type Mirror struct {
	Account  string               `json:"account,omitempty"`
	Snapshot model.PoolSnapshot   `json:"snapshot"`
	Assets   [2]model.AssetHandle `json:"assets"`
	SavedAt  string               `json:"saved_at"`
}

// CacheFile persists the last committed mirror to disk.
type CacheFile struct {
	path    string
	enabled bool
}

func NewCacheFile(path string) *CacheFile {
	return &CacheFile{path: path, enabled: path != ""}
}

// Load returns the cached mirror, or false when none has been written yet.
func (c *CacheFile) Load() (Mirror, bool, error) {
	if c == nil || !c.enabled {
		return Mirror{}, false, nil
	}

	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Mirror{}, false, nil
		}
		return Mirror{}, false, fmt.Errorf("stat snapshot cache: %w", err)
	}
	if stat.IsDir() {
		return Mirror{}, false, fmt.Errorf("snapshot cache path is a directory")
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return Mirror{}, false, fmt.Errorf("read snapshot cache: %w", err)
	}

	var m Mirror
	if err := json.Unmarshal(data, &m); err != nil {
		return Mirror{}, false, fmt.Errorf("parse snapshot cache: %w", err)
	}
	return m, true, nil
}

// Save writes m atomically through a temporary file.
func (c *CacheFile) Save(m Mirror) error {
	if c == nil || !c.enabled {
		return nil
	}

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot cache dir: %w", err)
		}
	}

	m.SavedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot cache: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot cache tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename snapshot cache: %w", err)
	}
	return nil
}
