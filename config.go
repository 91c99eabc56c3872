package pixelsift

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// ConfigFileName is the sidecar recording how a collection was indexed.
const ConfigFileName = "index.json"

// Config is the persisted run configuration of a collection. A reopened
// collection must use the same extraction profile it was indexed with, so
// the sidecar wins over constructor options.
type Config struct {
	ImportImages   bool   `json:"import_images"`
	Characteristic string `json:"characteristic"`
	FeatureSize    int    `json:"feature_size"`
}

// loadConfig reads the sidecar from dataDir. A missing file returns
// (nil, nil).
func loadConfig(dataDir string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, ConfigFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// save writes the sidecar to dataDir.
func (c *Config) save(dataDir string) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, ConfigFileName), data, 0644)
}
