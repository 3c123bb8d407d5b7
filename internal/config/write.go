package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Template returns a starting configuration for the given locations.
// Credentials are left out; they are expected in the environment.
func Template(src, dst string) *Config {
	return &Config{
		Source:        src,
		Destination:   dst,
		OlderThan:     "30d",
		Buffer:        "100MiB",
		Compression:   CompressionFastest,
		Algorithm:     AlgorithmXZ,
		Concurrency:   1,
		MaxParts:      MaxPartsLimit,
		Preflight:     true,
		Driver:        DriverS3,
		SummaryFormat: SummaryText,
		Store: StoreConfig{
			Region:    DefaultRegion,
			PathStyle: true,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

func Write(cfg *Config, path string) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
