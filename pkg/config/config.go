package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl"

	"heapdb/pkg/storage/page"
)

// Config carries the settings a server or worker starts with. It is loaded
// from an HCL file; flags may override individual values afterwards.
type Config struct {
	// DataDir holds the heap files, the catalog schema, and the log.
	DataDir string `hcl:"data_dir"`

	// PoolPages is the buffer pool capacity in pages.
	PoolPages int `hcl:"pool_pages"`

	// Coordinator is the address the liveness timer pings.
	Coordinator string `hcl:"coordinator"`

	// Workers lists the addresses of every worker in the fleet.
	Workers []string `hcl:"workers"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:   "data",
		PoolPages: page.DefaultPages,
	}
}

// Load reads an HCL config file, filling unset values from Default.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := hcl.Decode(cfg, string(b)); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.PoolPages <= 0 {
		cfg.PoolPages = page.DefaultPages
	}
	return cfg, nil
}
