package signets

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	fetchpkg "github.com/hazyhaar/signets/signets/internal/fetch"
	"github.com/hazyhaar/signets/signets/internal/scheduler"
)

// Config configures the signets service.
type Config struct {
	Fetch     fetchpkg.Config  `yaml:"fetch"`
	Scheduler scheduler.Config `yaml:"scheduler"`

	// RebuildOnSearch builds a fresh index from the persisted parsed records
	// on every Search instead of querying the live index.
	RebuildOnSearch bool `yaml:"rebuild_on_search"`

	// ArchiveDir, when set, receives a markdown copy of every fetched page.
	ArchiveDir string `yaml:"archive_dir"`

	// FetchLogLimit caps FetchHistory results. Default: 50.
	FetchLogLimit int `yaml:"fetch_log_limit"`
}

func (c *Config) defaults() {
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "signets/1.0"
	}
	if c.Scheduler.Concurrency <= 0 {
		c.Scheduler.Concurrency = 5
	}
	if c.FetchLogLimit <= 0 {
		c.FetchLogLimit = 50
	}
}

// LoadConfigFile reads a YAML config file. Missing fields get defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.defaults()
	return cfg, nil
}
