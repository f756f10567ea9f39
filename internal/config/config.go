// Package config loads the harvester's runtime TOML configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/crawlforge/harvester/pkg/log"
)

// Config is the decoded contents of the runtime TOML config file. See
// SPEC_FULL.md §6 for the full key reference.
type Config struct {
	DBPath     string `toml:"db_path"`
	SavePath   string `toml:"save_path"`
	FilterPath string `toml:"filter_path"`

	FilterBytes           int `toml:"filter_bytes"`
	FilterExpectedEntries int `toml:"filter_expected_entries"`
	FilterCheckpointSecs  int `toml:"filter_checkpoint_secs"`

	ChunkSize     int `toml:"chunk_size"`
	Workers       int `toml:"workers"`
	WorkerCheckMs int `toml:"worker_check_ms"`
	SaverCheckSecs int `toml:"saver_check_secs"`

	LabelMap string `toml:"label_map"`

	// Optional ambient/domain-stack additions. All have safe zero values.
	MetricsAddr         string `toml:"metrics_addr"`
	MonitorIntervalSecs int    `toml:"monitor_interval_secs"`

	S3Bucket string `toml:"s3_bucket"`
	S3Prefix string `toml:"s3_prefix"`

	NATSURL     string `toml:"nats_url"`
	NATSSubject string `toml:"nats_subject"`
}

// defaults returns the baseline Config applied before the file is decoded
// over it, mirroring the teacher's package-level `Keys` pattern but as a
// plain constructor instead of a package-global var, since config.Config is
// now passed explicitly instead of read off an ambient singleton.
func defaults() Config {
	return Config{
		FilterCheckpointSecs: 60,
		WorkerCheckMs:        500,
		SaverCheckSecs:       5,
		MonitorIntervalSecs:  30,
		NATSSubject:          "harvester.chunks",
	}
}

// Load reads and validates the TOML config at path. Any failure here is
// fatal: a malformed or missing-but-required config means the process
// cannot safely start.
func Load(path string) (*Config, error) {
	cfg := defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	type requirement struct {
		name  string
		empty bool
	}
	reqs := []requirement{
		{"db_path", c.DBPath == ""},
		{"save_path", c.SavePath == ""},
		{"filter_path", c.FilterPath == ""},
		{"label_map", c.LabelMap == ""},
	}
	for _, r := range reqs {
		if r.empty {
			return fmt.Errorf("%s must not be empty", r.name)
		}
	}

	if c.FilterBytes <= 0 {
		return fmt.Errorf("filter_bytes must be positive")
	}
	if c.FilterExpectedEntries <= 0 {
		return fmt.Errorf("filter_expected_entries must be positive")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}

	return nil
}

// MustLoad is a convenience wrapper for callers (cmd/harvester/main.go) that
// treat a config error as fatal, per SPEC_FULL.md §7.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}
