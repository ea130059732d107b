package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DEFAULT_BLOCK_SIZE         = 1024
	DEFAULT_BUFFER_FRAMES      = 64
	DEFAULT_MAX_TIDS_PER_ENTRY = 20

	POLICY_LRU       = "lru"
	POLICY_FIRST_FIT = "first_fit"
)

func Default() Config {
	return Config{
		DataDir:           ".",
		BlockSize:         DEFAULT_BLOCK_SIZE,
		BufferFrames:      DEFAULT_BUFFER_FRAMES,
		ReplacementPolicy: POLICY_LRU,
		MaxTidsPerEntry:   DEFAULT_MAX_TIDS_PER_ENTRY,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults; keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must be set")
	}
	if c.BlockSize < 64 {
		return fmt.Errorf("config: block_size %d too small", c.BlockSize)
	}
	if c.BufferFrames < 1 {
		return fmt.Errorf("config: buffer_frames must be positive")
	}
	if c.MaxTidsPerEntry < 1 {
		return fmt.Errorf("config: max_tids_per_entry must be positive")
	}

	switch strings.ToLower(c.ReplacementPolicy) {
	case POLICY_LRU, POLICY_FIRST_FIT:
	default:
		return fmt.Errorf("config: unknown replacement_policy %q", c.ReplacementPolicy)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

type Config struct {
	DataDir           string    `yaml:"data_dir"`
	BlockSize         int       `yaml:"block_size"`
	BufferFrames      int       `yaml:"buffer_frames"`
	ReplacementPolicy string    `yaml:"replacement_policy"`
	MaxTidsPerEntry   int       `yaml:"max_tids_per_entry"`
	Log               LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}
