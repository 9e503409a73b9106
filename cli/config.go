package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/toolbridge/tool"
)

const configFileName = "toolbridge.yaml"

// Config is the toolbridge.yaml file. Every field is optional; zero values
// fall back to the defaults below.
type Config struct {
	// ManifestDir is scanned for *.json and *.yaml manifests at startup.
	ManifestDir string `yaml:"manifest_dir"`
	// StorePath points at the SQLite definition store.
	StorePath string `yaml:"store_path"`
	// MaxConcurrent caps simultaneous tool processes.
	MaxConcurrent int `yaml:"max_concurrent"`
	// DuplicatePolicy is "reject" or "overwrite".
	DuplicatePolicy string `yaml:"duplicate_policy"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`
	Tracing  struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
		Insecure bool   `yaml:"insecure"`
	} `yaml:"tracing"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		ManifestDir:     "manifests",
		MaxConcurrent:   tool.DefaultMaxConcurrent,
		DuplicatePolicy: "reject",
		LogLevel:        "info",
	}
}

// LoadConfig reads a toolbridge.yaml. An empty path triggers discovery: the
// working directory first, then ~/.toolbridge/. A missing file is not an
// error; defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		discovered, found := discoverConfigPath()
		if !found {
			return cfg, nil
		}
		path = discovered
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = tool.DefaultMaxConcurrent
	}
	switch cfg.DuplicatePolicy {
	case "", "reject":
		cfg.DuplicatePolicy = "reject"
	case "overwrite":
	default:
		return cfg, fmt.Errorf("config %s: unknown duplicate_policy %q", path, cfg.DuplicatePolicy)
	}
	return cfg, nil
}

func discoverConfigPath() (string, bool) {
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	candidate := filepath.Join(home, ".toolbridge", configFileName)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, true
	}
	return "", false
}

func (c Config) duplicatePolicy() tool.DuplicatePolicy {
	if c.DuplicatePolicy == "overwrite" {
		return tool.DuplicateOverwrite
	}
	return tool.DuplicateReject
}
