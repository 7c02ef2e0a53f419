package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries deployment settings. Values come from an optional YAML file
// named by CODEXCORE_CONFIG, with environment variables taking precedence so
// containerized overrides need no file edits.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// StorageConfig selects and parameterizes the node store driver.
type StorageConfig struct {
	Driver      string `yaml:"driver"`       // memory|sqlite|postgres (default sqlite)
	SQLitePath  string `yaml:"sqlite_path"`  // default ./codexcore.db
	PostgresDSN string `yaml:"postgres_dsn"` // required when driver=postgres
}

// ArchiveConfig selects the blob backend for snapshot documents.
type ArchiveConfig struct {
	Driver string `yaml:"driver"` // fs|s3|memory (default fs)
	FSRoot string `yaml:"fs_root"`
}

// SnapshotConfig names the archived document.
type SnapshotConfig struct {
	Key string `yaml:"key"` // default system_state.json
}

// LoadConfig resolves configuration from CODEXCORE_CONFIG (when set) and the
// CODEXCORE_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if path := os.Getenv("CODEXCORE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	overlayEnv(&cfg)
	return cfg, nil
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv("CODEXCORE_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("CODEXCORE_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("CODEXCORE_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CODEXCORE_BLOB_DRIVER"); v != "" {
		cfg.Archive.Driver = v
	}
	if v := os.Getenv("CODEXCORE_BLOB_FS_ROOT"); v != "" {
		cfg.Archive.FSRoot = v
	}
	if v := os.Getenv("CODEXCORE_SNAPSHOT_KEY"); v != "" {
		cfg.Snapshot.Key = v
	}
}
