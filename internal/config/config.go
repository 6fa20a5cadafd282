// Package config provides configuration loading and structs for the Valkiria document core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hectronix2005/Valkiria-ECM-sub002/internal/models"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Blob      BlobConfig      `yaml:"blob"`
	Render    RenderConfig    `yaml:"render"`
	Templates TemplatesConfig `yaml:"templates"`
	Stamp     StampConfig     `yaml:"stamp"`
	Variables VariablesConfig `yaml:"variables"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Storage and blob backends.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
	BackendDisk      = "disk"
	BackendGCS       = "gcs"
)

// StorageConfig selects where templates and document records live.
type StorageConfig struct {
	Backend             string `yaml:"backend"`
	DatabasePath        string `yaml:"database_path"`
	FirestoreProject    string `yaml:"firestore_project"`
	FirestoreCollection string `yaml:"firestore_collection"`
}

// BlobConfig selects where document bytes live.
type BlobConfig struct {
	Backend   string `yaml:"backend"`
	Dir       string `yaml:"dir"`
	GCSBucket string `yaml:"gcs_bucket"`
	GCSPrefix string `yaml:"gcs_prefix"`
}

// RenderConfig holds conversion strategy settings.
type RenderConfig struct {
	LocalPaths     []string      `yaml:"local_paths"`
	DisableLocal   bool          `yaml:"disable_local"`
	RemoteURL      string        `yaml:"remote_url"`
	Timeout        time.Duration `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// TemplatesConfig holds template directory watch settings.
type TemplatesConfig struct {
	Directories  []string `yaml:"directories"`
	Extensions   []string `yaml:"extensions"`
	Recursive    *bool    `yaml:"recursive"`
	AutoActivate bool     `yaml:"auto_activate"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *TemplatesConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// StampConfig controls the timestamp label drawn next to each signature.
type StampConfig struct {
	DateLayout  string  `yaml:"date_layout"`
	LabelPoints int     `yaml:"label_points"`
	LabelPrefix string  `yaml:"label_prefix"`
	Location    string  `yaml:"location"`
	Opacity     float64 `yaml:"opacity"`
}

// VariablesConfig controls how non-string values are written into documents.
type VariablesConfig struct {
	DateLayout string `yaml:"date_layout"`
	TrueLabel  string `yaml:"true_label"`
	FalseLabel string `yaml:"false_label"`
}

// ValueFormat returns the placeholder value format for these settings.
func (v VariablesConfig) ValueFormat() models.ValueFormat {
	return models.ValueFormat{DateLayout: v.DateLayout, TrueLabel: v.TrueLabel, FalseLabel: v.FalseLabel}
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Blob.Dir = expandPath(cfg.Blob.Dir, configDir)
	for i := range cfg.Templates.Directories {
		cfg.Templates.Directories[i] = expandPath(cfg.Templates.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend names and the settings each backend requires.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite:
	case BackendFirestore:
		if c.Storage.FirestoreProject == "" {
			return fmt.Errorf("storage.firestore_project is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Blob.Backend {
	case BackendDisk:
	case BackendGCS:
		if c.Blob.GCSBucket == "" {
			return fmt.Errorf("blob.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown blob backend %q", c.Blob.Backend)
	}
	if c.Render.Timeout < 0 {
		return fmt.Errorf("render.timeout must not be negative")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
