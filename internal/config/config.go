package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultConfigPath   = "~/.config/platesolver/config.json"
	defaultSolveTimeout = 90 * time.Second
	defaultStampSize    = 10
)

// Config holds user-editable settings for the solver service.
type Config struct {
	Project      string    `json:"project"`
	Bucket       string    `json:"bucket"`
	Subscription string    `json:"subscription"`
	Scratch      Scratch   `json:"scratch"`
	Solver       Solver    `json:"solver"`
	Stamps       Stamps    `json:"stamps"`
	Databases    Databases `json:"databases"`
	Logging      Logging   `json:"logging"`
	Server       Server    `json:"server"`
}

// Scratch configures per-job local working directories.
type Scratch struct {
	Root string `json:"root"`
}

// Solver configures the external plate-solving toolchain.
type Solver struct {
	Timeout    Duration `json:"timeout"`
	Downsample int      `json:"downsample"`
	ExtraArgs  []string `json:"extra_args"`
}

// Stamps configures stamp extraction.
type Stamps struct {
	Size int `json:"size"`
}

// Databases locates the catalog and metadata SQLite files. Both are
// opened fresh for every job and closed when the job ends.
type Databases struct {
	CatalogPath  string `json:"catalog_path"`
	MetadataPath string `json:"metadata_path"`
}

// Logging controls logging verbosity and output format.
type Logging struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
}

// Server configures the HTTP status surface.
type Server struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Duration is a time.Duration that marshals as a string ("90s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Load reads configuration from disk, falling back to sensible
// defaults, then applies environment overrides. PROJECT_ID,
// BUCKET_NAME and SUB_TOPIC always win over the file so the service
// can be configured entirely from the environment.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("PLATESOLVER_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if err == nil {
		defer f.Close()
		dec := json.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PROJECT_ID"); v != "" {
		cfg.Project = v
	}
	if v := os.Getenv("BUCKET_NAME"); v != "" {
		cfg.Bucket = v
	}
	if v := os.Getenv("SUB_TOPIC"); v != "" {
		cfg.Subscription = v
	}
}

func defaultConfig() *Config {
	return &Config{
		Project:      "panoptes-survey",
		Bucket:       "panoptes-survey",
		Subscription: "gce-plate-solver",
		Scratch: Scratch{
			Root: os.TempDir(),
		},
		Solver: Solver{
			Timeout: Duration(defaultSolveTimeout),
		},
		Stamps: Stamps{
			Size: defaultStampSize,
		},
		Databases: Databases{
			CatalogPath:  filepath.Join(os.TempDir(), "catalog.db"),
			MetadataPath: filepath.Join(os.TempDir(), "metadata.db"),
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Server: Server{
			Enabled: false,
			Addr:    ":8080",
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
