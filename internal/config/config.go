// Package config loads deoptviewer settings from .deoptviewer.yaml or
// .deoptviewer.toml, merged over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kamilpajak/deoptviewer/internal/source"
)

// Config file names, in lookup order.
const (
	YAMLFileName = ".deoptviewer.yaml"
	TOMLFileName = ".deoptviewer.toml"
)

// Environment variables holding object store secrets.
const (
	EnvAccessKey = "DEOPT_S3_ACCESS_KEY"
	EnvSecretKey = "DEOPT_S3_SECRET_KEY"
)

// Config holds all deoptviewer configuration.
type Config struct {
	Redirect      source.RedirectRule `yaml:"redirect" toml:"redirect"`
	FullInclusion bool                `yaml:"full_inclusion" toml:"full_inclusion"`
	ZeroScore     string              `yaml:"zero_score" toml:"zero_score"`
	Concurrency   int                 `yaml:"concurrency" toml:"concurrency"`
	RunTimeout    time.Duration       `yaml:"run_timeout" toml:"run_timeout"`
	Remote        RemoteConfig        `yaml:"remote" toml:"remote"`
	ObjectStore   ObjectStoreConfig   `yaml:"object_store" toml:"object_store"`
}

// RemoteConfig controls fetching of http(s) sources.
type RemoteConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second" toml:"rate_per_second"`
}

// ObjectStoreConfig points s3:// sources at an S3-compatible endpoint.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	Region    string `yaml:"region" toml:"region"`
	AccessKey string `yaml:"access_key" toml:"access_key"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" toml:"use_ssl"`
}

// Enabled reports whether an endpoint is configured.
func (o ObjectStoreConfig) Enabled() bool {
	return o.Endpoint != ""
}

// ValidZeroScoreModes lists the accepted zero_score values.
var ValidZeroScoreModes = []string{"omit", "include"}

// ErrConfigNotFound is returned when no config file can be found
var ErrConfigNotFound = errors.New("config file not found")

// ErrInvalidConfig is returned when config validation fails
var ErrInvalidConfig = errors.New("invalid configuration")

// Load finds the nearest config file at or above workDir and loads it.
// If there is none, it returns the defaults.
func Load(workDir string) (*Config, error) {
	path, err := FindConfigFile(workDir)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads config from a specific path, choosing the decoder by
// extension. The result is merged with defaults and validated.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	loaded := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), loaded); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, loaded); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	merged := Merge(loaded, DefaultConfig())
	if err := Validate(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// FindConfigFile walks up from startDir and returns the first config file
// found. YAML wins over TOML in the same directory.
func FindConfigFile(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	currentDir := absDir
	for {
		for _, name := range []string{YAMLFileName, TOMLFileName} {
			p := filepath.Join(currentDir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p, nil
			}
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", ErrConfigNotFound
		}
		currentDir = parentDir
	}
}

// DefaultConfig returns configuration with the original tool's behavior:
// zero-score files omitted, sources resolved one at a time and no deadline.
func DefaultConfig() *Config {
	return &Config{
		Redirect: source.RedirectRule{
			Marker:      source.DefaultMarker,
			MarkerDir:   source.DefaultMarkerDir,
			FallbackDir: source.DefaultFallbackDir,
		},
		ZeroScore:   "omit",
		Concurrency: 1,
	}
}

// Merge merges loaded config with defaults. Values set in loaded take
// precedence. Returns a new Config.
func Merge(loaded, defaults *Config) *Config {
	result := *defaults

	r := loaded.Redirect
	if r.Base != "" {
		result.Redirect.Base = r.Base
	}
	if r.Marker != "" {
		result.Redirect.Marker = r.Marker
	}
	if r.MarkerDir != "" {
		result.Redirect.MarkerDir = r.MarkerDir
	}
	if r.StripPrefix != "" {
		result.Redirect.StripPrefix = r.StripPrefix
	}
	if r.FallbackDir != "" {
		result.Redirect.FallbackDir = r.FallbackDir
	}

	result.FullInclusion = loaded.FullInclusion || defaults.FullInclusion
	if loaded.ZeroScore != "" {
		result.ZeroScore = loaded.ZeroScore
	}
	if loaded.Concurrency != 0 {
		result.Concurrency = loaded.Concurrency
	}
	if loaded.Remote.RatePerSecond != 0 {
		result.Remote.RatePerSecond = loaded.Remote.RatePerSecond
	}
	if loaded.RunTimeout != 0 {
		result.RunTimeout = loaded.RunTimeout
	}

	o := loaded.ObjectStore
	if o.Endpoint != "" {
		result.ObjectStore.Endpoint = o.Endpoint
	}
	if o.Region != "" {
		result.ObjectStore.Region = o.Region
	}
	if o.AccessKey != "" {
		result.ObjectStore.AccessKey = o.AccessKey
	}
	if o.SecretKey != "" {
		result.ObjectStore.SecretKey = o.SecretKey
	}
	result.ObjectStore.UseSSL = o.UseSSL || defaults.ObjectStore.UseSSL

	return &result
}

// Validate checks that config values are valid.
func Validate(cfg *Config) error {
	if !slices.Contains(ValidZeroScoreModes, cfg.ZeroScore) {
		return fmt.Errorf("%w: zero_score must be one of %v, got %q",
			ErrInvalidConfig, ValidZeroScoreModes, cfg.ZeroScore)
	}

	if cfg.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be positive, got %d",
			ErrInvalidConfig, cfg.Concurrency)
	}

	if cfg.Remote.RatePerSecond < 0 {
		return fmt.Errorf("%w: rate_per_second must be non-negative, got %f",
			ErrInvalidConfig, cfg.Remote.RatePerSecond)
	}

	if cfg.RunTimeout < 0 {
		return fmt.Errorf("%w: run_timeout must be non-negative, got %s",
			ErrInvalidConfig, cfg.RunTimeout)
	}

	if cfg.Redirect.Marker == "" || cfg.Redirect.MarkerDir == "" || cfg.Redirect.FallbackDir == "" {
		return fmt.Errorf("%w: redirect marker, marker_dir and fallback_dir must not be empty", ErrInvalidConfig)
	}

	o := cfg.ObjectStore
	if !o.Enabled() && (o.AccessKey != "" || o.SecretKey != "") {
		return fmt.Errorf("%w: object_store credentials set without an endpoint", ErrInvalidConfig)
	}

	return nil
}

// LoadEnv loads a .env file from dir, if present, without overriding
// variables already set, then copies object store secrets from the
// environment into cfg.
func LoadEnv(cfg *Config, dir string) error {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("loading %s: %w", envPath, err)
		}
	}

	if v := os.Getenv(EnvAccessKey); v != "" {
		cfg.ObjectStore.AccessKey = v
	}
	if v := os.Getenv(EnvSecretKey); v != "" {
		cfg.ObjectStore.SecretKey = v
	}
	return nil
}

// SourceConfig builds the locator configuration. Redirected mode is enabled
// only when a redirect base is set.
func (c *Config) SourceConfig() (source.Config, error) {
	sc := source.Config{RatePerSecond: c.Remote.RatePerSecond}

	if c.Redirect.Base != "" {
		rule := c.Redirect
		sc.Redirect = &rule
	}

	if c.ObjectStore.Enabled() {
		o := c.ObjectStore
		store, err := source.NewMinioStore(o.Endpoint, o.AccessKey, o.SecretKey, o.Region, o.UseSSL)
		if err != nil {
			return source.Config{}, err
		}
		sc.Objects = store
	}

	return sc, nil
}
