// Package config loads the imgpress YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AnyUserName/imgpress/internal/encoder"
	"github.com/AnyUserName/imgpress/internal/hasher"
	"github.com/AnyUserName/imgpress/internal/metadata"
	"github.com/AnyUserName/imgpress/internal/naming"
	"github.com/AnyUserName/imgpress/internal/profile"
)

// Environment variables consulted when flags are not given.
const (
	EnvConfigPath  = "IMGPRESS_CONFIG"
	EnvEnvironment = "IMGPRESS_ENV"
)

// Known deployment environments.
const (
	Development = "development"
	Staging     = "staging"
	Production  = "production"
)

var environments = []string{Development, Staging, Production}

// Software is written into every resolved record unless a layer sets it.
const Software = "imgpress"

// Config is the application configuration.
type Config struct {
	Environment string         `yaml:"environment"`
	Encoder     EncoderConfig  `yaml:"encoder"`
	Naming      NamingConfig   `yaml:"naming"`
	Storage     StorageConfig  `yaml:"storage"`
	Metadata    MetadataConfig `yaml:"metadata"`
	Workers     int            `yaml:"workers"`
	Records     RecordsConfig  `yaml:"records"`
	Server      ServerConfig   `yaml:"server"`
	Watch       WatchConfig    `yaml:"watch"`
}

type EncoderConfig struct {
	Profile       string `yaml:"profile"`
	Quality       int    `yaml:"quality"`
	Effort        int    `yaml:"effort"`
	MaxInputBytes int64  `yaml:"max_input_bytes"`
	MaxPixels     int64  `yaml:"max_pixels"`
	Backend       string `yaml:"backend"` // auto, cwebp, libwebp
	CWebP         string `yaml:"cwebp"`   // path to the cwebp binary
}

type NamingConfig struct {
	SuffixLength int `yaml:"suffix_length"`
	MaxAttempts  int `yaml:"max_attempts"`
}

type StorageConfig struct {
	Root           string        `yaml:"root"`
	PublicURL      string        `yaml:"public_url"`
	Prefix         string        `yaml:"prefix"`
	RejectExisting bool          `yaml:"reject_existing"`
	UploadAttempts int           `yaml:"upload_attempts"`
	UploadBackoff  time.Duration `yaml:"upload_backoff"`
	// Digest names the integrity digest recorded per artifact: blake3 or
	// sha256.
	Digest         string        `yaml:"digest"`
}

type MetadataConfig struct {
	// Defaults holds one metadata layer per environment name.
	Defaults  map[string]metadata.Fields `yaml:"defaults"`
	Templates map[string]metadata.Fields `yaml:"templates"`
	CacheTTL  time.Duration              `yaml:"cache_ttl"`
}

type RecordsConfig struct {
	// Path of the JSONL record file. Empty disables it.
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type WatchConfig struct {
	Inbox    string        `yaml:"inbox"`
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: Development,
		Encoder: EncoderConfig{
			Profile:       profile.Default,
			MaxInputBytes: encoder.DefaultMaxBytes,
			MaxPixels:     encoder.DefaultMaxPixels,
			Backend:       encoder.BackendAuto,
		},
		Naming: NamingConfig{
			SuffixLength: naming.DefaultSuffixLength,
			MaxAttempts:  naming.DefaultMaxAttempts,
		},
		Storage: StorageConfig{
			Root:           "dist",
			Prefix:         "uploads",
			UploadAttempts: 3,
			UploadBackoff:  200 * time.Millisecond,
			Digest:         hasher.AlgoBLAKE3,
		},
		Metadata: MetadataConfig{
			CacheTTL: metadata.DefaultCacheTTL,
		},
		Workers: runtime.NumCPU(),
		Server: ServerConfig{
			Addr:        ":8080",
			ReadTimeout: 30 * time.Second,
		},
		Watch: WatchConfig{
			Inbox:    "inbox",
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Path returns flagPath, or IMGPRESS_CONFIG when the flag is empty.
func Path(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return os.Getenv(EnvConfigPath)
}

// Load reads the configuration file at path over the defaults. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(slices.Contains(environments, c.Environment),
		"environment must be one of %v, got %q", environments, c.Environment)
	check(c.Encoder.Quality >= 0 && c.Encoder.Quality <= 100,
		"encoder.quality must be 0-100, got %d", c.Encoder.Quality)
	check(c.Encoder.Effort >= 0 && c.Encoder.Effort <= 6,
		"encoder.effort must be 0-6, got %d", c.Encoder.Effort)
	check(c.Encoder.MaxInputBytes > 0, "encoder.max_input_bytes must be positive")
	check(c.Encoder.MaxPixels > 0, "encoder.max_pixels must be positive")
	check(slices.Contains([]string{encoder.BackendAuto, encoder.BackendCWebP, encoder.BackendLibWebP}, c.Encoder.Backend),
		"encoder.backend must be auto, cwebp or libwebp, got %q", c.Encoder.Backend)
	check(c.Naming.SuffixLength >= 1 && c.Naming.SuffixLength <= 16,
		"naming.suffix_length must be 1-16, got %d", c.Naming.SuffixLength)
	check(c.Naming.MaxAttempts >= 1, "naming.max_attempts must be at least 1")
	check(c.Storage.Root != "", "storage.root is required")
	check(c.Storage.UploadAttempts >= 1, "storage.upload_attempts must be at least 1")
	check(c.Storage.UploadBackoff >= 0, "storage.upload_backoff must not be negative")
	check(slices.Contains(hasher.Algorithms, c.Storage.Digest),
		"storage.digest must be one of %v, got %q", hasher.Algorithms, c.Storage.Digest)
	check(c.Metadata.CacheTTL >= 0, "metadata.cache_ttl must not be negative")
	check(c.Workers >= 1, "workers must be at least 1")
	for name := range c.Metadata.Defaults {
		check(slices.Contains(environments, name), "metadata.defaults: unknown environment %q", name)
	}
	return errors.Join(errs...)
}

// ResolveEnvironment picks the environment name: flag, then IMGPRESS_ENV,
// then the config file.
func (c *Config) ResolveEnvironment(flag string) (string, error) {
	name := flag
	if name == "" {
		name = os.Getenv(EnvEnvironment)
	}
	if name == "" {
		name = c.Environment
	}
	if !slices.Contains(environments, name) {
		return "", fmt.Errorf("unknown environment %q", name)
	}
	return name, nil
}

// MetadataEnvironment builds the explicit environment value the resolver
// serves. It is derived once at start-up.
func (c *Config) MetadataEnvironment(name string) metadata.Environment {
	defaults := c.Metadata.Defaults[name].Clone()
	if defaults.Software == "" {
		defaults.Software = Software
	}
	return metadata.Environment{Name: name, Defaults: defaults}
}

// Limits returns the encoder input ceilings.
func (c *Config) Limits() encoder.Limits {
	return encoder.Limits{MaxBytes: c.Encoder.MaxInputBytes, MaxPixels: c.Encoder.MaxPixels}
}

// NamingOptions returns the naming service configuration.
func (c *Config) NamingOptions() naming.Config {
	return naming.Config{
		Prefix:       c.Storage.Prefix,
		SuffixLength: c.Naming.SuffixLength,
		MaxAttempts:  c.Naming.MaxAttempts,
	}
}
