package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone "today" and schedule times are read in
	// (e.g. "America/Chicago"). Empty means the host's local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RepoRoot is the directory of the content repository.
	RepoRoot string `yaml:"repo_root" json:"repo_root"`

	// RefreshCron is a standard 5-field cron schedule (e.g. "*/15 * * * *")
	// for reloading the repository.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Strict fails a load on any bad row. When false, bad rows are skipped
	// and reported as warnings. A pointer so an absent key keeps the default.
	Strict *bool `yaml:"strict,omitempty" json:"strict,omitempty"`

	// CheckImages requires every referenced image to exist.
	CheckImages bool `yaml:"check_images" json:"check_images"`

	// HorizonDays is the number of days exported in the calendar feed.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// KeepScheduleDays is how many days past date-specific schedules are
	// kept by prune.
	KeepScheduleDays int `yaml:"keep_schedule_days" json:"keep_schedule_days"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultRepoRoot    = "."
	defaultRefreshCron = "*/15 * * * *"
	defaultHorizonDays = 7
	defaultKeepDays    = 30
	defaultLogLevel    = "info"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	strict := true
	return &Config{
		Listen:           defaultListen,
		RepoRoot:         defaultRepoRoot,
		RefreshCron:      defaultRefreshCron,
		Strict:           &strict,
		HorizonDays:      defaultHorizonDays,
		KeepScheduleDays: defaultKeepDays,
		LogLevel:         defaultLogLevel,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.RepoRoot == "" {
		c.RepoRoot = defaultRepoRoot
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Strict == nil {
		strict := true
		c.Strict = &strict
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.KeepScheduleDays < 0 {
		c.KeepScheduleDays = 0
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// IsStrict reports the effective strict setting.
func (c *Config) IsStrict() bool {
	return c.Strict == nil || *c.Strict
}

// Validate checks values Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
		}
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "") != (c.BasicAuth.Password == "") {
		errs = append(errs, errors.New("basic_auth needs both username and password"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Environment variables read by ApplyEnv.
const (
	EnvRepoRoot     = "PANTALLITA_REPO_ROOT"
	EnvListen       = "PANTALLITA_LISTEN"
	EnvTimezone     = "PANTALLITA_TIMEZONE"
	EnvLogLevel     = "PANTALLITA_LOG_LEVEL"
	EnvStrict       = "PANTALLITA_STRICT"
	EnvAuthUser     = "PANTALLITA_BASIC_AUTH_USER"
	EnvAuthPassword = "PANTALLITA_BASIC_AUTH_PASSWORD"
)

// LoadDotEnv loads variables from a .env file at path into the process
// environment without replacing variables that are already set. A missing
// file is not an error; the result reports whether one was read.
func LoadDotEnv(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("config: %s: %w", path, err)
	}
	return true, nil
}

// ApplyEnv overrides file values with the PANTALLITA_* environment
// variables that are set.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvRepoRoot); ok && v != "" {
		c.RepoRoot = v
	}
	if v, ok := os.LookupEnv(EnvListen); ok && v != "" {
		c.Listen = v
	}
	if v, ok := os.LookupEnv(EnvTimezone); ok {
		c.Timezone = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvStrict); ok && v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvStrict, v, err)
		}
		c.Strict = &strict
	}
	user, hasUser := os.LookupEnv(EnvAuthUser)
	pass, hasPass := os.LookupEnv(EnvAuthPassword)
	if hasUser || hasPass {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
	return c.Validate()
}

// Location returns the configured timezone, or time.Local when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".pantallita-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
