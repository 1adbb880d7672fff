package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Defaults for the reference deployment.
const (
	DefaultListen                 = ":3000"
	DefaultCacheTTL               = 5 * time.Minute
	DefaultFetchTimeout           = 15 * time.Second
	DefaultRetryBackoff           = time.Second
	DefaultHorizonDays            = 365
	DefaultMaxOccurrencesPerEvent = 5000
	DefaultLogLevel               = "info"
)

// FetchConfig controls how the upstream calendar is downloaded.
type FetchConfig struct {
	// Timeout bounds one HTTP exchange with the calendar provider.
	Timeout Duration `yaml:"timeout" json:"timeout"`
	// Retries is the number of extra attempts after a failed fetch.
	// Zero (the default) means a single attempt.
	Retries int `yaml:"retries" json:"retries"`
	// RetryBackoff is the first pause between attempts; it doubles.
	RetryBackoff Duration `yaml:"retry_backoff" json:"retry_backoff"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// CalendarURL is the iCalendar export of the rental (Airbnb, Booking,
	// VRBO...). It is fixed here and never taken from a request.
	CalendarURL string `yaml:"calendar_url" json:"calendar_url"`

	// PropertyName is shown on the status page and in the exported feed.
	PropertyName string `yaml:"property_name" json:"property_name"`

	// CacheTTL is how long booked days are served before refetching.
	CacheTTL Duration `yaml:"cache_ttl" json:"cache_ttl"`

	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// RefreshCron is an optional cron schedule (e.g. "*/15 * * * *") that
	// forces a sync in the background. Empty disables it.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays bounds expansion of recurring bookings.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// MaxOccurrencesPerEvent caps a single recurring booking.
	MaxOccurrencesPerEvent int `yaml:"max_occurrences_per_event" json:"max_occurrences_per_event"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   DefaultListen,
		CacheTTL: Duration(DefaultCacheTTL),
		Fetch: FetchConfig{
			Timeout:      Duration(DefaultFetchTimeout),
			RetryBackoff: Duration(DefaultRetryBackoff),
		},
		HorizonDays:            DefaultHorizonDays,
		MaxOccurrencesPerEvent: DefaultMaxOccurrencesPerEvent,
		CORSOrigins:            []string{"*"},
		LogLevel:               DefaultLogLevel,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	c.CalendarURL = strings.TrimSpace(c.CalendarURL)
	if c.CacheTTL <= 0 {
		c.CacheTTL = Duration(DefaultCacheTTL)
	}
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = Duration(DefaultFetchTimeout)
	}
	if c.Fetch.Retries < 0 {
		c.Fetch.Retries = 0
	}
	if c.Fetch.RetryBackoff <= 0 {
		c.Fetch.RetryBackoff = Duration(DefaultRetryBackoff)
	}
	c.RefreshCron = strings.TrimSpace(c.RefreshCron)
	if c.HorizonDays <= 0 {
		c.HorizonDays = DefaultHorizonDays
	}
	if c.MaxOccurrencesPerEvent <= 0 {
		c.MaxOccurrencesPerEvent = DefaultMaxOccurrencesPerEvent
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// ApplyEnv overlays environment variables on top of the file values:
//
//	PORT          -> Listen (":" + PORT)
//	CALENDAR_URL  -> CalendarURL
//	LOG_LEVEL     -> LogLevel
//
// getenv is os.Getenv in production.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		c.Listen = ":" + port
	}
	if u := strings.TrimSpace(getenv("CALENDAR_URL")); u != "" {
		c.CalendarURL = u
	}
	if lvl := strings.TrimSpace(getenv("LOG_LEVEL")); lvl != "" {
		c.LogLevel = lvl
	}
}

// Validate reports configuration the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.CalendarURL == "" {
		errs = append(errs, errors.New("calendar_url is required"))
	} else if u, err := url.Parse(c.CalendarURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("calendar_url must be an absolute http(s) URL"))
	}

	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			errs = append(errs, fmt.Errorf("refresh: %w", err))
		}
	}

	if _, port, err := splitListen(c.Listen); err != nil {
		errs = append(errs, err)
	} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("listen: invalid port %q", port))
	}

	return errors.Join(errs...)
}

func splitListen(addr string) (host, port string, err error) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return "", "", fmt.Errorf("listen: missing port in %q", addr)
	}
	return addr[:i], addr[i+1:], nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If path is empty, defaults are returned and no file is touched.
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
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
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.Normalize()

	return cfg, nil
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

	tmp, err := os.CreateTemp(dir, ".rentcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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
