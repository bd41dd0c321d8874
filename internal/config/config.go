package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// CalendarFiles lists local ICS files to read (exported calendars).
	CalendarFiles []string `yaml:"calendar_files" json:"calendar_files"`

	// ICS is the list of subscribed remote ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// Timezone is the IANA timezone used as the canonical accounting zone
	// (e.g. "Europe/Amsterdam"). Occurrence times and the AM/PM location
	// split are evaluated in this zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LookbackDays / HorizonDays bound recurrence expansion around now.
	// Accounting is mostly historical, so the lookback dominates.
	LookbackDays int `yaml:"lookback_days" json:"lookback_days"`
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`

	// Refresh is a cron-style schedule string (e.g. "*/30 * * * *") for
	// watch mode. Empty means run once and exit.
	Refresh string `yaml:"refresh" json:"refresh"`

	// Listen is the HTTP listen address for the balance API. Empty
	// disables the server.
	Listen string `yaml:"listen" json:"listen"`

	// Output is the balance CSV path. TripsOutput, if set, additionally
	// writes the normalized trip log.
	Output      string `yaml:"output" json:"output"`
	TripsOutput string `yaml:"trips_output" json:"trips_output"`

	// Net switches the balance CSV to netted reciprocal pairs.
	Net bool `yaml:"net" json:"net"`

	// ValidAMLocations / ValidPMLocations are the known departure
	// locations for morning and afternoon trips. Matching is
	// case-insensitive substring search against the event LOCATION.
	ValidAMLocations []string `yaml:"valid_am_locations" json:"valid_am_locations"`
	ValidPMLocations []string `yaml:"valid_pm_locations" json:"valid_pm_locations"`

	// UnknownAMLocation / UnknownPMLocation are used when no valid
	// location matches.
	UnknownAMLocation string `yaml:"unknown_am_location" json:"unknown_am_location"`
	UnknownPMLocation string `yaml:"unknown_pm_location" json:"unknown_pm_location"`

	// DropSelfPassenger removes a passenger token equal to the driver.
	// DedupePassengers collapses repeated passengers within one event.
	// Both default to false: the raw tally counts every occurrence.
	DropSelfPassenger bool `yaml:"drop_self_passenger" json:"drop_self_passenger"`
	DedupePassengers  bool `yaml:"dedupe_passengers" json:"dedupe_passengers"`

	// CacheDir is the base directory for the ICS fetch cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		CalendarFiles:     []string{},
		ICS:               []ICSConfig{},
		Timezone:          "Europe/Amsterdam",
		LookbackDays:      365,
		HorizonDays:       7,
		Refresh:           "",
		Listen:            "",
		Output:            "balance.csv",
		ValidAMLocations:  []string{},
		ValidPMLocations:  []string{},
		UnknownAMLocation: "UNKNOWN-AM",
		UnknownPMLocation: "UNKNOWN-PM",
		CacheDir:          "./var/ics-cache",
		BasicAuth:         nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = "Europe/Amsterdam"
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = 365
	}
	if c.HorizonDays < 0 {
		c.HorizonDays = 7
	}
	if c.Output == "" {
		c.Output = "balance.csv"
	}
	if c.UnknownAMLocation == "" {
		c.UnknownAMLocation = "UNKNOWN-AM"
	}
	if c.UnknownPMLocation == "" {
		c.UnknownPMLocation = "UNKNOWN-PM"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/ics-cache"
	}
	if c.CalendarFiles == nil {
		c.CalendarFiles = []string{}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.ValidAMLocations == nil {
		c.ValidAMLocations = []string{}
	}
	if c.ValidPMLocations == nil {
		c.ValidPMLocations = []string{}
	}
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
//   - normalize defaults
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
		return nil, err
	}
	cfg.Normalize()

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

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".carpooltally-config-*.tmp")
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

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
