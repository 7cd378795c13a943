// Package config loads the YAML settings shared by the ctylookup commands.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"ctydat/cty"
	"ctydat/download"
)

const (
	DefaultCTYFile    = "data/cty/cty.dat"
	DefaultCTYURL     = "https://www.country-files.com/cty/cty.dat"
	DefaultRefreshUTC = "00:45"
)

// Config represents the complete application configuration.
type Config struct {
	CTY     CTYConfig     `yaml:"cty"`
	Station StationConfig `yaml:"station"`
	Logging LoggingConfig `yaml:"logging"`

	// LoadedFrom is the file or directory the configuration was read from.
	LoadedFrom string `yaml:"-"`
}

// CTYConfig locates the prefix database and controls its refresh.
type CTYConfig struct {
	File                   string `yaml:"file"`
	Format                 string `yaml:"format"`
	URL                    string `yaml:"url"`
	RefreshUTC             string `yaml:"refresh_utc"`
	CacheSize              int    `yaml:"cache_size"`
	DownloadTimeoutSeconds int    `yaml:"download_timeout_seconds"`
	// StatusFile holds download metadata (ETag, hash). Empty means the data
	// file path plus download.MetadataSuffix.
	StatusFile             string `yaml:"status_file"`
}

// StationConfig describes the operator's own station for distance and
// heading output.
type StationConfig struct {
	Callsign string `yaml:"callsign"`
	Locator  string `yaml:"locator"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	JSON          bool   `yaml:"json"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a YAML file, or from every *.yaml/*.yml file
// in a directory merged in lexical order (later files override earlier ones).
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}
	files := []string{path}
	if info.IsDir() {
		files, err = yamlFiles(path)
		if err != nil {
			return nil, err
		}
	}

	var cfg Config
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", file)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", file)
		}
	}
	cfg.LoadedFrom = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list config directory %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, errors.Newf("no YAML files in config directory %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.CTY.File) == "" {
		c.CTY.File = DefaultCTYFile
	}
	if strings.TrimSpace(c.CTY.Format) == "" {
		c.CTY.Format = string(cty.FormatAuto)
	}
	if strings.TrimSpace(c.CTY.URL) == "" {
		c.CTY.URL = DefaultCTYURL
	}
	if strings.TrimSpace(c.CTY.RefreshUTC) == "" {
		c.CTY.RefreshUTC = DefaultRefreshUTC
	}
	if c.CTY.CacheSize == 0 {
		c.CTY.CacheSize = cty.DefaultCacheCapacity
	}
	if c.CTY.DownloadTimeoutSeconds <= 0 {
		c.CTY.DownloadTimeoutSeconds = 60
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = 7
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	if _, err := cty.ParseFormat(c.CTY.Format); err != nil {
		return errors.Wrap(err, "cty.format")
	}
	if _, _, err := c.CTY.RefreshHourMinute(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return errors.Wrap(err, "logging.level")
	}
	if loc := strings.TrimSpace(c.Station.Locator); loc != "" {
		if _, err := cty.LatLonFromGrid(loc); err != nil {
			return errors.Wrap(err, "station.locator")
		}
	}
	return nil
}

// RefreshHourMinute parses refresh_utc (HH:MM).
func (c CTYConfig) RefreshHourMinute() (int, int, error) {
	refresh := strings.TrimSpace(c.RefreshUTC)
	if refresh == "" {
		refresh = DefaultRefreshUTC
	}
	parsed, err := time.Parse("15:04", refresh)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "cty.refresh_utc %q", c.RefreshUTC)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

// DownloadTimeout returns the HTTP timeout for CTY downloads.
func (c CTYConfig) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSeconds) * time.Second
}

// StatusPath returns where download metadata for the CTY file is kept.
func (c CTYConfig) StatusPath() string {
	if p := strings.TrimSpace(c.StatusFile); p != "" {
		return p
	}
	return download.MetadataPath(strings.TrimSpace(c.File))
}

// Print writes a short summary of the configuration.
func (c *Config) Print(w io.Writer) {
	fmt.Fprintf(w, "CTY: %s (format=%s, cache=%d)\n", c.CTY.File, c.CTY.Format, c.CTY.CacheSize)
	fmt.Fprintf(w, "CTY refresh: %s at %s UTC (status %s)\n", c.CTY.URL, c.CTY.RefreshUTC, c.CTY.StatusPath())
	if c.Station.Locator != "" {
		fmt.Fprintf(w, "Station: %s (%s)\n", c.Station.Callsign, c.Station.Locator)
	}
	logDesc := "console"
	if c.Logging.Dir != "" {
		logDesc = fmt.Sprintf("console + %s (%d days)", c.Logging.Dir, c.Logging.RetentionDays)
	}
	fmt.Fprintf(w, "Logging: %s level=%s\n", logDesc, c.Logging.Level)
}
