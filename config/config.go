package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL         = "https://api.pota.app"
	DefaultADIFHost        = "127.0.0.1"
	DefaultADIFPort        = 2237
	DefaultRequestTimeout  = 30 * time.Second
	DefaultActivatorTTL    = 6 * time.Hour
	DefaultParkTTL         = 24 * time.Hour
	DefaultAreaTTL         = 24 * time.Hour
	DefaultNegativeTTL     = 10 * time.Minute
	DefaultOperatorMaxAge  = 24 * time.Hour
	DefaultCatchUpDelay    = time.Millisecond
	DefaultLogRetention    = 7
	OperatorRefreshStale   = "stale"
	OperatorRefreshLegacy  = "legacy"
	defaultDataDir         = "data"
	defaultDBName          = "hunterlog.db"
	defaultADIFLogName     = "hunter.adi"
	defaultLogDirName      = "logs"
	defaultParkExportName  = "park_export.json"
	defaultUserAgentPrefix = "hunterlog"
)

// Config represents the complete hunterlog configuration.
type Config struct {
	Station   StationConfig   `yaml:"station"`
	POTA      POTAConfig      `yaml:"pota"`
	Data      DataConfig      `yaml:"data"`
	Freshness FreshnessConfig `yaml:"freshness"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Logging   LoggingConfig   `yaml:"logging"`

	LoadedFrom string `yaml:"-"`
}

// StationConfig is the operator's own station plus the ADIF UDP target.
type StationConfig struct {
	Callsign string `yaml:"callsign"`
	Grid     string `yaml:"grid"`
	ADIFHost string `yaml:"adif_host"`
	ADIFPort int    `yaml:"adif_port"`
}

// POTAConfig controls the remote client and its memoization windows.
type POTAConfig struct {
	BaseURL        string        `yaml:"base_url"`
	UserAgent      string        `yaml:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ActivatorTTL   time.Duration `yaml:"activator_ttl"`
	ParkTTL        time.Duration `yaml:"park_ttl"`
	AreaTTL        time.Duration `yaml:"area_ttl"`
	NegativeTTL    time.Duration `yaml:"negative_ttl"`
}

// DataConfig holds on-disk locations.
type DataConfig struct {
	Dir        string `yaml:"dir"`
	DBPath     string `yaml:"db_path"`
	ADIFLog    string `yaml:"adif_log"`
	ExportDir  string `yaml:"export_dir"`
	ParkExport string `yaml:"park_export"`
}

// FreshnessConfig selects how persisted activator stats age out.
// OperatorRefresh is "stale" (refresh records older than OperatorMaxAge) or
// "legacy" (refresh records younger than OperatorMaxAge, as the original
// desktop logger did).
type FreshnessConfig struct {
	OperatorRefresh string        `yaml:"operator_refresh"`
	OperatorMaxAge  time.Duration `yaml:"operator_max_age"`
}

// ReconcileConfig bounds the request rate of the catch-up pass.
type ReconcileConfig struct {
	CatchUpDelay time.Duration `yaml:"catch_up_delay"`
}

// LoggingConfig contains logging settings. Quiet lists log components
// ("pota", "freshness", ...) kept off the console; the file still gets them.
type LoggingConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Dir           string   `yaml:"dir"`
	RetentionDays int      `yaml:"retention_days"`
	Quiet         []string `yaml:"quiet"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.normalize()
	return cfg
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(filename string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		cfg.LoadedFrom = filename
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Station.Callsign = strings.ToUpper(strings.TrimSpace(c.Station.Callsign))
	c.Station.Grid = strings.TrimSpace(c.Station.Grid)
	if strings.TrimSpace(c.Station.ADIFHost) == "" {
		c.Station.ADIFHost = DefaultADIFHost
	}
	if c.Station.ADIFPort <= 0 {
		c.Station.ADIFPort = DefaultADIFPort
	}

	c.POTA.BaseURL = strings.TrimRight(strings.TrimSpace(c.POTA.BaseURL), "/")
	if c.POTA.BaseURL == "" {
		c.POTA.BaseURL = DefaultBaseURL
	}
	if c.POTA.RequestTimeout <= 0 {
		c.POTA.RequestTimeout = DefaultRequestTimeout
	}
	if c.POTA.ActivatorTTL <= 0 {
		c.POTA.ActivatorTTL = DefaultActivatorTTL
	}
	if c.POTA.ParkTTL <= 0 {
		c.POTA.ParkTTL = DefaultParkTTL
	}
	if c.POTA.AreaTTL <= 0 {
		c.POTA.AreaTTL = DefaultAreaTTL
	}
	if c.POTA.NegativeTTL <= 0 {
		c.POTA.NegativeTTL = DefaultNegativeTTL
	}

	if strings.TrimSpace(c.Data.Dir) == "" {
		c.Data.Dir = defaultDataDir
	}
	if strings.TrimSpace(c.Data.DBPath) == "" {
		c.Data.DBPath = filepath.Join(c.Data.Dir, defaultDBName)
	}
	if strings.TrimSpace(c.Data.ADIFLog) == "" {
		c.Data.ADIFLog = defaultADIFLogName
	}
	if strings.TrimSpace(c.Data.ExportDir) == "" {
		c.Data.ExportDir = "."
	}
	if strings.TrimSpace(c.Data.ParkExport) == "" {
		c.Data.ParkExport = defaultParkExportName
	}

	c.Freshness.OperatorRefresh = strings.ToLower(strings.TrimSpace(c.Freshness.OperatorRefresh))
	if c.Freshness.OperatorRefresh == "" {
		c.Freshness.OperatorRefresh = OperatorRefreshStale
	}
	if c.Freshness.OperatorMaxAge <= 0 {
		c.Freshness.OperatorMaxAge = DefaultOperatorMaxAge
	}

	if c.Reconcile.CatchUpDelay < 0 {
		c.Reconcile.CatchUpDelay = 0
	}
	if c.Reconcile.CatchUpDelay == 0 {
		c.Reconcile.CatchUpDelay = DefaultCatchUpDelay
	}

	if strings.TrimSpace(c.Logging.Dir) == "" {
		c.Logging.Dir = filepath.Join(c.Data.Dir, defaultLogDirName)
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = DefaultLogRetention
	}
}

func (c *Config) validate() error {
	switch c.Freshness.OperatorRefresh {
	case OperatorRefreshStale, OperatorRefreshLegacy:
	default:
		return fmt.Errorf("freshness.operator_refresh must be %q or %q, got %q",
			OperatorRefreshStale, OperatorRefreshLegacy, c.Freshness.OperatorRefresh)
	}
	return nil
}

// UserAgent returns the configured user agent or "hunterlog/<version>".
func (c *Config) UserAgent(version string) string {
	if ua := strings.TrimSpace(c.POTA.UserAgent); ua != "" {
		return ua
	}
	return defaultUserAgentPrefix + "/" + version
}

// Print displays the configuration
func (c *Config) Print() {
	src := c.LoadedFrom
	if src == "" {
		src = "(defaults)"
	}
	fmt.Printf("Config: %s\n", src)
	fmt.Printf("Station: %s grid=%s adif=%s:%d\n", c.Station.Callsign, c.Station.Grid, c.Station.ADIFHost, c.Station.ADIFPort)
	fmt.Printf("POTA: %s (timeout %s, activator ttl %s, park ttl %s)\n",
		c.POTA.BaseURL, c.POTA.RequestTimeout, c.POTA.ActivatorTTL, c.POTA.ParkTTL)
	fmt.Printf("Data: dir=%s db=%s adif=%s\n", c.Data.Dir, c.Data.DBPath, c.Data.ADIFLog)
	fmt.Printf("Freshness: operator_refresh=%s max_age=%s\n", c.Freshness.OperatorRefresh, c.Freshness.OperatorMaxAge)
	if c.Logging.Enabled {
		fmt.Printf("Logging: %s (retention %d days)\n", c.Logging.Dir, c.Logging.RetentionDays)
	}
}
