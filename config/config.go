package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nomis52/adlift/logging"
)

const (
	// Default server settings
	defaultListenAddr = ":8080"

	// Default provider settings
	defaultProviderTimeout = 30 * time.Second
	defaultAPIVersion      = "v21.0"

	// Default store settings
	defaultStoreDriver = "disk"
	defaultStoreDir    = "/var/lib/adlift/sessions"

	// Default monitoring settings
	defaultMetricsMode   = "scrape"
	defaultMetricsPrefix = "adlift"
	defaultJobName       = "adlift"

	// Default reconcile settings
	defaultReconcileSchedule = "*/15 * * * *"
	defaultLeaseTTL          = 10 * time.Minute
)

// Config represents the complete application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Provider   ProviderConfig   `yaml:"provider"`
	Store      StoreConfig      `yaml:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Logging    logging.Config   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen"`

	// APIKeyHash is a bcrypt hash of the bearer key required on mutating
	// endpoints. Empty disables authentication.
	APIKeyHash string `yaml:"api_key_hash"`

	// TLSCert and TLSKey enable TLS when both are set.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// ProviderConfig holds settings for the remote advertising platform.
type ProviderConfig struct {
	// BaseURL is the root of the provider's HTTP API, without a trailing
	// version segment (e.g. "https://graph.ads.example.com").
	BaseURL string `yaml:"base_url"`

	// APIVersion is appended to BaseURL (e.g. "v21.0").
	APIVersion string `yaml:"api_version"`

	// Timeout bounds each individual create call.
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects and configures the session store driver.
type StoreConfig struct {
	// Driver is one of: memory, disk, postgres.
	Driver string `yaml:"driver"`

	// Dir is the state directory for the disk driver.
	Dir string `yaml:"dir"`

	// DSN is the connection string for the postgres driver.
	DSN string `yaml:"dsn"`
}

// MonitoringConfig holds metrics settings.
type MonitoringConfig struct {
	// Mode is "scrape" (expose /metrics) or "push" (remote write).
	Mode string `yaml:"mode"`

	// RemoteWriteURL is the base URL of the remote write endpoint,
	// required in push mode.
	RemoteWriteURL string `yaml:"remote_write_url"`

	MetricsPrefix string `yaml:"metrics_prefix"`
	JobName       string `yaml:"jobname"`
}

// ReconcileConfig controls the background checkpoint sweep.
type ReconcileConfig struct {
	// Schedule is a standard 5-field cron spec. Empty disables the sweep.
	Schedule string `yaml:"schedule"`

	// LeaseTTL is the age after which a launch lease is considered
	// abandoned and reclaimable.
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base_url is required")
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}
	switch c.Store.Driver {
	case "memory":
	case "disk":
		if c.Store.Dir == "" {
			return fmt.Errorf("store dir is required for the disk driver")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Monitoring.Mode {
	case "scrape":
	case "push":
		if c.Monitoring.RemoteWriteURL == "" {
			return fmt.Errorf("remote_write_url is required in push mode")
		}
	default:
		return fmt.Errorf("unknown monitoring mode %q", c.Monitoring.Mode)
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	if c.Reconcile.LeaseTTL <= 0 {
		return fmt.Errorf("reconcile lease_ttl must be positive")
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListenAddr
	}
	if c.Provider.APIVersion == "" {
		c.Provider.APIVersion = defaultAPIVersion
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = defaultProviderTimeout
	}
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	if c.Store.Driver == "disk" && c.Store.Dir == "" {
		c.Store.Dir = defaultStoreDir
	}
	if c.Monitoring.Mode == "" {
		c.Monitoring.Mode = defaultMetricsMode
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Reconcile.Schedule == "" {
		c.Reconcile.Schedule = defaultReconcileSchedule
	}
	if c.Reconcile.LeaseTTL == 0 {
		c.Reconcile.LeaseTTL = defaultLeaseTTL
	}
}

// Redacted returns a copy of the configuration with secrets blanked,
// suitable for the /config endpoint.
func (c *Config) Redacted() Config {
	out := *c
	if out.Server.APIKeyHash != "" {
		out.Server.APIKeyHash = "<redacted>"
	}
	if out.Store.DSN != "" {
		out.Store.DSN = "<redacted>"
	}
	return out
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
