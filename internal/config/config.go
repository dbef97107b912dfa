package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "lattice.json"

	// DefaultAddr is the default HTTP listen address.
	DefaultAddr = ":3000"

	// DefaultMetricsNamespace prefixes every Prometheus metric.
	DefaultMetricsNamespace = "lattice"

	// DefaultSnapshotName is the default snapshot name.
	DefaultSnapshotName = "state"
)

// Config represents the complete lattice.json configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `json:"addr,omitempty"`

	// MetricsNamespace prefixes every Prometheus metric.
	MetricsNamespace string `json:"metricsNamespace,omitempty"`

	// AllowedOrigins lists origins admitted to the live endpoint in
	// addition to same-origin requests. Empty means same-origin only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	// ClientWrites lets live clients write values back into the store.
	ClientWrites bool `json:"clientWrites,omitempty"`

	// Snapshot contains state persistence configuration.
	Snapshot SnapshotConfig `json:"snapshot,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// SnapshotConfig contains state persistence configuration.
type SnapshotConfig struct {
	// Dir is the snapshot directory. Empty disables persistence.
	Dir string `json:"dir,omitempty"`

	// Name is the snapshot name within the directory.
	Name string `json:"name,omitempty"`

	// EveryNChanges saves after this many accepted writes. Zero disables
	// the change-count trigger.
	EveryNChanges int `json:"everyNChanges,omitempty"`

	// MinIntervalSeconds saves on the first write after this many seconds
	// since the last save. Zero disables the interval trigger.
	MinIntervalSeconds int `json:"minIntervalSeconds,omitempty"`
}

// New returns a Config with default values.
func New() *Config {
	return &Config{
		Addr:             DefaultAddr,
		MetricsNamespace: DefaultMetricsNamespace,
		Snapshot: SnapshotConfig{
			Name: DefaultSnapshotName,
		},
	}
}

// Load reads configuration from the specified directory. It looks for
// lattice.json in the directory; a missing file yields the defaults.
// Environment variables are applied on top either way.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	cfg := New()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus environment
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.configPath = path
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return fmt.Errorf("config: no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = DefaultMetricsNamespace
	}
	if c.Snapshot.Name == "" {
		c.Snapshot.Name = DefaultSnapshotName
	}
}

// applyEnv overrides fields from LATTICE_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("LATTICE_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("LATTICE_METRICS_NAMESPACE"); v != "" {
		c.MetricsNamespace = v
	}
	if v := os.Getenv("LATTICE_ALLOWED_ORIGINS"); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		c.AllowedOrigins = origins
	}
	if v := os.Getenv("LATTICE_CLIENT_WRITES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LATTICE_CLIENT_WRITES: %w", err)
		}
		c.ClientWrites = b
	}
	if v := os.Getenv("LATTICE_SNAPSHOT_DIR"); v != "" {
		c.Snapshot.Dir = v
	}
	if v := os.Getenv("LATTICE_SNAPSHOT_NAME"); v != "" {
		c.Snapshot.Name = v
	}
	if v := os.Getenv("LATTICE_SNAPSHOT_EVERY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LATTICE_SNAPSHOT_EVERY: %w", err)
		}
		c.Snapshot.EveryNChanges = n
	}
	if v := os.Getenv("LATTICE_SNAPSHOT_MIN_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LATTICE_SNAPSHOT_MIN_INTERVAL: %w", err)
		}
		c.Snapshot.MinIntervalSeconds = n
	}
	return nil
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr must not be empty")
	}
	if c.Snapshot.EveryNChanges < 0 {
		return fmt.Errorf("config: snapshot.everyNChanges must not be negative")
	}
	if c.Snapshot.MinIntervalSeconds < 0 {
		return fmt.Errorf("config: snapshot.minIntervalSeconds must not be negative")
	}
	if name := c.Snapshot.Name; strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("config: snapshot.name %q must not contain path separators", name)
	}
	return nil
}
