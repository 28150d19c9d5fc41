// Package config loads the application configuration from layered JSON files
// with environment variable overrides. The embedded ACL rule document is
// checked eagerly at load time so a broken rule configuration refuses to
// start serving.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/torocatala/dino/acl"
	"github.com/torocatala/dino/errors"
)

// Storage mode constants
const (
	StorageModeMemory = "memory" // in-memory only, development and tests
	StorageModeKV     = "kv"     // NATS JetStream KV, production
)

// Config represents the complete application configuration
type Config struct {
	Environment string          `json:"environment,omitempty"`
	Server      ServerConfig    `json:"server"`
	NATS        NATSConfig      `json:"nats"`
	Storage     StorageConfig   `json:"storage"`
	ACL         json.RawMessage `json:"acl"` // declarative rule document
}

// ServerConfig defines the websocket and metrics listeners
type ServerConfig struct {
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	MetricsPort int    `json:"metrics_port,omitempty"`
	MetricsPath string `json:"metrics_path,omitempty"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs            []string      `json:"urls,omitempty"`
	MaxReconnects   int           `json:"max_reconnects,omitempty"`
	ReconnectWait   time.Duration `json:"reconnect_wait,omitempty"`
	Username        string        `json:"username,omitempty"`
	Password        string        `json:"password,omitempty"`
	Token           string        `json:"token,omitempty"`
	InternalSubject string        `json:"internal_subject,omitempty"`
	ExternalSubject string        `json:"external_subject,omitempty"`
}

// StorageConfig selects the data-access facade implementation
type StorageConfig struct {
	Mode string `json:"mode,omitempty"`
}

// Validate checks the configuration, including an eager check of the ACL rule
// document against the attribute registry. A single typo in the rule document
// must fail startup, never silently open or close a room at runtime.
func (c *Config) Validate(registry *acl.Registry) (*acl.Config, error) {
	if c.Server.Port <= 0 {
		return nil, errors.WrapFatal(
			fmt.Errorf("server.port must be positive, got %d", c.Server.Port),
			"Config", "Validate", "check server settings")
	}

	switch c.Storage.Mode {
	case StorageModeMemory, StorageModeKV:
	default:
		return nil, errors.WrapFatal(
			fmt.Errorf("storage.mode must be %q or %q, got %q",
				StorageModeMemory, StorageModeKV, c.Storage.Mode),
			"Config", "Validate", "check storage settings")
	}

	if c.Storage.Mode == StorageModeKV && len(c.NATS.URLs) == 0 {
		return nil, errors.WrapFatal(
			fmt.Errorf("nats.urls is required for storage mode %q", StorageModeKV),
			"Config", "Validate", "check NATS settings")
	}

	if len(c.ACL) == 0 {
		return nil, errors.WrapFatal(
			fmt.Errorf("acl rule document is missing"),
			"Config", "Validate", "check ACL document")
	}
	aclConfig, err := acl.LoadConfig(c.ACL, registry)
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "Validate", "check ACL document")
	}

	return aclConfig, nil
}

// String returns a JSON representation of the config with credentials masked.
func (c *Config) String() string {
	clone := *c
	if clone.NATS.Password != "" {
		clone.NATS.Password = "***"
	}
	if clone.NATS.Token != "" {
		clone.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(&clone, "", "  ")
	return string(data)
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers    []string
	envPrefix string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		layers:    []string{},
		envPrefix: "DINO",
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier
// ones key by key.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	cfg := l.getDefaults()

	for _, path := range l.layers {
		rawConfig, err := l.loadRawJSON(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Loader", "Load", "load layer "+path)
		}
		cfg = l.mergeFromMap(cfg, rawConfig)
	}

	l.applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaults returns default configuration
func (l *Loader) getDefaults() *Config {
	return &Config{
		Environment: "dev",
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5210,
			MetricsPort: 9090,
			MetricsPath: "/metrics",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Storage: StorageConfig{
			Mode: StorageModeMemory,
		},
	}
}

// loadRawJSON loads configuration from a JSON file as a map
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return nil, err
	}

	l.parseDurations(rawConfig)

	return rawConfig, nil
}

// mergeFromMap merges configuration from a raw map, only overriding fields
// present in the map
func (l *Loader) mergeFromMap(base *Config, override map[string]any) *Config {
	if override == nil {
		return base
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}

	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	mergedMap := l.deepMergeMaps(baseMap, override)

	mergedJSON, err := json.Marshal(mergedMap)
	if err != nil {
		return base
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return base
	}

	return &merged
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func (l *Loader) deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any)

	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}

		if baseMap, baseOk := base[k].(map[string]any); baseOk {
			if overrideMap, overrideOk := v.(map[string]any); overrideOk {
				result[k] = l.deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}

		result[k] = v
	}

	return result
}

// parseDurations converts duration strings to nanoseconds for json
// unmarshaling
func (l *Loader) parseDurations(data map[string]any) {
	if nats, ok := data["nats"].(map[string]any); ok {
		if wait, ok := nats["reconnect_wait"].(string); ok {
			if d, err := time.ParseDuration(wait); err == nil {
				nats["reconnect_wait"] = d.Nanoseconds()
			}
		}
	}
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_ENVIRONMENT"); val != "" {
		cfg.Environment = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_URLS"); val != "" {
		cfg.NATS.URLs = strings.Split(val, ",")
	}
	if val := os.Getenv(l.envPrefix + "_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}
	if val := os.Getenv(l.envPrefix + "_STORAGE_MODE"); val != "" {
		cfg.Storage.Mode = val
	}
}
