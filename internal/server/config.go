package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avrdash/avrdash/internal/avr"
	"github.com/avrdash/avrdash/internal/statelog"
	"gopkg.in/yaml.v3"
)

// Config holds all dashboard configuration.
type Config struct {
	mu sync.RWMutex

	// Receiver connection
	Receiver ReceiverConfig `yaml:"receiver" json:"receiver"`

	// Per-zone command vocabulary
	Zones avr.ZoneMap `yaml:"zones" json:"zones"`

	// State-change CSV logging
	Logging statelog.Config `yaml:"logging" json:"logging"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

type ReceiverConfig struct {
	Type       string `yaml:"type" json:"type"`              // "serial" or "demo"
	PortPath   string `yaml:"port_path" json:"portPath"`     // e.g. /dev/ttyUSB0
	BaudRate   int    `yaml:"baud_rate" json:"baudRate"`     // RS232 rate, 9600 for Onkyo
	TimeoutSec int    `yaml:"timeout_sec" json:"timeoutSec"` // serial read timeout
	RefreshSec int    `yaml:"refresh_sec" json:"refreshSec"` // periodic state refresh
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// ReadTimeout returns the serial read timeout as a duration.
func (r ReceiverConfig) ReadTimeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Receiver: ReceiverConfig{
			Type:       "demo",
			PortPath:   "/dev/ttyUSB0",
			BaudRate:   9600,
			TimeoutSec: 10,
			RefreshSec: 30,
		},
		Zones: avr.DefaultZones(),
		Logging: statelog.Config{
			Enabled: false,
			Path:    "/var/log/avrdash",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Zones.Validate(); err != nil {
		log.Printf("[config] invalid zones (%v), using default zones", err)
		cfg.Zones = avr.DefaultZones()
	}
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"'`)
		// Real env takes precedence
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: AVR_TYPE, AVR_PORT, AVR_BAUD, AVR_TIMEOUT_SEC, AVR_REFRESH_SEC,
// LISTEN_ADDR, LOG_ENABLED, LOG_PATH
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AVR_TYPE"); v != "" {
		c.Receiver.Type = v
	}
	if v := os.Getenv("AVR_PORT"); v != "" {
		c.Receiver.PortPath = v
	}
	if v := os.Getenv("AVR_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Receiver.BaudRate = n
		}
	}
	if v := os.Getenv("AVR_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Receiver.TimeoutSec = n
		}
	}
	if v := os.Getenv("AVR_REFRESH_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Receiver.RefreshSec = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = "/etc/avrdash/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved (e.g. port path, zone tables).
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
