package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ORBIT configuration.
//
// The top-level keys mirror the on-disk orbit.yaml. Unknown keys are ignored
// on load; type mismatches fail fast with a decode error. Missing keys fall
// back to DefaultConfig values.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// AIMode selects the intent proposer backend: ollama, dummy, auto.
	AIMode string `yaml:"ai_mode"`

	// AIModel is the Ollama model name. If the model is not present on the
	// server, the client autodetects a replacement (see intent.OllamaClient).
	AIModel string `yaml:"ai_model"`

	// OllamaURL is the base URL of the Ollama server.
	OllamaURL string `yaml:"ollama_url"`

	// PollingInterval is the orchestrator tick cadence in seconds.
	PollingInterval int `yaml:"polling_interval"`

	// WatchPath is the directory watched for file activity.
	WatchPath string `yaml:"watch_path"`

	// LogLevel: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Decision DecisionConfig `yaml:"decision"`
	IPC      IPCConfig      `yaml:"ipc"`
	Store    StoreConfig    `yaml:"store"`
}

// DecisionConfig configures the decision gate thresholds.
// Durations are strings in time.ParseDuration format.
type DecisionConfig struct {
	GlobalCooldown     string  `yaml:"global_cooldown"`
	PerKindCooldown    string  `yaml:"per_kind_cooldown"`
	DismissCooldown    string  `yaml:"dismiss_cooldown"`
	MaxPopupsPerHour   int     `yaml:"max_popups_per_hour"`
	SameKindWindow     string  `yaml:"same_kind_window"`
	ConfidenceMinimum  float64 `yaml:"confidence_minimum"`
	MinMessageInterval string  `yaml:"min_message_interval"`
}

// IPCConfig configures the websocket UI bridge.
type IPCConfig struct {
	Addr         string `yaml:"addr"`
	PingInterval string `yaml:"ping_interval"`
	PingTimeout  string `yaml:"ping_timeout"`
}

// StoreConfig configures the event-log sink.
type StoreConfig struct {
	DatabasePath  string `yaml:"database_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:            "ORBIT",
		Version:         "0.2.0",
		AIMode:          "auto",
		AIModel:         "llama3.2",
		OllamaURL:       "http://localhost:11434",
		PollingInterval: 10,
		WatchPath:       ".",
		LogLevel:        "info",
		Decision: DecisionConfig{
			GlobalCooldown:     "60s",
			PerKindCooldown:    "180s",
			DismissCooldown:    "600s",
			MaxPopupsPerHour:   5,
			SameKindWindow:     "900s",
			ConfidenceMinimum:  0.7,
			MinMessageInterval: "900s",
		},
		IPC: IPCConfig{
			Addr:         "localhost:8012",
			PingInterval: "20s",
			PingTimeout:  "10s",
		},
		Store: StoreConfig{
			DatabasePath:  "data/orbit_context.db",
			RetentionDays: 7,
		},
	}
}

// TestingConfig returns the v0.2 validation thresholds. The rate limits are
// loosened so integration runs are not stuck waiting out production cooldowns.
func TestingConfig() *Config {
	cfg := DefaultConfig()
	cfg.AIMode = "dummy"
	cfg.PollingInterval = 1
	cfg.Decision.GlobalCooldown = "5s"
	cfg.Decision.PerKindCooldown = "10s"
	cfg.Decision.MaxPopupsPerHour = 100
	cfg.Decision.SameKindWindow = "15s"
	cfg.Decision.MinMessageInterval = "30s"
	return cfg
}

// Load reads configuration from path, applies environment overrides, and
// validates. A missing file is not an error: defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the environment win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ORBIT_AI_MODE"); v != "" {
		c.AIMode = v
	}
	if v := os.Getenv("ORBIT_AI_MODEL"); v != "" {
		c.AIModel = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.OllamaURL = v
	}
	if v := os.Getenv("ORBIT_WATCH_PATH"); v != "" {
		c.WatchPath = v
	}
	if v := os.Getenv("ORBIT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ORBIT_IPC_ADDR"); v != "" {
		c.IPC.Addr = v
	}
	if v := os.Getenv("ORBIT_POLLING_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.PollingInterval = n
		}
	}
}

// Validate checks enumerations and duration syntax. It fails fast so a typo
// in orbit.yaml surfaces at startup, not mid-run.
func (c *Config) Validate() error {
	switch c.AIMode {
	case "ollama", "dummy", "auto":
	default:
		return fmt.Errorf("invalid ai_mode %q (want ollama, dummy, or auto)", c.AIMode)
	}
	if c.PollingInterval <= 0 {
		return fmt.Errorf("polling_interval must be positive, got %d", c.PollingInterval)
	}
	if c.Decision.MaxPopupsPerHour <= 0 {
		return fmt.Errorf("max_popups_per_hour must be positive, got %d", c.Decision.MaxPopupsPerHour)
	}
	if c.Decision.ConfidenceMinimum < 0 || c.Decision.ConfidenceMinimum > 1 {
		return fmt.Errorf("confidence_minimum must be in [0,1], got %.2f", c.Decision.ConfidenceMinimum)
	}
	for name, val := range map[string]string{
		"decision.global_cooldown":      c.Decision.GlobalCooldown,
		"decision.per_kind_cooldown":    c.Decision.PerKindCooldown,
		"decision.dismiss_cooldown":     c.Decision.DismissCooldown,
		"decision.same_kind_window":     c.Decision.SameKindWindow,
		"decision.min_message_interval": c.Decision.MinMessageInterval,
		"ipc.ping_interval":             c.IPC.PingInterval,
		"ipc.ping_timeout":              c.IPC.PingTimeout,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}
	return nil
}

// Tick returns the orchestrator cadence.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.PollingInterval) * time.Second
}

// Duration accessors. Validate has already checked the syntax, so parse
// errors here fall back to the production default.

func (d DecisionConfig) GlobalCooldownDuration() time.Duration {
	return parseDuration(d.GlobalCooldown, 60*time.Second)
}

func (d DecisionConfig) PerKindCooldownDuration() time.Duration {
	return parseDuration(d.PerKindCooldown, 180*time.Second)
}

func (d DecisionConfig) DismissCooldownDuration() time.Duration {
	return parseDuration(d.DismissCooldown, 600*time.Second)
}

func (d DecisionConfig) SameKindWindowDuration() time.Duration {
	return parseDuration(d.SameKindWindow, 900*time.Second)
}

func (d DecisionConfig) MinMessageIntervalDuration() time.Duration {
	return parseDuration(d.MinMessageInterval, 900*time.Second)
}

func (i IPCConfig) PingIntervalDuration() time.Duration {
	return parseDuration(i.PingInterval, 20*time.Second)
}

func (i IPCConfig) PingTimeoutDuration() time.Duration {
	return parseDuration(i.PingTimeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
