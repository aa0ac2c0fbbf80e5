package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/Davincible/modelrelay/internal/registry"
)

const (
	DefaultPort           = 6970
	DefaultConfigFilename = "config.json"
	DefaultHost           = "127.0.0.1"

	DefaultAttemptTimeoutSeconds = 300
	DefaultMaxFallbackHops       = 3
)

// Upstream is one provider account the relay can send traffic to.
type Upstream struct {
	Name    string `json:"name"`
	Family  string `json:"family"`
	APIBase string `json:"api_base_url"`
	APIKey  string `json:"api_key"`
}

// Model declares a routable model, its capabilities, and its fallback target.
type Model struct {
	ID               string `json:"id"`
	Upstream         string `json:"upstream"`
	SupportsThinking bool   `json:"supports_thinking,omitempty"`
	SupportsToolUse  bool   `json:"supports_tool_use,omitempty"`
	MaxTokens        int    `json:"max_tokens,omitempty"`
	Fallback         string `json:"fallback,omitempty"`
}

type Config struct {
	Host                  string     `json:"HOST,omitempty"`
	Port                  int        `json:"PORT,omitempty"`
	APIKey                string     `json:"APIKEY,omitempty"`
	MaxFallbackHops       int        `json:"MaxFallbackHops,omitempty"`
	AttemptTimeoutSeconds int        `json:"AttemptTimeoutSeconds,omitempty"`
	Upstreams             []Upstream `json:"Upstreams"`
	Models                []Model    `json:"Models"`
}

// AttemptTimeout is the per-upstream-attempt deadline.
func (c *Config) AttemptTimeout() time.Duration {
	seconds := c.AttemptTimeoutSeconds
	if seconds <= 0 {
		seconds = DefaultAttemptTimeoutSeconds
	}

	return time.Duration(seconds) * time.Second
}

// UpstreamByName looks up an upstream declaration.
func (c *Config) UpstreamByName(name string) (Upstream, bool) {
	for _, u := range c.Upstreams {
		if u.Name == name {
			return u, true
		}
	}

	return Upstream{}, false
}

// FamilyOfModel returns the provider family of a configured model via its
// upstream declaration.
func (c *Config) FamilyOfModel(m Model) (registry.Family, error) {
	u, ok := c.UpstreamByName(m.Upstream)
	if !ok {
		return registry.FamilyUnknown, fmt.Errorf("model %q references unknown upstream %q", m.ID, m.Upstream)
	}

	family := registry.Family(u.Family)
	if !family.Valid() {
		return registry.FamilyUnknown, fmt.Errorf("upstream %q has unknown family %q", u.Name, u.Family)
	}

	return family, nil
}

// BuildRegistry converts the model table into a validated registry. Unknown
// fallback targets and cycles fail fast here, at startup, not per-request.
func (c *Config) BuildRegistry() (*registry.Registry, error) {
	descriptors := make([]registry.ModelDescriptor, 0, len(c.Models))
	fallbacks := make(map[string]string)

	for _, m := range c.Models {
		family, err := c.FamilyOfModel(m)
		if err != nil {
			return nil, err
		}

		descriptors = append(descriptors, registry.ModelDescriptor{
			ID:               m.ID,
			Family:           family,
			SupportsThinking: m.SupportsThinking,
			SupportsToolUse:  m.SupportsToolUse,
			MaxTokens:        m.MaxTokens,
		})

		if m.Fallback != "" {
			fallbacks[m.ID] = m.Fallback
		}
	}

	return registry.New(descriptors, fallbacks, registry.DefaultMaxFallbackHops)
}

// Manager loads the configuration once and hands an immutable snapshot to
// any number of concurrent readers.
type Manager struct {
	configPath  string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		configPath: filepath.Join(baseDir, DefaultConfigFilename),
	}
}

func (m *Manager) Load() (*Config, error) {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.MaxFallbackHops == 0 {
		cfg.MaxFallbackHops = DefaultMaxFallbackHops
	}

	m.configValue.Store(&cfg)
	return &cfg, nil
}

func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		// Return a config with defaults if loading fails
		return &Config{
			Host:            DefaultHost,
			Port:            DefaultPort,
			MaxFallbackHops: DefaultMaxFallbackHops,
		}
	}
	return cfg
}

func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	m.configValue.Store(cfg)
	return nil
}

func (m *Manager) GetPath() string {
	return m.configPath
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.configPath)
	return err == nil
}
