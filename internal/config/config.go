// Package config provides configuration management for the SDN swarm.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spacedatanetwork/sdn-swarm/internal/peers"
)

// Config represents the SDN swarm configuration.
type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	Swarm     SwarmConfig     `yaml:"swarm"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// NetworkConfig contains network-related settings.
type NetworkConfig struct {
	Listen    []string `yaml:"listen"`
	Bootstrap []string `yaml:"bootstrap"`
}

// SwarmConfig contains peer registry and policy settings.
type SwarmConfig struct {
	DenyList      []string `yaml:"deny_list"`
	AllowList     []string `yaml:"allow_list"`
	StrictMode    bool     `yaml:"strict_mode"`
	KnownPeers    []string `yaml:"known_peers"`
	RegistryPath  string   `yaml:"registry_path"` // ".db" for SQLite, JSON otherwise
	PolicyTimeout string   `yaml:"policy_timeout"`
}

// DiscoveryConfig selects how the daemon finds new peers.
type DiscoveryConfig struct {
	MDNS      bool   `yaml:"mdns"`
	DHT       bool   `yaml:"dht"`
	PubSub    bool   `yaml:"pubsub"`
	Namespace string `yaml:"namespace"`
	Interval  string `yaml:"interval"`
}

// MetricsConfig contains Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// DefaultPolicyTimeout is used when policy_timeout is unset or invalid.
const DefaultPolicyTimeout = 5 * time.Second

// Default returns a default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	registryPath := filepath.Join(homeDir, ".sdn-swarm", "registry.db")

	return &Config{
		Network: NetworkConfig{
			Listen: []string{
				"/ip4/0.0.0.0/tcp/4001",
				"/ip4/0.0.0.0/udp/4001/quic-v1",
			},
			Bootstrap: []string{},
		},
		Swarm: SwarmConfig{
			DenyList:      []string{},
			AllowList:     []string{},
			KnownPeers:    []string{},
			RegistryPath:  registryPath,
			PolicyTimeout: DefaultPolicyTimeout.String(),
		},
		Discovery: DiscoveryConfig{
			MDNS:      true,
			Namespace: "sdn-swarm",
			Interval:  "1m",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9464",
		},
	}
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".sdn-swarm", "config.yaml")
}

// Load loads the configuration from a file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return Default(), nil
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a file.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// PolicyConfig returns the deny/allow list settings.
func (s SwarmConfig) PolicyConfig() peers.PolicyConfig {
	return peers.PolicyConfig{
		DenyList:   s.DenyList,
		AllowList:  s.AllowList,
		StrictMode: s.StrictMode,
	}
}

// Timeout parses PolicyTimeout, falling back to DefaultPolicyTimeout.
func (s SwarmConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(s.PolicyTimeout)
	if err != nil || d <= 0 {
		return DefaultPolicyTimeout
	}
	return d
}

// IntervalDuration parses Interval. Zero means the discovery default.
func (d DiscoveryConfig) IntervalDuration() time.Duration {
	v, err := time.ParseDuration(d.Interval)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}
