// Package config provides configuration loading and validation for
// zonecourierd.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Environment variables (ZONECOURIER_* prefix)
//  2. YAML config file (if specified with --config)
//  3. Hardcoded defaults
//
// Environment variables are mapped from ZONECOURIER_CATEGORY_SETTING
// format, e.g., ZONECOURIER_SERVER_PORT maps to server.port in YAML.
package config

import (
	"os"
	"strings"
)

// ServerConfig controls the ingress HTTP listener.
type ServerConfig struct {
	Host            string `yaml:"host"             mapstructure:"host"`
	Port            int    `yaml:"port"             mapstructure:"port"`
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// DatastoreConfig controls the internal SQLite store.
type DatastoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// QueueConfig controls the persistent on-disk queues.
type QueueConfig struct {
	Directory string `yaml:"directory" mapstructure:"directory"`
}

// FileDriverConfig configures the zone-file + daemon-reload backend.
type FileDriverConfig struct {
	Enabled       bool     `yaml:"enabled"        mapstructure:"enabled"`
	ZonesDir      string   `yaml:"zones_dir"      mapstructure:"zones_dir"`
	IncludeFile   string   `yaml:"include_file"   mapstructure:"include_file"`
	ReloadCommand string   `yaml:"reload_command" mapstructure:"reload_command"`
	ReloadArgs    []string `yaml:"reload_args"    mapstructure:"reload_args"`
	ReloadTimeout string   `yaml:"reload_timeout" mapstructure:"reload_timeout"`
}

// DBDriverConfig configures the row-level database backend.
type DBDriverConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Driver  string `yaml:"driver"  mapstructure:"driver"`
	DSN     string `yaml:"dsn"     mapstructure:"dsn"`
}

// BackendsConfig enumerates the configured backend drivers.
type BackendsConfig struct {
	File FileDriverConfig `yaml:"file" mapstructure:"file"`
	DB   DBDriverConfig   `yaml:"db"   mapstructure:"db"`
}

// UpstreamServerConfig is one upstream control-panel instance this node
// pushes to and polls during reconciliation.
type UpstreamServerConfig struct {
	Hostname string `yaml:"hostname" mapstructure:"hostname"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// UpstreamConfig controls the upstream client.
type UpstreamConfig struct {
	Servers    []UpstreamServerConfig `yaml:"servers"         mapstructure:"servers"`
	Timeout    string                 `yaml:"timeout"         mapstructure:"timeout"`
	ListPageSz int                    `yaml:"list_page_size"  mapstructure:"list_page_size"`
}

// AuthConfig holds the two basic-auth realm credentials.
type AuthConfig struct {
	AppUsername  string `yaml:"app_username"  mapstructure:"app_username"`
	AppPassword  string `yaml:"app_password"  mapstructure:"app_password"`
	PeerUsername string `yaml:"peer_username" mapstructure:"peer_username"`
	PeerPassword string `yaml:"peer_password" mapstructure:"peer_password"`
}

// PeersConfig is the seed peer URL list; peer-sync grows the live set
// beyond this via gossip discovery, in memory only — never persisted.
type PeersConfig struct {
	URLs    []string `yaml:"urls"    mapstructure:"urls"`
	Timeout string   `yaml:"timeout" mapstructure:"timeout"`
}

// ReconcilerConfig controls the reconciliation worker.
type ReconcilerConfig struct {
	Interval     string `yaml:"interval"      mapstructure:"interval"`
	InitialDelay string `yaml:"initial_delay" mapstructure:"initial_delay"`
	DryRun       bool   `yaml:"dry_run"       mapstructure:"dry_run"`
}

// PeerSyncConfig controls the peer-sync worker.
type PeerSyncConfig struct {
	Interval string `yaml:"interval" mapstructure:"interval"`
}

// RetryConfig controls the retry-drainer's tick and backoff schedule.
type RetryConfig struct {
	TickInterval string   `yaml:"tick_interval" mapstructure:"tick_interval"`
	Backoff      []string `yaml:"backoff"       mapstructure:"backoff"`
	MaxAttempts  int      `yaml:"max_attempts"  mapstructure:"max_attempts"`
}

// LoggingConfig controls slog handler construction.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format"`
	Console          bool              `yaml:"console"           mapstructure:"console"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"`
}

// Config is the root configuration structure, resolved once at startup
// and passed by value-equivalent pointer to every component.
type Config struct {
	NodeID     string           `yaml:"node_id"    mapstructure:"node_id"`
	SelfURL    string           `yaml:"self_url"   mapstructure:"self_url"`
	Server     ServerConfig     `yaml:"server"     mapstructure:"server"`
	Datastore  DatastoreConfig  `yaml:"datastore"  mapstructure:"datastore"`
	Queue      QueueConfig      `yaml:"queue"      mapstructure:"queue"`
	Backends   BackendsConfig   `yaml:"backends"   mapstructure:"backends"`
	Upstream   UpstreamConfig   `yaml:"upstream"   mapstructure:"upstream"`
	Auth       AuthConfig       `yaml:"auth"       mapstructure:"auth"`
	Peers      PeersConfig      `yaml:"peers"      mapstructure:"peers"`
	Reconciler ReconcilerConfig `yaml:"reconciler" mapstructure:"reconciler"`
	PeerSync   PeerSyncConfig   `yaml:"peer_sync"  mapstructure:"peer_sync"`
	Retry      RetryConfig      `yaml:"retry"      mapstructure:"retry"`
	Logging    LoggingConfig    `yaml:"logging"    mapstructure:"logging"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("ZONECOURIER_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from a YAML file with environment variable
// overrides. This is the main entry point for loading configuration.
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
