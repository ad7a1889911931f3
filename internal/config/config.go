package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Uses ZONECOURIER_ prefix: ZONECOURIER_SERVER_PORT -> server.port
	v.SetEnvPrefix("ZONECOURIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8053)
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("datastore.path", "zonecourier.db")

	v.SetDefault("queue.directory", "queues")

	v.SetDefault("backends.file.enabled", true)
	v.SetDefault("backends.file.zones_dir", "zones")
	v.SetDefault("backends.file.include_file", "zones/managed.conf")
	v.SetDefault("backends.file.reload_command", "rndc")
	v.SetDefault("backends.file.reload_args", []string{"reload"})
	v.SetDefault("backends.file.reload_timeout", "30s")

	v.SetDefault("backends.db.enabled", false)
	v.SetDefault("backends.db.driver", "sqlite")
	v.SetDefault("backends.db.dsn", "backend_records.db")

	v.SetDefault("upstream.servers", []UpstreamServerConfig{})
	v.SetDefault("upstream.timeout", "10s")
	v.SetDefault("upstream.list_page_size", 100)

	v.SetDefault("auth.app_username", "")
	v.SetDefault("auth.app_password", "")
	v.SetDefault("auth.peer_username", "")
	v.SetDefault("auth.peer_password", "")

	v.SetDefault("peers.urls", []string{})
	v.SetDefault("peers.timeout", "10s")

	v.SetDefault("reconciler.interval", "60m")
	v.SetDefault("reconciler.initial_delay", "0s")
	v.SetDefault("reconciler.dry_run", false)

	v.SetDefault("peer_sync.interval", "15m")

	v.SetDefault("retry.tick_interval", "5s")
	v.SetDefault("retry.backoff", []string{"30s", "2m", "5m", "15m", "30m"})
	v.SetDefault("retry.max_attempts", 5)

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", true)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.console", false)
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	loadServerConfig(v, cfg)
	loadDatastoreConfig(v, cfg)
	loadQueueConfig(v, cfg)
	loadBackendsConfig(v, cfg)
	loadUpstreamConfig(v, cfg)
	loadAuthConfig(v, cfg)
	loadPeersConfig(v, cfg)
	loadReconcilerConfig(v, cfg)
	loadPeerSyncConfig(v, cfg)
	loadRetryConfig(v, cfg)
	loadLoggingConfig(v, cfg)

	cfg.NodeID = v.GetString("node_id")
	cfg.SelfURL = v.GetString("self_url")

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadServerConfig(v *viper.Viper, cfg *Config) {
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.ShutdownTimeout = v.GetString("server.shutdown_timeout")
}

func loadDatastoreConfig(v *viper.Viper, cfg *Config) {
	cfg.Datastore.Path = v.GetString("datastore.path")
}

func loadQueueConfig(v *viper.Viper, cfg *Config) {
	cfg.Queue.Directory = v.GetString("queue.directory")
}

func loadBackendsConfig(v *viper.Viper, cfg *Config) {
	cfg.Backends.File.Enabled = v.GetBool("backends.file.enabled")
	cfg.Backends.File.ZonesDir = v.GetString("backends.file.zones_dir")
	cfg.Backends.File.IncludeFile = v.GetString("backends.file.include_file")
	cfg.Backends.File.ReloadCommand = v.GetString("backends.file.reload_command")
	cfg.Backends.File.ReloadArgs = v.GetStringSlice("backends.file.reload_args")
	cfg.Backends.File.ReloadTimeout = v.GetString("backends.file.reload_timeout")

	cfg.Backends.DB.Enabled = v.GetBool("backends.db.enabled")
	cfg.Backends.DB.Driver = v.GetString("backends.db.driver")
	cfg.Backends.DB.DSN = v.GetString("backends.db.dsn")
}

func loadUpstreamConfig(v *viper.Viper, cfg *Config) {
	if err := v.UnmarshalKey("upstream.servers", &cfg.Upstream.Servers); err != nil {
		cfg.Upstream.Servers = nil
	}
	cfg.Upstream.Timeout = v.GetString("upstream.timeout")
	cfg.Upstream.ListPageSz = v.GetInt("upstream.list_page_size")
}

func loadAuthConfig(v *viper.Viper, cfg *Config) {
	cfg.Auth.AppUsername = v.GetString("auth.app_username")
	cfg.Auth.AppPassword = v.GetString("auth.app_password")
	cfg.Auth.PeerUsername = v.GetString("auth.peer_username")
	cfg.Auth.PeerPassword = v.GetString("auth.peer_password")
}

func loadPeersConfig(v *viper.Viper, cfg *Config) {
	cfg.Peers.URLs = getStringSliceOrSplit(v, "peers.urls")
	cfg.Peers.Timeout = v.GetString("peers.timeout")
}

func loadReconcilerConfig(v *viper.Viper, cfg *Config) {
	cfg.Reconciler.Interval = v.GetString("reconciler.interval")
	cfg.Reconciler.InitialDelay = v.GetString("reconciler.initial_delay")
	cfg.Reconciler.DryRun = v.GetBool("reconciler.dry_run")
}

func loadPeerSyncConfig(v *viper.Viper, cfg *Config) {
	cfg.PeerSync.Interval = v.GetString("peer_sync.interval")
}

func loadRetryConfig(v *viper.Viper, cfg *Config) {
	cfg.Retry.TickInterval = v.GetString("retry.tick_interval")
	cfg.Retry.Backoff = getStringSliceOrSplit(v, "retry.backoff")
	cfg.Retry.MaxAttempts = v.GetInt("retry.max_attempts")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.Console = v.GetBool("logging.console")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

// getStringSliceOrSplit handles both slice and comma-separated string values.
func getStringSliceOrSplit(v *viper.Viper, key string) []string {
	if slice := v.GetStringSlice(key); len(slice) > 0 {
		result := make([]string, 0, len(slice))
		for _, s := range slice {
			for _, p := range strings.Split(s, ",") {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
		}
		return result
	}
	if s := v.GetString(key); s != "" {
		parts := strings.Split(s, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return nil
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	if cfg.Datastore.Path == "" {
		return errors.New("datastore.path must not be empty")
	}
	if cfg.Queue.Directory == "" {
		return errors.New("queue.directory must not be empty")
	}
	if !cfg.Backends.File.Enabled && !cfg.Backends.DB.Enabled {
		return errors.New("at least one backend driver must be enabled")
	}
	if len(cfg.Retry.Backoff) == 0 {
		cfg.Retry.Backoff = []string{"30s", "2m", "5m", "15m", "30m"}
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = len(cfg.Retry.Backoff)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	for _, u := range cfg.Upstream.Servers {
		if u.Hostname == "" || u.BaseURL == "" {
			return errors.New("upstream.servers entries require hostname and base_url")
		}
	}

	return nil
}
