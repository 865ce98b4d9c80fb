package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/raaihank/mailscraped/internal/etl"
)

var (
	mu      sync.Mutex
	current *viper.Viper
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/mailscraped/")
	v.AddConfigPath("$HOME/.mailscraped/")

	// Environment variable overrides, e.g. MAILSCRAPED_SERVER_PORT
	v.SetEnvPrefix("MAILSCRAPED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, config)

	// Use specific config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	mu.Lock()
	current = v
	mu.Unlock()

	return config, nil
}

// ConfigFileUsed returns the file the last Load read, if any
func ConfigFileUsed() string {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return ""
	}
	return current.ConfigFileUsed()
}

// setDefaults registers every key so environment overrides apply even
// when no config file mentions them
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("server.static_dir", d.Server.StaticDir)
	v.SetDefault("server.cors.enabled", d.Server.CORS.Enabled)
	v.SetDefault("server.cors.allowed_origins", d.Server.CORS.AllowedOrigins)
	v.SetDefault("server.cors.max_age", d.Server.CORS.MaxAge)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file.enabled", d.Logging.File.Enabled)
	v.SetDefault("logging.file.path", d.Logging.File.Path)

	v.SetDefault("input.skip_header", d.Input.SkipHeader)
	v.SetDefault("input.allowed_formats", d.Input.AllowedFormats)

	v.SetDefault("validation.blacklist", d.Validation.Blacklist)
	v.SetDefault("validation.dns.timeout", d.Validation.DNS.Timeout)
	v.SetDefault("validation.dns.concurrency", d.Validation.DNS.Concurrency)
	v.SetDefault("validation.dns.lookups_per_second", d.Validation.DNS.LookupsPerSecond)
	v.SetDefault("validation.dns.burst", d.Validation.DNS.Burst)
	v.SetDefault("validation.dns.nameserver", d.Validation.DNS.Nameserver)
	v.SetDefault("validation.cache.enabled", d.Validation.Cache.Enabled)
	v.SetDefault("validation.cache.redis_url", d.Validation.Cache.RedisURL)
	v.SetDefault("validation.cache.max_connections", d.Validation.Cache.MaxConnections)
	v.SetDefault("validation.cache.min_idle_conns", d.Validation.Cache.MinIdleConns)
	v.SetDefault("validation.cache.default_ttl", d.Validation.Cache.DefaultTTL)
	v.SetDefault("validation.cache.key_prefix", d.Validation.Cache.KeyPrefix)

	v.SetDefault("fetch.enabled", d.Fetch.Enabled)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)
	v.SetDefault("fetch.max_body_bytes", d.Fetch.MaxBodyBytes)

	v.SetDefault("output.dir", d.Output.Dir)
	v.SetDefault("output.file_prefix", d.Output.FilePrefix)

	v.SetDefault("run.timeout", d.Run.Timeout)
	v.SetDefault("run.progress_every", d.Run.ProgressEvery)
	v.SetDefault("run.prefetch", d.Run.Prefetch)

	v.SetDefault("websocket.enabled", d.WebSocket.Enabled)
	v.SetDefault("websocket.path", d.WebSocket.Path)
	v.SetDefault("websocket.max_connections", d.WebSocket.MaxConnections)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid max upload size: %d", config.Server.MaxUploadBytes)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if len(config.Input.AllowedFormats) == 0 {
		return fmt.Errorf("input.allowed_formats must not be empty")
	}
	for _, f := range config.Input.AllowedFormats {
		if _, err := etl.ParseFileFormat(f); err != nil {
			return fmt.Errorf("invalid input format: %w", err)
		}
	}

	if config.Validation.DNS.Timeout <= 0 {
		return fmt.Errorf("invalid dns timeout: %s", config.Validation.DNS.Timeout)
	}
	if config.Validation.DNS.Concurrency < 1 {
		return fmt.Errorf("invalid dns concurrency: %d", config.Validation.DNS.Concurrency)
	}
	if config.Validation.DNS.LookupsPerSecond < 0 {
		return fmt.Errorf("invalid dns lookups per second: %v", config.Validation.DNS.LookupsPerSecond)
	}

	if config.Validation.Cache.Enabled && config.Validation.Cache.RedisURL == "" {
		return fmt.Errorf("validation.cache.redis_url is required when the cache is enabled")
	}

	if config.Fetch.Enabled && config.Fetch.Timeout <= 0 {
		return fmt.Errorf("invalid fetch timeout: %s", config.Fetch.Timeout)
	}

	if config.Output.Dir == "" {
		return fmt.Errorf("output.dir must not be empty")
	}

	if config.Run.ProgressEvery < 0 {
		return fmt.Errorf("invalid progress interval: %d", config.Run.ProgressEvery)
	}

	return nil
}

// Watch starts watching the configuration file loaded by Load. The
// callback receives every valid new configuration; callers decide which
// settings may change at runtime.
func Watch(callback func(*Config)) error {
	mu.Lock()
	v := current
	mu.Unlock()

	if v == nil || v.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			return
		}
		if err := validateConfig(newConfig); err != nil {
			return
		}
		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
