package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Run        RunConfig        `yaml:"run" mapstructure:"run"`
	WebSocket  WebSocketConfig  `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           int           `yaml:"port" mapstructure:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
	StaticDir      string        `yaml:"static_dir" mapstructure:"static_dir"`
	CORS           CORSConfig    `yaml:"cors" mapstructure:"cors"`
}

// CORSConfig contains cross-origin settings for the HTTP API
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxAge         int      `yaml:"max_age" mapstructure:"max_age"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// InputConfig controls how uploaded files are read
type InputConfig struct {
	SkipHeader     bool     `yaml:"skip_header" mapstructure:"skip_header"`
	AllowedFormats []string `yaml:"allowed_formats" mapstructure:"allowed_formats"`
}

// ValidationConfig contains domain validation configuration
type ValidationConfig struct {
	// Blacklist is read once at startup. Reloads never change it.
	Blacklist []string    `yaml:"blacklist" mapstructure:"blacklist"`
	DNS       DNSConfig   `yaml:"dns" mapstructure:"dns"`
	Cache     CacheConfig `yaml:"cache" mapstructure:"cache"`
}

// DNSConfig contains MX lookup configuration
type DNSConfig struct {
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Concurrency      int           `yaml:"concurrency" mapstructure:"concurrency"`
	LookupsPerSecond float64       `yaml:"lookups_per_second" mapstructure:"lookups_per_second"`
	Burst            int           `yaml:"burst" mapstructure:"burst"`
	Nameserver       string        `yaml:"nameserver" mapstructure:"nameserver"`
}

// CacheConfig contains the shared Redis domain cache configuration
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// FetchConfig contains page fetching configuration
type FetchConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// OutputConfig contains artifact configuration
type OutputConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	FilePrefix string `yaml:"file_prefix" mapstructure:"file_prefix"`
}

// RunConfig contains per-run limits
type RunConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	ProgressEvery int           `yaml:"progress_every" mapstructure:"progress_every"`
	Prefetch      bool          `yaml:"prefetch" mapstructure:"prefetch"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Events          struct {
		BroadcastRuns        bool `yaml:"broadcast_runs" mapstructure:"broadcast_runs"`
		BroadcastProgress    bool `yaml:"broadcast_progress" mapstructure:"broadcast_progress"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   5 * time.Minute,
			IdleTimeout:    60 * time.Second,
			MaxUploadBytes: 10 << 20,
			StaticDir:      "web",
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				MaxAge:         300,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Input: InputConfig{
			SkipHeader:     false,
			AllowedFormats: []string{"csv", "xlsx", "parquet", "json"},
		},
		Validation: ValidationConfig{
			Blacklist: []string{"sentry.io", "example.com", "test.com"},
			DNS: DNSConfig{
				Timeout:          3 * time.Second,
				Concurrency:      8,
				LookupsPerSecond: 0, // unlimited
				Burst:            1,
			},
			Cache: CacheConfig{
				Enabled:        false,
				RedisURL:       "redis://localhost:6379",
				MaxConnections: 10,
				MinIdleConns:   2,
				DefaultTTL:     24 * time.Hour,
				KeyPrefix:      "mailscraped",
			},
		},
		Fetch: FetchConfig{
			Enabled:      false,
			Timeout:      15 * time.Second,
			UserAgent:    "Mozilla/5.0",
			MaxBodyBytes: 5 << 20,
		},
		Output: OutputConfig{
			Dir:        "uploads",
			FilePrefix: "emails",
		},
		Run: RunConfig{
			Timeout:       0,
			ProgressEvery: 100,
			Prefetch:      true,
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			MaxConnections:  100,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageSize:  512,
			AllowedOrigins:  []string{"*"},
		},
	}

	cfg.Logging.File.Path = "logs/mailscraped.log"
	cfg.WebSocket.Events.BroadcastRuns = true
	cfg.WebSocket.Events.BroadcastProgress = true
	cfg.WebSocket.Events.BroadcastConnections = true

	return cfg
}
