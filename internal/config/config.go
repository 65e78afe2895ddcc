// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"LUSERVE_HOST" yaml:"host"`
	Port int    `envconfig:"LUSERVE_PORT" yaml:"port"`

	// gRPC configuration
	GRPC GRPCConfig `yaml:"grpc"`

	// Model artifact locations
	Models ModelsConfig `yaml:"models"`

	// .lu conversion settings
	Convert ConvertConfig `yaml:"convert"`

	// Recognition settings
	Recognize RecognizeConfig `yaml:"recognize"`

	// Cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`
}

// GRPCConfig holds gRPC listener settings.
type GRPCConfig struct {
	Enabled    bool   `envconfig:"LUSERVE_GRPC_ENABLED" yaml:"enabled"`
	Port       int    `envconfig:"LUSERVE_GRPC_PORT" yaml:"port"`
	UnixSocket string `envconfig:"LUSERVE_GRPC_UNIX_SOCKET" yaml:"unix_socket"`
}

// ModelsConfig holds the model artifact directories.
type ModelsConfig struct {
	// CategoryDir is the text categorizer model. Required.
	CategoryDir string `envconfig:"LUSERVE_CATEGORY_MODEL" yaml:"category_dir"`
	// EntityDir is the entity recognizer model. Empty disables it.
	EntityDir string `envconfig:"LUSERVE_ENTITY_MODEL" yaml:"entity_dir"`
	// Watch reloads the models when their directories change.
	Watch bool `envconfig:"LUSERVE_MODELS_WATCH" yaml:"watch"`
}

// ConvertConfig holds settings for the external bf luis:convert tool.
type ConvertConfig struct {
	Command  string        `envconfig:"LUSERVE_BF_COMMAND" yaml:"command"`
	Args     []string      `envconfig:"LUSERVE_BF_ARGS" yaml:"args"`
	Timeout  time.Duration `envconfig:"LUSERVE_CONVERT_TIMEOUT" yaml:"timeout"`
	LuFile   string        `envconfig:"LUSERVE_LU_FILE" yaml:"lu_file"`
	JSONFile string        `envconfig:"LUSERVE_JSON_FILE" yaml:"json_file"`
}

// RecognizeConfig holds per-request recognition settings.
type RecognizeConfig struct {
	MaxQueryLength int           `envconfig:"LUSERVE_MAX_QUERY_LENGTH" yaml:"max_query_length"`
	Timeout        time.Duration `envconfig:"LUSERVE_RECOGNIZE_TIMEOUT" yaml:"timeout"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Type     string `envconfig:"LUSERVE_CACHE_TYPE" yaml:"type"`
	Size     int    `envconfig:"LUSERVE_CACHE_SIZE" yaml:"size"`
	TTL      int    `envconfig:"LUSERVE_CACHE_TTL" yaml:"ttl"` // seconds, 0 = no expiry
	RedisURL string `envconfig:"LUSERVE_REDIS_URL" yaml:"redis_url"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"LUSERVE_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"LUSERVE_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"LUSERVE_KAFKA_GROUP" yaml:"kafka_group"`
	// EventLog appends every published event as a JSON line. Empty disables it.
	EventLog string `envconfig:"LUSERVE_BUS_EVENT_LOG" yaml:"event_log"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"LUSERVE_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"LUSERVE_LOG_FORMAT" yaml:"format"`
	File   string `envconfig:"LUSERVE_LOG_FILE" yaml:"file"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit   int    `envconfig:"LUSERVE_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	CORSOrigins string `envconfig:"LUSERVE_CORS_ORIGINS" yaml:"cors_origins"`
}

// MetricsConfig holds metrics exposition settings.
type MetricsConfig struct {
	Enabled bool   `envconfig:"LUSERVE_METRICS_ENABLED" yaml:"enabled"`
	Path    string `envconfig:"LUSERVE_METRICS_PATH" yaml:"path"`
}

// Load loads configuration from defaults, an optional YAML file, and
// environment variables, in that order of precedence.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	setDefaults(cfg)

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "127.0.0.1"
	cfg.Port = 5000

	cfg.GRPC = GRPCConfig{
		Enabled: false,
		Port:    50051,
	}

	cfg.Models = ModelsConfig{
		CategoryDir: "tools/output-category",
		EntityDir:   "tools/output-entity",
	}

	cfg.Convert = ConvertConfig{
		Command:  "bf",
		Timeout:  2 * time.Minute,
		LuFile:   "tests/Microsoft.Bot.Builder.TestBot.Json/Samples/ToDoLuisBot/ToDoLuis.lu",
		JSONFile: "tests/Microsoft.Bot.Builder.TestBot.Json/Samples/ToDoLuisBot/ToDoLuis.json",
	}

	cfg.Recognize = RecognizeConfig{
		MaxQueryLength: 500,
		Timeout:        5 * time.Second,
	}

	cfg.Cache = CacheConfig{
		Type:     "memory",
		Size:     10000,
		TTL:      0,
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		KafkaGroup: "luserve",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit:   0,
		CORSOrigins: "*",
	}

	cfg.Metrics = MetricsConfig{
		Enabled: true,
		Path:    "/metrics",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.GRPC.Enabled && (c.GRPC.Port < 1 || c.GRPC.Port > 65535) {
		errs = append(errs, "grpc port must be between 1 and 65535")
	}

	if c.GRPC.Enabled && c.GRPC.Port == c.Port {
		errs = append(errs, "grpc port must differ from http port")
	}

	if strings.TrimSpace(c.Models.CategoryDir) == "" {
		errs = append(errs, "models.category_dir is required")
	}

	if c.Convert.Command == "" {
		errs = append(errs, "convert.command is required")
	}

	if c.Convert.Timeout <= 0 {
		errs = append(errs, "convert.timeout must be positive")
	}

	if c.Recognize.MaxQueryLength < 1 {
		errs = append(errs, "recognize.max_query_length must be positive")
	}

	if c.Recognize.Timeout < 0 {
		errs = append(errs, "recognize.timeout must not be negative")
	}

	validCacheTypes := map[string]bool{"memory": true, "redis": true, "none": true}
	if !validCacheTypes[c.Cache.Type] {
		errs = append(errs, fmt.Sprintf("invalid cache type: %s (must be memory, redis, or none)", c.Cache.Type))
	}

	if c.Cache.Type == "memory" && c.Cache.Size < 1 {
		errs = append(errs, "cache.size must be positive")
	}

	if c.Cache.TTL < 0 {
		errs = append(errs, "cache.ttl must not be negative")
	}

	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "bus.kafka_brokers is required for the kafka bus")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if c.Security.RateLimit < 0 {
		errs = append(errs, "security.rate_limit must not be negative")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the HTTP server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCAddress returns the gRPC TCP address.
func (c *Config) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPC.Port)
}

// CORSOrigins returns the configured origins as a list.
func (c *Config) CORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Security.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
