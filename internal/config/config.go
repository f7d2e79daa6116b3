package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/cypherlabdev/odds-arbitrage-service/pkg/arbitrage"
)

// Config holds all configuration for odds-arbitrage-service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Redis      RedisConfig      `mapstructure:"redis"`
	OddsAPI    OddsAPIConfig    `mapstructure:"odds_api"`
	Polymarket PolymarketConfig `mapstructure:"polymarket"`
	Poller     PollerConfig     `mapstructure:"poller"`
	Arbitrage  ArbitrageConfig  `mapstructure:"arbitrage"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	ConsumerEnabled    bool     `mapstructure:"consumer_enabled"`
	PublisherEnabled   bool     `mapstructure:"publisher_enabled"`
	Brokers            []string `mapstructure:"brokers"`
	Topic              string   `mapstructure:"topic"` // raw feeds to consume (raw_odds)
	GroupID            string   `mapstructure:"group_id"`
	OpportunitiesTopic string   `mapstructure:"opportunities_topic"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// OddsAPIConfig holds bookmaker feed settings
type OddsAPIConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Sport             string        `mapstructure:"sport"`
	Regions           string        `mapstructure:"regions"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// PolymarketConfig holds prediction market settings
type PolymarketConfig struct {
	Enabled           bool              `mapstructure:"enabled"`
	Host              string            `mapstructure:"host"`
	SourceName        string            `mapstructure:"source_name"`
	SlugPrefix        string            `mapstructure:"slug_prefix"`
	TeamAbbreviations map[string]string `mapstructure:"team_abbreviations"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	RequestsPerMinute int               `mapstructure:"requests_per_minute"`
	MaxPages          int               `mapstructure:"max_pages"`
}

// PollerConfig controls the periodic refresh
type PollerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// ArbitrageConfig holds engine parameters
type ArbitrageConfig struct {
	PeriodsPerYear int `mapstructure:"periods_per_year"` // compounding periods for the annualised return
}

// ArchiveConfig holds S3 archival settings
type ArchiveConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// DefaultTeamAbbreviations maps team names to the codes used in market slugs
func DefaultTeamAbbreviations() map[string]string {
	return map[string]string{
		"aston villa":              "ast",
		"brighton and hove albion": "bri",
		"burnley":                  "bur",
		"manchester city":          "mac",
		"manchester united":        "mun",
		"nottingham forest":        "not",
		"west ham united":          "wes",
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Secrets may live in a local .env file
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8082)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("kafka.consumer_enabled", false)
	v.SetDefault("kafka.publisher_enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "raw_odds")
	v.SetDefault("kafka.group_id", "odds-arbitrage")
	v.SetDefault("kafka.opportunities_topic", "arbitrage_opportunities")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 15*time.Minute)

	v.SetDefault("odds_api.base_url", "https://api.the-odds-api.com")
	v.SetDefault("odds_api.api_key", "")
	v.SetDefault("odds_api.sport", "soccer_epl")
	v.SetDefault("odds_api.regions", "uk")
	v.SetDefault("odds_api.timeout", 10*time.Second)
	v.SetDefault("odds_api.requests_per_minute", 30)

	v.SetDefault("polymarket.enabled", true)
	v.SetDefault("polymarket.host", "https://clob.polymarket.com")
	v.SetDefault("polymarket.source_name", "polymarket")
	v.SetDefault("polymarket.slug_prefix", "epl")
	v.SetDefault("polymarket.team_abbreviations", DefaultTeamAbbreviations())
	v.SetDefault("polymarket.timeout", 10*time.Second)
	v.SetDefault("polymarket.requests_per_minute", 300)
	v.SetDefault("polymarket.max_pages", 500)

	v.SetDefault("poller.enabled", true)
	v.SetDefault("poller.interval", 5*time.Minute)
	v.SetDefault("poller.run_on_start", true)

	v.SetDefault("arbitrage.periods_per_year", arbitrage.DefaultPeriodsPerYear)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "raw-odds")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.access_key", "")
	v.SetDefault("archive.secret_key", "")
	v.SetDefault("archive.force_path_style", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvPrefix("ODDS_ARBITRAGE")
	v.AutomaticEnv()
	// Replace . with _ for environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Unmarshal to struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks settings that would otherwise fail at runtime
func (c *Config) Validate() error {
	if c.Poller.Enabled && c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive")
	}
	if c.Arbitrage.PeriodsPerYear <= 0 {
		return fmt.Errorf("arbitrage.periods_per_year must be positive")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required when archive is enabled")
	}
	if (c.Kafka.ConsumerEnabled || c.Kafka.PublisherEnabled) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// ToEngineParams converts config to arbitrage engine parameters
func (c *ArbitrageConfig) ToEngineParams() arbitrage.Params {
	return arbitrage.Params{PeriodsPerYear: c.PeriodsPerYear}
}
