// Package config loads portal settings: defaults first, then an optional JSON
// file (-c / -config), then environment variables (.env is loaded by the
// binaries via godotenv), then command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Env            string
	HTTPAddr       string
	AllowedOrigins string
	APIRateLimit   int
	LogLevel       string
	LogFormat      string
	Timezone       string

	MySQLDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ScanChannel   string
	ScanMaxAge    time.Duration

	MongoURI      string
	MongoDatabase string

	KafkaBrokers       []string
	TransactionsTopic  string
	RegistrationsTopic string
	CoinsTopic         string

	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	AvatarURLExpiry time.Duration

	JWTSecret string
	TokenTTL  time.Duration
	KioskKey  string

	ScanTimeout        time.Duration
	ResultHold         time.Duration
	MaxAttempts        int
	RegistrationWindow time.Duration

	BillingRateCents int64
	BillingInterval  time.Duration
	LowBalanceCents  int64
	SweepInterval    time.Duration

	RetryAttempts int
	RetryDelay    time.Duration
	RetryTimeout  time.Duration
}

// LoadDefaults fills development defaults. Secrets must be overridden in production.
func (c *Config) LoadDefaults() {
	c.Env = "development"
	c.HTTPAddr = ":8080"
	c.AllowedOrigins = "*"
	c.APIRateLimit = 120
	c.LogLevel = "info"
	c.LogFormat = "json"
	c.Timezone = "Asia/Manila"

	c.MySQLDSN = "ezvendo:ezvendo@tcp(127.0.0.1:3306)/ezvendo?parseTime=true&loc=UTC&charset=utf8mb4"

	c.RedisAddr = "127.0.0.1:6379"
	c.ScanChannel = "rfid/lastScan"
	c.ScanMaxAge = 10 * time.Second

	c.MongoURI = "mongodb://127.0.0.1:27017"
	c.MongoDatabase = "ezvendo"

	c.TransactionsTopic = "portal.transactions"
	c.RegistrationsTopic = "portal.registrations"
	c.CoinsTopic = "kiosk.coins"

	c.S3Bucket = "avatars"
	c.S3Region = "us-east-1"
	c.S3Endpoint = "http://127.0.0.1:9000/"
	c.S3AccessKey = "admin"
	c.S3SecretKey = "secretpassword"
	c.AvatarURLExpiry = 15 * time.Minute

	c.JWTSecret = "dev-secret-change-me-dev-secret-change-me"
	c.TokenTTL = 24 * time.Hour
	c.KioskKey = "dev-kiosk-key"

	c.ScanTimeout = 30 * time.Second
	c.ResultHold = 3 * time.Second
	c.MaxAttempts = 3
	c.RegistrationWindow = 5 * time.Minute

	c.BillingRateCents = 500
	c.BillingInterval = 10 * time.Minute
	c.LowBalanceCents = 1000
	c.SweepInterval = time.Second

	c.RetryAttempts = 3
	c.RetryDelay = time.Second
	c.RetryTimeout = 30 * time.Second
}

// Load builds the configuration from args (usually os.Args[1:]) and lookup
// (usually os.LookupEnv).
func Load(args []string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path := jsonConfigPath(args); path != "" {
		if err := cfg.loadJSON(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.parseFlags(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		if c.IsProduction() {
			return fmt.Errorf("config: JWT secret must be at least 32 characters (got %d)", len(c.JWTSecret))
		}
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT secret is empty")
	}
	if c.IsProduction() && c.KioskKey == "dev-kiosk-key" {
		return fmt.Errorf("config: kiosk key must be set in production")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("config: max attempts must be positive")
	}
	if c.BillingRateCents <= 0 || c.BillingInterval <= 0 {
		return fmt.Errorf("config: billing rate and interval must be positive")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("config: retry attempts must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }
