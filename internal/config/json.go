package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// fileConfig mirrors Config for JSON files. Zero values leave the current
// setting untouched.
type fileConfig struct {
	Env            string `json:"env"`
	HTTPAddr       string `json:"http_addr"`
	AllowedOrigins string `json:"allowed_origins"`
	LogLevel       string `json:"log_level"`
	LogFormat      string `json:"log_format"`
	Timezone       string `json:"timezone"`

	MySQLDSN string `json:"mysql_dsn"`

	RedisAddr     string   `json:"redis_addr"`
	RedisPassword string   `json:"redis_password"`
	RedisDB       int      `json:"redis_db"`
	ScanChannel   string   `json:"scan_channel"`
	ScanMaxAge    Duration `json:"scan_max_age"`

	MongoURI      string `json:"mongo_uri"`
	MongoDatabase string `json:"mongo_database"`

	KafkaBrokers       []string `json:"kafka_brokers"`
	TransactionsTopic  string   `json:"transactions_topic"`
	RegistrationsTopic string   `json:"registrations_topic"`
	CoinsTopic         string   `json:"coins_topic"`

	S3Bucket        string   `json:"s3_bucket"`
	S3Region        string   `json:"s3_region"`
	S3Endpoint      string   `json:"s3_endpoint"`
	S3AccessKey     string   `json:"s3_access_key"`
	S3SecretKey     string   `json:"s3_secret_key"`
	AvatarURLExpiry Duration `json:"avatar_url_expiry"`

	JWTSecret string   `json:"jwt_secret"`
	TokenTTL  Duration `json:"token_ttl"`
	KioskKey  string   `json:"kiosk_key"`

	ScanTimeout        Duration `json:"scan_timeout"`
	ResultHold         Duration `json:"result_hold"`
	MaxAttempts        int      `json:"max_attempts"`
	RegistrationWindow Duration `json:"registration_window"`

	BillingRateCents int64    `json:"billing_rate_cents"`
	BillingInterval  Duration `json:"billing_interval"`
	LowBalanceCents  int64    `json:"low_balance_cents"`
	SweepInterval    Duration `json:"sweep_interval"`

	RetryAttempts int      `json:"retry_attempts"`
	RetryDelay    Duration `json:"retry_delay"`
	RetryTimeout  Duration `json:"retry_timeout"`
}

// jsonConfigPath finds -c / -config in args without touching other flags.
func jsonConfigPath(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		for _, name := range []string{"-c", "--c", "-config", "--config"} {
			if a == name && i+1 < len(args) {
				return args[i+1]
			}
			if strings.HasPrefix(a, name+"=") {
				return strings.TrimPrefix(a, name+"=")
			}
		}
	}
	return ""
}

func (c *Config) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var f fileConfig
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	setString(&c.Env, f.Env)
	setString(&c.HTTPAddr, f.HTTPAddr)
	setString(&c.AllowedOrigins, f.AllowedOrigins)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.LogFormat, f.LogFormat)
	setString(&c.Timezone, f.Timezone)
	setString(&c.MySQLDSN, f.MySQLDSN)
	setString(&c.RedisAddr, f.RedisAddr)
	setString(&c.RedisPassword, f.RedisPassword)
	if f.RedisDB != 0 {
		c.RedisDB = f.RedisDB
	}
	setString(&c.ScanChannel, f.ScanChannel)
	setDuration(&c.ScanMaxAge, f.ScanMaxAge)
	setString(&c.MongoURI, f.MongoURI)
	setString(&c.MongoDatabase, f.MongoDatabase)
	if len(f.KafkaBrokers) > 0 {
		c.KafkaBrokers = f.KafkaBrokers
	}
	setString(&c.TransactionsTopic, f.TransactionsTopic)
	setString(&c.RegistrationsTopic, f.RegistrationsTopic)
	setString(&c.CoinsTopic, f.CoinsTopic)
	setString(&c.S3Bucket, f.S3Bucket)
	setString(&c.S3Region, f.S3Region)
	setString(&c.S3Endpoint, f.S3Endpoint)
	setString(&c.S3AccessKey, f.S3AccessKey)
	setString(&c.S3SecretKey, f.S3SecretKey)
	setDuration(&c.AvatarURLExpiry, f.AvatarURLExpiry)
	setString(&c.JWTSecret, f.JWTSecret)
	setDuration(&c.TokenTTL, f.TokenTTL)
	setString(&c.KioskKey, f.KioskKey)
	setDuration(&c.ScanTimeout, f.ScanTimeout)
	setDuration(&c.ResultHold, f.ResultHold)
	if f.MaxAttempts != 0 {
		c.MaxAttempts = f.MaxAttempts
	}
	setDuration(&c.RegistrationWindow, f.RegistrationWindow)
	if f.BillingRateCents != 0 {
		c.BillingRateCents = f.BillingRateCents
	}
	setDuration(&c.BillingInterval, f.BillingInterval)
	if f.LowBalanceCents != 0 {
		c.LowBalanceCents = f.LowBalanceCents
	}
	setDuration(&c.SweepInterval, f.SweepInterval)
	if f.RetryAttempts != 0 {
		c.RetryAttempts = f.RetryAttempts
	}
	setDuration(&c.RetryDelay, f.RetryDelay)
	setDuration(&c.RetryTimeout, f.RetryTimeout)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
