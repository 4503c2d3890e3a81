package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// applyEnv overlays environment variables. PORT is honoured for
// compatibility with container platforms that only set a port.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	str := map[string]*string{
		"ENV":               &c.Env,
		"HTTP_ADDR":         &c.HTTPAddr,
		"ALLOWED_ORIGINS":   &c.AllowedOrigins,
		"LOG_LEVEL":         &c.LogLevel,
		"LOG_FORMAT":        &c.LogFormat,
		"TZ_NAME":           &c.Timezone,
		"MYSQL_DSN":         &c.MySQLDSN,
		"REDIS_ADDR":        &c.RedisAddr,
		"REDIS_PASSWORD":    &c.RedisPassword,
		"RFID_CHANNEL":      &c.ScanChannel,
		"MONGO_URI":         &c.MongoURI,
		"MONGO_DATABASE":    &c.MongoDatabase,
		"KAFKA_TX_TOPIC":    &c.TransactionsTopic,
		"KAFKA_REG_TOPIC":   &c.RegistrationsTopic,
		"KAFKA_COINS_TOPIC": &c.CoinsTopic,
		"S3_BUCKET":         &c.S3Bucket,
		"S3_REGION":         &c.S3Region,
		"S3_ENDPOINT":       &c.S3Endpoint,
		"S3_ACCESS_KEY":     &c.S3AccessKey,
		"S3_SECRET_KEY":     &c.S3SecretKey,
		"JWT_SECRET":        &c.JWTSecret,
		"KIOSK_KEY":         &c.KioskKey,
	}
	for name, dst := range str {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	if port, ok := get("PORT"); ok {
		if _, set := get("HTTP_ADDR"); !set {
			c.HTTPAddr = ":" + port
		}
	}
	if v, ok := get("KAFKA_BROKERS"); ok {
		c.KafkaBrokers = splitList(v)
	}

	dur := map[string]*time.Duration{
		"RFID_MAX_AGE":        &c.ScanMaxAge,
		"AVATAR_URL_EXPIRY":   &c.AvatarURLExpiry,
		"JWT_TTL":             &c.TokenTTL,
		"SCAN_TIMEOUT":        &c.ScanTimeout,
		"RESULT_HOLD":         &c.ResultHold,
		"REGISTRATION_WINDOW": &c.RegistrationWindow,
		"BILLING_INTERVAL":    &c.BillingInterval,
		"SWEEP_INTERVAL":      &c.SweepInterval,
		"RETRY_DELAY":         &c.RetryDelay,
		"RETRY_TIMEOUT":       &c.RetryTimeout,
	}
	for name, dst := range dur {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return fmt.Errorf("config: invalid %s=%q", name, v)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"REDIS_DB":       &c.RedisDB,
		"API_RATE_LIMIT": &c.APIRateLimit,
		"MAX_ATTEMPTS":   &c.MaxAttempts,
		"RETRY_ATTEMPTS": &c.RetryAttempts,
	}
	for name, dst := range ints {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: invalid %s=%q", name, v)
			}
			*dst = n
		}
	}

	cents := map[string]*int64{
		"BILLING_RATE_CENTS": &c.BillingRateCents,
		"LOW_BALANCE_CENTS":  &c.LowBalanceCents,
	}
	for name, dst := range cents {
		if v, ok := get(name); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("config: invalid %s=%q", name, v)
			}
			*dst = n
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
