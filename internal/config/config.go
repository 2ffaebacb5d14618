// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session backends selectable via SESSION_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBolt     = "bolt"
)

// Limit policies selectable via SESSION_LIMIT_POLICY.
const (
	LimitPolicyEvictOldest = "evict_oldest"
	LimitPolicyReject      = "reject"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the admin HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production"). Secure cookies are forced in production.
	Env string `mapstructure:"APP_ENV"`
	// DatabaseURL is the Postgres DSN for admin users, audit logs and (optionally) sessions.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// SessionBackend selects the durable session port: memory, postgres, redis or bolt.
	SessionBackend string `mapstructure:"SESSION_BACKEND"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	// BoltPath is the bbolt file used when SESSION_BACKEND=bolt.
	BoltPath string `mapstructure:"BOLT_PATH"`

	// AccessSecret signs access tokens. Required.
	AccessSecret string `mapstructure:"ADMIN_JWT_SECRET"`
	// RefreshSecret signs refresh tokens. Required and must differ from AccessSecret.
	RefreshSecret string `mapstructure:"ADMIN_REFRESH_SECRET"`
	// JWTIssuer is the iss claim on both token kinds.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// AccessTTLRaw is the access token and session lifetime (e.g. "12h").
	AccessTTLRaw string `mapstructure:"ACCESS_TTL"`
	// RefreshTTLRaw is the refresh token lifetime (e.g. "30d").
	RefreshTTLRaw string `mapstructure:"REFRESH_TTL"`
	// RefreshThresholdRaw is the remaining lifetime under which a validated session is refreshed.
	RefreshThresholdRaw string `mapstructure:"REFRESH_THRESHOLD"`
	// HeartbeatIntervalRaw is the per-session heartbeat period.
	HeartbeatIntervalRaw string `mapstructure:"HEARTBEAT_INTERVAL"`
	// MaxConcurrentSessions caps live sessions per user; 0 disables the cap.
	MaxConcurrentSessions int `mapstructure:"MAX_CONCURRENT_SESSIONS"`
	// SessionLimitPolicy is evict_oldest or reject.
	SessionLimitPolicy string `mapstructure:"SESSION_LIMIT_POLICY"`
	// RequireEmailVerified makes the user-status check deny unverified admins.
	RequireEmailVerified bool `mapstructure:"REQUIRE_EMAIL_VERIFIED"`
	// FingerprintIncludeIP adds the client IP to the device fingerprint. Off by
	// default: an IP change is then recorded as ip_changed instead of rejecting.
	FingerprintIncludeIP bool `mapstructure:"FINGERPRINT_INCLUDE_IP"`
	// FingerprintCookieTTLRaw is the lifetime of the admin_fingerprint cookie.
	FingerprintCookieTTLRaw string `mapstructure:"FINGERPRINT_COOKIE_TTL"`
	// CookiePath scopes the session cookies.
	CookiePath string `mapstructure:"COOKIE_PATH"`

	// PersistTimeoutRaw bounds each durable session read/write.
	PersistTimeoutRaw string `mapstructure:"PERSIST_TIMEOUT"`
	// PersistWorkers is the number of durable writer goroutines.
	PersistWorkers int `mapstructure:"PERSIST_WORKERS"`
	// PersistQueueSize is the per-worker queue depth; writes beyond it are dropped and logged.
	PersistQueueSize int `mapstructure:"PERSIST_QUEUE_SIZE"`
	// UserStatusTimeoutRaw bounds the user-status lookup during validation.
	UserStatusTimeoutRaw string `mapstructure:"USER_STATUS_TIMEOUT"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTLPEndpoint enables OTLP export of traces, metrics and audit log records when set.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`

	// KafkaBrokers is a comma-separated broker list; when set, audit events are also produced to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuditKafkaTopic is the Kafka topic for audit events.
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of cmd/worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// AuditPostgresSink writes audit events straight to admin_audit_logs when DATABASE_URL is set.
	// Disable it when cmd/worker archives the Kafka stream instead.
	AuditPostgresSink bool `mapstructure:"AUDIT_POSTGRES_SINK"`
	// StatusPolicyFile optionally replaces the built-in admin.session Rego policy.
	StatusPolicyFile string `mapstructure:"ADMIN_STATUS_POLICY_FILE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_BACKEND", BackendMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("BOLT_PATH", "sessions.db")
	v.SetDefault("ADMIN_JWT_SECRET", "")
	v.SetDefault("ADMIN_REFRESH_SECRET", "")
	v.SetDefault("JWT_ISSUER", "exam-admin")
	v.SetDefault("ACCESS_TTL", "12h")
	v.SetDefault("REFRESH_TTL", "30d")
	v.SetDefault("REFRESH_THRESHOLD", "30m")
	v.SetDefault("HEARTBEAT_INTERVAL", "5m")
	v.SetDefault("MAX_CONCURRENT_SESSIONS", 5)
	v.SetDefault("SESSION_LIMIT_POLICY", LimitPolicyEvictOldest)
	v.SetDefault("REQUIRE_EMAIL_VERIFIED", true)
	v.SetDefault("FINGERPRINT_INCLUDE_IP", false)
	v.SetDefault("FINGERPRINT_COOKIE_TTL", "1h")
	v.SetDefault("COOKIE_PATH", "/")
	v.SetDefault("PERSIST_TIMEOUT", "2s")
	v.SetDefault("PERSIST_WORKERS", 4)
	v.SetDefault("PERSIST_QUEUE_SIZE", 256)
	v.SetDefault("USER_STATUS_TIMEOUT", "2s")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "exam-admin-session")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "admin-audit")
	v.SetDefault("KAFKA_GROUP_ID", "admin-audit-archiver")
	v.SetDefault("AUDIT_POSTGRES_SINK", true)
	v.SetDefault("ADMIN_STATUS_POLICY_FILE", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDatabaseURL reads only DATABASE_URL (from .env or the environment), for
// tools such as cmd/migrate that do not need the token secrets.
func LoadDatabaseURL() string {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()
	return strings.TrimSpace(v.GetString("DATABASE_URL"))
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("config: ADMIN_JWT_SECRET and ADMIN_REFRESH_SECRET must be set")
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("config: ADMIN_REFRESH_SECRET must differ from ADMIN_JWT_SECRET")
	}
	if c.IsProduction() && (len(c.AccessSecret) < 32 || len(c.RefreshSecret) < 32) {
		return errors.New("config: token secrets must be at least 32 characters in production")
	}
	switch c.SessionBackend {
	case BackendMemory, BackendRedis, BackendBolt:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: SESSION_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	switch c.SessionLimitPolicy {
	case LimitPolicyEvictOldest, LimitPolicyReject:
	default:
		return fmt.Errorf("config: unknown SESSION_LIMIT_POLICY %q", c.SessionLimitPolicy)
	}
	if c.MaxConcurrentSessions < 0 {
		return errors.New("config: MAX_CONCURRENT_SESSIONS must not be negative")
	}
	if c.RefreshThreshold() >= c.AccessTTL() {
		return errors.New("config: REFRESH_THRESHOLD must be shorter than ACCESS_TTL")
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.PersistWorkers <= 0 {
		c.PersistWorkers = 4
	}
	if c.PersistQueueSize <= 0 {
		c.PersistQueueSize = 256
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL returns ACCESS_TTL; 12h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.AccessTTLRaw, 12*time.Hour)
}

// RefreshTTL returns REFRESH_TTL; 30 days if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return durationOr(c.RefreshTTLRaw, 30*24*time.Hour)
}

// RefreshThreshold returns REFRESH_THRESHOLD; 30m if unset or invalid.
func (c *Config) RefreshThreshold() time.Duration {
	return durationOr(c.RefreshThresholdRaw, 30*time.Minute)
}

// HeartbeatInterval returns HEARTBEAT_INTERVAL; 5m if unset or invalid.
func (c *Config) HeartbeatInterval() time.Duration {
	return durationOr(c.HeartbeatIntervalRaw, 5*time.Minute)
}

// FingerprintCookieTTL returns FINGERPRINT_COOKIE_TTL; 1h if unset or invalid.
func (c *Config) FingerprintCookieTTL() time.Duration {
	return durationOr(c.FingerprintCookieTTLRaw, time.Hour)
}

// PersistTimeout returns PERSIST_TIMEOUT; 2s if unset or invalid.
func (c *Config) PersistTimeout() time.Duration {
	return durationOr(c.PersistTimeoutRaw, 2*time.Second)
}

// UserStatusTimeout returns USER_STATUS_TIMEOUT; 2s if unset or invalid.
func (c *Config) UserStatusTimeout() time.Duration {
	return durationOr(c.UserStatusTimeoutRaw, 2*time.Second)
}

// KafkaBrokersList returns broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseDuration parses Go duration syntax plus a "d" (days) suffix, e.g. "30d" or "1.5d".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.ParseFloat(strings.TrimSuffix(s, "d"), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(days * float64(24*time.Hour)), nil
	}
	return time.ParseDuration(s)
}

func durationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
