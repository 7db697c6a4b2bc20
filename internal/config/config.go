package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Session      SessionConfig
	Escalation   EscalationConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines the local auth provider parameters and the process service account.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	ServiceEmail          string
	ServicePassword       string
}

// SessionConfig tunes the session lifecycle loop.
type SessionConfig struct {
	CheckInterval       time.Duration
	WarningBeforeExpiry time.Duration
	AutoRenewThreshold  time.Duration
	AutoRenew           bool
	RepeatExpiryPrompt  bool
	SideEffectTimeout   time.Duration
}

// EscalationConfig tunes the escalation scanner.
type EscalationConfig struct {
	Enabled       bool
	ScanSpec      string
	RulesFile     string
	TicketLockTTL time.Duration
	PassTimeout   time.Duration
}

// NotificationConfig holds notification endpoints.
type NotificationConfig struct {
	EmailFrom         string
	Channel           string
	DefaultRecipients []string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "admin-ops"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			ServiceEmail:          os.Getenv("AUTH_SERVICE_EMAIL"),
			ServicePassword:       os.Getenv("AUTH_SERVICE_PASSWORD"),
		},
		Session: SessionConfig{
			CheckInterval:       getEnvAsDuration("SESSION_CHECK_INTERVAL_SECONDS", 60, time.Second),
			WarningBeforeExpiry: getEnvAsDuration("SESSION_WARNING_BEFORE_EXPIRY_MINUTES", 5, time.Minute),
			AutoRenewThreshold:  getEnvAsDuration("SESSION_AUTO_RENEW_THRESHOLD_MINUTES", 10, time.Minute),
			AutoRenew:           getEnvAsBool("SESSION_AUTO_RENEW", true),
			RepeatExpiryPrompt:  getEnvAsBool("SESSION_REPEAT_EXPIRY_PROMPT", false),
			SideEffectTimeout:   getEnvAsDuration("SESSION_SIDE_EFFECT_TIMEOUT_SECONDS", 5, time.Second),
		},
		Escalation: EscalationConfig{
			Enabled:       getEnvAsBool("ESCALATION_ENABLED", true),
			ScanSpec:      getEnv("ESCALATION_SCAN_SPEC", "@every 5m"),
			RulesFile:     os.Getenv("ESCALATION_RULES_FILE"),
			TicketLockTTL: getEnvAsDuration("ESCALATION_TICKET_LOCK_TTL_SECONDS", 60, time.Second),
			PassTimeout:   getEnvAsDuration("ESCALATION_PASS_TIMEOUT_SECONDS", 240, time.Second),
		},
		Notification: NotificationConfig{
			EmailFrom:         getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			Channel:           getEnv("NOTIFY_CHANNEL", "notifications"),
			DefaultRecipients: getEnvAsList("NOTIFY_DEFAULT_RECIPIENTS", []string{"managers"}),
		},
	}

	if cfg.Session.WarningBeforeExpiry > cfg.Session.AutoRenewThreshold && cfg.Session.AutoRenew {
		return nil, fmt.Errorf("SESSION_WARNING_BEFORE_EXPIRY_MINUTES must not exceed SESSION_AUTO_RENEW_THRESHOLD_MINUTES")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback int, unit time.Duration) time.Duration {
	n := getEnvAsInt(key, fallback)
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * unit
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
