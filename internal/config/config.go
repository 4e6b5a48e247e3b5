package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pkgauth "github.com/BradenHooton/authguard/pkg/auth"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Guard    GuardConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port              string
	Env               string
	LogLevel          string
	InstallationID    string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestsPerMinute int
}

// StoreConfig selects and configures the key-value backend
type StoreConfig struct {
	Driver         string // memory, redis or postgres
	RedisURL       string
	RedisKeyPrefix string
	RedisTTL       time.Duration
	RedisPoolSize  int
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// GuardConfig holds the defense core policy
type GuardConfig struct {
	RateLimitMaxAttempts     int
	RateLimitWindow          time.Duration
	LockoutMaxAttempts       int
	LockoutDuration          time.Duration
	LockoutExtendWhileLocked bool
	BackupCodeCount          int
	BackupCodeLowThreshold   int
	BackupCodeHashCost       int
	TOTPIssuer               string
	RetryMaxRetries          int
	RetryInitialDelay        time.Duration
	RetryMaxDelay            time.Duration
	RetryBackoffMultiplier   float64
	CleanupInterval          time.Duration
}

type AuthConfig struct {
	JWTSecret   string
	Issuer      string
	TokenExpiry time.Duration
}

const (
	StoreDriverMemory   = "memory"
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnv("PORT", "8080"),
			Env:               env,
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			InstallationID:    getEnv("INSTALLATION_ID", uuid.NewString()),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestsPerMinute: getEnvAsInt("SERVER_REQUESTS_PER_MINUTE", 60),
		},
		Store: StoreConfig{
			Driver:         strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMemory)),
			RedisURL:       getEnv("REDIS_URL", ""),
			RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "authguard:"),
			RedisTTL:       getEnvAsDuration("REDIS_TTL", 0),
			RedisPoolSize:  getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "authguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Guard: GuardConfig{
			RateLimitMaxAttempts:     getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", 10),
			RateLimitWindow:          getEnvAsDuration("RATE_LIMIT_WINDOW", 60*time.Second),
			LockoutMaxAttempts:       getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", 5),
			LockoutDuration:          getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			LockoutExtendWhileLocked: getEnvAsBool("LOCKOUT_EXTEND_WHILE_LOCKED", true),
			BackupCodeCount:          getEnvAsInt("BACKUP_CODE_COUNT", 10),
			BackupCodeLowThreshold:   getEnvAsInt("BACKUP_CODE_LOW_THRESHOLD", 3),
			BackupCodeHashCost:       getEnvAsInt("BACKUP_CODE_HASH_COST", 10),
			TOTPIssuer:               getEnv("TOTP_ISSUER", "AuthGuard"),
			RetryMaxRetries:          getEnvAsInt("RETRY_MAX_RETRIES", 3),
			RetryInitialDelay:        getEnvAsDuration("RETRY_INITIAL_DELAY", 500*time.Millisecond),
			RetryMaxDelay:            getEnvAsDuration("RETRY_MAX_DELAY", 10*time.Second),
			RetryBackoffMultiplier:   getEnvAsFloat("RETRY_BACKOFF_MULTIPLIER", 2),
			CleanupInterval:          getEnvAsDuration("CLEANUP_INTERVAL", 10*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:   jwtSecret,
			Issuer:      getEnv("JWT_ISSUER", "authguard"),
			TokenExpiry: getEnvAsDuration("JWT_EXPIRY", 15*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_DRIVER=redis")
		}
		if c.Store.RedisTTL < 0 || (c.Store.RedisTTL > 0 && c.Store.RedisTTL < c.Guard.RateLimitWindow) {
			return fmt.Errorf("REDIS_TTL must be 0 or at least RATE_LIMIT_WINDOW")
		}
	case StoreDriverPostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	g := c.Guard
	if g.RateLimitMaxAttempts <= 0 || g.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit attempts and window must be positive")
	}
	if g.LockoutMaxAttempts <= 0 || g.LockoutDuration <= 0 {
		return fmt.Errorf("lockout attempts and duration must be positive")
	}
	if g.BackupCodeCount <= 0 {
		return fmt.Errorf("BACKUP_CODE_COUNT must be positive")
	}
	if g.BackupCodeHashCost < pkgauth.MinHashCost || g.BackupCodeHashCost > pkgauth.MaxHashCost {
		return fmt.Errorf("BACKUP_CODE_HASH_COST must be between 4 and 31")
	}
	if g.RetryMaxRetries < 0 || g.RetryInitialDelay <= 0 || g.RetryMaxDelay < g.RetryInitialDelay {
		return fmt.Errorf("retry delays must be positive and RETRY_MAX_DELAY >= RETRY_INITIAL_DELAY")
	}
	if g.RetryBackoffMultiplier < 1 {
		return fmt.Errorf("RETRY_BACKOFF_MULTIPLIER must be at least 1")
	}
	if g.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}
	if err := pkgauth.ValidateSigningSecret(secret, minLength); err != nil {
		return fmt.Errorf("JWT_SECRET: %w", err)
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
