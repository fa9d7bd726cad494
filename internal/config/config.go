package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Directory DirectoryConfig
	Lockout   LockoutConfig
	Server    ServerConfig
	Auth      AuthConfig
	Email     EmailConfig
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

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DirectoryConfig struct {
	URL                string // ldap:// or ldaps://
	BindDN             string
	BindPassword       string
	BaseDN             string
	DefaultDomain      string // appended for UPN lookups on plain usernames
	MaxConnections     int
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	ProbeTimeout       time.Duration
	StartTLS           bool
	InsecureSkipVerify bool
}

type LockoutConfig struct {
	MaxFailedAttempts   int
	AttemptWindow       time.Duration
	BaseLockoutDuration time.Duration
	MaxLockoutDuration  time.Duration
	CleanupInterval     time.Duration
	AttemptRetention    time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string // CIDR ranges allowed to set client IP headers
}

type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	AdminGroup        string
}

type EmailConfig struct {
	Enabled         bool
	AWSRegion       string
	FromAddress     string
	SecurityAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "castellan"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Directory: DirectoryConfig{
			URL:                getEnv("LDAP_URL", "ldaps://localhost:636"),
			BindDN:             getEnv("LDAP_BIND_DN", ""),
			BindPassword:       getEnv("LDAP_BIND_PASSWORD", ""),
			BaseDN:             getEnv("LDAP_BASE_DN", ""),
			DefaultDomain:      getEnv("LDAP_DEFAULT_DOMAIN", ""),
			MaxConnections:     getEnvAsInt("LDAP_MAX_CONNECTIONS", 5),
			ConnectTimeout:     getEnvAsDuration("LDAP_CONNECT_TIMEOUT", 10*time.Second),
			ReadTimeout:        getEnvAsDuration("LDAP_READ_TIMEOUT", 30*time.Second),
			ProbeTimeout:       getEnvAsDuration("LDAP_PROBE_TIMEOUT", 5*time.Second),
			StartTLS:           getEnvAsBool("LDAP_START_TLS", false),
			InsecureSkipVerify: getEnvAsBool("LDAP_INSECURE_SKIP_VERIFY", false),
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts:   getEnvAsInt("LOCKOUT_MAX_FAILED_ATTEMPTS", 5),
			AttemptWindow:       getEnvAsDuration("LOCKOUT_ATTEMPT_WINDOW", 15*time.Minute),
			BaseLockoutDuration: getEnvAsDuration("LOCKOUT_BASE_DURATION", 15*time.Minute),
			MaxLockoutDuration:  getEnvAsDuration("LOCKOUT_MAX_DURATION", 60*time.Minute),
			CleanupInterval:     getEnvAsDuration("LOCKOUT_CLEANUP_INTERVAL", 1*time.Hour),
			AttemptRetention:    getEnvAsDuration("LOCKOUT_ATTEMPT_RETENTION", 30*24*time.Hour),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES", nil),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			AdminGroup:        getEnv("ADMIN_GROUP", "CastellanAdmins"),
		},
		Email: EmailConfig{
			Enabled:         getEnvAsBool("LOCKOUT_ALERTS_ENABLED", false),
			AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
			FromAddress:     getEnv("ALERT_FROM_ADDRESS", ""),
			SecurityAddress: getEnv("ALERT_SECURITY_ADDRESS", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Directory.BindDN == "" || cfg.Directory.BindPassword == "" {
		return nil, fmt.Errorf("LDAP_BIND_DN and LDAP_BIND_PASSWORD are required")
	}

	if cfg.Directory.BaseDN == "" {
		return nil, fmt.Errorf("LDAP_BASE_DN is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := validateLockout(&cfg.Lockout); err != nil {
		return nil, err
	}

	if cfg.Email.Enabled && cfg.Email.SecurityAddress == "" {
		return nil, fmt.Errorf("ALERT_SECURITY_ADDRESS is required when lockout alerts are enabled")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func validateLockout(cfg *LockoutConfig) error {
	if cfg.MaxFailedAttempts < 1 {
		return fmt.Errorf("LOCKOUT_MAX_FAILED_ATTEMPTS must be at least 1")
	}
	if cfg.BaseLockoutDuration <= 0 || cfg.AttemptWindow <= 0 {
		return fmt.Errorf("lockout window and base duration must be positive")
	}
	if cfg.MaxLockoutDuration < cfg.BaseLockoutDuration {
		return fmt.Errorf("LOCKOUT_MAX_DURATION must not be shorter than LOCKOUT_BASE_DURATION")
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

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

func getEnvAsSlice(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
