// Package config loads application configuration from environment variables.
// Values are read once at startup into an AppConfig that is passed explicitly
// into constructors; no other package reads the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// PoolConfig holds the connection settings for the Postgres pool.
type PoolConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	DBName         string
	MaxSize        int
	MigrationsPath string // empty disables migrations on startup
}

// DSN returns a postgres:// URL for this pool without pool parameters.
func (c *PoolConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.DBName,
	)
}

// AuthConfig holds token signing and password hashing settings.
type AuthConfig struct {
	JWTSecret            string        // Secret key for signing JWTs
	AccessTokenDuration  time.Duration // Duration for access tokens
	RefreshTokenDuration time.Duration // Duration for refresh tokens
	VerifyTokenDuration  time.Duration // Duration for email verification links
	ResetTokenDuration   time.Duration // Duration for password reset links
	BcryptCost           int
}

// RedisConfig configures the optional Redis backend for caching and rate limiting.
type RedisConfig struct {
	URL             string // empty disables Redis
	UserCacheTTL    time.Duration
	FailureCooldown time.Duration
}

// Enabled reports whether a Redis URL was configured.
func (c *RedisConfig) Enabled() bool { return c.URL != "" }

// RateLimitConfig configures the fixed-window limiter on sensitive routes.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// SMTPConfig configures outgoing mail.
type SMTPConfig struct {
	Host     string
	Port     int
	StartTLS bool
	User     string
	Password string
	From     string
	Workers  int
	Queue    int
}

// StorageConfig configures the S3-compatible store used for avatars.
type StorageConfig struct {
	Endpoint       string // empty disables avatar uploads
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	PublicURL      string
	MaxAvatarBytes int64
}

// Enabled reports whether an object storage endpoint was configured.
func (c *StorageConfig) Enabled() bool { return c.Endpoint != "" }

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string // Port for the HTTP server
	PublicBaseURL  string // Base URL used in links sent by email
	AllowedOrigins []string
}

// AppConfig is the root configuration object.
type AppConfig struct {
	Env       string
	DB        *PoolConfig
	Auth      *AuthConfig
	Redis     *RedisConfig
	RateLimit *RateLimitConfig
	SMTP      *SMTPConfig
	Storage   *StorageConfig
	Server    *ServerConfig
}

// getRequiredEnv retrieves an environment variable or records an error if it's not set.
func getRequiredEnv(key string, errors *[]string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		*errors = append(*errors, fmt.Sprintf("missing required environment variable: %s", key))
		return ""
	}
	return value
}

func getOptionalEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getFirstEnv returns the value of the first key that is set.
func getFirstEnv(keys ...string) (string, bool) {
	for _, key := range keys {
		if value, exists := os.LookupEnv(key); exists && value != "" {
			return value, true
		}
	}
	return "", false
}

func getOptionalEnvInt(key string, defaultValue int, errors *[]string) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("invalid value for %s: expected integer, got '%s': %v", key, valueStr, err))
		return defaultValue
	}
	return valueInt
}

func getOptionalEnvBool(key string, defaultValue bool, errors *[]string) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueBool, err := strconv.ParseBool(valueStr)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("invalid value for %s: expected boolean, got '%s': %v", key, valueStr, err))
		return defaultValue
	}
	return valueBool
}

func getOptionalEnvDuration(key string, defaultValue time.Duration, errors *[]string) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueDuration, err := time.ParseDuration(valueStr)
	if err != nil {
		*errors = append(*errors, fmt.Sprintf("invalid value for %s: expected duration string, got '%s': %v", key, valueStr, err))
		return defaultValue
	}
	return valueDuration
}

// clampPoolSize keeps the pool between 5 and 100 connections.
func clampPoolSize(size int, varName string, errors *[]string) int {
	if size < 5 {
		*errors = append(*errors, fmt.Sprintf("pool size for %s (%d) is less than minimum 5", varName, size))
		return 5
	}
	if size > 100 {
		*errors = append(*errors, fmt.Sprintf("pool size for %s (%d) is greater than maximum 100", varName, size))
		return 100
	}
	return size
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadConfig reads the environment and returns the application configuration.
// All problems are collected and reported together.
func LoadConfig() (*AppConfig, error) {
	var errors []string

	db := &PoolConfig{
		Host:           getOptionalEnv("DB_HOST", "localhost"),
		Port:           getOptionalEnvInt("DB_PORT", 5432, &errors),
		User:           getRequiredEnv("DB_USER", &errors),
		Password:       getRequiredEnv("DB_PASSWORD", &errors),
		DBName:         getRequiredEnv("DB_NAME", &errors),
		MigrationsPath: getOptionalEnv("DB_MIGRATIONS_PATH", "./migrations"),
	}
	db.MaxSize = clampPoolSize(getOptionalEnvInt("DB_POOL_SIZE", 10, &errors), "DB_POOL_SIZE", &errors)

	// SECRET_KEY is accepted for compatibility with existing deployments.
	jwtSecret, ok := getFirstEnv("JWT_SECRET", "SECRET_KEY")
	if !ok {
		errors = append(errors, "missing required environment variable: JWT_SECRET")
	}
	authConfig := &AuthConfig{
		JWTSecret:            jwtSecret,
		AccessTokenDuration:  getOptionalEnvDuration("JWT_ACCESS_TOKEN_DURATION", 30*time.Minute, &errors),
		RefreshTokenDuration: getOptionalEnvDuration("JWT_REFRESH_TOKEN_DURATION", 168*time.Hour, &errors), // 7 days
		VerifyTokenDuration:  getOptionalEnvDuration("JWT_VERIFY_TOKEN_DURATION", 24*time.Hour, &errors),
		ResetTokenDuration:   getOptionalEnvDuration("JWT_RESET_TOKEN_DURATION", 15*time.Minute, &errors),
		BcryptCost:           getOptionalEnvInt("BCRYPT_COST", 10, &errors),
	}
	if authConfig.BcryptCost < 4 || authConfig.BcryptCost > 31 {
		errors = append(errors, fmt.Sprintf("BCRYPT_COST must be between 4 and 31, got %d", authConfig.BcryptCost))
	}

	redisConfig := &RedisConfig{
		URL:             getOptionalEnv("REDIS_URL", ""),
		UserCacheTTL:    getOptionalEnvDuration("USER_CACHE_TTL", 5*time.Minute, &errors),
		FailureCooldown: getOptionalEnvDuration("CACHE_FAILURE_COOLDOWN", 30*time.Second, &errors),
	}

	rateLimit := &RateLimitConfig{
		Requests: getOptionalEnvInt("RATE_LIMIT_REQUESTS", 5, &errors),
		Window:   getOptionalEnvDuration("RATE_LIMIT_WINDOW", time.Minute, &errors),
	}

	smtpPassword, _ := getFirstEnv("SMTP_PASSWORD", "SMTP_PASS")
	smtpConfig := &SMTPConfig{
		Host:     getOptionalEnv("SMTP_HOST", "localhost"),
		Port:     getOptionalEnvInt("SMTP_PORT", 1025, &errors),
		StartTLS: getOptionalEnvBool("SMTP_TLS", false, &errors),
		User:     getOptionalEnv("SMTP_USER", ""),
		Password: smtpPassword,
		From:     getOptionalEnv("SMTP_FROM", "noreply@example.com"),
		Workers:  getOptionalEnvInt("MAIL_WORKERS", 2, &errors),
		Queue:    getOptionalEnvInt("MAIL_QUEUE_SIZE", 64, &errors),
	}

	storageConfig := &StorageConfig{
		Endpoint:       getOptionalEnv("S3_ENDPOINT", ""),
		AccessKey:      getOptionalEnv("S3_ACCESS_KEY", ""),
		SecretKey:      getOptionalEnv("S3_SECRET_KEY", ""),
		Bucket:         getOptionalEnv("S3_BUCKET", "avatars"),
		UseSSL:         getOptionalEnvBool("S3_USE_SSL", false, &errors),
		PublicURL:      getOptionalEnv("S3_PUBLIC_URL", ""),
		MaxAvatarBytes: int64(getOptionalEnvInt("AVATAR_MAX_BYTES", 5<<20, &errors)),
	}

	serverConfig := &ServerConfig{
		Port:           getOptionalEnv("PORT", "8080"),
		PublicBaseURL:  strings.TrimRight(getOptionalEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		AllowedOrigins: splitList(getOptionalEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return &AppConfig{
		Env:       getOptionalEnv("APP_ENV", "development"),
		DB:        db,
		Auth:      authConfig,
		Redis:     redisConfig,
		RateLimit: rateLimit,
		SMTP:      smtpConfig,
		Storage:   storageConfig,
		Server:    serverConfig,
	}, nil
}
