package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"fieldservice-invoicing-backend/internal/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Config struct {
	Port string

	DatabaseURL string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	CORSAllowedOrigins []string

	InvoiceDueDays                    int
	InvoiceDefaultTerms               string
	InvoiceLenientPaymentApplications bool
	ValidationConcurrency             int
	IdempotencyPendingTTL             time.Duration

	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	var errs []string
	intEnv := func(key string, def int) int {
		v, err := strconv.Atoi(getEnv(key, strconv.Itoa(def)))
		if err != nil {
			errs = append(errs, key+" must be an integer")
			return def
		}
		return v
	}
	boolEnv := func(key string, def bool) bool {
		v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(def)))
		if err != nil {
			errs = append(errs, key+" must be a boolean")
			return def
		}
		return v
	}
	durationEnv := func(key string, def time.Duration) time.Duration {
		v, err := time.ParseDuration(getEnv(key, def.String()))
		if err != nil {
			errs = append(errs, key+" must be a duration")
			return def
		}
		return v
	}

	cfg := &Config{
		Port:                              getEnv("PORT", "8080"),
		DatabaseURL:                       getEnv("DATABASE_URL", ""),
		DBHost:                            getEnv("DB_HOST", "localhost"),
		DBPort:                            intEnv("DB_PORT", 5432),
		DBUser:                            getEnv("DB_USER", "postgres"),
		DBPassword:                        getEnv("DB_PASSWORD", ""),
		DBName:                            getEnv("DB_NAME", "fieldservice"),
		DBSSLMode:                         getEnv("DB_SSLMODE", "disable"),
		CORSAllowedOrigins:                splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		InvoiceDueDays:                    intEnv("INVOICE_DUE_DAYS", 30),
		InvoiceDefaultTerms:               getEnv("INVOICE_DEFAULT_TERMS", ""),
		InvoiceLenientPaymentApplications: boolEnv("INVOICE_LENIENT_PAYMENT_APPLICATIONS", false),
		ValidationConcurrency:             intEnv("VALIDATION_CONCURRENCY", 8),
		IdempotencyPendingTTL:             durationEnv("IDEMPOTENCY_PENDING_TTL", 5*time.Minute),
		LogLevel:                          getEnv("LOG_LEVEL", "info"),
		LogFormat:                         getEnv("LOG_FORMAT", "json"),
		LogTimeFormat:                     getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:                         getEnv("LOG_OUTPUT", "stdout"),
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.InvoiceDueDays <= 0 {
		return fmt.Errorf("INVOICE_DUE_DAYS must be positive")
	}
	if c.ValidationConcurrency <= 0 {
		return fmt.Errorf("VALIDATION_CONCURRENCY must be positive")
	}
	if c.IdempotencyPendingTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_PENDING_TTL must be positive")
	}
	return nil
}

// DSN prefers DATABASE_URL and falls back to the discrete DB_* settings.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func InitDB(c *Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(c.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
