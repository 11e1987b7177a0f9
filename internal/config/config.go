// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Mail     MailConfig
	PDF      PDFConfig
	Redis    RedisConfig
	Jobs     JobsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// DatabaseConfig holds the connection settings. DSN, when set, wins over the individual fields.
type DatabaseConfig struct {
	Driver   string // postgres | sqlite
	DSNRaw   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Debug    bool
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Env           string
	Migrations    bool
	Seed          bool
	SessionSecret string
	StorageDir    string
	BaseURL       string
	AdminEmail    string // seeded on DB_SEED when set
	AdminPassword string
}

// MailConfig configures the SendGrid transport. An empty APIKey selects the log-only mailer.
type MailConfig struct {
	APIKey     string
	BaseURL    string
	FromEmail  string
	FromName   string
	Timeout    time.Duration
	MaxRetries int
}

// PDFConfig selects the HTML rasterizer.
type PDFConfig struct {
	ChromeBin string
	Timeout   time.Duration
	Disabled  bool // force the text fallback renderer
}

type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

type JobsConfig struct {
	PurgeSchedule string
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	if d.DSNRaw != "" {
		return d.DSNRaw
	}
	if d.Driver == "sqlite" {
		return d.DBName
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format (golang-migrate wants this one).
func (d DatabaseConfig) URL() string {
	if strings.HasPrefix(d.DSNRaw, "postgres://") || strings.HasPrefix(d.DSNRaw, "postgresql://") {
		return d.DSNRaw
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production" || a.Env == "prod"
}

// Load reads configuration from environment variables.
// It uses sensible defaults for local development.
func Load() *Config {
	driver := strings.ToLower(getEnv("DB_DRIVER", "postgres"))
	dbName := getEnv("DB_NAME", "btp")
	if driver == "sqlite" {
		dbName = getEnv("DB_NAME", "btp.db")
	}
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Driver:   driver,
			DSNRaw:   strings.Trim(strings.TrimSpace(os.Getenv("DATABASE_DSN")), `"'`),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "btp"),
			Password: getEnv("DB_PASSWORD", "btp"),
			DBName:   dbName,
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Debug:    getEnvBool("DB_DEBUG", false),
		},
		App: AppConfig{
			Env:           getEnv("APP_ENV", "development"),
			Migrations:    getEnvBool("MIGRATIONS", false),
			Seed:          getEnvBool("DB_SEED", false),
			SessionSecret: getEnv("SESSION_SECRET", ""),
			StorageDir:    getEnv("STORAGE_DIR", "storage"),
			BaseURL:       strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
			AdminEmail:    os.Getenv("ADMIN_EMAIL"),
			AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		},
		Mail: MailConfig{
			APIKey:     os.Getenv("SENDGRID_API_KEY"),
			BaseURL:    getEnv("SENDGRID_BASE_URL", "https://api.sendgrid.com"),
			FromEmail:  getEnv("MAIL_FROM_EMAIL", "no-reply@localhost"),
			FromName:   getEnv("MAIL_FROM_NAME", "Gestion Chantiers"),
			Timeout:    time.Duration(getEnvInt("SENDGRID_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxRetries: getEnvInt("SENDGRID_MAX_RETRIES", 3),
		},
		PDF: PDFConfig{
			ChromeBin: os.Getenv("CHROME_BIN"),
			Timeout:   time.Duration(getEnvInt("PDF_TIMEOUT_SECONDS", 30)) * time.Second,
			Disabled:  getEnvBool("PDF_TEXT_ONLY", false),
		},
		Redis: RedisConfig{
			URL:     os.Getenv("REDIS_URL"),
			LockTTL: time.Duration(getEnvInt("LOCK_TTL_SECONDS", 30)) * time.Second,
		},
		Jobs: JobsConfig{
			PurgeSchedule: getEnv("NOTIFICATIONS_PURGE_SCHEDULE", "@every 6h"),
		},
	}
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool accepts "1", "true", "yes" as true; everything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}
