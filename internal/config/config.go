package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
	Auth      AuthConfig
	Mail      MailConfig
	Locale    LocaleConfig
	Health    HealthConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	TrustProxy   bool
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type SchedulerConfig struct {
	Timezone     string
	Cron         string
	EmailCron    string
	StartupDelay time.Duration
	// InProcess runs the jobs inside the API server. Turn it off when the
	// standalone scheduler binary is deployed.
	InProcess bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

type AuthConfig struct {
	JWTSecret        string
	TokenTTL         time.Duration
	ImpersonationTTL time.Duration
}

type MailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	From         string
	BatchSize    int
	Timeout      time.Duration
}

type LocaleConfig struct {
	Locale   string
	Currency string
}

type HealthConfig struct {
	Timeout time.Duration
}

const defaultJWTSecret = "dev-secret-change-me"

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("ENV", "development")
	v.SetDefault("READ_TIMEOUT", "15s")
	v.SetDefault("WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_TRUST_PROXY", false)

	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "loan_tracker")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "5m")

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "loan_tracker")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SCHEDULER_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("SCHEDULER_CRON", "0 9 * * *")
	v.SetDefault("SCHEDULER_EMAIL_CRON", "*/10 * * * *")
	v.SetDefault("SCHEDULER_STARTUP_DELAY", "5s")
	v.SetDefault("SCHEDULER_IN_PROCESS", true)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("IMPERSONATION_TTL", "30m")

	v.SetDefault("SMTP_PORT", "587")
	v.SetDefault("MAIL_FROM", "Loan Tracker <no-reply@loantracker.local>")
	v.SetDefault("MAIL_BATCH_SIZE", 50)
	v.SetDefault("SMTP_TIMEOUT", "30s")

	v.SetDefault("LOCALE", "en-IN")
	v.SetDefault("CURRENCY", "INR")

	v.SetDefault("HEALTH_CHECK_TIMEOUT", "5s")
}

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	// Populate the process env from .env so every reader sees the same values
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	// Try to read from .env file (optional)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./deployments")

	// Don't fail if .env file doesn't exist
	_ = v.ReadInConfig()

	cfg := fromViper(v)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Env:          strings.ToLower(v.GetString("ENV")),
			ReadTimeout:  v.GetDuration("READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("WRITE_TIMEOUT"),
			TrustProxy:   v.GetBool("SERVER_TRUST_PROXY"),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("DATABASE_URL"),
			Host:            v.GetString("DATABASE_HOST"),
			Port:            v.GetString("DATABASE_PORT"),
			Name:            v.GetString("DATABASE_NAME"),
			User:            v.GetString("DATABASE_USER"),
			Password:        v.GetString("DATABASE_PASSWORD"),
			SSLMode:         v.GetString("DATABASE_SSLMODE"),
			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGO_URI"),
			Database: v.GetString("MONGO_DATABASE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Scheduler: SchedulerConfig{
			Timezone:     v.GetString("SCHEDULER_TIMEZONE"),
			Cron:         v.GetString("SCHEDULER_CRON"),
			EmailCron:    v.GetString("SCHEDULER_EMAIL_CRON"),
			StartupDelay: v.GetDuration("SCHEDULER_STARTUP_DELAY"),
			InProcess:    v.GetBool("SCHEDULER_IN_PROCESS"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Auth: AuthConfig{
			JWTSecret:        v.GetString("JWT_SECRET"),
			TokenTTL:         v.GetDuration("JWT_TTL"),
			ImpersonationTTL: v.GetDuration("IMPERSONATION_TTL"),
		},
		Mail: MailConfig{
			SMTPHost:     v.GetString("SMTP_HOST"),
			SMTPPort:     v.GetString("SMTP_PORT"),
			SMTPUsername: v.GetString("SMTP_USERNAME"),
			SMTPPassword: v.GetString("SMTP_PASSWORD"),
			From:         v.GetString("MAIL_FROM"),
			BatchSize:    v.GetInt("MAIL_BATCH_SIZE"),
			Timeout:      v.GetDuration("SMTP_TIMEOUT"),
		},
		Locale: LocaleConfig{
			Locale:   v.GetString("LOCALE"),
			Currency: v.GetString("CURRENCY"),
		},
		Health: HealthConfig{
			Timeout: v.GetDuration("HEALTH_CHECK_TIMEOUT"),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("DATABASE_URL or DATABASE_HOST is required")
	}

	if c.Mongo.URI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.IsProduction() && c.Auth.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be a positive duration")
	}

	if c.Auth.ImpersonationTTL <= 0 {
		return fmt.Errorf("IMPERSONATION_TTL must be a positive duration")
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid IANA timezone: %w", err)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Scheduler.Cron); err != nil {
		return fmt.Errorf("SCHEDULER_CRON must be a valid cron expression: %w", err)
	}
	if _, err := parser.Parse(c.Scheduler.EmailCron); err != nil {
		return fmt.Errorf("SCHEDULER_EMAIL_CRON must be a valid cron expression: %w", err)
	}

	if _, err := language.Parse(c.Locale.Locale); err != nil {
		return fmt.Errorf("LOCALE must be a valid BCP 47 tag: %w", err)
	}

	if _, err := currency.ParseISO(c.Locale.Currency); err != nil {
		return fmt.Errorf("CURRENCY must be an ISO 4217 code: %w", err)
	}

	if c.Mail.BatchSize <= 0 {
		return fmt.Errorf("MAIL_BATCH_SIZE must be greater than 0")
	}

	if c.Health.Timeout <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be a positive duration")
	}

	return nil
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// Location returns the scheduler timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MailEnabled reports whether an SMTP relay is configured
func (c *Config) MailEnabled() bool {
	return c.Mail.SMTPHost != ""
}
