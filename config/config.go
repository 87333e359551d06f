package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

type Config struct {
	Env     string
	Port    string
	Mongo   MongoConfig
	JWT     JWTConfig
	GCS     GCSConfig
	HTTP    HTTPConfig
	AMQP    AMQPConfig
	Mail    MailConfig
	Cleanup CleanupConfig

	AdminSetupEnabled bool
}

type MongoConfig struct {
	URI      string
	Database string
}

type JWTConfig struct {
	Secret string
}

type GCSConfig struct {
	CredentialsFile string
	Bucket          string
	Folder          string
	MaxImageBytes   int64
}

type HTTPConfig struct {
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
}

// AMQPConfig is optional; an empty URL disables event publishing.
type AMQPConfig struct {
	URL      string
	Exchange string
}

// MailConfig is optional; an empty API key disables status emails.
type MailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

type CleanupConfig struct {
	Schedule    string
	MaxAttempts int
}

// Load reads .env when present and builds the config from the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn(".env load warning")
	}

	cfg := &Config{
		Env:  getEnv("APP_ENV", "development"),
		Port: getEnv("PORT", "5000"),
		Mongo: MongoConfig{
			URI:      getEnv("MONGODB_URI", ""),
			Database: getEnv("MONGODB_DATABASE", "civicspot"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		GCS: GCSConfig{
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			Bucket:          getEnv("GCS_BUCKET", ""),
			Folder:          getEnv("GCS_FOLDER", "civicspot/reports"),
			MaxImageBytes:   getEnvInt64("MAX_IMAGE_BYTES", 5<<20),
		},
		HTTP: HTTPConfig{
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 5*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimitRPS:    getEnvFloat("RATE_LIMIT_RPS", 5),
			RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 10),
		},
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "civicspot.reports"),
		},
		Mail: MailConfig{
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromEmail:      getEnv("SENDGRID_FROM_EMAIL", "no-reply@civicspot.app"),
			FromName:       getEnv("SENDGRID_FROM_NAME", "CivicSpot"),
		},
		Cleanup: CleanupConfig{
			Schedule:    getEnv("MEDIA_CLEANUP_SCHEDULE", "@every 15m"),
			MaxAttempts: getEnvInt("MEDIA_CLEANUP_MAX_ATTEMPTS", 5),
		},
		AdminSetupEnabled: getEnvBool("ADMIN_SETUP_ENABLED", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"env":      cfg.Env,
		"port":     cfg.Port,
		"database": cfg.Mongo.Database,
		"bucket":   cfg.GCS.Bucket,
		"amqp":     cfg.AMQP.URL != "",
		"sendgrid": cfg.Mail.SendGridAPIKey != "",
	}).Info("config loaded")

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Mongo.URI == "" {
		errs = append(errs, errors.New("MONGODB_URI required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET required"))
	}
	if c.GCS.Bucket == "" {
		errs = append(errs, errors.New("GCS_BUCKET required"))
	}
	if c.GCS.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("MAX_IMAGE_BYTES must be positive"))
	}
	if c.HTTP.RateLimitRPS <= 0 || c.HTTP.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.AdminSetupEnabled && c.IsProduction() {
		log.Warn("ADMIN_SETUP_ENABLED is on in production")
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Debug reports whether internal error detail may be returned to clients.
func (c *Config) Debug() bool {
	return c.Env == "development"
}

func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
