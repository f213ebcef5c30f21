// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Publication policies for newly created things.
const (
	StatusPublished = "published"
	StatusPending   = "pending"
)

// Webhook sync modes.
const (
	SyncModeDocument = "document"
	SyncModeFetch    = "fetch"
	SyncModeFull     = "full"
)

// Blob storage drivers.
const (
	BlobDriverGCS   = "gcs"
	BlobDriverLocal = "local"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`

	DatabaseURL                   string `mapstructure:"DATABASE_URL"`
	DBHost                        string `mapstructure:"DB_HOST"`
	DBPort                        string `mapstructure:"DB_PORT"`
	DBUser                        string `mapstructure:"DB_USER"`
	DBPassword                    string `mapstructure:"DB_PASSWORD"`
	DBName                        string `mapstructure:"DB_NAME"`
	DBSSLMode                     string `mapstructure:"DB_SSLMODE"`
	DBSchemaMode                  string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns                int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	SeedReferenceOnStart          bool   `mapstructure:"SEED_REFERENCE_ON_START"`

	RedisURL string `mapstructure:"REDIS_URL"`

	SanityProjectID     string  `mapstructure:"SANITY_PROJECT_ID"`
	SanityDataset       string  `mapstructure:"SANITY_DATASET"`
	SanityAPIVersion    string  `mapstructure:"SANITY_API_VERSION"`
	SanityToken         string  `mapstructure:"SANITY_TOKEN"`
	SanityUseCDN        bool    `mapstructure:"SANITY_USE_CDN"`
	SanityRateLimit     float64 `mapstructure:"SANITY_RATE_LIMIT"`
	SanityWebhookSecret string  `mapstructure:"SANITY_WEBHOOK_SECRET"`

	WebhookSyncMode      string `mapstructure:"WEBHOOK_SYNC_MODE"`
	WebhookMaxAgeSeconds int    `mapstructure:"WEBHOOK_MAX_AGE_SECONDS"`

	BlobDriver          string `mapstructure:"BLOB_DRIVER"`
	BlobBucket          string `mapstructure:"BLOB_BUCKET"`
	BlobCredentialsFile string `mapstructure:"BLOB_CREDENTIALS_FILE"`
	BlobPublicBaseURL   string `mapstructure:"BLOB_PUBLIC_BASE_URL"`
	BlobLocalDir        string `mapstructure:"BLOB_LOCAL_DIR"`
	UploadMaxMB         int    `mapstructure:"UPLOAD_MAX_MB"`

	ThingDefaultStatus string `mapstructure:"THING_DEFAULT_STATUS"`

	IdentityJWTSecret string `mapstructure:"IDENTITY_JWT_SECRET"`
	AllowGuest        bool   `mapstructure:"ALLOW_GUEST"`
	GuestProviderID   string `mapstructure:"GUEST_PROVIDER_ID"`
	GuestName         string `mapstructure:"GUEST_NAME"`

	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional; environment variables are enough.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")
	viper.SetDefault("FEATURE_FLAGS", "thing_images=on,live_feed=on")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "parks")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "national_parks")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("SEED_REFERENCE_ON_START", false)

	viper.SetDefault("REDIS_URL", "localhost:6379")

	viper.SetDefault("SANITY_PROJECT_ID", "")
	viper.SetDefault("SANITY_DATASET", "production")
	viper.SetDefault("SANITY_API_VERSION", "2024-01-01")
	viper.SetDefault("SANITY_TOKEN", "")
	viper.SetDefault("SANITY_USE_CDN", false)
	viper.SetDefault("SANITY_RATE_LIMIT", 10.0)
	viper.SetDefault("SANITY_WEBHOOK_SECRET", "")

	viper.SetDefault("WEBHOOK_SYNC_MODE", SyncModeDocument)
	viper.SetDefault("WEBHOOK_MAX_AGE_SECONDS", 0)

	viper.SetDefault("BLOB_DRIVER", BlobDriverLocal)
	viper.SetDefault("BLOB_BUCKET", "")
	viper.SetDefault("BLOB_CREDENTIALS_FILE", "")
	viper.SetDefault("BLOB_PUBLIC_BASE_URL", "")
	viper.SetDefault("BLOB_LOCAL_DIR", "/tmp/national-parks/blobs")
	viper.SetDefault("UPLOAD_MAX_MB", 5)

	viper.SetDefault("THING_DEFAULT_STATUS", StatusPublished)

	viper.SetDefault("IDENTITY_JWT_SECRET", "")
	viper.SetDefault("ALLOW_GUEST", true)
	viper.SetDefault("GUEST_PROVIDER_ID", "guest")
	viper.SetDefault("GUEST_NAME", "Guest")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.WebhookSyncMode = strings.ToLower(strings.TrimSpace(c.WebhookSyncMode))
	c.ThingDefaultStatus = strings.ToLower(strings.TrimSpace(c.ThingDefaultStatus))
	c.BlobDriver = strings.ToLower(strings.TrimSpace(c.BlobDriver))
}

// IsProduction reports whether the app runs with a production profile.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// UploadMaxBytes returns the upload size limit in bytes.
func (c *Config) UploadMaxBytes() int64 {
	mb := c.UploadMaxMB
	if mb <= 0 {
		mb = 5
	}
	return int64(mb) << 20
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.UploadMaxMB <= 0 {
		return errors.New("UPLOAD_MAX_MB must be positive")
	}

	switch c.ThingDefaultStatus {
	case StatusPublished, StatusPending:
	default:
		return fmt.Errorf("THING_DEFAULT_STATUS must be %q or %q, got %q", StatusPublished, StatusPending, c.ThingDefaultStatus)
	}

	switch c.WebhookSyncMode {
	case SyncModeDocument, SyncModeFetch, SyncModeFull:
	default:
		return fmt.Errorf("unsupported WEBHOOK_SYNC_MODE %q", c.WebhookSyncMode)
	}

	switch c.BlobDriver {
	case BlobDriverLocal:
	case BlobDriverGCS:
		if c.BlobBucket == "" {
			return errors.New("BLOB_BUCKET is required when BLOB_DRIVER=gcs")
		}
	default:
		return fmt.Errorf("unsupported BLOB_DRIVER %q", c.BlobDriver)
	}

	if c.WebhookSyncMode != SyncModeDocument && c.SanityProjectID == "" {
		return fmt.Errorf("SANITY_PROJECT_ID is required when WEBHOOK_SYNC_MODE=%s", c.WebhookSyncMode)
	}

	if c.IsProduction() {
		if c.SanityWebhookSecret == "" {
			return errors.New("SANITY_WEBHOOK_SECRET is required in production")
		}
		if c.SanityProjectID == "" {
			return errors.New("SANITY_PROJECT_ID is required in production")
		}
		if c.DatabaseURL == "" && (c.DBPassword == "password" || c.DBPassword == "") {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DatabaseURL == "" && (c.DBSSLMode == "disable" || c.DBSSLMode == "") {
			return errors.New("DB_SSLMODE must not be 'disable' in production")
		}
		if c.BlobDriver != BlobDriverGCS {
			return errors.New("BLOB_DRIVER=gcs is required in production")
		}
		if c.IdentityJWTSecret != "" && len(c.IdentityJWTSecret) < 32 {
			return errors.New("IDENTITY_JWT_SECRET must be at least 32 characters in production")
		}
		if c.AllowGuest {
			log.Println("WARNING: ALLOW_GUEST is enabled in production; mutations without a token act as the guest identity.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if c.SanityWebhookSecret == "" {
		log.Println("WARNING: SANITY_WEBHOOK_SECRET is not set; the sync webhook will reject every request.")
	}

	if !c.AllowGuest && c.IdentityJWTSecret == "" {
		return errors.New("IDENTITY_JWT_SECRET is required when ALLOW_GUEST is disabled")
	}

	return nil
}
