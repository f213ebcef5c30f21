package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:                "8080",
		Env:                 "development",
		UploadMaxMB:         5,
		ThingDefaultStatus:  StatusPublished,
		WebhookSyncMode:     SyncModeDocument,
		BlobDriver:          BlobDriverLocal,
		AllowGuest:          true,
		SanityWebhookSecret: "whsec",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"pending policy allowed", func(c *Config) { c.ThingDefaultStatus = StatusPending }, false},
		{"unknown publication policy", func(c *Config) { c.ThingDefaultStatus = "removed" }, true},
		{"unknown sync mode", func(c *Config) { c.WebhookSyncMode = "partial" }, true},
		{"fetch mode needs project id", func(c *Config) { c.WebhookSyncMode = SyncModeFetch }, true},
		{"fetch mode with project id", func(c *Config) {
			c.WebhookSyncMode = SyncModeFetch
			c.SanityProjectID = "abc123"
		}, false},
		{"gcs needs bucket", func(c *Config) { c.BlobDriver = BlobDriverGCS }, true},
		{"gcs with bucket", func(c *Config) {
			c.BlobDriver = BlobDriverGCS
			c.BlobBucket = "parks-media"
		}, false},
		{"guest disabled without identity secret", func(c *Config) { c.AllowGuest = false }, true},
		{"zero upload limit", func(c *Config) { c.UploadMaxMB = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateProduction(t *testing.T) {
	prod := func() *Config {
		c := validConfig()
		c.Env = "production"
		c.SanityProjectID = "abc123"
		c.DBPassword = "a-strong-password"
		c.DBSSLMode = "require"
		c.BlobDriver = BlobDriverGCS
		c.BlobBucket = "parks-media"
		return c
	}

	assert.NoError(t, prod().Validate())

	c := prod()
	c.SanityWebhookSecret = ""
	assert.Error(t, c.Validate(), "webhook secret is mandatory in production")

	c = prod()
	c.DBSSLMode = "disable"
	assert.Error(t, c.Validate())

	c = prod()
	c.DatabaseURL = "postgres://parks:secret@db/parks?sslmode=require"
	c.DBPassword = ""
	assert.NoError(t, c.Validate(), "DATABASE_URL supersedes discrete DB settings")

	c = prod()
	c.BlobDriver = BlobDriverLocal
	assert.Error(t, c.Validate())

	c = prod()
	c.IdentityJWTSecret = "short"
	assert.Error(t, c.Validate())
}

func TestConfig_UploadMaxBytes(t *testing.T) {
	c := validConfig()
	assert.Equal(t, int64(5*1024*1024), c.UploadMaxBytes())
	c.UploadMaxMB = 2
	assert.Equal(t, int64(2*1024*1024), c.UploadMaxBytes())
}

func TestLoadConfig_Normalization(t *testing.T) {
	defer os.Unsetenv("APP_ENV")
	defer os.Unsetenv("DB_SSLMODE")
	defer os.Unsetenv("THING_DEFAULT_STATUS")
	defer viper.Reset()

	os.Setenv("APP_ENV", "development")
	os.Setenv("DB_SSLMODE", "  DISABLE  ")
	os.Setenv("THING_DEFAULT_STATUS", " Pending ")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, StatusPending, c.ThingDefaultStatus)
	assert.Equal(t, SyncModeDocument, c.WebhookSyncMode)
	assert.Equal(t, 5, c.UploadMaxMB)
}
