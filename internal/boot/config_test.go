package boot

import (
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
)

func TestLoadFrom(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		assert := assert.New(t)

		config, err := LoadFrom(envconfig.MapLookuper(map[string]string{
			"BASE_URL": "https://hive.social/",
		}))
		assert.Nil(err)
		if config == nil {
			return
		}
		assert.Equal("https://hive.social", config.BaseURL)
		assert.Equal("hive.social", config.Host())
		assert.True(config.IsDevelopment())
		assert.Equal("8080", config.Server.Port)
		assert.Equal("sqlite3", config.DatabaseDriver())
		assert.Equal("sqlite", config.Cache.Driver)
		assert.Equal(10*time.Minute, config.Cache.TTL)
		assert.Equal(10*time.Second, config.Federation.Timeout)
		assert.Equal([]string{"*"}, config.AllowedOrigins())
	})

	t.Run("Overrides", func(t *testing.T) {
		assert := assert.New(t)

		config, err := LoadFrom(envconfig.MapLookuper(map[string]string{
			"ENV":             "prod",
			"BASE_URL":        "http://localhost:8080",
			"DB_DRIVER":       "postgres",
			"DATABASE_URL":    "postgres://localhost/hive?sslmode=disable",
			"ACTOR_CACHE":     "redis",
			"ACTOR_CACHE_TTL": "1h",
			"ALLOWED_ORIGINS": "https://a.social, https://b.social",
		}))
		assert.Nil(err)
		if config == nil {
			return
		}
		assert.True(config.IsProduction())
		assert.Equal("localhost:8080", config.Host())
		assert.Equal("postgres", config.DatabaseDriver())
		assert.Equal("redis", config.Cache.Driver)
		assert.Equal(time.Hour, config.Cache.TTL)
		assert.Equal([]string{"https://a.social", "https://b.social"}, config.AllowedOrigins())
	})

	t.Run("Missing base URL", func(t *testing.T) {
		_, err := LoadFrom(envconfig.MapLookuper(map[string]string{}))
		assert.NotNil(t, err)
	})

	t.Run("Invalid base URL", func(t *testing.T) {
		_, err := LoadFrom(envconfig.MapLookuper(map[string]string{"BASE_URL": "hive"}))
		assert.NotNil(t, err)
	})
}
