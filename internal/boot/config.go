package boot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Env     string `env:"ENV,default=dev"`
	BaseURL string `env:"BASE_URL,required"`
	Server  struct {
		Port        string `env:"PORT,default=8080"`
		MetricsPort string `env:"METRICS_PORT,default=8081"`
		Origins     string `env:"ALLOWED_ORIGINS,default=*"`
	}
	Database struct {
		Driver string `env:"DB_DRIVER,default=sqlite3"`
		DSN    string `env:"DATABASE_URL,default=file:hive.db"`
	}
	Cache struct {
		Driver   string        `env:"ACTOR_CACHE,default=sqlite"`
		TTL      time.Duration `env:"ACTOR_CACHE_TTL,default=10m"`
		RedisURL string        `env:"REDIS_URL"`
	}
	Federation struct {
		Timeout   time.Duration `env:"FEDERATION_TIMEOUT,default=10s"`
		UserAgent string        `env:"USER_AGENT"`
	}
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return LoadFrom(envconfig.OsLookuper())
}

func LoadFrom(lookuper envconfig.Lookuper) (*Config, error) {
	config := &Config{}
	if err := envconfig.ProcessWith(context.Background(), config, lookuper); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("parsing BASE_URL: %w", err)
	}
	return config, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "prod"
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "dev"
}

func (c *Config) DatabaseDriver() string {
	return c.Database.Driver
}

func (c *Config) DatabaseDSN() string {
	return c.Database.DSN
}

// Host is the authority part of BASE_URL, used as the domain of local
// account handles.
func (c *Config) Host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func (c *Config) LocalBaseURL() string {
	return c.BaseURL
}

func (c *Config) AllowedOrigins() []string {
	origins := []string{}
	for _, origin := range strings.Split(c.Server.Origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
