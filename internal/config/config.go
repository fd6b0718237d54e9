package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopscout/shopscout/internal/ratelimit"
)

type Config struct {
	Server     ServerConfig                      `json:"server"`
	Redis      RedisConfig                       `json:"redis"`
	Postgres   PostgresConfig                    `json:"postgres"`
	Geocoder   ProviderConfig                    `json:"geocoder"`
	POISearch  ProviderConfig                    `json:"poi_search"`
	Catalog    ProviderConfig                    `json:"catalog"`
	Pricing    PricingConfig                     `json:"pricing"`
	RateLimits map[string]ratelimit.BucketConfig `json:"rate_limits"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type ProviderConfig struct {
	BaseURL        string `json:"base_url"`
	UserAgent      string `json:"user_agent"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Attempts       int    `json:"attempts"`
	BreakerTrips   int    `json:"breaker_trip_after"`
	BreakerOpenSec int    `json:"breaker_open_seconds"`
}

func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (p ProviderConfig) BreakerOpenFor() time.Duration {
	if p.BreakerOpenSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(p.BreakerOpenSec) * time.Second
}

type PricingConfig struct {
	ProviderConfig
	TokenURL     string `json:"token_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope"`
	Enabled      bool   `json:"enabled"`
}

func Load(path string) (*Config, error) {
	config := defaults()

	if file, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(config)
	return config, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Environment: "development"},
		Redis:  RedisConfig{Host: "localhost", Port: "6379"},
		Postgres: PostgresConfig{
			DSN: "host=localhost user=shopscout password=shopscout dbname=shopscout port=5432 sslmode=disable",
		},
		Geocoder: ProviderConfig{
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "shopscout/1.0",
			Attempts:  3,
		},
		POISearch: ProviderConfig{
			BaseURL:  "https://overpass-api.de",
			Attempts: 3,
		},
		Catalog: ProviderConfig{
			BaseURL:   "https://world.openfoodfacts.org",
			UserAgent: "shopscout/1.0",
			Attempts:  3,
		},
		Pricing: PricingConfig{
			ProviderConfig: ProviderConfig{
				BaseURL:  "https://api.kroger.com",
				Attempts: 2,
			},
			TokenURL: "https://api.kroger.com/v1/connect/oauth2/token",
			Scope:    "product.compact",
		},
		RateLimits: map[string]ratelimit.BucketConfig{
			ratelimit.OpStoreSearch:   {Capacity: 10, RefillRate: 0.2},
			ratelimit.OpProductLookup: {Capacity: 30, RefillRate: 0.5},
			ratelimit.OpProductSearch: {Capacity: 15, RefillRate: 0.25},
			ratelimit.OpQuote:         {Capacity: 10, RefillRate: 0.2},
			ratelimit.OpSubmitPrice:   {Capacity: 20, RefillRate: 0.1},
			ratelimit.OpLivePrice:     {Capacity: 60, RefillRate: 1},
			ratelimit.OpGeocode:       {Capacity: 5, RefillRate: 0.1},
			ratelimit.OpPOISearch:     {Capacity: 5, RefillRate: 0.1},
		},
	}
}

// applyEnv overlays secrets and connection settings from the environment.
func applyEnv(config *Config) {
	if v := os.Getenv("PORT"); v != "" {
		config.Server.Port = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		config.Server.Environment = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		config.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		config.Redis.Port = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		config.Postgres.DSN = v
	}
	if v := os.Getenv("PRICING_CLIENT_ID"); v != "" {
		config.Pricing.ClientID = v
	}
	if v := os.Getenv("PRICING_CLIENT_SECRET"); v != "" {
		config.Pricing.ClientSecret = v
	}
	if config.Pricing.ClientID != "" && config.Pricing.ClientSecret != "" {
		config.Pricing.Enabled = true
	}
}
