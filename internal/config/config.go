package config

import (
	"fmt"
	"strings"

	libconfig "zoneadmin/libs/config"
)

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port string `yaml:"port" env:"HTTP_PORT"`
}

// DatabaseConfig holds the postgres DSN.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
}

// RedisConfig is optional; when Addr is empty the shared token cache is
// skipped and tokens are cached in-process.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

// AuthConfig verifies bearer tokens minted by the external auth service.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// MomoConfig carries the provider credentials.
type MomoConfig struct {
	BaseURL           string `yaml:"base_url" env:"MOMO_BASE_URL"`
	APIUser           string `yaml:"api_user" env:"MOMO_API_USER"`
	APIKey            string `yaml:"api_key" env:"MOMO_API_KEY"`
	SubscriptionKey   string `yaml:"subscription_key" env:"MOMO_SUBSCRIPTION_KEY"`
	TargetEnvironment string `yaml:"target_environment" env:"MOMO_TARGET_ENVIRONMENT"`
	CallbackHost      string `yaml:"callback_host" env:"MOMO_CALLBACK_HOST"`
}

// DefaultsConfig sets per-deployment fallbacks for new transactions.
type DefaultsConfig struct {
	CountryCode string `yaml:"country_code" env:"DEFAULT_COUNTRY_CODE"`
	Currency    string `yaml:"currency" env:"DEFAULT_CURRENCY"`
}

// Config defines payment service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Momo     MomoConfig     `yaml:"momo"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Load reads configuration from file/env and validates it eagerly; a missing
// required value is fatal at startup, not at first use.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{Port: "8084"},
		Momo: MomoConfig{TargetEnvironment: "sandbox"},
		Defaults: DefaultsConfig{
			CountryCode: "250",
			Currency:    "RWF",
		},
	}

	if err := libconfig.Load(cfg); err != nil {
		return nil, err
	}

	required := []struct {
		name  string
		value string
	}{
		{"database dsn", cfg.Database.DSN},
		{"jwt secret", cfg.Auth.JWTSecret},
		{"momo base url", cfg.Momo.BaseURL},
		{"momo api user", cfg.Momo.APIUser},
		{"momo api key", cfg.Momo.APIKey},
		{"momo subscription key", cfg.Momo.SubscriptionKey},
		{"momo target environment", cfg.Momo.TargetEnvironment},
		{"default country code", cfg.Defaults.CountryCode},
		{"default currency", cfg.Defaults.Currency},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return nil, fmt.Errorf("config: %s required", field.name)
		}
	}

	return cfg, nil
}

// HTTPAddress returns :port style string.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8084"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
