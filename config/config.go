package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

/* Config is a helper package; it could become an external lib */

type Config struct {
	Port string `mapstructure:"PORT"`

	// Store selects the registry backend: memory, redis or postgres
	Store string `mapstructure:"STORE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	PostgresDSN string `mapstructure:"POSTGRES_DSN"`

	// WebhooksEnabled is the global kill switch for the whole
	// delivery subsystem
	WebhooksEnabled bool `mapstructure:"WEBHOOKS_ENABLED"`

	// EmailFallback enables the call-site email fallback when every
	// endpoint delivery for an event fails
	EmailFallback bool `mapstructure:"WEBHOOKS_EMAIL_FALLBACK"`

	// EndpointsFile optionally seeds the registry at startup
	EndpointsFile string `mapstructure:"ENDPOINTS_FILE"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("STORE", "memory")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("POSTGRES_DSN", "")
	viper.SetDefault("WEBHOOKS_ENABLED", true)
	viper.SetDefault("WEBHOOKS_EMAIL_FALLBACK", false)
	viper.SetDefault("ENDPOINTS_FILE", "")

	err := viper.ReadInConfig()
	if err != nil {
		// A missing .env is fine: defaults plus the environment cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	err = viper.Unmarshal(&config)
	if err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}
