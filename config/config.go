package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling; every key is also bound to
// the environment variable of the same name.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisPass   string `mapstructure:"REDIS_PASSWORD"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	ClientURL       string `mapstructure:"CLIENT_URL"`
	SecureCookies   bool   `mapstructure:"SECURE_COOKIES"`
	SessionTTLHours int    `mapstructure:"SESSION_TTL_HOURS"`

	GoogleClientID      string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret  string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL   string `mapstructure:"GOOGLE_CALLBACK_URL"`
	SpotifyClientID     string `mapstructure:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `mapstructure:"SPOTIFY_CLIENT_SECRET"`
	SpotifyCallbackURL  string `mapstructure:"SPOTIFY_CALLBACK_URL"`
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/vibestream/")
	v.AddConfigPath("$HOME/.vibestream")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "3001")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/vibestream_dev")
	v.SetDefault("MONGO_DB_NAME", "vibestream_dev")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("CLIENT_URL", "http://localhost:3000")
	v.SetDefault("SECURE_COOKIES", false)
	v.SetDefault("SESSION_TTL_HOURS", 24)
	v.SetDefault("GOOGLE_CALLBACK_URL", "http://localhost:3001/api/auth/google/callback")
	v.SetDefault("SPOTIFY_CALLBACK_URL", "http://localhost:3001/api/auth/spotify/callback")

	// Keys without defaults must be declared for AutomaticEnv to feed them
	// into Unmarshal.
	for _, key := range []string{
		"REDIS_PASSWORD",
		"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
		"SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars apply.
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
