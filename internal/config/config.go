package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Server   Server
	Database Database
	Redis    Redis
	JWT      JWT
	Crypto   Crypto
	Push     Push
	Uploads  Uploads
	Log      Log
}

type Server struct {
	Addr string
}

type Database struct {
	DSN string
}

type Redis struct {
	Addr string
}

type JWT struct {
	Secret   string
	TTLHours int `mapstructure:"ttl_hours"`
}

type Crypto struct {
	// MessageKey is the secret the at-rest message codec derives its key from.
	MessageKey string `mapstructure:"message_key"`
}

type Push struct {
	Endpoint string
	APIKey   string `mapstructure:"api_key"`
}

type Uploads struct {
	Dir     string
	BaseURL string `mapstructure:"base_url"`
}

type Log struct {
	Level string
}

// Load reads config.yaml if present and overlays environment variables
// (SERVER_ADDR, DATABASE_DSN, JWT_SECRET, REDIS_ADDR, ...), so the same
// binary runs from a file in dev and from env in Docker.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl_hours", 24)
	v.SetDefault("crypto.message_key", "")
	v.SetDefault("push.endpoint", "")
	v.SetDefault("push.api_key", "")
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.base_url", "/uploads/")
	v.SetDefault("log.level", "info")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	// DATABASE_DSN overrides database.dsn and so on.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "config.Load.ReadInConfig")
		}
		// No file is fine; env vars carry the required values.
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "config.Load.Unmarshal")
	}

	if c.Database.DSN == "" {
		return nil, errors.New("database.dsn (DATABASE_DSN) is not set")
	}
	if c.JWT.Secret == "" {
		return nil, errors.New("jwt.secret (JWT_SECRET) is not set")
	}
	if c.Crypto.MessageKey == "" {
		return nil, errors.New("crypto.message_key (CRYPTO_MESSAGE_KEY) is not set")
	}

	return &c, nil
}
