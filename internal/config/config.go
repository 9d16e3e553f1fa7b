package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Addr      string
	JWTSecret string
	Store     string // "memory" or "redis"
	RedisAddr string
	LogLevel  string
}

// Load reads .env if present, then the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:      getEnv("SC_ADDR", ":8080"),
		JWTSecret: mustEnv("SC_JWT_SECRET"),
		Store:     getEnv("SC_STORE", "memory"),
		RedisAddr: getEnv("SC_REDIS_ADDR", "localhost:6379"),
		LogLevel:  getEnv("SC_LOG_LEVEL", "info"),
	}
}

func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatal().Str("key", key).Msg("Required environment variable not set")
	}
	return v
}
