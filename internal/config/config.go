package config

import (
	"log"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds everything the server reads from the environment.
type Config struct {
	HTTPAddr       string        `env:"HTTP_ADDR" env-default:":3001"`
	DatabaseDSN    string        `env:"DB_DSN" env-required:"true"`
	RedisAddr      string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RunnerURL      string        `env:"RUNNER_URL" env-default:"http://localhost:8000"`
	CallbackSecret string        `env:"CALLBACK_SECRET" env-required:"true"`
	LogLevel       string        `env:"LOG_LEVEL" env-default:"info"`
	HistoryTTL     time.Duration `env:"HISTORY_CACHE_TTL" env-default:"30s"`
}

// MustLoad reads the environment and exits if a required value is missing.
func MustLoad() *Config {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}
