package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/lumiohq/syncstack/internal/kv"
	"github.com/lumiohq/syncstack/internal/logger"
	"github.com/lumiohq/syncstack/internal/tracing"
	"github.com/lumiohq/syncstack/services/webhook"
)

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *DatabaseConfig
	RedisConfig    *kv.RedisConfig
	WebhookConfig  *webhook.Config
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:      &AppConfig{},
		Logger:         &logger.Config{},
		Tracing:        &tracing.JaegerConfig{},
		DatabaseConfig: &DatabaseConfig{},
		RedisConfig:    &kv.RedisConfig{},
		WebhookConfig:  &webhook.Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading syncstack config: %v", err)
	}

	return config, nil
}
