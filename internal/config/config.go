package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            int
	NatsURL         string
	DatabaseURL     string
	LogLevel        string
	GatewayTimeout  time.Duration
	DiscordBotToken string
}

func Load() Config {
	return Config{
		Port:            envInt("PULSE_PORT", 8750),
		NatsURL:         envStr("NATS_URL", "nats://hermes:4222"),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		GatewayTimeout:  time.Duration(envInt("GATEWAY_TIMEOUT_MS", 3000)) * time.Millisecond,
		DiscordBotToken: envStr("DISCORD_BOT_TOKEN", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
