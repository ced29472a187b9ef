package main

import "time"

type Config struct {
	ServerURL         string        `env:"SERVER_URL,default=ws://localhost:8080/ws"`
	JWTSecret         string        `env:"JWT_SECRET"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	LogLevel          string        `env:"LOG_LEVEL,default=WARN"`
	Colours           bool          `env:"COLOURS,default=true"`
}
