package main

import (
	"fmt"
	"time"
)

type Config struct {
	HTTPAddr             string        `env:"HTTP_ADDR,default=:8080"`
	HealthAddr           string        `env:"HEALTH_ADDR,default=:8081"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	SyncWrites           bool          `env:"SYNC_WRITES,default=true"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	TypingTimeout        time.Duration `env:"TYPING_TIMEOUT,default=2s"`
	HandshakeTimeout     time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s"`
	ReadTimeout          time.Duration `env:"READ_TIMEOUT,default=60s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	StoreTimeout         time.Duration `env:"STORE_TIMEOUT,default=5s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	SendBuffer           int           `env:"SEND_BUFFER,default=256"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	HistoryLimit         int           `env:"HISTORY_LIMIT,default=50"`
	JWTSecret            string        `env:"JWT_SECRET"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	Moderation           bool          `env:"MODERATION,default=false"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ProcessStatsInterval time.Duration `env:"PROCESS_STATS_INTERVAL,default=15s"`
}

func (c Config) CharacterRune() (rune, error) {
	r := []rune(c.CharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			c.CharReplacement,
		)
	}
	return r[0], nil
}
