package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"rendezvous/api"
	"rendezvous/auth"
	"rendezvous/contract"
	"rendezvous/moderation"
	"rendezvous/observability"
	"rendezvous/repositories"
	"rendezvous/runtime"
	"rendezvous/runtime/workers"
	"rendezvous/transport/ws"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal arrives. Deferred
// cleanups run before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	// Messages are acknowledged only once persisted, so writes are synced to disk
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithSyncWrites(config.SyncWrites).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	conversations, err := repositories.NewConversationRepository(db)
	if err != nil {
		return exitRuntime, fmt.Errorf("conversation repository: %w", err)
	}
	defer func() { _ = conversations.Close() }()
	messages := repositories.NewMessageRepository(db, log, config.HistoryLimit)

	// 3. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(reg)

	// 4. Identity
	var resolver contract.IdentityResolver = auth.TrustResolver{}
	if config.JWTSecret != "" {
		resolver = auth.NewTokenResolver(auth.NewTokens(config.JWTSecret, config.AuthTokenDuration))
	} else {
		log.Warn("JWT_SECRET is not set, the claimed user id is trusted")
	}

	// 5. Runtime
	registry := runtime.NewRegistry(log, metrics)
	presence := runtime.NewPresenceBroadcaster(log, registry, conversations, config.StoreTimeout, metrics)
	registry.Notify(presence)
	rooms := runtime.NewRooms(log, conversations)
	typing := runtime.NewTyping(log, registry, rooms, config.TypingTimeout, metrics)
	pipeline := runtime.NewFanoutPipeline(log, registry, conversations, messages, config.MaxContentLength, metrics)
	if config.Moderation {
		moderator, err := newModerator(config, log)
		if err != nil {
			return exitConfig, err
		}
		pipeline.WithFilter(moderator)
	}
	hub := runtime.NewHub(log, registry, rooms, typing, pipeline)

	// 6. Transport
	wsConfig := ws.DefaultConfig()
	wsConfig.HandshakeTimeout = config.HandshakeTimeout
	wsConfig.ReadTimeout = config.ReadTimeout
	wsConfig.WriteTimeout = config.WriteTimeout
	wsConfig.SendBuffer = config.SendBuffer
	wsServer := ws.NewServer(log, hub, resolver, metrics, wsConfig)
	// Registered after the database so sessions stop writing before it closes
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		if err := wsServer.Shutdown(ctx); err != nil {
			log.Warn("WebSocket sessions still running at shutdown", "error", err)
		}
	}()
	router := api.NewRouter(api.Deps{
		Log:           log,
		WebSocket:     wsServer,
		Resolver:      resolver,
		History:       messages,
		Conversations: conversations,
		Gatherer:      reg,
	})

	// 7. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 8. Supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewHTTPServerWorker(log, config.HTTPAddr, router, config.ShutdownTimeout),
		workers.NewHealthWorker(log, config.HealthAddr),
		workers.NewProcessStatsWorker(log, config.ProcessStatsInterval, metrics),
		workers.NewSendBufferWorker(log, registry, metrics, config.ProcessStatsInterval),
	)
	log.Info("Server starting", "http", config.HTTPAddr, "health", config.HealthAddr)
	sup.Run(ctx)

	log.Info("Program stopped cleanly")
	return exitOK, nil
}

// newModerator builds the content filter from the word lists shipped with the server.
func newModerator(config Config, log *slog.Logger) (*moderation.Moderator, error) {
	charReplacement, err := config.CharacterRune()
	if err != nil {
		return nil, err
	}
	dictionary, err := moderation.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("moderation words: %w", err)
	}
	log.Info("Moderation enabled", "words", len(dictionary.Words), "languages", dictionary.Languages)
	return moderation.NewModerator(dictionary.Words, charReplacement, log)
}
