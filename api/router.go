// Package api serves the HTTP side of the server: the WebSocket endpoint,
// the message history pull path, conversation creation and metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"rendezvous/auth"
	"rendezvous/contract"
	"rendezvous/domain"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// History reads a page of a conversation, newest first.
type History interface {
	GetMessages(conversationID domain.ConversationID, cursor *string) ([]domain.Message, *string, error)
}

// Conversations creates and checks conversations.
type Conversations interface {
	contract.ConversationStore
	CreateConversation(ctx context.Context, a, b domain.UserID) (domain.Conversation, bool, error)
}

type Deps struct {
	Log           *slog.Logger
	WebSocket     http.Handler
	Resolver      contract.IdentityResolver
	History       History
	Conversations Conversations
	Gatherer      prometheus.Gatherer
}

type handlers struct {
	log           *slog.Logger
	history       History
	conversations Conversations
	validate      *validator.Validate
}

func NewRouter(deps Deps) http.Handler {
	h := handlers{
		log:           deps.Log,
		history:       deps.History,
		conversations: deps.Conversations,
		validate:      validator.New(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	// Authentication happens inside the socket with the first frame
	r.Handle("/ws", deps.WebSocket)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(deps.Resolver))
		r.Post("/conversations", h.createConversation)
		r.Get("/conversations/{id}/messages", h.listMessages)
	})
	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
