// Package ws exposes the realtime core over WebSocket.
//
// A connection must authenticate with its first frame. It is then bound to a
// session in the registry and every following frame is decoded and handed to
// the hub, one at a time, until the peer goes away or stays silent for longer
// than the read timeout.
package ws

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"rendezvous/contract"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/errors"
	"rendezvous/observability"
	"rendezvous/protocol"
	"rendezvous/runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Config struct {
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	SendBuffer       int
	MaxMessageSize   int64
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		SendBuffer:       256,
		MaxMessageSize:   64 * 1024,
	}
}

type Server struct {
	log      *slog.Logger
	hub      *runtime.Hub
	resolver contract.IdentityResolver
	metrics  *observability.Metrics
	config   Config
	upgrader websocket.Upgrader

	mu       sync.Mutex
	draining bool
	handlers sync.WaitGroup
}

func NewServer(log *slog.Logger, hub *runtime.Hub, resolver contract.IdentityResolver,
	metrics *observability.Metrics, config Config) *Server {
	return &Server{
		log:      log,
		hub:      hub,
		resolver: resolver,
		metrics:  metrics,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{protocol.SubprotocolMsgpack},
		},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Hijacked connections outlive http.Server.Shutdown, they are tracked here instead
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.handlers.Add(1)
	s.mu.Unlock()
	defer s.handlers.Done()

	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("WebSocket upgrade failed", "error", err)
		return
	}
	socket.SetReadLimit(s.config.MaxMessageSize)
	codec := protocol.ForSubprotocol(socket.Subprotocol())

	userID, err := s.handshake(socket, codec)
	if err != nil {
		s.log.Info("Connection rejected", "remote", r.RemoteAddr, "error", err)
		s.metrics.ConnectionRejected(errors.Code(err))
		s.reject(socket, codec, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := newConn(socket, codec, s.log, s.metrics, s.config.SendBuffer, s.config.WriteTimeout)
	go conn.writeLoop()
	session := s.hub.Connect(userID, conn)
	defer func() {
		s.hub.Disconnect(conn)
		_ = conn.Close()
	}()

	s.readLoop(ctx, socket, codec, session)
}

// Shutdown refuses new connections, closes every session and waits for their
// read loops to return, so nothing touches the stores once it succeeds.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.hub.Close()

	drained := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		s.log.Info("WebSocket sessions drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining websocket sessions: %w", ctx.Err())
	}
}

// handshake waits for the authenticate command and resolves the identity.
// Anything else as first frame is a failed authentication.
func (s *Server) handshake(socket *websocket.Conn, codec protocol.Codec) (domain.UserID, error) {
	if err := socket.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout)); err != nil {
		return 0, err
	}
	_, data, err := socket.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("%w: no authenticate frame: %v", errors.ErrUnauthenticated, err)
	}
	cmd, err := protocol.DecodeCommand(codec, data)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	authenticate, ok := cmd.(domain.Authenticate)
	if !ok {
		return 0, fmt.Errorf("%w: first frame was %s", errors.ErrUnauthenticated, cmd.Type())
	}
	return s.resolver.Resolve(authenticate)
}

func (s *Server) reject(socket *websocket.Conn, codec protocol.Codec, err error) {
	defer func() { _ = socket.Close() }()
	code := errors.Code(err)
	if !stderrors.Is(err, errors.ErrUnauthenticated) {
		code = errors.CodeUnauthenticated
	}
	if err := writeEvent(socket, codec, event.Error{Error: code}, s.config.WriteTimeout); err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code)
	_ = socket.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.config.WriteTimeout))
}

func (s *Server) readLoop(ctx context.Context, socket *websocket.Conn, codec protocol.Codec, session *runtime.Session) {
	log := s.log.With("user_id", session.UserID, "conn_id", session.Conn.ID())
	for {
		if err := socket.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			return
		}
		_, data, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				log.Info("Read error", "error", err)
			}
			return
		}

		cmd, err := protocol.DecodeCommand(codec, data)
		if err != nil {
			log.Info("Undecodable frame", "error", err)
			if err := session.Send(event.Error{Error: errors.CodeInvalidInput}); err != nil {
				return
			}
			continue
		}
		s.hub.Handle(ctx, session, cmd)
	}
}
