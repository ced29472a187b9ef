package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"rendezvous/auth"
	"rendezvous/client"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerURL == "" {
		s.T().Skip("E2E_SERVER_URL is not set")
	}
}

// Step prints a colorized header for a scenario step in logs
func (s *BaseSuite) Step(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// GrpcConn opens a connection to the health endpoint and logs every call
func (s *BaseSuite) GrpcConn(t *testing.T, name string) *grpc.ClientConn {
	s.Step(t, name)
	conn, err := grpc.NewClient(s.Config.HealthAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)
			t.Logf("GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.HealthAddr)
	return conn
}

// NewUserID picks an id unlikely to collide with previous runs against the same database
func (s *BaseSuite) NewUserID() domain.UserID {
	return domain.UserID(1_000_000 + rand.Int64N(1_000_000_000))
}

// Connect opens a client session for userID and records every event it receives
func (s *BaseSuite) Connect(userID domain.UserID) (*client.Client, *Inbox) {
	log := logs.GetLoggerFromString("WARN")
	config := client.DefaultConfig(userID)
	if s.Config.JWTSecret != "" {
		token, err := auth.NewTokens(s.Config.JWTSecret, time.Hour).Generate(userID)
		s.Require().NoError(err)
		config.Token = token
	}
	c := client.New(log, client.NewWebSocketDialer(log, s.Config.ServerURL, s.Config.Msgpack), config)
	inbox := &Inbox{}
	c.Subscribe(inbox.add)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Require().NoError(c.Connect(ctx))
	s.T().Cleanup(func() { _ = c.Close() })
	return c, inbox
}

// CreateConversation calls the REST endpoint as caller
func (s *BaseSuite) CreateConversation(caller, other domain.UserID) domain.ConversationID {
	base := strings.TrimSuffix(strings.Replace(s.Config.ServerURL, "ws", "http", 1), "/ws")
	body, err := json.Marshal(map[string]domain.UserID{"otherUserId": other})
	s.Require().NoError(err)

	req, err := http.NewRequest(http.MethodPost, base+"/conversations", bytes.NewReader(body))
	s.Require().NoError(err)
	req.Header.Set(auth.UserIDHeader, caller.String())
	if s.Config.JWTSecret != "" {
		token, err := auth.NewTokens(s.Config.JWTSecret, time.Hour).Generate(caller)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer func() { _ = resp.Body.Close() }()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	var out struct {
		ID domain.ConversationID `json:"id"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	return out.ID
}

// Inbox keeps the events of one client in arrival order.
type Inbox struct {
	mu     sync.Mutex
	events []event.Event
}

func (i *Inbox) add(e event.Event) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events = append(i.events, e)
}

// Find returns the first event matching match.
func (i *Inbox) Find(match func(event.Event) bool) (event.Event, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, e := range i.events {
		if match(e) {
			return e, true
		}
	}
	return nil, false
}

// Await waits until an event matching match arrives.
func (s *BaseSuite) Await(inbox *Inbox, what string, match func(event.Event) bool) event.Event {
	var found event.Event
	s.Require().Eventuallyf(func() bool {
		var ok bool
		found, ok = inbox.Find(match)
		return ok
	}, 5*time.Second, 20*time.Millisecond, "no %s received", what)
	return found
}
