package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"rendezvous/auth"
	"rendezvous/client"
	"rendezvous/domain"
	"strconv"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var userID int64
	var msgpack bool
	var url string

	cmd := &cobra.Command{
		Use:          "rendezvous-client",
		Short:        "Terminal client for the rendezvous chat server",
		Long:         "Connects as one user, keeps the session alive and prints messages, presence and typing of the joined conversations.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			var config Config
			if _, err := env.UnmarshalFromEnviron(&config); err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if url != "" {
				config.ServerURL = url
			}
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive id")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, config, domain.UserID(userID), msgpack, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 0, "user id to connect as")
	cmd.Flags().BoolVar(&msgpack, "msgpack", false, "use MessagePack binary frames instead of JSON")
	cmd.Flags().StringVar(&url, "url", "", "WebSocket endpoint, overrides SERVER_URL")
	return cmd
}

func run(ctx context.Context, config Config, userID domain.UserID, msgpack bool, in io.Reader, out io.Writer) error {
	log := logs.GetLoggerFromString(config.LogLevel)

	clientConfig := client.DefaultConfig(userID)
	if config.JWTSecret != "" {
		token, err := auth.NewTokens(config.JWTSecret, config.AuthTokenDuration).Generate(userID)
		if err != nil {
			return fmt.Errorf("token: %w", err)
		}
		clientConfig.Token = token
	}

	c := client.New(log, client.NewWebSocketDialer(log, config.ServerURL, msgpack), clientConfig)
	defer func() { _ = c.Close() }()

	view := newRenderer(out, userID, config.Colours)
	presence := client.NewPresenceTracker()
	drafts := client.NewDrafts()
	c.Subscribe(presence.Observe)
	c.Subscribe(drafts.Observe)
	c.Subscribe(view.Event)
	c.OnStateChange(view.State)

	if err := c.Connect(ctx); err != nil {
		return err
	}

	s := &shell{
		client:   c,
		api:      newHTTPAPI(config.ServerURL, userID, clientConfig.Token),
		view:     view,
		presence: presence,
		drafts:   drafts,
		typing:   make(map[domain.ConversationID]*client.TypingDebouncer),
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	view.Info("Commands: /with <user>, /join <conv>, /leave <conv>, /history [cursor], /draft <text>, /send, /online <user>, /reset, /quit")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := s.handle(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// shell runs one line of user input against the client.
type shell struct {
	client   *client.Client
	api      *httpAPI
	view     *renderer
	presence *client.PresenceTracker
	drafts   *client.Drafts
	typing   map[domain.ConversationID]*client.TypingDebouncer
	current  domain.ConversationID
}

func (s *shell) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		s.draft(line)
		s.send()
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit":
		return true
	case "/with":
		other, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			s.view.Failure(fmt.Errorf("usage: /with <user id>"))
			return false
		}
		conversation, err := s.api.CreateConversation(ctx, domain.UserID(other))
		if err != nil {
			s.view.Failure(err)
			return false
		}
		s.join(conversation.ID)
	case "/join":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			s.view.Failure(fmt.Errorf("usage: /join <conversation id>"))
			return false
		}
		s.join(domain.ConversationID(id))
	case "/leave":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			s.view.Failure(fmt.Errorf("usage: /leave <conversation id>"))
			return false
		}
		if err = s.client.Leave(domain.ConversationID(id)); err != nil {
			s.view.Failure(err)
		}
	case "/history":
		if s.current == 0 {
			s.view.Failure(fmt.Errorf("join a conversation first"))
			return false
		}
		var cursor *string
		if arg != "" {
			cursor = &arg
		}
		page, err := s.api.Messages(ctx, s.current, cursor)
		if err != nil {
			s.view.Failure(err)
			return false
		}
		s.view.History(page)
	case "/draft":
		s.draft(arg)
	case "/send":
		s.send()
	case "/online":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			s.view.Failure(fmt.Errorf("usage: /online <user id>"))
			return false
		}
		s.view.Info(fmt.Sprintf("user %d online: %t", id, s.presence.IsOnline(domain.UserID(id))))
	case "/reset":
		if !s.client.Reset() {
			s.view.Info("client is not failed, nothing to reset")
		}
	default:
		s.view.Failure(fmt.Errorf("unknown command %s", name))
	}
	return false
}

func (s *shell) join(id domain.ConversationID) {
	if err := s.client.Join(id); err != nil {
		s.view.Failure(err)
		return
	}
	s.current = id
}

func (s *shell) draft(text string) {
	if s.current == 0 {
		s.view.Failure(fmt.Errorf("join a conversation first"))
		return
	}
	s.drafts.Set(s.current, text)
	s.debouncer(s.current).Input()
}

func (s *shell) send() {
	if s.current == 0 {
		return
	}
	s.debouncer(s.current).Flush()
	if err := s.client.Send(s.drafts.Sending(s.current)); err != nil {
		s.view.Failure(err)
	}
}

func (s *shell) debouncer(id domain.ConversationID) *client.TypingDebouncer {
	d, ok := s.typing[id]
	if !ok {
		d = client.NewTypingDebouncer(id, client.DefaultTypingDebounce, func(cmd domain.Command) {
			_ = s.client.Send(cmd)
		})
		s.typing[id] = d
	}
	return d
}
