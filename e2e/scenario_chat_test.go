package e2e

import (
	"context"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type testChatSuite struct {
	BaseSuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func (s *testChatSuite) TestHealth() {
	conn := s.GrpcConn(s.T(), "Health check")
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	s.Require().NoError(err)
	s.Require().Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func (s *testChatSuite) TestTwoUsersChat() {
	alice, bob := s.NewUserID(), s.NewUserID()
	var conversationID domain.ConversationID

	s.Run("Step 1: Create the conversation", func() {
		s.Step(s.T(), "POST /conversations")
		conversationID = s.CreateConversation(alice, bob)
		s.Require().NotZero(conversationID)
	})

	aliceClient, aliceInbox := s.Connect(alice)
	bobClient, bobInbox := s.Connect(bob)

	s.Run("Step 2: Presence reaches the partner", func() {
		s.Step(s.T(), "presence:update")
		update := s.Await(aliceInbox, "presence of bob", func(e event.Event) bool {
			p, ok := e.(event.PresenceUpdate)
			return ok && p.UserID == bob && p.IsOnline
		})
		s.Require().False(update.(event.PresenceUpdate).Timestamp.IsZero())
	})

	s.Run("Step 3: Both users join the room", func() {
		s.Step(s.T(), "room:join")
		s.Require().NoError(aliceClient.Join(conversationID))
		s.Require().NoError(bobClient.Join(conversationID))
		s.Await(aliceInbox, "room:joined", func(e event.Event) bool {
			j, ok := e.(event.RoomJoined)
			return ok && j.ConversationID == conversationID
		})
		s.Await(bobInbox, "room:joined", func(e event.Event) bool {
			j, ok := e.(event.RoomJoined)
			return ok && j.ConversationID == conversationID
		})
	})

	s.Run("Step 4: Typing indicator", func() {
		s.Step(s.T(), "typing:start")
		s.Require().NoError(aliceClient.Send(domain.TypingStart{ConversationID: conversationID}))
		s.Await(bobInbox, "typing of alice", func(e event.Event) bool {
			u, ok := e.(event.TypingUpdate)
			return ok && u.UserID == alice && u.IsTyping
		})
	})

	s.Run("Step 5: Message is acknowledged and delivered", func() {
		s.Step(s.T(), "message:send")
		s.Require().NoError(aliceClient.Send(domain.MessageSend{ConversationID: conversationID, Content: "hello bob"}))
		s.Await(aliceInbox, "message:sent", func(e event.Event) bool {
			ack, ok := e.(event.MessageSent)
			return ok && ack.ConversationID == conversationID && ack.Success
		})
		received := s.Await(bobInbox, "message:new", func(e event.Event) bool {
			m, ok := e.(event.MessageNew)
			return ok && m.ConversationID == conversationID
		}).(event.MessageNew)
		s.Require().Equal("hello bob", received.Content)
		s.Require().Equal(alice, received.SenderID)
	})

	s.Run("Step 6: Offline transition", func() {
		s.Step(s.T(), "disconnect")
		s.Require().NoError(bobClient.Close())
		s.Await(aliceInbox, "bob offline", func(e event.Event) bool {
			p, ok := e.(event.PresenceUpdate)
			return ok && p.UserID == bob && !p.IsOnline
		})
	})
}
