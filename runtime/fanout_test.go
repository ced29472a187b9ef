package runtime

import (
	"context"
	"fmt"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/errors"
	"rendezvous/mocks"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func pair() *staticConversations {
	return newStaticConversations(domain.Conversation{ID: 100, Participants: [2]domain.UserID{1, 2}})
}

func TestFanout_Delivers_After_Persist(t *testing.T) {
	req := require.New(t)
	messages := &memoryMessages{}
	c := newCore(t, pair(), messages, time.Second)
	alice := newRecordingConn()
	bob := newRecordingConn()
	sender := c.hub.Connect(1, alice)
	c.hub.Connect(2, bob)

	// When A sends a message to the shared conversation
	msg, err := c.hub.pipeline.Send(context.Background(), sender, 100, "hello")

	// Then it is persisted, B receives it and A gets an acknowledgement
	req.NoError(err)
	req.Len(messages.messages, 1)
	received := eventsOf[event.MessageNew](bob)
	req.Len(received, 1)
	req.Equal(msg.ID.String(), received[0].ID)
	req.Equal("hello", received[0].Content)
	req.Equal(domain.UserID(1), received[0].SenderID)
	req.Equal([]event.MessageSent{{ConversationID: 100, Success: true}}, eventsOf[event.MessageSent](alice))
	req.Empty(eventsOf[event.MessageNew](alice))
	req.Empty(eventsOf[event.MessageError](alice))
}

func TestFanout_Invalid_Content_Never_Reaches_Store(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "whitespace only", content: "  \n\t "},
		{name: "too long", content: strings.Repeat("a", DefaultMaxContentLength+1)},
		{name: "too many characters", content: strings.Repeat("é", DefaultMaxContentLength+1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			messages := mocks.NewMockMessageStore(ctrl)
			messages.EXPECT().Persist(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			c := newCore(t, pair(), messages, time.Second)
			alice := newRecordingConn()
			bob := newRecordingConn()
			sender := c.hub.Connect(1, alice)
			c.hub.Connect(2, bob)

			_, err := c.hub.pipeline.Send(context.Background(), sender, 100, tc.content)

			req.ErrorIs(err, errors.ErrInvalidInput)
			req.Equal([]event.MessageError{{ConversationID: 100, Error: errors.CodeInvalidInput}}, eventsOf[event.MessageError](alice))
			req.Empty(eventsOf[event.MessageNew](bob))
		})
	}
}

func TestFanout_Max_Length_In_Characters_Is_Accepted(t *testing.T) {
	req := require.New(t)
	messages := &memoryMessages{}
	c := newCore(t, pair(), messages, time.Second)
	sender := c.hub.Connect(1, newRecordingConn())

	_, err := c.hub.pipeline.Send(context.Background(), sender, 100, strings.Repeat("é", DefaultMaxContentLength))

	req.NoError(err)
	req.Len(messages.messages, 1)
}

func TestFanout_Non_Participant_Is_Forbidden(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messages := mocks.NewMockMessageStore(ctrl)
	messages.EXPECT().Persist(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	c := newCore(t, pair(), messages, time.Second)
	mallory := newRecordingConn()
	sender := c.hub.Connect(3, mallory)

	_, err := c.hub.pipeline.Send(context.Background(), sender, 100, "hi")

	req.ErrorIs(err, errors.ErrForbidden)
	req.Equal([]event.MessageError{{ConversationID: 100, Error: errors.CodeForbidden}}, eventsOf[event.MessageError](mallory))
}

func TestFanout_Persistence_Failure_Only_Reaches_Sender(t *testing.T) {
	req := require.New(t)
	messages := &memoryMessages{err: fmt.Errorf("disk full")}
	c := newCore(t, pair(), messages, time.Second)
	alice := newRecordingConn()
	bob := newRecordingConn()
	sender := c.hub.Connect(1, alice)
	c.hub.Connect(2, bob)

	_, err := c.hub.pipeline.Send(context.Background(), sender, 100, "hello")

	req.ErrorIs(err, errors.ErrPersistenceFailure)
	req.Equal([]event.MessageError{{ConversationID: 100, Error: errors.CodePersistenceFailure}}, eventsOf[event.MessageError](alice))
	req.Empty(eventsOf[event.MessageSent](alice))
	req.Empty(eventsOf[event.MessageNew](bob))
}

func TestFanout_Offline_Recipient_Still_Persists(t *testing.T) {
	req := require.New(t)
	messages := &memoryMessages{}
	c := newCore(t, pair(), messages, time.Second)
	alice := newRecordingConn()
	sender := c.hub.Connect(1, alice)

	_, err := c.hub.pipeline.Send(context.Background(), sender, 100, "are you there?")

	req.NoError(err)
	req.Len(messages.messages, 1)
	req.Len(eventsOf[event.MessageSent](alice), 1)
}

func TestFanout_Content_Filter_Applies_Before_Persist(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	filter := mocks.NewMockContentFilter(ctrl)
	filter.EXPECT().Censor("darn it").Return("**** it")
	messages := &memoryMessages{}
	c := newCore(t, pair(), messages, time.Second)
	c.hub.pipeline.WithFilter(filter)
	bob := newRecordingConn()
	sender := c.hub.Connect(1, newRecordingConn())
	c.hub.Connect(2, bob)

	_, err := c.hub.pipeline.Send(context.Background(), sender, 100, "darn it")

	req.NoError(err)
	req.Equal("**** it", messages.messages[0].Content)
	req.Equal("**** it", eventsOf[event.MessageNew](bob)[0].Content)
}

// slowMessages persists the first message slowly so a second concurrent send
// would overtake it without sequencing.
type slowMessages struct {
	memoryMessages
	once sync.Once
}

func (s *slowMessages) Persist(ctx context.Context, conversationID domain.ConversationID, senderID domain.UserID, content string) (domain.Message, error) {
	s.once.Do(func() { time.Sleep(30 * time.Millisecond) })
	return s.memoryMessages.Persist(ctx, conversationID, senderID, content)
}

func TestFanout_Preserves_Sender_Order(t *testing.T) {
	req := require.New(t)
	messages := &slowMessages{}
	c := newCore(t, pair(), messages, time.Second)
	bob := newRecordingConn()
	sender := c.hub.Connect(1, newRecordingConn())
	c.hub.Connect(2, bob)

	// When m1 is sent and m2 follows while m1 is still being persisted
	first := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		close(first)
		_, _ = c.hub.pipeline.Send(context.Background(), sender, 100, "m1")
	}()
	go func() {
		defer wg.Done()
		<-first
		time.Sleep(5 * time.Millisecond)
		_, _ = c.hub.pipeline.Send(context.Background(), sender, 100, "m2")
	}()
	wg.Wait()

	// Then B receives m1 before m2
	received := eventsOf[event.MessageNew](bob)
	req.Len(received, 2)
	req.Equal("m1", received[0].Content)
	req.Equal("m2", received[1].Content)
	req.Equal("m1", messages.messages[0].Content)
}
