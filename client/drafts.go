package client

import (
	"rendezvous/domain"
	"rendezvous/domain/event"
	"sync"
)

// Drafts keeps what the user composed per conversation until the server
// confirms it. A message:error leaves the draft in place so nothing typed is lost.
type Drafts struct {
	mu       sync.Mutex
	drafts   map[domain.ConversationID]string
	inFlight map[domain.ConversationID]string
}

func NewDrafts() *Drafts {
	return &Drafts{
		drafts:   make(map[domain.ConversationID]string),
		inFlight: make(map[domain.ConversationID]string),
	}
}

func (d *Drafts) Set(conversationID domain.ConversationID, content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drafts[conversationID] = content
}

func (d *Drafts) Get(conversationID domain.ConversationID) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drafts[conversationID]
}

// Sending marks the current draft as sent and returns it as a message:send command.
func (d *Drafts) Sending(conversationID domain.ConversationID) domain.MessageSend {
	d.mu.Lock()
	defer d.mu.Unlock()
	content := d.drafts[conversationID]
	d.inFlight[conversationID] = content
	return domain.MessageSend{ConversationID: conversationID, Content: content}
}

// Observe is meant to be passed to Client.Subscribe.
func (d *Drafts) Observe(e event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch ack := e.(type) {
	case event.MessageSent:
		sent, ok := d.inFlight[ack.ConversationID]
		delete(d.inFlight, ack.ConversationID)
		// Keep anything typed after the send
		if ok && d.drafts[ack.ConversationID] == sent {
			delete(d.drafts, ack.ConversationID)
		}
	case event.MessageError:
		delete(d.inFlight, ack.ConversationID)
	}
}
