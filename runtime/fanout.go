package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"rendezvous/contract"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/errors"
	"rendezvous/observability"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

const DefaultMaxContentLength = 2000

type senderKey struct {
	conversationID domain.ConversationID
	senderID       domain.UserID
}

// FanoutPipeline persists a message and only then delivers it to the online recipients.
// Sends of one sender in one conversation are persisted and delivered in call order.
type FanoutPipeline struct {
	log              *slog.Logger
	registry         *Registry
	conversations    contract.ConversationStore
	messages         contract.MessageStore
	filter           contract.ContentFilter
	maxContentLength int
	sequencer        *sequencer[senderKey]
	metrics          *observability.Metrics
}

func NewFanoutPipeline(log *slog.Logger, registry *Registry, conversations contract.ConversationStore,
	messages contract.MessageStore, maxContentLength int, metrics *observability.Metrics) *FanoutPipeline {
	return &FanoutPipeline{
		log:              log,
		registry:         registry,
		conversations:    conversations,
		messages:         messages,
		maxContentLength: maxContentLength,
		sequencer:        newSequencer[senderKey](),
		metrics:          metrics,
	}
}

// WithFilter rewrites contents before they are persisted.
func (p *FanoutPipeline) WithFilter(filter contract.ContentFilter) *FanoutPipeline {
	p.filter = filter
	return p
}

// Send runs the whole pipeline for one message coming from sender.
// Every failure is reported to the sender only, as message:error, and returned.
func (p *FanoutPipeline) Send(ctx context.Context, sender *Session, conversationID domain.ConversationID, content string) (domain.Message, error) {
	message, err := p.send(ctx, sender.UserID, conversationID, content)
	if err != nil {
		p.log.Info("Message rejected",
			"user_id", sender.UserID,
			"conversation_id", conversationID,
			"error", err)
		p.metrics.MessageResult(errors.Code(err))
		p.reply(sender, event.MessageError{ConversationID: conversationID, Error: errors.Code(err)})
		return domain.Message{}, err
	}
	p.metrics.MessageResult("sent")
	p.reply(sender, event.MessageSent{ConversationID: conversationID, Success: true})
	return message, nil
}

func (p *FanoutPipeline) send(ctx context.Context, senderID domain.UserID, conversationID domain.ConversationID, content string) (domain.Message, error) {
	if err := p.validate(content); err != nil {
		return domain.Message{}, err
	}

	release := p.sequencer.Lock(senderKey{conversationID: conversationID, senderID: senderID})
	defer release()

	ok, err := p.conversations.IsParticipant(ctx, senderID, conversationID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("checking participation: %w", err)
	}
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: user %d is not in conversation %d", errors.ErrForbidden, senderID, conversationID)
	}

	if p.filter != nil {
		content = p.filter.Censor(content)
	}

	start := time.Now()
	message, err := p.messages.Persist(ctx, conversationID, senderID, content)
	p.metrics.ObservePersist(time.Since(start))
	if err != nil {
		if stderrors.Is(err, errors.ErrPersistenceFailure) {
			return domain.Message{}, err
		}
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistenceFailure, err)
	}

	p.deliver(ctx, message)
	return message, nil
}

// validate rejects empty or oversized content before anything else happens.
// Length is counted in characters, not bytes.
func (p *FanoutPipeline) validate(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty content", errors.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(content); n > p.maxContentLength {
		return fmt.Errorf("%w: content has %d characters, max is %d", errors.ErrInvalidInput, n, p.maxContentLength)
	}
	return nil
}

// deliver pushes message:new to every online recipient. Offline recipients get
// nothing live and read the message from the history later.
func (p *FanoutPipeline) deliver(ctx context.Context, message domain.Message) {
	partners, err := p.conversations.GetPartners(ctx, message.SenderID)
	if err != nil {
		p.log.Warn("Message persisted but recipients unavailable",
			"message_id", message.ID,
			"conversation_id", message.ConversationID,
			"error", err)
		return
	}
	recipients := lo.FilterMap(partners, func(item domain.Partner, _ int) (domain.UserID, bool) {
		return item.OtherUserID, item.ConversationID == message.ConversationID && item.OtherUserID != message.SenderID
	})
	live := event.NewMessage(message)
	for _, recipient := range lo.Uniq(recipients) {
		if err := p.registry.SendTo(recipient, live); err != nil {
			p.log.Debug("Recipient offline, message left to history",
				"recipient", recipient,
				"message_id", message.ID,
				"error", err)
		}
	}
}

func (p *FanoutPipeline) reply(to *Session, e event.Event) {
	if err := to.Send(e); err != nil {
		p.log.Debug("Reply to sender dropped", "user_id", to.UserID, "type", e.Type(), "error", err)
		p.metrics.EventDropped()
	}
}
