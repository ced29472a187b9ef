package runtime

import (
	"context"
	"log/slog"
	"rendezvous/contract"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/observability"
	"time"

	"github.com/samber/lo"
)

// PresenceBroadcaster turns registry transitions into presence:update events for the
// online partners of the user. Partners are fetched from the conversation store on
// every transition.
type PresenceBroadcaster struct {
	log      *slog.Logger
	registry *Registry
	store    contract.ConversationStore
	timeout  time.Duration
	metrics  *observability.Metrics
}

func NewPresenceBroadcaster(log *slog.Logger, registry *Registry, store contract.ConversationStore,
	timeout time.Duration, metrics *observability.Metrics) *PresenceBroadcaster {
	return &PresenceBroadcaster{log: log, registry: registry, store: store, timeout: timeout, metrics: metrics}
}

// Online tells the user's online partners, then sends the user a snapshot of which
// partners are already online so it does not have to wait for their next transition.
func (p *PresenceBroadcaster) Online(userID domain.UserID, at time.Time) {
	for _, partner := range p.onlinePartners(userID) {
		p.deliver(partner, event.PresenceUpdate{UserID: userID, IsOnline: true, Timestamp: at})

		self, ok := p.registry.Lookup(userID)
		if !ok {
			continue
		}
		p.deliver(self, event.PresenceUpdate{UserID: partner.UserID, IsOnline: true, Timestamp: partner.ConnectedAt})
	}
}

func (p *PresenceBroadcaster) Offline(userID domain.UserID, at time.Time) {
	for _, partner := range p.onlinePartners(userID) {
		p.deliver(partner, event.PresenceUpdate{UserID: userID, IsOnline: false, Timestamp: at})
	}
}

func (p *PresenceBroadcaster) onlinePartners(userID domain.UserID) []*Session {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	partners, err := p.store.GetPartners(ctx, userID)
	if err != nil {
		p.log.Warn("Presence skipped, partners unavailable", "user_id", userID, "error", err)
		return nil
	}
	// Two users may share several conversations, one update per partner is enough
	others := lo.Uniq(lo.Map(partners, func(item domain.Partner, _ int) domain.UserID {
		return item.OtherUserID
	}))
	var online []*Session
	for _, other := range others {
		if other == userID {
			continue
		}
		if s, ok := p.registry.Lookup(other); ok {
			online = append(online, s)
		}
	}
	return online
}

func (p *PresenceBroadcaster) deliver(to *Session, update event.PresenceUpdate) {
	if err := to.Send(update); err != nil {
		p.log.Debug("Presence update dropped", "to", to.UserID, "user_id", update.UserID, "error", err)
		p.metrics.EventDropped()
		return
	}
	p.metrics.PresenceDelivered(update.IsOnline)
}
