package runtime

import (
	"log/slog"
	"rendezvous/contract"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/errors"
	"rendezvous/observability"
	"sync"
	"time"
)

// Session is a live transport bound to one authenticated user.
type Session struct {
	Conn        contract.Conn
	UserID      domain.UserID
	ConnectedAt time.Time
}

// Send pushes an event to the session's transport.
func (s *Session) Send(e event.Event) error {
	return s.Conn.Send(e)
}

// Registry maps a user to exactly one live session.
//
// Two indexes are kept: user -> session for fanout lookups and
// connection -> session so a transport can unregister without knowing who it served.
// Presence transitions are stamped while the lock is held and reported after it is released.
type Registry struct {
	mu       sync.RWMutex
	log      *slog.Logger
	byUser   map[domain.UserID]*Session
	byConn   map[string]*Session
	clock    *clock
	notifier contract.PresenceNotifier
	metrics  *observability.Metrics
}

func NewRegistry(log *slog.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		log:     log,
		byUser:  make(map[domain.UserID]*Session),
		byConn:  make(map[string]*Session),
		clock:   newClock(time.Now),
		metrics: metrics,
	}
}

// Notify sets who receives online/offline transitions. It must be called before the
// registry is shared with transports.
func (r *Registry) Notify(n contract.PresenceNotifier) {
	r.notifier = n
}

// Register installs a session for userID. A previous session of the same user is
// removed and its transport closed before the new one becomes visible.
func (r *Registry) Register(userID domain.UserID, conn contract.Conn) *Session {
	r.mu.Lock()
	at := r.clock.Now()
	session := &Session{Conn: conn, UserID: userID, ConnectedAt: at}
	previous, evicted := r.byUser[userID]
	if evicted {
		delete(r.byConn, previous.Conn.ID())
	}
	r.byUser[userID] = session
	r.byConn[conn.ID()] = session
	r.mu.Unlock()

	if evicted {
		r.log.Info("Evicting previous session", "user_id", userID, "conn_id", previous.Conn.ID())
		if err := previous.Conn.Close(); err != nil {
			r.log.Debug("Closing evicted session failed", "user_id", userID, "error", err)
		}
		r.metrics.SessionEvicted()
	} else {
		r.metrics.SessionOpened()
	}

	if r.notifier != nil {
		r.notifier.Online(userID, at)
	}
	return session
}

// Lookup returns the current session of a user.
func (r *Registry) Lookup(userID domain.UserID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byUser[userID]
	return s, ok
}

// SendTo delivers an event to the current session of userID, if any.
func (r *Registry) SendTo(userID domain.UserID, e event.Event) error {
	s, ok := r.Lookup(userID)
	if !ok {
		return errors.ErrSessionClosed
	}
	return s.Send(e)
}

// Unregister forgets the session served by conn. The returned flag tells whether it
// was the user's current session; only then is the user reported offline, so an
// evicted session disconnecting late never hides a newer connection.
func (r *Registry) Unregister(conn contract.Conn) (*Session, bool) {
	r.mu.Lock()
	session, ok := r.byConn[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.byConn, conn.ID())
	current := r.byUser[session.UserID] == session
	var at time.Time
	if current {
		delete(r.byUser, session.UserID)
		at = r.clock.Now()
	}
	r.mu.Unlock()

	if !current {
		return session, false
	}
	r.metrics.SessionClosed()
	if r.notifier != nil {
		r.notifier.Offline(session.UserID, at)
	}
	return session, true
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// BufferLevel is the send buffer occupation of one session.
type BufferLevel struct {
	UserID   domain.UserID
	Length   int
	Capacity int
}

// SendBufferLevels samples the send buffer of every session whose transport
// exposes one. Reading the levels never blocks the transports.
func (r *Registry) SendBufferLevels() []BufferLevel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	levels := make([]BufferLevel, 0, len(r.byUser))
	for userID, s := range r.byUser {
		buffered, ok := s.Conn.(interface{ Buffered() (int, int) })
		if !ok {
			continue
		}
		length, capacity := buffered.Buffered()
		levels = append(levels, BufferLevel{UserID: userID, Length: length, Capacity: capacity})
	}
	return levels
}

// CloseAll closes every transport, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.byUser))
	for _, s := range r.byUser {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	for _, s := range sessions {
		_ = s.Conn.Close()
	}
}
