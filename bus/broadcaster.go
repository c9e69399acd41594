package bus

import (
	"sync"

	"github.com/google/uuid"

	"github.com/smallnest/roadclaw/internal/logger"
	"go.uber.org/zap"
)

// sessionBuffer is the per-session event buffer. A session that falls this
// far behind starts losing events and must reconcile with a full refetch.
const sessionBuffer = 16

// Session is one live viewer subscription. Events arrive on C until
// Unsubscribe closes it.
type Session struct {
	ID   string
	Path string
	C    <-chan Event

	ch          chan Event
	broadcaster *Broadcaster
}

// Unsubscribe detaches the session from its broadcaster and closes C.
// Safe to call more than once.
func (s *Session) Unsubscribe() {
	if s == nil || s.broadcaster == nil {
		return
	}
	s.broadcaster.unsubscribe(s)
}

// Broadcaster keeps a path -> sessions registry and fans published events
// out to every session subscribed to that path.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*Session
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[string]*Session),
	}
}

// Subscribe registers a new session for events on the given project path.
func (b *Broadcaster) Subscribe(path string) *Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, sessionBuffer)
	session := &Session{
		ID:          uuid.NewString(),
		Path:        path,
		C:           ch,
		ch:          ch,
		broadcaster: b,
	}

	if b.closed {
		close(ch)
		session.broadcaster = nil
		return session
	}

	if b.subs[path] == nil {
		b.subs[path] = make(map[string]*Session)
	}
	b.subs[path][session.ID] = session

	logger.Debug("Session subscribed",
		zap.String("session_id", session.ID),
		zap.String("path", path),
		zap.Int("subscribers", len(b.subs[path])),
	)
	return session
}

func (b *Broadcaster) unsubscribe(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sessions, ok := b.subs[s.Path]
	if !ok {
		return
	}
	if _, ok := sessions[s.ID]; !ok {
		return
	}
	delete(sessions, s.ID)
	if len(sessions) == 0 {
		delete(b.subs, s.Path)
	}
	close(s.ch)

	logger.Debug("Session unsubscribed",
		zap.String("session_id", s.ID),
		zap.String("path", s.Path),
	)
}

// Publish fans the event out to every session currently subscribed to path.
// Sends are non-blocking: a slow session drops the event rather than
// stalling the rest, and reconciles via a full refetch.
func (b *Broadcaster) Publish(path string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	sessions := b.subs[path]
	if len(sessions) == 0 {
		return
	}

	sent := 0
	for _, session := range sessions {
		select {
		case session.ch <- event:
			sent++
		default:
			logger.Warn("Session buffer full, event dropped",
				zap.String("session_id", session.ID),
				zap.String("path", path),
				zap.String("event", string(event.Type)),
			)
		}
	}

	logger.Debug("Event published",
		zap.String("path", path),
		zap.String("event", string(event.Type)),
		zap.Int("sent_to", sent),
		zap.Int("subscribers", len(sessions)),
	)
}

// SubscriberCount returns the number of sessions subscribed to path.
func (b *Broadcaster) SubscriberCount(path string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[path])
}

// Close shuts the broadcaster down and closes every session channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for path, sessions := range b.subs {
		for id, session := range sessions {
			close(session.ch)
			delete(sessions, id)
		}
		delete(b.subs, path)
	}
}
