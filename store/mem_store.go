package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions and connections in memory only (tests and dev).
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]Session
	connections map[string]Connection
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]Session),
		connections: make(map[string]Connection),
	}
}

// Session returns the session document, or ErrSessionNotFound.
func (s *MemoryStore) Session(ctx context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

// PutSession creates or replaces a session document.
func (s *MemoryStore) PutSession(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	sess.UpdatedAt = time.Now()
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

// Sessions returns all session documents.
func (s *MemoryStore) Sessions(ctx context.Context) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, cloneSession(sess))
	}
	return out, nil
}

// Connection returns the connection record, or ErrConnectionNotFound.
func (s *MemoryStore) Connection(ctx context.Context, id string) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.connections[id]
	if !ok {
		return Connection{}, ErrConnectionNotFound
	}
	return conn, nil
}

// PutConnection creates or replaces a connection record.
func (s *MemoryStore) PutConnection(ctx context.Context, conn Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connections[conn.ID] = conn
	return nil
}

// Checkpoint returns the session's checkpoint; empty mapping when absent.
func (s *MemoryStore) Checkpoint(ctx context.Context, sessionID string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.Checkpoint == nil {
		return Checkpoint{}, nil
	}
	return sess.Checkpoint.Clone(), nil
}

// PatchCheckpoint merges the given keys into the stored checkpoint.
func (s *MemoryStore) PatchCheckpoint(ctx context.Context, sessionID string, partial Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.Checkpoint == nil {
		sess.Checkpoint = Checkpoint{}
	} else {
		sess.Checkpoint = sess.Checkpoint.Clone()
	}
	for k, v := range partial {
		sess.Checkpoint[k] = v
	}
	sess.UpdatedAt = time.Now()
	s.sessions[sessionID] = sess
	return nil
}

// SetActive overwrites the activation record.
func (s *MemoryStore) SetActive(ctx context.Context, sessionID, adID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Active = true
	sess.ActiveAdID = adID
	sess.UpdatedAt = time.Now()
	s.sessions[sessionID] = sess
	return nil
}

// Acquire takes the launch lease for the session.
func (s *MemoryStore) Acquire(ctx context.Context, sessionID, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if l := sess.Lease; l != nil && l.Owner != owner && time.Since(l.AcquiredAt) < ttl {
		return ErrLeaseHeld
	}
	sess.Lease = &Lease{Owner: owner, AcquiredAt: time.Now()}
	s.sessions[sessionID] = sess
	return nil
}

// Release drops the lease if the owner still holds it.
func (s *MemoryStore) Release(ctx context.Context, sessionID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.Lease != nil && sess.Lease.Owner == owner {
		sess.Lease = nil
		s.sessions[sessionID] = sess
	}
	return nil
}

func cloneSession(sess Session) Session {
	out := sess
	if sess.Checkpoint != nil {
		out.Checkpoint = sess.Checkpoint.Clone()
	}
	if sess.Lease != nil {
		l := *sess.Lease
		out.Lease = &l
	}
	return out
}
