package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DiskStore persists each session as one JSON document on disk. Every
// operation reads the file fresh so concurrent server instances (or a
// restarted process) always see the latest durable state; the mutex only
// serializes read-modify-write cycles within this process.
type DiskStore struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewDiskStore creates a disk-backed store rooted at dir. The directory
// layout is dir/sessions/<id>.json and dir/connections/<id>.json, created on
// demand.
func NewDiskStore(dir string, logger *slog.Logger) (*DiskStore, error) {
	for _, sub := range []string{"sessions", "connections"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return &DiskStore{dir: dir, logger: logger}, nil
}

func (s *DiskStore) sessionPath(id string) string {
	return filepath.Join(s.dir, "sessions", id+".json")
}

func (s *DiskStore) connectionPath(id string) string {
	return filepath.Join(s.dir, "connections", id+".json")
}

// Session returns the session document, or ErrSessionNotFound.
func (s *DiskStore) Session(ctx context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSession(id)
}

// PutSession creates or replaces a session document.
func (s *DiskStore) PutSession(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	sess.UpdatedAt = time.Now()
	return s.writeSession(sess)
}

// Sessions returns all session documents.
func (s *DiskStore) Sessions(ctx context.Context) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := os.ReadDir(filepath.Join(s.dir, "sessions"))
	if err != nil {
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	sessions := make([]Session, 0, len(files))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(file.Name(), ".json")
		sess, err := s.readSession(id)
		if err != nil {
			s.logger.Warn("failed to read session file", "file", file.Name(), "error", err)
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Connection returns the connection record, or ErrConnectionNotFound.
func (s *DiskStore) Connection(ctx context.Context, id string) (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.connectionPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Connection{}, ErrConnectionNotFound
		}
		return Connection{}, fmt.Errorf("failed to read connection file: %w", err)
	}
	var conn Connection
	if err := json.Unmarshal(data, &conn); err != nil {
		return Connection{}, fmt.Errorf("failed to parse connection file: %w", err)
	}
	return conn, nil
}

// PutConnection creates or replaces a connection record.
func (s *DiskStore) PutConnection(ctx context.Context, conn Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(conn, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}
	if err := os.WriteFile(s.connectionPath(conn.ID), data, 0600); err != nil {
		return fmt.Errorf("failed to write connection file: %w", err)
	}
	return nil
}

// Checkpoint returns the session's checkpoint; empty mapping when absent.
func (s *DiskStore) Checkpoint(ctx context.Context, sessionID string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.readSession(sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Checkpoint{}, nil
		}
		return nil, err
	}
	if sess.Checkpoint == nil {
		return Checkpoint{}, nil
	}
	return sess.Checkpoint, nil
}

// PatchCheckpoint merges the given keys into the stored checkpoint. The
// session document is re-read at call time so sibling fields written since
// the launch began are preserved.
func (s *DiskStore) PatchCheckpoint(ctx context.Context, sessionID string, partial Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.readSession(sessionID)
	if err != nil {
		return err
	}
	if sess.Checkpoint == nil {
		sess.Checkpoint = Checkpoint{}
	}
	for k, v := range partial {
		sess.Checkpoint[k] = v
	}
	sess.UpdatedAt = time.Now()
	return s.writeSession(sess)
}

// SetActive overwrites the activation record.
func (s *DiskStore) SetActive(ctx context.Context, sessionID, adID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.readSession(sessionID)
	if err != nil {
		return err
	}
	sess.Active = true
	sess.ActiveAdID = adID
	sess.UpdatedAt = time.Now()
	return s.writeSession(sess)
}

// Acquire takes the launch lease for the session.
func (s *DiskStore) Acquire(ctx context.Context, sessionID, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.readSession(sessionID)
	if err != nil {
		return err
	}
	if l := sess.Lease; l != nil && l.Owner != owner && time.Since(l.AcquiredAt) < ttl {
		return ErrLeaseHeld
	}
	sess.Lease = &Lease{Owner: owner, AcquiredAt: time.Now()}
	return s.writeSession(sess)
}

// Release drops the lease if the owner still holds it.
func (s *DiskStore) Release(ctx context.Context, sessionID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.readSession(sessionID)
	if err != nil {
		return err
	}
	if sess.Lease == nil || sess.Lease.Owner != owner {
		return nil
	}
	sess.Lease = nil
	return s.writeSession(sess)
}

func (s *DiskStore) readSession(id string) (Session, error) {
	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("failed to read session file: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("failed to parse session file: %w", err)
	}
	return sess, nil
}

func (s *DiskStore) writeSession(sess Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	path := s.sessionPath(sess.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	s.logger.Debug("saved session to disk", "path", path)
	return nil
}
