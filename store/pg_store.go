package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStore persists sessions and connections in Postgres. Checkpoints
// and selections live in jsonb columns; checkpoint patches run inside a
// row-locked transaction so the merge always applies to the latest stored
// value.
type PostgresStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

type sessionRow struct {
	SessionID    string `gorm:"column:session_id;primaryKey"`
	Name         string `gorm:"column:name"`
	Objective    string `gorm:"column:objective"`
	ConnectionID string `gorm:"column:connection_id"`

	Selections []byte `gorm:"column:selections;type:jsonb"`
	Checkpoint []byte `gorm:"column:checkpoint;type:jsonb"`

	Active     bool   `gorm:"column:active"`
	ActiveAdID string `gorm:"column:active_ad_id"`

	LeaseOwner      string     `gorm:"column:lease_owner"`
	LeaseAcquiredAt *time.Time `gorm:"column:lease_acquired_at"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (sessionRow) TableName() string { return "launch_sessions" }

type connectionRow struct {
	ConnectionID string `gorm:"column:connection_id;primaryKey"`
	AccountID    string `gorm:"column:account_id"`
	PageID       string `gorm:"column:page_id"`
	AccessToken  string `gorm:"column:access_token"`
}

func (connectionRow) TableName() string { return "launch_connections" }

// NewPostgresStore connects to Postgres and migrates the launch tables.
func NewPostgresStore(dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := db.AutoMigrate(&sessionRow{}, &connectionRow{}); err != nil {
		return nil, fmt.Errorf("migrate launch tables: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Session returns the session document, or ErrSessionNotFound.
func (s *PostgresStore) Session(ctx context.Context, id string) (Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).Where("session_id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return row.toSession()
}

// PutSession creates or replaces a session document.
func (s *PostgresStore) PutSession(ctx context.Context, sess Session) error {
	row, err := rowFromSession(sess)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

// Sessions returns all session documents.
func (s *PostgresStore) Sessions(ctx context.Context) ([]Session, error) {
	var rows []sessionRow
	if err := s.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(rows))
	for _, row := range rows {
		sess, err := row.toSession()
		if err != nil {
			s.logger.Warn("skipping malformed session row", "session_id", row.SessionID, "error", err)
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// Connection returns the connection record, or ErrConnectionNotFound.
func (s *PostgresStore) Connection(ctx context.Context, id string) (Connection, error) {
	var row connectionRow
	err := s.db.WithContext(ctx).Where("connection_id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Connection{}, ErrConnectionNotFound
		}
		return Connection{}, err
	}
	return Connection{
		ID:          row.ConnectionID,
		AccountID:   row.AccountID,
		PageID:      row.PageID,
		AccessToken: row.AccessToken,
	}, nil
}

// PutConnection creates or replaces a connection record.
func (s *PostgresStore) PutConnection(ctx context.Context, conn Connection) error {
	row := connectionRow{
		ConnectionID: conn.ID,
		AccountID:    conn.AccountID,
		PageID:       conn.PageID,
		AccessToken:  conn.AccessToken,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "connection_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

// Checkpoint returns the session's checkpoint; empty mapping when absent.
func (s *PostgresStore) Checkpoint(ctx context.Context, sessionID string) (Checkpoint, error) {
	sess, err := s.Session(ctx, sessionID)
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

// PatchCheckpoint merges the given keys into the stored checkpoint inside a
// row-locked transaction.
func (s *PostgresStore) PatchCheckpoint(ctx context.Context, sessionID string, partial Checkpoint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", sessionID).
			First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		cp := Checkpoint{}
		if len(row.Checkpoint) > 0 {
			if err := json.Unmarshal(row.Checkpoint, &cp); err != nil {
				return fmt.Errorf("parse stored checkpoint: %w", err)
			}
		}
		for k, v := range partial {
			cp[k] = v
		}
		data, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("marshal checkpoint: %w", err)
		}

		return tx.Model(&sessionRow{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]any{
				"checkpoint": data,
				"updated_at": time.Now(),
			}).Error
	})
}

// SetActive overwrites the activation record.
func (s *PostgresStore) SetActive(ctx context.Context, sessionID, adID string) error {
	result := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"active":       true,
			"active_ad_id": adID,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Acquire takes the launch lease for the session.
func (s *PostgresStore) Acquire(ctx context.Context, sessionID, owner string, ttl time.Duration) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", sessionID).
			First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		if row.LeaseOwner != "" && row.LeaseOwner != owner &&
			row.LeaseAcquiredAt != nil && time.Since(*row.LeaseAcquiredAt) < ttl {
			return ErrLeaseHeld
		}

		now := time.Now()
		return tx.Model(&sessionRow{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]any{
				"lease_owner":       owner,
				"lease_acquired_at": now,
			}).Error
	})
}

// Release drops the lease if the owner still holds it.
func (s *PostgresStore) Release(ctx context.Context, sessionID, owner string) error {
	return s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("session_id = ? AND lease_owner = ?", sessionID, owner).
		Updates(map[string]any{
			"lease_owner":       "",
			"lease_acquired_at": nil,
		}).Error
}

func rowFromSession(sess Session) (sessionRow, error) {
	selections, err := json.Marshal(sess.Selections)
	if err != nil {
		return sessionRow{}, fmt.Errorf("marshal selections: %w", err)
	}
	checkpoint, err := json.Marshal(sess.Checkpoint)
	if err != nil {
		return sessionRow{}, fmt.Errorf("marshal checkpoint: %w", err)
	}

	row := sessionRow{
		SessionID:    sess.ID,
		Name:         sess.Name,
		Objective:    sess.Objective,
		ConnectionID: sess.ConnectionID,
		Selections:   selections,
		Checkpoint:   checkpoint,
		Active:       sess.Active,
		ActiveAdID:   sess.ActiveAdID,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
	}
	if sess.Lease != nil {
		row.LeaseOwner = sess.Lease.Owner
		t := sess.Lease.AcquiredAt
		row.LeaseAcquiredAt = &t
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	row.UpdatedAt = time.Now()
	return row, nil
}

func (r sessionRow) toSession() (Session, error) {
	sess := Session{
		ID:           r.SessionID,
		Name:         r.Name,
		Objective:    r.Objective,
		ConnectionID: r.ConnectionID,
		Active:       r.Active,
		ActiveAdID:   r.ActiveAdID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.Selections) > 0 {
		if err := json.Unmarshal(r.Selections, &sess.Selections); err != nil {
			return Session{}, fmt.Errorf("parse selections: %w", err)
		}
	}
	if len(r.Checkpoint) > 0 {
		if err := json.Unmarshal(r.Checkpoint, &sess.Checkpoint); err != nil {
			return Session{}, fmt.Errorf("parse checkpoint: %w", err)
		}
	}
	if r.LeaseOwner != "" && r.LeaseAcquiredAt != nil {
		sess.Lease = &Lease{Owner: r.LeaseOwner, AcquiredAt: *r.LeaseAcquiredAt}
	}
	return sess, nil
}
