package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SessionNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Session(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_PutAndGetSession(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.PutSession(ctx, Session{
		ID:        "sess-1",
		Name:      "Spring promo",
		Objective: "leads",
	})
	require.NoError(t, err)

	got, err := s.Session(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Spring promo", got.Name)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestMemoryStore_SessionReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, Session{
		ID:         "sess-1",
		Checkpoint: Checkpoint{"asset": "img_1"},
	}))

	got, err := s.Session(ctx, "sess-1")
	require.NoError(t, err)

	// Mutating the returned checkpoint must not affect the stored one.
	got.Checkpoint["campaign"] = "cmp_1"

	again, err := s.Session(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, again.Checkpoint.Has("campaign"))
}

func TestMemoryStore_ConnectionNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Connection(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestMemoryStore_PutAndGetConnection(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conn := Connection{
		ID:          "conn-1",
		AccountID:   "123",
		PageID:      "456",
		AccessToken: "tok",
	}
	require.NoError(t, s.PutConnection(ctx, conn))

	got, err := s.Connection(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, conn, got)
}

func TestMemoryStore_CheckpointAbsentIsEmpty(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Absent session still yields an empty mapping, not an error.
	cp, err := s.Checkpoint(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, cp)

	require.NoError(t, s.PutSession(ctx, Session{ID: "sess-1"}))
	cp, err = s.Checkpoint(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, cp)
}

func TestMemoryStore_PatchCheckpointMerges(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, Session{ID: "sess-1"}))

	require.NoError(t, s.PatchCheckpoint(ctx, "sess-1", Checkpoint{"asset": "img_1"}))
	require.NoError(t, s.PatchCheckpoint(ctx, "sess-1", Checkpoint{"campaign": "cmp_1"}))

	cp, err := s.Checkpoint(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, Checkpoint{"asset": "img_1", "campaign": "cmp_1"}, cp)
}

func TestMemoryStore_PatchCheckpointPreservesSiblings(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, Session{
		ID:   "sess-1",
		Name: "Spring promo",
		Selections: Selections{
			CreativeURL: "https://cdn.example.com/a.jpg",
			PrimaryText: "Buy now",
		},
	}))

	require.NoError(t, s.PatchCheckpoint(ctx, "sess-1", Checkpoint{"asset": "img_1"}))

	got, err := s.Session(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Spring promo", got.Name)
	assert.Equal(t, "Buy now", got.Selections.PrimaryText)
}

func TestMemoryStore_PatchCheckpointMissingSession(t *testing.T) {
	s := NewMemoryStore()

	err := s.PatchCheckpoint(context.Background(), "missing", Checkpoint{"asset": "img_1"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_SetActive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, Session{ID: "sess-1"}))
	require.NoError(t, s.SetActive(ctx, "sess-1", "ad_1"))

	got, err := s.Session(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, "ad_1", got.ActiveAdID)

	// Repeating the call is a no-op, not an error.
	require.NoError(t, s.SetActive(ctx, "sess-1", "ad_1"))
}

func TestMemoryStore_AcquireAndRelease(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, Session{ID: "sess-1"}))

	require.NoError(t, s.Acquire(ctx, "sess-1", "run-a", time.Minute))

	// A second owner is blocked while the lease is live.
	err := s.Acquire(ctx, "sess-1", "run-b", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	// The holder can re-acquire its own lease.
	require.NoError(t, s.Acquire(ctx, "sess-1", "run-a", time.Minute))

	require.NoError(t, s.Release(ctx, "sess-1", "run-a"))
	require.NoError(t, s.Acquire(ctx, "sess-1", "run-b", time.Minute))
}

func TestMemoryStore_AcquireReclaimsExpiredLease(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, Session{ID: "sess-1"}))
	require.NoError(t, s.Acquire(ctx, "sess-1", "run-a", time.Nanosecond))

	time.Sleep(time.Millisecond)

	// The TTL has passed, so a new owner may take the lease.
	require.NoError(t, s.Acquire(ctx, "sess-1", "run-b", time.Nanosecond))
}

func TestMemoryStore_ReleaseIgnoresForeignLease(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, Session{ID: "sess-1"}))
	require.NoError(t, s.Acquire(ctx, "sess-1", "run-a", time.Minute))

	// Releasing with the wrong owner leaves the lease in place.
	require.NoError(t, s.Release(ctx, "sess-1", "run-b"))
	err := s.Acquire(ctx, "sess-1", "run-c", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)
}
