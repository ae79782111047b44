package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestDiskStore(t *testing.T) *DiskStore {
	t.Helper()
	s, err := NewDiskStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	return s
}

func TestNewDiskStore_CreatesLayout(t *testing.T) {
	dir := t.TempDir()
	_, err := NewDiskStore(dir, testLogger())
	require.NoError(t, err)

	for _, sub := range []string{"sessions", "connections"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestDiskStore_PutAndGetSession(t *testing.T) {
	s := newTestDiskStore(t)
	ctx := context.Background()

	err := s.PutSession(ctx, Session{
		ID:        "sess-1",
		Name:      "Spring promo",
		Objective: "traffic",
		Selections: Selections{
			CreativeURL:    "https://cdn.example.com/a.jpg",
			PrimaryText:    "Buy now",
			DailyBudget:    25,
			DestinationURL: "https://example.com",
		},
	})
	require.NoError(t, err)

	got, err := s.Session(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Spring promo", got.Name)
	assert.Equal(t, "https://example.com", got.Selections.DestinationURL)
}

func TestDiskStore_SessionNotFound(t *testing.T) {
	s := newTestDiskStore(t)

	_, err := s.Session(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDiskStore_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewDiskStore(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, s1.PutSession(ctx, Session{ID: "sess-1"}))
	require.NoError(t, s1.PatchCheckpoint(ctx, "sess-1", Checkpoint{"asset": "img_1", "campaign": "cmp_1"}))

	// A fresh store over the same directory sees the durable state.
	s2, err := NewDiskStore(dir, testLogger())
	require.NoError(t, err)

	cp, err := s2.Checkpoint(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, Checkpoint{"asset": "img_1", "campaign": "cmp_1"}, cp)
}

func TestDiskStore_CheckpointAbsentIsEmpty(t *testing.T) {
	s := newTestDiskStore(t)

	cp, err := s.Checkpoint(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, cp)
}

func TestDiskStore_PatchCheckpointPreservesSiblings(t *testing.T) {
	s := newTestDiskStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, Session{
		ID:        "sess-1",
		Name:      "Spring promo",
		Objective: "leads",
	}))

	require.NoError(t, s.PatchCheckpoint(ctx, "sess-1", Checkpoint{"asset": "img_1"}))
	require.NoError(t, s.PatchCheckpoint(ctx, "sess-1", Checkpoint{"campaign": "cmp_1"}))

	got, err := s.Session(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Spring promo", got.Name)
	assert.Equal(t, "leads", got.Objective)
	assert.Equal(t, Checkpoint{"asset": "img_1", "campaign": "cmp_1"}, got.Checkpoint)
}

func TestDiskStore_PutAndGetConnection(t *testing.T) {
	s := newTestDiskStore(t)
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

	_, err = s.Connection(ctx, "missing")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestDiskStore_SetActive(t *testing.T) {
	s := newTestDiskStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, Session{ID: "sess-1"}))
	require.NoError(t, s.SetActive(ctx, "sess-1", "ad_1"))

	got, err := s.Session(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, "ad_1", got.ActiveAdID)
}

func TestDiskStore_LeaseLifecycle(t *testing.T) {
	s := newTestDiskStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutSession(ctx, Session{ID: "sess-1"}))

	require.NoError(t, s.Acquire(ctx, "sess-1", "run-a", time.Minute))
	assert.ErrorIs(t, s.Acquire(ctx, "sess-1", "run-b", time.Minute), ErrLeaseHeld)

	require.NoError(t, s.Release(ctx, "sess-1", "run-a"))
	require.NoError(t, s.Acquire(ctx, "sess-1", "run-b", time.Minute))
}
