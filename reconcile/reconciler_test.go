package reconcile

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/adlift/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestReconciler_ReleasesStaleLeases(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.PutSession(ctx, store.Session{
		ID: "stale",
		Lease: &store.Lease{
			Owner:      "dead-run",
			AcquiredAt: time.Now().Add(-time.Hour),
		},
	}))
	require.NoError(t, st.PutSession(ctx, store.Session{
		ID: "live",
		Lease: &store.Lease{
			Owner:      "active-run",
			AcquiredAt: time.Now(),
		},
	}))

	r := New(st, testLogger(), 10*time.Minute)
	require.NoError(t, r.Run())

	stale, err := st.Session(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, stale.Lease, "expired lease should be released")

	live, err := st.Session(ctx, "live")
	require.NoError(t, err)
	require.NotNil(t, live.Lease, "live lease must be left alone")
	assert.Equal(t, "active-run", live.Lease.Owner)
}

func TestReconciler_CountsPartialSessions(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	// Untouched, partial, and complete sessions.
	require.NoError(t, st.PutSession(ctx, store.Session{ID: "fresh"}))
	require.NoError(t, st.PutSession(ctx, store.Session{
		ID:         "partial",
		Checkpoint: store.Checkpoint{"asset": "img_1", "campaign": "cmp_1"},
	}))
	require.NoError(t, st.PutSession(ctx, store.Session{
		ID: "complete",
		Checkpoint: store.Checkpoint{
			"asset": "img_1", "campaign": "cmp_1", "adSet": "as_1",
			"creative": "cr_1", "ad": "ad_1",
		},
	}))

	assert.False(t, isPartial(mustSession(t, st, "fresh")))
	assert.True(t, isPartial(mustSession(t, st, "partial")))
	assert.False(t, isPartial(mustSession(t, st, "complete")))

	// The sweep itself must not error.
	r := New(st, testLogger(), 10*time.Minute)
	require.NoError(t, r.Run())
}

func mustSession(t *testing.T, st store.Store, id string) store.Session {
	t.Helper()
	sess, err := st.Session(context.Background(), id)
	require.NoError(t, err)
	return sess
}

func TestNewTrigger_InvalidSpec(t *testing.T) {
	_, err := NewTrigger("not a cron spec", New(store.NewMemoryStore(), testLogger(), time.Minute), testLogger())
	assert.ErrorIs(t, err, ErrInvalidCronSpec)
}

func TestNewTrigger_NextRun(t *testing.T) {
	trigger, err := NewTrigger("*/5 * * * *", New(store.NewMemoryStore(), testLogger(), time.Minute), testLogger())
	require.NoError(t, err)

	next := trigger.NextRun()
	assert.True(t, next.After(time.Now()))
	assert.True(t, next.Before(time.Now().Add(6*time.Minute)))
}
