package launch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/adlift/provider"
	"github.com/nomis52/adlift/store"
)

type staticClients struct {
	client *provider.Client
}

func (s *staticClients) ProviderClient() *provider.Client {
	return s.client
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakePlatform answers create calls with canned ids and records status
// transitions.
type fakePlatform struct {
	srv *httptest.Server

	mu            sync.Mutex
	createCalls   int
	statusUpdates map[string]string
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()

	ids := map[string]string{
		"adimages":    "img_1",
		"campaigns":   "cmp_1",
		"adsets":      "as_1",
		"adcreatives": "cr_1",
		"ads":         "ad_1",
	}

	f := &fakePlatform{statusUpdates: make(map[string]string)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		last := parts[len(parts)-1]

		if id, ok := ids[last]; ok {
			f.mu.Lock()
			f.createCalls++
			f.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]string{"id": id})
			return
		}

		// Anything else is a status transition on an object id.
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.statusUpdates[last] = body["status"]
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePlatform) statusOf(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusUpdates[id]
}

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.PutConnection(ctx, store.Connection{
		ID:          "conn-1",
		AccountID:   "123",
		PageID:      "456",
		AccessToken: "tok",
	}))
	require.NoError(t, st.PutSession(ctx, store.Session{
		ID:           "sess-1",
		Name:         "Spring promo",
		Objective:    "leads",
		ConnectionID: "conn-1",
		Selections: store.Selections{
			CreativeURL: "https://cdn.example.com/a.jpg",
			PrimaryText: "Buy now",
			DailyBudget: 25,
			LeadFormID:  "form-1",
		},
	}))
	return st
}

func newLauncher(t *testing.T) (*Launcher, *fakePlatform, *store.MemoryStore) {
	t.Helper()
	platform := newFakePlatform(t)
	st := seedStore(t)
	clients := &staticClients{client: provider.New(platform.srv.URL, "v21.0")}
	return New(st, clients, testLogger()), platform, st
}

func TestLauncher_Launch(t *testing.T) {
	l, platform, st := newLauncher(t)
	ctx := context.Background()

	result, err := l.Launch(ctx, "sess-1", false)
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Len(t, result.Resources, 5)
	assert.Equal(t, 5, platform.createCalls)

	// Without publish the ad stays paused and the session inactive.
	assert.Empty(t, platform.statusOf("ad_1"))
	sess, err := st.Session(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, sess.Active)
}

func TestLauncher_LaunchAndPublish(t *testing.T) {
	l, platform, st := newLauncher(t)
	ctx := context.Background()

	result, err := l.Launch(ctx, "sess-1", true)
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	assert.Equal(t, "ACTIVE", platform.statusOf("ad_1"))
	sess, err := st.Session(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, sess.Active)
	assert.Equal(t, "ad_1", sess.ActiveAdID)
}

func TestLauncher_LaunchUnknownSession(t *testing.T) {
	l, _, _ := newLauncher(t)

	_, err := l.Launch(context.Background(), "missing", false)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestLauncher_ActivateRequiresProvisionedChain(t *testing.T) {
	l, _, _ := newLauncher(t)
	ctx := context.Background()

	// Nothing has been provisioned yet.
	err := l.Activate(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotProvisioned)

	_, err = l.Launch(ctx, "sess-1", false)
	require.NoError(t, err)

	require.NoError(t, l.Activate(ctx, "sess-1"))
}

func TestLauncher_SessionStatus(t *testing.T) {
	l, _, st := newLauncher(t)
	ctx := context.Background()

	status, err := l.SessionStatus(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", status.SessionID)
	assert.Equal(t, "leads", status.Objective)
	assert.Empty(t, status.Resources)
	assert.False(t, status.Active)
	assert.False(t, status.InProgress)

	require.NoError(t, st.Acquire(ctx, "sess-1", "run-1", time.Minute))
	status, err = l.SessionStatus(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, status.InProgress)

	_, err = l.SessionStatus(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}
