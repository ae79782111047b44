package selection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/adlift/store"
)

func seedSession(t *testing.T, objective string, sel store.Selections) store.Store {
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
		Objective:    objective,
		ConnectionID: "conn-1",
		Selections:   sel,
	}))
	return st
}

func validSelections() store.Selections {
	return store.Selections{
		CreativeURL:    "https://cdn.example.com/a.jpg",
		PrimaryText:    "Buy now",
		Headline:       "Spring sale",
		DailyBudget:    25,
		LeadFormID:     "form-1",
		PhoneNumber:    "+15551234567",
		DestinationURL: "https://example.com",
	}
}

func TestParseObjective(t *testing.T) {
	for _, valid := range []string{"leads", "calls", "traffic"} {
		obj, err := ParseObjective(valid)
		require.NoError(t, err)
		assert.Equal(t, Objective(valid), obj)
	}

	_, err := ParseObjective("awareness")
	assert.ErrorIs(t, err, ErrUnknownObjective)
}

func TestReader_Load(t *testing.T) {
	st := seedSession(t, "leads", validSelections())
	reader := NewReader(st)

	sess, err := reader.Load(context.Background(), "sess-1")
	require.NoError(t, err)

	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, ObjectiveLeads, sess.Objective)
	assert.Equal(t, "123", sess.Credentials.AccountID)
	assert.Equal(t, "456", sess.Credentials.PageID)
	assert.Equal(t, "tok", sess.Credentials.AccessToken)
	assert.Equal(t, int64(2500), sess.BudgetMinor)
}

func TestReader_LoadSessionNotFound(t *testing.T) {
	reader := NewReader(store.NewMemoryStore())

	_, err := reader.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestReader_LoadMissingConnection(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.PutSession(ctx, store.Session{
		ID:           "sess-1",
		Objective:    "leads",
		ConnectionID: "conn-1",
		Selections:   validSelections(),
	}))

	reader := NewReader(st)
	_, err := reader.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrMissingConnection)
}

func TestReader_LoadIncompleteConnection(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	// A connection record with no token is as unusable as a missing one.
	require.NoError(t, st.PutConnection(ctx, store.Connection{
		ID:        "conn-1",
		AccountID: "123",
		PageID:    "456",
	}))
	require.NoError(t, st.PutSession(ctx, store.Session{
		ID:           "sess-1",
		Objective:    "leads",
		ConnectionID: "conn-1",
		Selections:   validSelections(),
	}))

	reader := NewReader(st)
	_, err := reader.Load(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrMissingConnection)
}

func TestReader_LoadValidation(t *testing.T) {
	tests := []struct {
		name      string
		objective string
		mutate    func(*store.Selections)
		wantErr   error
	}{
		{
			name:      "no creative",
			objective: "leads",
			mutate:    func(s *store.Selections) { s.CreativeURL = "" },
			wantErr:   ErrNoCreativeSelected,
		},
		{
			name:      "no copy",
			objective: "leads",
			mutate:    func(s *store.Selections) { s.PrimaryText = "" },
			wantErr:   ErrNoCopySelected,
		},
		{
			name:      "leads without form",
			objective: "leads",
			mutate:    func(s *store.Selections) { s.LeadFormID = "" },
			wantErr:   ErrMissingLeadForm,
		},
		{
			name:      "calls without phone",
			objective: "calls",
			mutate:    func(s *store.Selections) { s.PhoneNumber = "" },
			wantErr:   ErrMissingPhoneNumber,
		},
		{
			name:      "traffic without destination",
			objective: "traffic",
			mutate:    func(s *store.Selections) { s.DestinationURL = "" },
			wantErr:   ErrMissingDestinationURL,
		},
		{
			name:      "unknown objective",
			objective: "awareness",
			mutate:    func(s *store.Selections) {},
			wantErr:   ErrUnknownObjective,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := validSelections()
			tt.mutate(&sel)
			st := seedSession(t, tt.objective, sel)

			_, err := NewReader(st).Load(context.Background(), "sess-1")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReader_BudgetFloorAndRounding(t *testing.T) {
	tests := []struct {
		budget float64
		want   int64
	}{
		{budget: 25, want: 2500},
		{budget: 19.99, want: 1999},
		{budget: 0.5, want: 100}, // floored to 1 unit
		{budget: 0, want: 100},
	}

	for _, tt := range tests {
		sel := validSelections()
		sel.DailyBudget = tt.budget
		st := seedSession(t, "leads", sel)

		sess, err := NewReader(st).Load(context.Background(), "sess-1")
		require.NoError(t, err)
		assert.Equal(t, tt.want, sess.BudgetMinor, "budget %v", tt.budget)
	}
}
