// Package store persists campaign-build sessions and their provisioning
// checkpoints.
//
// A session document carries the user's selections alongside two fields the
// launch pipeline owns: the checkpoint (step name -> external resource id,
// extended one key at a time and never rewritten) and the activation record.
// Connection records hold the account credentials and are stored separately
// so tokens never end up inside checkpoints.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when no session exists for the given id.
var ErrSessionNotFound = errors.New("session not found")

// ErrConnectionNotFound is returned when no connection record exists.
var ErrConnectionNotFound = errors.New("connection not found")

// ErrLeaseHeld is returned by Acquire when another launch holds a live lease
// on the session.
var ErrLeaseHeld = errors.New("launch lease held by another run")

// Checkpoint maps step names to the external resource identifiers created by
// prior pipeline invocations. A present key means the resource exists
// remotely and must never be re-created.
type Checkpoint map[string]string

// Has reports whether the step already has a recorded identifier.
func (c Checkpoint) Has(step string) bool {
	_, ok := c[step]
	return ok
}

// ID returns the recorded identifier for a step, or "" if absent.
func (c Checkpoint) ID(step string) string {
	return c[step]
}

// Clone returns an independent copy of the checkpoint.
func (c Checkpoint) Clone() Checkpoint {
	out := make(Checkpoint, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Targeting describes the audience for an ad set.
type Targeting struct {
	Countries []string `json:"countries,omitempty"`
	AgeMin    int      `json:"age_min,omitempty"`
	AgeMax    int      `json:"age_max,omitempty"`
}

// Selections is the snapshot of upstream choices a launch consumes.
type Selections struct {
	// CreativeURL is the chosen creative asset.
	CreativeURL string `json:"creative_url"`
	// PrimaryText is the chosen copy variant.
	PrimaryText string `json:"primary_text"`
	Headline    string `json:"headline,omitempty"`

	// DailyBudget is in whole currency units.
	DailyBudget float64    `json:"daily_budget"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`

	Targeting Targeting `json:"targeting"`

	// Objective-specific destination data. Exactly one is required
	// depending on the session objective.
	LeadFormID     string `json:"lead_form_id,omitempty"`
	PhoneNumber    string `json:"phone_number,omitempty"`
	DestinationURL string `json:"destination_url,omitempty"`

	// CallToAction overrides the default CTA label for traffic ads.
	CallToAction string `json:"call_to_action,omitempty"`
}

// Lease is the advisory lock one launch invocation holds on a session.
type Lease struct {
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Session is the per-session document. Checkpoint and activation state are
// sub-fields beside the build selections; patches to one must never clobber
// the others.
type Session struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Objective    string     `json:"objective"`
	ConnectionID string     `json:"connection_id"`
	Selections   Selections `json:"selections"`

	Checkpoint Checkpoint `json:"checkpoint,omitempty"`

	Active     bool   `json:"active"`
	ActiveAdID string `json:"active_ad_id,omitempty"`

	Lease *Lease `json:"lease,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Connection holds the account-scoped credentials for the remote provider.
// Never persisted inside checkpoints; read fresh on every launch.
type Connection struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	PageID      string `json:"page_id"`
	AccessToken string `json:"access_token"`
}

// Store is the persistence façade for sessions, connections, checkpoints and
// launch leases.
type Store interface {
	// Session returns the session document, or ErrSessionNotFound.
	Session(ctx context.Context, id string) (Session, error)
	// PutSession creates or replaces a session document.
	PutSession(ctx context.Context, sess Session) error
	// Sessions returns all session documents.
	Sessions(ctx context.Context) ([]Session, error)

	// Connection returns the connection record, or ErrConnectionNotFound.
	Connection(ctx context.Context, id string) (Connection, error)
	// PutConnection creates or replaces a connection record.
	PutConnection(ctx context.Context, conn Connection) error

	// Checkpoint returns the session's checkpoint mapping. An absent
	// checkpoint (or absent session) yields an empty mapping, never an
	// error.
	Checkpoint(ctx context.Context, sessionID string) (Checkpoint, error)
	// PatchCheckpoint merges the given keys into the stored checkpoint.
	// The merge is read-modify-write against the latest stored value:
	// existing keys are never removed and sibling session fields are
	// untouched.
	PatchCheckpoint(ctx context.Context, sessionID string, partial Checkpoint) error

	// SetActive overwrites the activation record. Idempotent.
	SetActive(ctx context.Context, sessionID, adID string) error

	// Acquire takes the launch lease for the session. A live lease held
	// by a different owner (younger than ttl) yields ErrLeaseHeld; an
	// expired lease is reclaimed.
	Acquire(ctx context.Context, sessionID, owner string, ttl time.Duration) error
	// Release drops the lease if the owner still holds it.
	Release(ctx context.Context, sessionID, owner string) error
}
