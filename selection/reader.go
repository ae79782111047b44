// Package selection assembles and validates the inputs a launch needs
// before any remote call is made. A validation failure here is terminal and
// never writes a checkpoint.
package selection

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/nomis52/adlift/provider"
	"github.com/nomis52/adlift/store"
)

// Objective selects which step payloads a launch builds.
type Objective string

const (
	ObjectiveLeads   Objective = "leads"
	ObjectiveCalls   Objective = "calls"
	ObjectiveTraffic Objective = "traffic"
)

// ParseObjective validates an objective string.
func ParseObjective(s string) (Objective, error) {
	switch Objective(s) {
	case ObjectiveLeads, ObjectiveCalls, ObjectiveTraffic:
		return Objective(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownObjective, s)
	}
}

// Validation errors. All are reported before any remote call is attempted.
var (
	ErrUnknownObjective      = errors.New("unknown objective")
	ErrMissingConnection     = errors.New("session has no usable ad account connection")
	ErrNoCreativeSelected    = errors.New("no creative asset selected")
	ErrNoCopySelected        = errors.New("no copy variant selected")
	ErrMissingLeadForm       = errors.New("leads objective requires a lead form")
	ErrMissingPhoneNumber    = errors.New("calls objective requires a phone number")
	ErrMissingDestinationURL = errors.New("traffic objective requires a destination URL")
)

// Session is a validated, launch-ready view of a stored session.
type Session struct {
	ID        string
	Name      string
	Objective Objective

	Selections store.Selections

	// BudgetMinor is the daily budget in the provider's minor currency
	// unit (cents), already coerced to the 1-unit floor.
	BudgetMinor int64

	Credentials provider.Credentials
}

// Reader loads sessions and their connection credentials from the store.
type Reader struct {
	store store.Store
}

// NewReader creates a Reader over the given store.
func NewReader(st store.Store) *Reader {
	return &Reader{store: st}
}

// Load fetches the session and its connection record, applies the
// objective-specific required-field checks, and normalizes the budget.
func (r *Reader) Load(ctx context.Context, sessionID string) (*Session, error) {
	doc, err := r.store.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	conn, err := r.store.Connection(ctx, doc.ConnectionID)
	if err != nil {
		if errors.Is(err, store.ErrConnectionNotFound) {
			return nil, ErrMissingConnection
		}
		return nil, err
	}
	if conn.AccountID == "" || conn.PageID == "" || conn.AccessToken == "" {
		return nil, ErrMissingConnection
	}

	objective, err := ParseObjective(doc.Objective)
	if err != nil {
		return nil, err
	}

	if err := validateSelections(objective, doc.Selections); err != nil {
		return nil, err
	}

	return &Session{
		ID:          doc.ID,
		Name:        doc.Name,
		Objective:   objective,
		Selections:  doc.Selections,
		BudgetMinor: budgetMinorUnits(doc.Selections.DailyBudget),
		Credentials: provider.Credentials{
			AccountID:   conn.AccountID,
			PageID:      conn.PageID,
			AccessToken: conn.AccessToken,
		},
	}, nil
}

func validateSelections(objective Objective, sel store.Selections) error {
	if sel.CreativeURL == "" {
		return ErrNoCreativeSelected
	}
	if sel.PrimaryText == "" {
		return ErrNoCopySelected
	}

	switch objective {
	case ObjectiveLeads:
		if sel.LeadFormID == "" {
			return ErrMissingLeadForm
		}
	case ObjectiveCalls:
		if sel.PhoneNumber == "" {
			return ErrMissingPhoneNumber
		}
	case ObjectiveTraffic:
		if sel.DestinationURL == "" {
			return ErrMissingDestinationURL
		}
	}
	return nil
}

// budgetMinorUnits coerces the budget to a 1-unit floor, then converts to
// the provider's minor-unit representation by rounding.
func budgetMinorUnits(budget float64) int64 {
	if budget < 1 {
		budget = 1
	}
	return int64(math.Round(budget * 100))
}
