package pipeline

import (
	"context"

	"github.com/nomis52/adlift/selection"
	"github.com/nomis52/adlift/store"
)

// Step names double as checkpoint keys: once a name maps to an id in the
// session checkpoint, the resource exists remotely and the step is skipped
// forever.
const (
	StepAsset    = "asset"
	StepCampaign = "campaign"
	StepAdSet    = "adSet"
	StepCreative = "creative"
	StepAd       = "ad"
)

// Step is one unit of provisioning work producing exactly one remote
// resource identifier.
type Step struct {
	// Name is the checkpoint key this step owns.
	Name string

	// DependsOn lists the step names whose identifiers Build consumes.
	// Steps may only depend on steps declared strictly earlier.
	DependsOn []string

	// Build assembles the remote create-call payload from session
	// selections and already-completed dependency identifiers. It must
	// be pure: no I/O, no mutation.
	Build func(sess *selection.Session, cp store.Checkpoint) (any, error)

	// Execute performs the remote call and returns the new resource id.
	Execute func(ctx context.Context, payload any) (string, error)
}
