// Package activation flips a fully-provisioned ad into live delivery.
//
// Activation is deliberately separate from provisioning: the pipeline
// creates everything paused, and this controller performs the one remote
// status transition plus the durable activation record. Both halves are
// idempotent, so re-activating an already-active session is safe.
//
// The controller trusts its caller to hand it a completed chain; it does
// not re-derive pipeline state.
package activation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nomis52/adlift/provider"
	"github.com/nomis52/adlift/selection"
	"github.com/nomis52/adlift/store"
)

const activeStatus = "ACTIVE"

// Controller performs ad activation.
type Controller struct {
	store  store.Store
	client *provider.Client
	logger *slog.Logger
}

// NewController creates a Controller.
func NewController(st store.Store, client *provider.Client, logger *slog.Logger) *Controller {
	return &Controller{
		store:  st,
		client: client,
		logger: logger.With("component", "activation"),
	}
}

// Activate transitions the ad to ACTIVE and records the activation on the
// session. A remote failure leaves the provisioned chain untouched and
// reusable for a later attempt.
func (c *Controller) Activate(ctx context.Context, sess *selection.Session, adID string) error {
	if err := c.client.SetAdStatus(ctx, sess.Credentials, adID, activeStatus); err != nil {
		return fmt.Errorf("activating ad %s: %w", adID, err)
	}

	if err := c.store.SetActive(ctx, sess.ID, adID); err != nil {
		return fmt.Errorf("recording activation for session %s: %w", sess.ID, err)
	}

	c.logger.Info("ad activated", "session_id", sess.ID, "ad_id", adID)
	return nil
}
