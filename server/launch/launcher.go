// Package launch wires the selection reader, step pipeline and activation
// controller into the single operation the HTTP surface exposes: run the
// provisioning chain for a session, and optionally publish it.
//
// The launcher holds no per-run state. Credentials are read fresh from the
// session's connection record on every call, and the provider client is
// taken from the server's current dependencies so config reloads apply to
// the next launch.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nomis52/adlift/activation"
	"github.com/nomis52/adlift/pipeline"
	"github.com/nomis52/adlift/provider"
	"github.com/nomis52/adlift/selection"
	"github.com/nomis52/adlift/store"
)

// ErrNotProvisioned is returned by Activate when the session's checkpoint
// does not yet hold an ad identifier.
var ErrNotProvisioned = errors.New("session is not fully provisioned")

// ClientProvider supplies the current provider client. The server swaps the
// client atomically on config reload.
type ClientProvider interface {
	ProviderClient() *provider.Client
}

// SessionStatus is the read-only launch state of a session.
type SessionStatus struct {
	SessionID  string           `json:"session_id"`
	Objective  string           `json:"objective"`
	Resources  store.Checkpoint `json:"resources"`
	Active     bool             `json:"active"`
	ActiveAdID string           `json:"active_ad_id,omitempty"`
	InProgress bool             `json:"in_progress"`
}

// Launcher runs launches against the session store.
type Launcher struct {
	store    store.Store
	clients  ClientProvider
	logger   *slog.Logger
	reader   *selection.Reader
	executor *pipeline.Executor
}

// New creates a Launcher. Executor options (metrics, lease TTL) are passed
// through to the pipeline executor.
func New(st store.Store, clients ClientProvider, logger *slog.Logger, execOpts ...pipeline.Option) *Launcher {
	return &Launcher{
		store:    st,
		clients:  clients,
		logger:   logger,
		reader:   selection.NewReader(st),
		executor: pipeline.NewExecutor(st, logger, execOpts...),
	}
}

// Launch validates the session's inputs, runs the provisioning pipeline,
// and, when publish is set and every step completed, activates the ad.
func (l *Launcher) Launch(ctx context.Context, sessionID string, publish bool) (pipeline.Result, error) {
	sess, err := l.reader.Load(ctx, sessionID)
	if err != nil {
		return pipeline.Result{SessionID: sessionID}, err
	}

	client := l.clients.ProviderClient()
	steps, err := pipeline.StepsFor(client, sess)
	if err != nil {
		return pipeline.Result{SessionID: sessionID}, err
	}

	result, err := l.executor.Run(ctx, sess, steps)
	if err != nil || !result.Succeeded() {
		return result, err
	}

	if publish {
		ctrl := activation.NewController(l.store, client, l.logger)
		if err := ctrl.Activate(ctx, sess, result.Resources.ID(pipeline.StepAd)); err != nil {
			// The chain is provisioned and persisted; only the
			// publish failed. Surface it without discarding the ids.
			return result, fmt.Errorf("launch provisioned but activation failed: %w", err)
		}
	}

	return result, nil
}

// Activate publishes a previously provisioned session. It refuses sessions
// whose checkpoint lacks the final ad id.
func (l *Launcher) Activate(ctx context.Context, sessionID string) error {
	sess, err := l.reader.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	cp, err := l.store.Checkpoint(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reading checkpoint: %w", err)
	}
	if !cp.Has(pipeline.StepAd) {
		return ErrNotProvisioned
	}

	ctrl := activation.NewController(l.store, l.clients.ProviderClient(), l.logger)
	return ctrl.Activate(ctx, sess, cp.ID(pipeline.StepAd))
}

// SessionStatus returns the launch state of a session.
func (l *Launcher) SessionStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	doc, err := l.store.Session(ctx, sessionID)
	if err != nil {
		return SessionStatus{}, err
	}

	cp := doc.Checkpoint
	if cp == nil {
		cp = store.Checkpoint{}
	}
	return SessionStatus{
		SessionID:  doc.ID,
		Objective:  doc.Objective,
		Resources:  cp,
		Active:     doc.Active,
		ActiveAdID: doc.ActiveAdID,
		InProgress: doc.Lease != nil,
	}, nil
}
