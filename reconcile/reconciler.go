// Package reconcile provides the background sweep over the session store.
//
// The sweep does two things: it releases launch leases whose holder died
// without cleaning up, and it reports sessions stuck with a partial
// provisioning chain so an operator can resume or clean them up. It never
// deletes remote resources; provisioned ids stay in the checkpoint until a
// human decides otherwise.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/adlift/metrics"
	"github.com/nomis52/adlift/pipeline"
	"github.com/nomis52/adlift/store"
)

// Reconciler sweeps the session store.
type Reconciler struct {
	store    store.Store
	logger   *slog.Logger
	leaseTTL time.Duration

	partialSessions metrics.Gauge
	leasesReleased  metrics.Counter
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithMetrics registers the reconciler's gauges and counters with reg.
// Registration errors surface on the first sweep rather than at startup.
func WithMetrics(reg metrics.Registry) Option {
	return func(r *Reconciler) {
		partial, err := reg.NewGauge(prometheus.GaugeOpts{
			Name: "launch_partial_sessions",
			Help: "Sessions with a started but unfinished provisioning chain.",
		})
		if err != nil {
			r.logger.Error("failed to register partial sessions gauge", "error", err)
			return
		}
		released, err := reg.NewCounter(prometheus.CounterOpts{
			Name: "launch_stale_leases_released_total",
			Help: "Launch leases released because their holder exceeded the TTL.",
		})
		if err != nil {
			r.logger.Error("failed to register stale lease counter", "error", err)
			return
		}
		r.partialSessions = partial
		r.leasesReleased = released
	}
}

// New creates a Reconciler.
func New(st store.Store, logger *slog.Logger, leaseTTL time.Duration, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:    st,
		logger:   logger.With("component", "reconcile"),
		leaseTTL: leaseTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs a single sweep. It satisfies the trigger's Runnable interface.
func (r *Reconciler) Run() error {
	ctx := context.Background()

	sessions, err := r.store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	partial := 0
	for _, sess := range sessions {
		if r.isStale(sess.Lease) {
			if err := r.store.Release(ctx, sess.ID, sess.Lease.Owner); err != nil {
				r.logger.Error("failed to release stale lease",
					"session_id", sess.ID,
					"owner", sess.Lease.Owner,
					"error", err,
				)
			} else {
				r.logger.Warn("released stale launch lease",
					"session_id", sess.ID,
					"owner", sess.Lease.Owner,
					"acquired_at", sess.Lease.AcquiredAt,
				)
				if r.leasesReleased != nil {
					r.leasesReleased.Inc()
				}
			}
		}

		if isPartial(sess) {
			partial++
			r.logger.Info("session has a partial provisioning chain",
				"session_id", sess.ID,
				"completed_steps", len(sess.Checkpoint),
			)
		}
	}

	if r.partialSessions != nil {
		r.partialSessions.Set(float64(partial))
	}

	r.logger.Debug("sweep complete", "sessions", len(sessions), "partial", partial)
	return nil
}

func (r *Reconciler) isStale(l *store.Lease) bool {
	return l != nil && time.Since(l.AcquiredAt) >= r.leaseTTL
}

// isPartial reports whether the session started provisioning but never
// reached the final ad step.
func isPartial(sess store.Session) bool {
	return len(sess.Checkpoint) > 0 && !sess.Checkpoint.Has(pipeline.StepAd)
}
