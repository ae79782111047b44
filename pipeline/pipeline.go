// Package pipeline executes the ordered chain of provisioning steps that
// turns a validated session into remote advertising resources.
//
// The executor is idempotent by checkpoint: it reads the session's
// checkpoint first, skips every step whose identifier is already recorded,
// and persists each new identifier immediately after the remote call that
// produced it. Re-invoking after a partial failure therefore resumes at the
// first unfinished step and never re-creates a resource the checkpoint
// knows about.
//
// The executor does not retry. A failed step is surfaced to the caller, who
// can re-invoke the whole launch cheaply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/adlift/selection"
	"github.com/nomis52/adlift/store"
)

// ErrRunInProgress is returned when another launch holds the session lease.
var ErrRunInProgress = errors.New("launch already in progress for this session")

// Result is the outcome of one pipeline invocation. On success Resources
// holds the complete step-name -> id mapping; on failure it holds the
// completed prefix, all of which remains persisted and reusable.
type Result struct {
	SessionID string           `json:"session_id"`
	RunID     string           `json:"run_id"`
	Resources store.Checkpoint `json:"resources"`

	// FailedStep is empty on success.
	FailedStep string `json:"failed_step,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Succeeded reports whether every step completed.
func (r Result) Succeeded() bool {
	return r.FailedStep == ""
}

// Executor walks a step list against the session checkpoint.
type Executor struct {
	store    store.Store
	logger   *slog.Logger
	metrics  *Metrics
	leaseTTL time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics attaches step counters to the executor.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithLeaseTTL overrides how long a held lease blocks concurrent launches.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(e *Executor) {
		e.leaseTTL = ttl
	}
}

const defaultLeaseTTL = 10 * time.Minute

// NewExecutor creates an Executor over the given store.
func NewExecutor(st store.Store, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		store:    st,
		logger:   logger.With("component", "pipeline"),
		leaseTTL: defaultLeaseTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the steps in declared order. It acquires the session lease
// before the skip-check loop so two concurrent launches cannot both decide
// the same step is unfinished, and releases it on exit.
//
// The returned error covers lease and persistence failures; a step failure
// is reported inside the Result with a nil error, because the completed
// prefix is still valid, persisted state the caller may want.
func (e *Executor) Run(ctx context.Context, sess *selection.Session, steps []Step) (Result, error) {
	runID := uuid.NewString()
	logger := e.logger.With("session_id", sess.ID, "run_id", runID, "objective", string(sess.Objective))

	result := Result{SessionID: sess.ID, RunID: runID}

	if err := e.store.Acquire(ctx, sess.ID, runID, e.leaseTTL); err != nil {
		if errors.Is(err, store.ErrLeaseHeld) {
			return result, ErrRunInProgress
		}
		return result, fmt.Errorf("acquiring launch lease: %w", err)
	}
	defer func() {
		if err := e.store.Release(context.WithoutCancel(ctx), sess.ID, runID); err != nil {
			logger.Warn("failed to release launch lease", "error", err)
		}
	}()

	cp, err := e.store.Checkpoint(ctx, sess.ID)
	if err != nil {
		return result, fmt.Errorf("reading checkpoint: %w", err)
	}

	logger.Info("launch started", "steps", len(steps), "completed", len(cp))

	for _, step := range steps {
		if cp.Has(step.Name) {
			logger.Debug("step already completed, skipping", "step", step.Name, "id", cp.ID(step.Name))
			e.count(e.metricsSkipped(), sess, step.Name)
			continue
		}

		payload, err := step.Build(sess, cp)
		if err != nil {
			// Build is pure; a failure here means the session data
			// cannot produce a valid request for this step.
			result.FailedStep = step.Name
			result.Message = err.Error()
			result.Resources = cp
			e.count(e.metricsFailed(), sess, step.Name)
			logger.Error("step request build failed", "step", step.Name, "error", err)
			return result, nil
		}

		id, err := step.Execute(ctx, payload)
		if err != nil {
			result.FailedStep = step.Name
			result.StatusCode, result.Message = describeStepError(err)
			result.Resources = cp
			e.count(e.metricsFailed(), sess, step.Name)
			logger.Error("step failed", "step", step.Name, "status", result.StatusCode, "error", err)
			return result, nil
		}

		// Persist before moving on: the patch is what marks this step
		// done for every future invocation. If it fails, the remote
		// resource exists with no local record, so treat it as fatal
		// rather than continuing with state we cannot resume from.
		if err := e.store.PatchCheckpoint(ctx, sess.ID, store.Checkpoint{step.Name: id}); err != nil {
			return result, fmt.Errorf("persisting %s id %q: %w", step.Name, id, err)
		}
		cp[step.Name] = id

		e.count(e.metricsExecuted(), sess, step.Name)
		logger.Info("step completed", "step", step.Name, "id", id)
	}

	result.Resources = cp
	logger.Info("launch completed", "resources", len(cp))
	return result, nil
}

func (e *Executor) metricsExecuted() CounterVec {
	if e.metrics == nil {
		return nil
	}
	return e.metrics.StepsExecuted
}

func (e *Executor) metricsSkipped() CounterVec {
	if e.metrics == nil {
		return nil
	}
	return e.metrics.StepsSkipped
}

func (e *Executor) metricsFailed() CounterVec {
	if e.metrics == nil {
		return nil
	}
	return e.metrics.StepsFailed
}

func (e *Executor) count(vec CounterVec, sess *selection.Session, step string) {
	if vec == nil {
		return
	}
	vec.With(prometheus.Labels{
		"objective": string(sess.Objective),
		"step":      step,
	}).Inc()
}
