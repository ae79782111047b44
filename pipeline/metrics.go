package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/adlift/metrics"
	"github.com/nomis52/adlift/provider"
)

// CounterVec aliases the metrics interface so step instrumentation can be
// exercised without binding the executor to one registry mode.
type CounterVec = metrics.CounterVec

// Metrics holds the per-step counters the executor records.
type Metrics struct {
	StepsExecuted metrics.CounterVec
	StepsSkipped  metrics.CounterVec
	StepsFailed   metrics.CounterVec
}

// NewMetrics registers the pipeline counters with the given registry.
func NewMetrics(reg metrics.Registry) (*Metrics, error) {
	executed, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "launch_steps_executed_total",
		Help: "Provisioning steps that issued a remote create call and succeeded.",
	}, []string{"objective", "step"})
	if err != nil {
		return nil, fmt.Errorf("registering executed counter: %w", err)
	}

	skipped, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "launch_steps_skipped_total",
		Help: "Provisioning steps skipped because the checkpoint already held their id.",
	}, []string{"objective", "step"})
	if err != nil {
		return nil, fmt.Errorf("registering skipped counter: %w", err)
	}

	failed, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "launch_steps_failed_total",
		Help: "Provisioning steps that failed and aborted the launch.",
	}, []string{"objective", "step"})
	if err != nil {
		return nil, fmt.Errorf("registering failed counter: %w", err)
	}

	return &Metrics{
		StepsExecuted: executed,
		StepsSkipped:  skipped,
		StepsFailed:   failed,
	}, nil
}

// describeStepError extracts an HTTP-status-like code and a display message
// from a step failure.
func describeStepError(err error) (int, string) {
	var provErr *provider.Error
	if errors.As(err, &provErr) {
		return provErr.StatusCode, provErr.Message
	}
	return http.StatusBadGateway, err.Error()
}
