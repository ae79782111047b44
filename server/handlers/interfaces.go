// Package handlers provides HTTP handlers for the adlift server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"context"

	"github.com/nomis52/adlift/config"
	"github.com/nomis52/adlift/pipeline"
	"github.com/nomis52/adlift/server/launch"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// Launcher runs and publishes launches.
type Launcher interface {
	Launch(ctx context.Context, sessionID string, publish bool) (pipeline.Result, error)
	Activate(ctx context.Context, sessionID string) error
	SessionStatus(ctx context.Context, sessionID string) (launch.SessionStatus, error)
}
