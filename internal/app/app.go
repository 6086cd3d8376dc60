// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/calyptra/voicepipe/internal/audio"
	"github.com/calyptra/voicepipe/internal/session"
	"github.com/calyptra/voicepipe/internal/transcript"
)

// Application represents the main application with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	options := append(modules, fx.Invoke(registerLifecycleHooks))

	app := fx.New(options...)

	return &Application{
		app: app,
	}
}

// Run starts the application and blocks until it's stopped.
func (a *Application) Run() {
	a.app.Run()
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// registerLifecycleHooks connects the voice session on start and tears it
// down, along with the audio backend, on stop.
func registerLifecycleHooks(
	lc fx.Lifecycle,
	orchestrator *session.Orchestrator,
	devices audio.DeviceProvider,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting application: connecting voice session")

			err := orchestrator.Connect(ctx, session.Handlers{
				OnTranscriptDelta: func(speaker transcript.Speaker, text string, final bool) {
					logger.Debug("Transcript delta",
						zap.String("speaker", string(speaker)),
						zap.String("text", text),
						zap.Bool("final", final))
				},
				OnTranscriptUpdate: func(u transcript.Utterance) {
					logger.Info("Transcript",
						zap.String("speaker", string(u.Speaker)),
						zap.String("text", u.Text))
				},
				OnSpeakingChange: func(speaking bool) {
					logger.Debug("Agent speaking state changed", zap.Bool("speaking", speaking))
				},
				OnClose: func(err error) {
					if err != nil {
						logger.Warn("Voice session closed", zap.Error(err))
						return
					}
					logger.Info("Voice session closed")
				},
			})
			if err != nil {
				logger.Error("Failed to connect voice session", zap.Error(err))

				return err
			}

			logger.Info("Application started successfully")

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping application: disconnecting voice session")

			err := multierr.Append(
				orchestrator.Disconnect(),
				devices.Close(),
			)
			if err != nil {
				logger.Error("Failed to stop cleanly", zap.Error(err))

				return err
			}

			logger.Info("Application stopped successfully")

			return nil
		},
	})
}
