package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/screenshot-orchestrator/internal/auth"
	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
	"github.com/JakeFAU/screenshot-orchestrator/internal/config"
	"github.com/JakeFAU/screenshot-orchestrator/internal/server"
)

// App defines the application interface that commands use, so tests can
// inject a fake.
type App interface {
	Serve(ctx context.Context) error
	Capture(ctx context.Context, req capture.Request) (capture.Envelope, error)
	CancelAll() int
	AuthStatus(ctx context.Context) (auth.Status, error)
	ClearAuth(ctx context.Context) (bool, error)
	Logger() *zap.Logger
	Close(ctx context.Context) error
}

type serviceApp struct {
	app *server.App
}

func buildServiceApp(ctx context.Context, cfg *config.Config) (App, error) {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build services: %w", err)
	}
	return &serviceApp{app: app}, nil
}

// Serve runs the HTTP server; it closes the services itself on the way out.
func (s *serviceApp) Serve(ctx context.Context) error {
	err := s.app.Run(ctx)
	s.app = nil
	return err
}

func (s *serviceApp) Capture(ctx context.Context, req capture.Request) (capture.Envelope, error) {
	return s.app.Orchestrator().Execute(ctx, req)
}

func (s *serviceApp) CancelAll() int {
	return s.app.Orchestrator().CancelAll()
}

func (s *serviceApp) AuthStatus(ctx context.Context) (auth.Status, error) {
	return s.app.AuthStore().Status(ctx)
}

func (s *serviceApp) ClearAuth(ctx context.Context) (bool, error) {
	return s.app.AuthStore().Clear(ctx)
}

func (s *serviceApp) Logger() *zap.Logger {
	if s.app == nil {
		return zap.L()
	}
	return s.app.Logger()
}

func (s *serviceApp) Close(ctx context.Context) error {
	if s.app == nil {
		return nil
	}
	return s.app.Close(ctx)
}
