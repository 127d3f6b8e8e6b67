// Package cli provides common CLI initialization utilities shared by the
// cmd/seara subcommands.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"seara/internal/auth"
	"seara/internal/auth/google"
	"seara/internal/backend"
	"seara/internal/config"
	applog "seara/internal/log"
)

// SetupLogger initializes structured logging at the given level and makes
// it the process default.
func SetupLogger(level string, out io.Writer) *applog.Logger {
	if out == nil {
		out = os.Stderr
	}
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(level),
		Component: applog.ComponentCLI,
		Output:    out,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitBackend builds the store selected by cfg.
func InitBackend(ctx context.Context, logger *applog.Logger, cfg *config.Config) (*backend.BackendResult, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.LogError(ctx, "Failed to initialize backend", err, applog.OpStartup,
			applog.NewFields().WithComponent(applog.ComponentStore))
		return nil, err
	}
	return res, nil
}

// Identity selects who the CLI acts as: an explicit user id, or a Google ID
// token verified against clientID.
type Identity struct {
	UserID   string
	IDToken  string
	ClientID string

	// Validate overrides Google token verification when set.
	Validate google.ValidateFunc
}

// SignIn resolves the identity and returns an authenticator already signed in.
func SignIn(ctx context.Context, logger *applog.Logger, id Identity) (auth.Authenticator, error) {
	switch {
	case id.IDToken != "":
		g := google.New(id.ClientID, logger)
		if id.Validate != nil {
			g.WithValidator(id.Validate)
		}
		if _, err := g.SignInWithIDToken(ctx, id.IDToken); err != nil {
			return nil, err
		}
		return g, nil
	case id.UserID != "":
		l := auth.NewLocal()
		if err := l.SignIn(ctx, auth.Identity{ID: id.UserID, DisplayName: id.UserID}); err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, &auth.AuthError{Code: auth.CodeMissingIdentity, Err: errors.New("pass --user or --id-token")}
	}
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs once the signal arrives and must finish within timeout.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}
