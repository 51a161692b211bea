// Package bootstrap resolves the session, configuration and API client
// shared by the ppchat binaries.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/picklepick/ppchat/internal/api"
	"github.com/picklepick/ppchat/internal/auth"
	"github.com/picklepick/ppchat/internal/config"
	"github.com/picklepick/ppchat/internal/session"
	"github.com/picklepick/ppchat/internal/store"
	"go.uber.org/zap"
)

// Env is a resolved session.
type Env struct {
	Session string
	Config  *config.Config
}

// Load resolves the session name (flag, then config, then "main"),
// validates it and loads the layered configuration.
func Load(sessionFlag string) (*Env, error) {
	name := session.Resolve(sessionFlag)
	if err := session.ValidateName(name); err != nil {
		return nil, err
	}
	cfg, err := config.Resolve(session.ConfigPath(), session.EnvPath(name), ".env")
	if err != nil {
		return nil, err
	}
	return &Env{Session: name, Config: cfg}, nil
}

// Tokens returns the configured bearer token source.
func (e *Env) Tokens() auth.TokenSource {
	return e.Config.Auth.TokenSource()
}

// Client builds an API client from the config.
func (e *Env) Client(logger *zap.Logger) (*api.Client, error) {
	return api.NewClient(api.Config{
		BaseURL: e.Config.API.BaseURL,
		Timeout: e.Config.API.Timeout.Duration,
	}, e.Tokens(), logger)
}

// Identity resolves the current user.
func (e *Env) Identity(ctx context.Context) (auth.Identity, error) {
	return auth.ResolveIdentity(ctx, e.Tokens(), e.Config.Auth.UserID, e.Config.Auth.UserName)
}

// OpenHistory opens the session's history cache if it exists.
func (e *Env) OpenHistory() (*store.DB, error) {
	path := session.HistoryDBPath(e.Session)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no history cache for session %q (is ppchatd running?): %w", e.Session, err)
	}
	return store.OpenMigrated(path)
}
