// Package daemon composes the background process that keeps a session's
// inbox and history cache current.
package daemon

import (
	"context"
	"path/filepath"

	"github.com/picklepick/ppchat/internal/api"
	"github.com/picklepick/ppchat/internal/bus"
	"github.com/picklepick/ppchat/internal/codec"
	"github.com/picklepick/ppchat/internal/config"
	"github.com/picklepick/ppchat/internal/inbox"
	"github.com/picklepick/ppchat/internal/lock"
	"github.com/picklepick/ppchat/internal/logging"
	"github.com/picklepick/ppchat/internal/session"
	"github.com/picklepick/ppchat/internal/status"
	"github.com/picklepick/ppchat/internal/store"
	intsync "github.com/picklepick/ppchat/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	Dir         string      // optional override for testing; empty = session.Dir
	Logger      *zap.Logger // optional override for testing; empty = log file + stderr
}

func (p Params) dir() string {
	if p.Dir != "" {
		return p.Dir
	}
	return session.Dir(p.SessionName)
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCodec,
			provideClient,
			provideWatcher,
			provideSyncEngine,
			NewRecorder,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(filepath.Join(p.dir(), "logs", "ppchatd.log"), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(p.dir(), "ppchatd")
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := filepath.Join(p.dir(), "history.db")
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCodec(logger *zap.Logger) *codec.Codec {
	return codec.New(logger)
}

func provideClient(p Params, logger *zap.Logger) (*api.Client, error) {
	return api.NewClient(api.Config{
		BaseURL: p.Config.API.BaseURL,
		Timeout: p.Config.API.Timeout.Duration,
	}, p.Config.Auth.TokenSource(), logger)
}

func provideWatcher(p Params, client *api.Client, b *bus.Bus, m *status.Machine, logger *zap.Logger) (*inbox.Watcher, error) {
	return inbox.NewWatcher(inbox.Deps{
		Lister:   client,
		Interval: p.Config.Poll.InboxInterval.Duration,
		Bus:      b,
		Observer: m,
		Logger:   logger,
	})
}

func provideSyncEngine(db *store.DB, b *bus.Bus, client *api.Client, c *codec.Codec, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, client, c, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, lk *lock.Lock, db *store.DB, b *bus.Bus, watcher *inbox.Watcher, engine *intsync.Engine, rec *Recorder, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Subscribers first so the first inbox fetch is not missed.
			rec.Start(context.Background())
			engine.Start(context.Background())
			if err := watcher.Start(context.Background()); err != nil {
				return err
			}
			logger.Info("daemon started",
				zap.String("api", p.Config.API.BaseURL),
				zap.Duration("inbox_interval", p.Config.Poll.InboxInterval.Duration),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			watcher.Stop()
			select {
			case <-watcher.Done():
			case <-ctx.Done():
			}
			engine.Stop()
			rec.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped", zap.Uint64("events_dropped", b.Dropped()))
			return nil
		},
	})
}
