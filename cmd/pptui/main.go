package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/picklepick/ppchat/internal/auth"
	"github.com/picklepick/ppchat/internal/bootstrap"
	"github.com/picklepick/ppchat/internal/bus"
	"github.com/picklepick/ppchat/internal/chat"
	"github.com/picklepick/ppchat/internal/codec"
	"github.com/picklepick/ppchat/internal/inbox"
	"github.com/picklepick/ppchat/internal/lock"
	"github.com/picklepick/ppchat/internal/logging"
	"github.com/picklepick/ppchat/internal/session"
	"github.com/picklepick/ppchat/internal/status"
	"github.com/picklepick/ppchat/internal/tui"
	"github.com/picklepick/ppchat/internal/tui/model"
	"github.com/picklepick/ppchat/internal/tui/ui"
	"go.uber.org/zap"
)

const daemonWait = 10 * time.Second

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	noDaemon := flag.Bool("no-daemon", false, "do not start ppchatd (history search is unavailable)")
	flag.Parse()

	if err := run(*sessionFlag, !*noDaemon); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(sessionFlag string, withDaemon bool) error {
	env, err := bootstrap.Load(sessionFlag)
	if err != nil {
		return err
	}
	if err := session.EnsureDir(env.Session); err != nil {
		return err
	}
	// The screen belongs to tview; logs go to the file only.
	logger, err := logging.NewFileOnly(session.LogPath(env.Session, "pptui"), env.Session)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	self, err := env.Identity(ctx)
	if errors.Is(err, auth.ErrNoToken) {
		return errors.New("not signed in: set PICKLEPICK_TOKEN, or [auth] token or token_file in the config")
	}
	if err != nil {
		return fmt.Errorf("resolve current user: %w", err)
	}

	if withDaemon {
		if err := ensureDaemon(env.Session, logger); err != nil {
			logger.Warn("history cache unavailable", zap.Error(err))
		}
	}

	client, err := env.Client(logger)
	if err != nil {
		return err
	}
	b := bus.New()
	machine := status.NewMachine(b)
	watcher, err := inbox.NewWatcher(inbox.Deps{
		Lister:   client,
		Interval: env.Config.Poll.InboxInterval.Duration,
		Bus:      b,
		Observer: machine,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	c := codec.New(logger)

	deps := model.Deps{
		Session: env.Session,
		Self:    self,
		Inbox:   watcher.Index(),
		Status:  machine,
		Open: func(ctx context.Context, counterpartID string) (*chat.Session, error) {
			return chat.Open(ctx, counterpartID, chat.Deps{
				Transport: client,
				Codec:     c,
				Self:      self,
				Interval:  env.Config.Poll.ConversationInterval.Duration,
				Bus:       b,
				Logger:    logger,
			})
		},
	}
	if db, err := env.OpenHistory(); err == nil {
		defer func() { _ = db.Close() }()
		deps.History = db
	} else {
		logger.Info("history search disabled", zap.Error(err))
	}

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	theme := ui.DefaultTheme()
	if err := theme.Apply(env.Config.TUI.Colors); err != nil {
		logger.Warn("ignoring [tui.colors]", zap.Error(err))
	}

	app := tui.NewApp(tui.Deps{
		VM:      model.NewViewModel(deps),
		Bus:     b,
		Refresh: watcher.Refresh,
		Logger:  logger,
		Theme:   theme,
	})
	logger.Info("tui started", zap.String("user", self.ID))
	return app.Run()
}

// ensureDaemon starts ppchatd for the session unless one holds the lock,
// then waits for its history cache to appear.
func ensureDaemon(name string, logger *zap.Logger) error {
	dir := session.Dir(name)
	if h, err := lock.Probe(dir); err == nil && h != nil {
		return nil
	}
	logger.Info("starting daemon", zap.String("session", name))
	if err := startDaemon(name); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if !waitForDaemon(name, daemonWait) {
		return errors.New("daemon did not become ready")
	}
	return nil
}

func startDaemon(name string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	ppchatd := filepath.Join(filepath.Dir(executable), "ppchatd")
	if _, err := os.Stat(ppchatd); err != nil {
		ppchatd = "ppchatd"
	}

	cmd := exec.Command(ppchatd, "--session", name)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// waitForDaemon polls until the daemon holds the lock and has created the
// history cache.
func waitForDaemon(name string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		h, err := lock.Probe(session.Dir(name))
		if err == nil && h != nil {
			if _, err := os.Stat(session.HistoryDBPath(name)); err == nil {
				return true
			}
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
