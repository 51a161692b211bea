// Command ppchatd keeps one session's inbox and history cache current in
// the background. pptui starts it on demand; it can also run standalone.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/picklepick/ppchat/internal/bootstrap"
	"github.com/picklepick/ppchat/internal/daemon"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	traceFx := flag.Bool("trace-fx", false, "log dependency wiring events")
	flag.Parse()

	env, err := bootstrap.Load(*sessionFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ppchatd: %v\n", err)
		os.Exit(1)
	}

	opts := []fx.Option{
		daemon.Module(daemon.Params{SessionName: env.Session, Config: env.Config}),
	}
	if *traceFx {
		opts = append(opts, fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}))
	} else {
		opts = append(opts, fx.NopLogger)
	}
	fx.New(opts...).Run()
}
