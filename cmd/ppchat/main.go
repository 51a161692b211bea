package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/picklepick/ppchat/internal/bootstrap"
	"github.com/picklepick/ppchat/internal/chat"
	"go.uber.org/zap"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// cli carries what every command needs.
type cli struct {
	env    *bootstrap.Env
	json   bool
	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ppchat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sessionFlag := fs.String("session", "", "session name (overrides config default)")
	jsonFlag := fs.Bool("json", false, "output in JSON format")
	verbose := fs.Bool("v", false, "log requests to stderr")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	env, err := bootstrap.Load(*sessionFlag)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	c := &cli{env: env, json: *jsonFlag, stdout: stdout, stderr: stderr, logger: logger}

	ctx, cancel := context.WithTimeout(ctx, 2*env.Config.API.Timeout.Duration+5*time.Second)
	defer cancel()

	switch rest[0] {
	case "status":
		return c.cmdStatus(ctx)
	case "whoami":
		return c.cmdWhoami(ctx)
	case "conversations", "inbox":
		return c.cmdConversations(ctx, rest[1:])
	case "history":
		return c.cmdHistory(ctx, rest[1:])
	case "send":
		return c.cmdSend(ctx, rest[1:])
	case "search":
		return c.cmdSearch(rest[1:])
	case "sessions":
		if len(rest) >= 2 && rest[1] == "list" {
			return c.cmdSessionsList()
		}
		fmt.Fprintln(stderr, "usage: ppchat sessions list")
		return exitUsage
	case "config":
		if len(rest) >= 2 && rest[1] == "init" {
			return c.cmdConfigInit(rest[2:])
		}
		fmt.Fprintln(stderr, "usage: ppchat config init [--force]")
		return exitUsage
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", rest[0])
		printUsage(stderr)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: ppchat [--session <name>] [--json] [-v] <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  status                          Show daemon and API status")
	fmt.Fprintln(w, "  whoami                          Show the current user")
	fmt.Fprintln(w, "  conversations [--cached]        List conversations, most recent first")
	fmt.Fprintln(w, "  history <user> [--cached] [-n]  Show the conversation with a user")
	fmt.Fprintln(w, "  send <user> <text...>           Send a message")
	fmt.Fprintln(w, "  search <text> [--with <user>]   Search cached history")
	fmt.Fprintln(w, "  sessions list                   List known sessions")
	fmt.Fprintln(w, "  config init [--force]           Write a default config file")
}

func (c *cli) outputJSON(v any) {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(c.stderr, "json encode error: %v\n", err)
	}
}

// fail prints err and maps it to an exit code.
func (c *cli) fail(err error) int {
	fmt.Fprintf(c.stderr, "error: %v\n", err)
	var ve *chat.ValidationError
	if errors.As(err, &ve) {
		return exitUsage
	}
	return exitFailure
}
