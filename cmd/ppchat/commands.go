package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/picklepick/ppchat/internal/api"
	"github.com/picklepick/ppchat/internal/chat"
	"github.com/picklepick/ppchat/internal/codec"
	"github.com/picklepick/ppchat/internal/config"
	"github.com/picklepick/ppchat/internal/daemon"
	"github.com/picklepick/ppchat/internal/inbox"
	"github.com/picklepick/ppchat/internal/lock"
	"github.com/picklepick/ppchat/internal/session"
	"github.com/picklepick/ppchat/internal/store"
)

const timeLayout = "2006-01-02 15:04"

type statusOutput struct {
	Session       string       `json:"session"`
	API           string       `json:"api"`
	APIReachable  bool         `json:"api_reachable"`
	APIError      string       `json:"api_error,omitempty"`
	DaemonRunning bool         `json:"daemon_running"`
	DaemonPID     int          `json:"daemon_pid,omitempty"`
	State         string       `json:"state,omitempty"`
	Since         string       `json:"since,omitempty"`
	LastSync      string       `json:"last_sync,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
	Cache         *cacheOutput `json:"cache,omitempty"`
}

type cacheOutput struct {
	Schema        uint  `json:"schema"`
	Conversations int64 `json:"conversations"`
	Messages      int64 `json:"messages"`
}

func (c *cli) cmdStatus(ctx context.Context) int {
	out := statusOutput{Session: c.env.Session, API: c.env.Config.API.BaseURL}

	client, err := c.env.Client(c.logger)
	if err != nil {
		return c.fail(err)
	}
	if err := client.Health(ctx); err != nil {
		out.APIError = err.Error()
	} else {
		out.APIReachable = true
	}

	if h, err := lock.Probe(session.Dir(c.env.Session)); err == nil && h != nil {
		out.DaemonRunning = true
		out.DaemonPID = h.PID
	}
	if db, err := c.env.OpenHistory(); err == nil {
		if snap, err := daemon.ReadSnapshot(db); err == nil {
			out.State = string(snap.State)
			out.Since = formatTime(snap.Since)
			out.LastSync = formatTime(snap.LastSync)
			out.LastError = snap.LastError
		}
		out.Cache = readCache(db)
		_ = db.Close()
	}

	if c.json {
		c.outputJSON(out)
		return exitOK
	}
	fmt.Fprintf(c.stdout, "Session:   %s\n", out.Session)
	if out.APIReachable {
		fmt.Fprintf(c.stdout, "API:       %s (reachable)\n", out.API)
	} else {
		fmt.Fprintf(c.stdout, "API:       %s (unreachable: %s)\n", out.API, out.APIError)
	}
	if out.DaemonRunning {
		fmt.Fprintf(c.stdout, "Daemon:    running (PID %d)\n", out.DaemonPID)
	} else {
		fmt.Fprintln(c.stdout, "Daemon:    stopped")
	}
	if out.State != "" {
		fmt.Fprintf(c.stdout, "State:     %s since %s\n", out.State, out.Since)
		fmt.Fprintf(c.stdout, "Last sync: %s\n", orDash(out.LastSync))
	}
	if out.LastError != "" {
		fmt.Fprintf(c.stdout, "Error:     %s\n", out.LastError)
	}
	if out.Cache != nil {
		fmt.Fprintf(c.stdout, "Cache:     %d conversations, %d messages (schema v%d)\n",
			out.Cache.Conversations, out.Cache.Messages, out.Cache.Schema)
	}
	return exitOK
}

func readCache(db *store.DB) *cacheOutput {
	v, ok, err := db.SchemaVersion()
	if err != nil || !ok {
		return nil
	}
	out := &cacheOutput{Schema: v}
	out.Conversations, _ = db.ConversationCount()
	out.Messages, _ = db.MessageCount()
	return out
}

func (c *cli) cmdWhoami(ctx context.Context) int {
	id, err := c.env.Identity(ctx)
	if err != nil {
		return c.fail(err)
	}
	if c.json {
		c.outputJSON(map[string]string{"id": id.ID, "name": id.Name})
		return exitOK
	}
	fmt.Fprintf(c.stdout, "%s (%s)\n", id.Name, id.ID)
	return exitOK
}

type conversationOutput struct {
	CounterpartID string `json:"counterpart_id"`
	Name          string `json:"name"`
	LastMessage   string `json:"last_message"`
	LastMessageAt string `json:"last_message_at,omitempty"`
	Unread        int    `json:"unread"`
}

func (c *cli) cmdConversations(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("conversations", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	cached := fs.Bool("cached", false, "read from the local history cache")
	limit := fs.Int("n", 50, "maximum conversations (cached only)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	var rows []inbox.Conversation
	if *cached {
		db, err := c.env.OpenHistory()
		if err != nil {
			return c.fail(err)
		}
		defer func() { _ = db.Close() }()
		convs, err := db.ListConversations(*limit, 0)
		if err != nil {
			return c.fail(err)
		}
		for _, sc := range convs {
			rows = append(rows, fromCache(sc))
		}
	} else {
		client, err := c.env.Client(c.logger)
		if err != nil {
			return c.fail(err)
		}
		w, err := inbox.NewWatcher(inbox.Deps{Lister: client, Logger: c.logger})
		if err != nil {
			return c.fail(err)
		}
		if err := w.Refresh(ctx); err != nil {
			return c.fail(err)
		}
		rows = w.Index().List()
	}

	if c.json {
		out := make([]conversationOutput, 0, len(rows))
		for _, r := range rows {
			out = append(out, conversationOutput{
				CounterpartID: r.CounterpartID,
				Name:          r.CounterpartName,
				LastMessage:   r.LastMessageBody,
				LastMessageAt: formatTime(r.LastMessageTimestamp),
				Unread:        r.UnreadCount,
			})
		}
		c.outputJSON(out)
		return exitOK
	}
	if len(rows) == 0 {
		fmt.Fprintln(c.stdout, "No conversations yet.")
		return exitOK
	}
	var selfID string
	if self, err := c.env.Identity(ctx); err == nil {
		selfID = self.ID
	}
	for _, r := range rows {
		unread := ""
		if r.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d)", r.UnreadCount)
		}
		fmt.Fprintf(c.stdout, "%-16s %-20s %-16s %s%s\n",
			r.CounterpartID, r.CounterpartName, orDash(formatTime(r.LastMessageTimestamp)), r.PreviewFor(selfID), unread)
	}
	return exitOK
}

type messageOutput struct {
	ID         string `json:"id,omitempty"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Body       string `json:"body"`
	Timestamp  string `json:"timestamp,omitempty"`
	Pending    bool   `json:"pending,omitempty"`
}

func (c *cli) cmdHistory(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	cached := fs.Bool("cached", false, "read from the local history cache")
	limit := fs.Int("n", 0, "show only the last n messages")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(c.stderr, "usage: ppchat history <user> [--cached] [-n count]")
		return exitUsage
	}
	counterpart := fs.Arg(0)

	var msgs []chat.Message
	if *cached {
		db, err := c.env.OpenHistory()
		if err != nil {
			return c.fail(err)
		}
		defer func() { _ = db.Close() }()
		rows, err := db.ListMessages(counterpart, 0, max(*limit, 1000))
		if err != nil {
			return c.fail(err)
		}
		for _, r := range rows {
			msgs = append(msgs, fromStored(r))
		}
	} else {
		s, err := c.openSession(ctx, counterpart)
		if err != nil {
			return c.fail(err)
		}
		defer s.Close()
		if err := s.Refresh(ctx); err != nil {
			return c.fail(err)
		}
		msgs = s.Snapshot()
	}
	if *limit > 0 && len(msgs) > *limit {
		msgs = msgs[len(msgs)-*limit:]
	}

	c.printMessages(msgs)
	return exitOK
}

func (c *cli) cmdSend(ctx context.Context, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(c.stderr, "usage: ppchat send <user> <text...>")
		return exitUsage
	}
	counterpart, text := args[0], strings.Join(args[1:], " ")
	if text == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return c.fail(err)
		}
		text = string(data)
	}

	s, err := c.openSession(ctx, counterpart)
	if err != nil {
		return c.fail(err)
	}
	defer s.Close()

	m, err := s.Send(ctx, text)
	if err != nil {
		var te *api.TransportError
		if errors.As(err, &te) {
			fmt.Fprintf(c.stderr, "message not delivered: %v\n", err)
			return exitFailure
		}
		return c.fail(err)
	}
	if c.json {
		c.outputJSON(toOutput(m))
		return exitOK
	}
	fmt.Fprintf(c.stdout, "sent to %s at %s\n", counterpart, formatTime(m.Timestamp))
	return exitOK
}

func (c *cli) cmdSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	with := fs.String("with", "", "only search the conversation with this user")
	limit := fs.Int("n", 50, "maximum results")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(c.stderr, "usage: ppchat search <text> [--with <user>] [-n count]")
		return exitUsage
	}

	db, err := c.env.OpenHistory()
	if err != nil {
		return c.fail(err)
	}
	defer func() { _ = db.Close() }()
	rows, err := db.SearchMessages(query, *with, *limit)
	if err != nil {
		return c.fail(err)
	}

	if c.json {
		out := make([]map[string]any, 0, len(rows))
		for _, r := range rows {
			out = append(out, map[string]any{
				"counterpart_id": r.CounterpartID,
				"message":        toOutput(fromStored(r)),
			})
		}
		c.outputJSON(out)
		return exitOK
	}
	if len(rows) == 0 {
		fmt.Fprintln(c.stdout, "No matches.")
		return exitOK
	}
	for _, r := range rows {
		fmt.Fprintf(c.stdout, "[%s] %s  %s: %s\n", r.CounterpartID, formatTime(fromMillis(r.Timestamp)), r.SenderName, r.Body)
	}
	return exitOK
}

type sessionOutput struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	DaemonRunning bool   `json:"daemon_running"`
	Current       bool   `json:"current"`
}

func (c *cli) cmdSessionsList() int {
	names, err := session.List()
	if err != nil {
		return c.fail(err)
	}
	out := make([]sessionOutput, 0, len(names))
	for _, n := range names {
		h, _ := lock.Probe(session.Dir(n))
		out = append(out, sessionOutput{Name: n, Path: session.Dir(n), DaemonRunning: h != nil, Current: n == c.env.Session})
	}
	if c.json {
		c.outputJSON(out)
		return exitOK
	}
	if len(out) == 0 {
		fmt.Fprintln(c.stdout, "No sessions found.")
		return exitOK
	}
	for _, s := range out {
		running := "stopped"
		if s.DaemonRunning {
			running = "running"
		}
		marker := " "
		if s.Current {
			marker = "*"
		}
		fmt.Fprintf(c.stdout, "%s %-20s %s (%s)\n", marker, s.Name, s.Path, running)
	}
	return exitOK
}

func (c *cli) cmdConfigInit(args []string) int {
	fs := flag.NewFlagSet("config init", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	force := fs.Bool("force", false, "overwrite an existing config")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	path := session.ConfigPath()
	if _, err := os.Stat(path); err == nil && !*force {
		fmt.Fprintf(c.stderr, "error: %s already exists (use --force to overwrite)\n", path)
		return exitFailure
	}
	cfg := config.Default()
	cfg.DefaultSession = c.env.Session
	if err := config.Save(path, cfg); err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.stdout, "wrote %s\n", path)
	return exitOK
}

func (c *cli) openSession(ctx context.Context, counterpart string) (*chat.Session, error) {
	client, err := c.env.Client(c.logger)
	if err != nil {
		return nil, err
	}
	self, err := c.env.Identity(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve current user: %w", err)
	}
	return chat.New(counterpart, chat.Deps{
		Transport: client,
		Codec:     codec.New(c.logger),
		Self:      self,
		Interval:  c.env.Config.Poll.ConversationInterval.Duration,
		Logger:    c.logger,
	})
}

func (c *cli) printMessages(msgs []chat.Message) {
	if c.json {
		out := make([]messageOutput, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, toOutput(m))
		}
		c.outputJSON(out)
		return
	}
	if len(msgs) == 0 {
		fmt.Fprintln(c.stdout, "No messages yet.")
		return
	}
	for _, m := range msgs {
		fmt.Fprintf(c.stdout, "%s  %s: %s\n", orDash(formatTime(m.Timestamp)), m.SenderName, m.Body)
	}
}

func toOutput(m chat.Message) messageOutput {
	return messageOutput{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Body:       m.Body,
		Timestamp:  formatTime(m.Timestamp),
		Pending:    m.Pending(),
	}
}

func fromCache(sc store.Conversation) inbox.Conversation {
	return inbox.Conversation{
		CounterpartID:        sc.CounterpartID,
		CounterpartName:      sc.CounterpartName,
		LastMessageBody:      sc.LastMessageBody,
		LastMessageTimestamp: fromMillis(sc.LastMessageAt),
		LastMessageSenderID:  sc.LastSenderID,
		UnreadCount:          sc.UnreadCount,
	}
}

func fromStored(r store.Message) chat.Message {
	return chat.Message{
		ID: r.MsgID, SenderID: r.SenderID, SenderName: r.SenderName, Body: r.Body,
		Timestamp: fromMillis(r.Timestamp), Origin: chat.ServerConfirmed,
	}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
