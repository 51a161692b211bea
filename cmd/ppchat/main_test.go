package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/picklepick/ppchat/internal/codec"
	"github.com/picklepick/ppchat/internal/config"
	"github.com/picklepick/ppchat/internal/session"
)

type fakeServer struct {
	*httptest.Server
	sends    atomic.Int32
	lastSent atomic.Value
	failSend atomic.Bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	c := codec.New(nil)
	fs := &fakeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /api/conversations/", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"user_id": "u2", "user_name": "Sam", "last_message": "New message", "last_message_time": "2025-03-01T10:00:00"},
			{"user_id": "u3", "user_name": "Ana", "last_message": "See you", "last_sender_id": "u1", "last_message_time": "2025-03-01T12:00:00"},
		})
	})
	mux.HandleFunc("GET /api/messages/u2/", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"_id": "m1", "sender_id": "u2", "sender_name": "Sam", "message_encrypted": c.Encode("rematch tomorrow?"), "timestamp": "2025-03-01T10:00:00"},
		})
	})
	mux.HandleFunc("POST /api/messages/send/", func(w http.ResponseWriter, r *http.Request) {
		if fs.failSend.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		var req struct {
			ReceiverID string `json:"receiver_id"`
			Message    string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		fs.sends.Add(1)
		fs.lastSent.Store(c.Decode(req.Message))
		_, _ = w.Write([]byte(`{"message":"sent"}`))
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func setup(t *testing.T) *fakeServer {
	t.Helper()
	srv := newFakeServer(t)
	t.Setenv("PICKLEPICK_HOME", t.TempDir())
	t.Setenv(config.EnvAPIURL, srv.URL+"/api")
	t.Setenv(config.EnvToken, "tok")
	t.Setenv(config.EnvUserID, "u1")
	t.Setenv(config.EnvUserName, "")
	t.Setenv(session.EnvSession, "")
	t.Chdir(t.TempDir())
	return srv
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUsage(t *testing.T) {
	setup(t)
	if code, _, _ := runCLI(t); code != exitUsage {
		t.Errorf("no args exit = %d, want %d", code, exitUsage)
	}
	if code, _, stderr := runCLI(t, "frobnicate"); code != exitUsage || !strings.Contains(stderr, "unknown command") {
		t.Errorf("unknown command exit = %d, stderr = %q", code, stderr)
	}
	if code, _, _ := runCLI(t, "--session", "Bad Name", "status"); code != exitUsage {
		t.Errorf("bad session exit = %d", code)
	}
}

func TestSendValidationMakesNoRequest(t *testing.T) {
	srv := setup(t)
	for _, text := range []string{"   ", strings.Repeat("x", 501)} {
		code, _, stderr := runCLI(t, "send", "u2", text)
		if code != exitUsage {
			t.Errorf("send %d chars exit = %d, want %d", len(text), code, exitUsage)
		}
		if !strings.Contains(stderr, "invalid message") {
			t.Errorf("stderr = %q", stderr)
		}
	}
	if n := srv.sends.Load(); n != 0 {
		t.Errorf("server received %d sends", n)
	}
}

func TestSend(t *testing.T) {
	srv := setup(t)
	code, stdout, stderr := runCLI(t, "send", "u2", "see", "you", "at", "6 🏓")
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "sent to u2") {
		t.Errorf("stdout = %q", stdout)
	}
	if got := srv.lastSent.Load(); got != "see you at 6 🏓" {
		t.Errorf("server decoded %q", got)
	}
}

func TestSendFailure(t *testing.T) {
	srv := setup(t)
	srv.failSend.Store(true)
	code, _, stderr := runCLI(t, "send", "u2", "hello")
	if code != exitFailure {
		t.Errorf("exit = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(stderr, "message not delivered") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestConversationsJSON(t *testing.T) {
	setup(t)
	code, stdout, stderr := runCLI(t, "--json", "conversations")
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %q", code, stderr)
	}
	var out []conversationOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if len(out) != 2 || out[0].CounterpartID != "u3" || out[1].Name != "Sam" {
		t.Errorf("conversations = %+v", out)
	}
}

func TestConversationsMarksOwnLastMessage(t *testing.T) {
	setup(t)
	code, stdout, stderr := runCLI(t, "conversations")
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %q", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 2 {
		t.Fatalf("stdout = %q, want 2 lines", stdout)
	}
	if !strings.HasPrefix(lines[0], "u3") || !strings.Contains(lines[0], "You: See you") {
		t.Errorf("own last message line = %q", lines[0])
	}
	if strings.Contains(lines[1], "You:") {
		t.Errorf("peer last message line = %q", lines[1])
	}
}

func TestHistory(t *testing.T) {
	setup(t)
	code, stdout, stderr := runCLI(t, "history", "u2")
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "Sam: rematch tomorrow?") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestHistoryCachedWithoutDaemon(t *testing.T) {
	setup(t)
	code, _, stderr := runCLI(t, "history", "--cached", "u2")
	if code != exitFailure || !strings.Contains(stderr, "no history cache") {
		t.Errorf("exit = %d, stderr = %q", code, stderr)
	}
}

func TestStatus(t *testing.T) {
	setup(t)
	code, stdout, stderr := runCLI(t, "--json", "status")
	if code != exitOK {
		t.Fatalf("exit = %d, stderr = %q", code, stderr)
	}
	var out statusOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatal(err)
	}
	if !out.APIReachable || out.DaemonRunning || out.Session != "main" {
		t.Errorf("status = %+v", out)
	}
}

func TestConfigInit(t *testing.T) {
	setup(t)
	if code, _, stderr := runCLI(t, "--session", "work", "config", "init"); code != exitOK {
		t.Fatalf("exit = %d, stderr = %q", code, stderr)
	}
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultSession != "work" || cfg.Poll.InboxInterval.Duration != config.DefaultInboxInterval {
		t.Errorf("config = %+v", cfg)
	}
	if code, _, _ := runCLI(t, "config", "init"); code != exitFailure {
		t.Errorf("second init exit = %d, want %d", code, exitFailure)
	}
	if code, _, _ := runCLI(t, "config", "init", "--force"); code != exitOK {
		t.Errorf("forced init exit = %d", code)
	}
}

func TestSessionsList(t *testing.T) {
	setup(t)
	if err := session.EnsureDir("main"); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(session.Dir("work"), 0700); err != nil {
		t.Fatal(err)
	}
	code, stdout, _ := runCLI(t, "sessions", "list")
	if code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(stdout, "* main") || !strings.Contains(stdout, "work") {
		t.Errorf("stdout = %q", stdout)
	}
}
