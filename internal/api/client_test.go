package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/picklepick/ppchat/internal/auth"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/api", Timeout: 2 * time.Second}, auth.StaticToken("tok"), nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		src  auth.TokenSource
	}{
		{"empty base", Config{}, auth.StaticToken("t")},
		{"bad scheme", Config{BaseURL: "ftp://host"}, auth.StaticToken("t")},
		{"no token source", Config{BaseURL: "http://host"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(tt.cfg, tt.src, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestListMessages(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.EscapedPath() != "/api/messages/user%2F2/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.EscapedPath())
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(`[
			{"_id":"m1","sender_id":"u2","sender_name":"Sam","message_encrypted":"aGVsbG8=","timestamp":"2025-03-01T10:00:00.123456"},
			{"id":"m2","sender_id":"u1","message":"plain","timestamp":"2025-03-01T10:01:00Z"}
		]`))
	}))

	msgs, err := c.ListMessages(context.Background(), "user/2")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].MessageID() != "m1" || msgs[1].MessageID() != "m2" {
		t.Errorf("ids = %q, %q", msgs[0].MessageID(), msgs[1].MessageID())
	}
	if enc, ok := msgs[0].EncodedBody(); !ok || enc != "aGVsbG8=" {
		t.Errorf("EncodedBody = %q, %v", enc, ok)
	}
	if _, ok := msgs[1].EncodedBody(); ok {
		t.Error("second message should have no encoded body")
	}
	if msgs[1].SenderDisplayName() != FallbackSenderName {
		t.Errorf("SenderDisplayName = %q, want fallback", msgs[1].SenderDisplayName())
	}
	want := time.Date(2025, 3, 1, 10, 0, 0, 123456000, time.UTC)
	if !msgs[0].CreatedAt().Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", msgs[0].CreatedAt(), want)
	}
}

func TestSendMessage(t *testing.T) {
	var got SendRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/messages/send/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		_, _ = w.Write([]byte(`{"message":"Message sent securely"}`))
	}))

	ack, err := c.SendMessage(context.Background(), "u2", "aGk=")
	if err != nil {
		t.Fatal(err)
	}
	if got.ReceiverID != "u2" || got.Message != "aGk=" {
		t.Errorf("request body = %+v", got)
	}
	if ack.Message != "Message sent securely" {
		t.Errorf("ack = %+v", ack)
	}
}

func TestNon2xxIsTransportError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad token"}`))
	}))

	_, err := c.ListConversations(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T %v, want *TransportError", err, err)
	}
	if te.StatusCode != http.StatusUnauthorized || !te.Unauthorized() {
		t.Errorf("StatusCode = %d, Unauthorized = %v", te.StatusCode, te.Unauthorized())
	}
	if !IsUnauthorized(err) {
		t.Error("IsUnauthorized = false")
	}
}

func TestSendFailureIsTransportError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	_, err := c.SendMessage(context.Background(), "u2", "x")
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error = %v, want 500 TransportError", err)
	}
}

func TestMissingTokenFailsBeforeRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL}, auth.StaticToken(""), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ListConversations(context.Background())
	if !errors.Is(err, auth.ErrNoToken) {
		t.Errorf("error = %v, want ErrNoToken", err)
	}
	if hits.Load() != 0 {
		t.Errorf("server hit %d times, want 0", hits.Load())
	}
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, auth.StaticToken("t"), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.SendMessage(context.Background(), "u2", "x")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if !te.Timeout() {
		t.Errorf("Timeout() = false for %v", err)
	}
}

func TestConcurrentReadsShareOneRequest(t *testing.T) {
	var hits atomic.Int32
	gate := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-gate
		_, _ = w.Write([]byte(`[{"user_id":"u2","user_name":"Sam","last_message":"New message","last_message_time":"2025-03-01T10:00:00"}]`))
	}))

	var wg sync.WaitGroup
	results := make([][]WireConversation, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			convs, err := c.ListConversations(context.Background())
			if err != nil {
				t.Error(err)
			}
			results[i] = convs
		}(i)
	}
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}
	for i, convs := range results {
		if len(convs) != 1 || convs[0].Counterpart() != "u2" || convs[0].CounterpartDisplayName() != "Sam" {
			t.Errorf("result %d = %+v", i, convs)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-01T10:00:00Z", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-03-01T12:00:00+02:00", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-03-01T10:00:00", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-03-01T10:00:00.5", time.Date(2025, 3, 1, 10, 0, 0, 500000000, time.UTC)},
		{"", time.Time{}},
		{"yesterday", time.Time{}},
	}
	for _, tt := range tests {
		if got := ParseTimestamp(tt.in); !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
