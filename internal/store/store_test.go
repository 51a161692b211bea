package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenMigrated(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + indexes)", result.Version)
	}
	if result.Dirty {
		t.Error("schema is dirty")
	}
}

func TestSchemaVersion(t *testing.T) {
	raw, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = raw.Close() })

	if _, ok, err := raw.SchemaVersion(); err != nil || ok {
		t.Fatalf("fresh db: ok=%v err=%v, want not migrated", ok, err)
	}
	if _, err := raw.Migrate(); err != nil {
		t.Fatal(err)
	}
	v, ok, err := raw.SchemaVersion()
	if err != nil || !ok || v != 2 {
		t.Fatalf("SchemaVersion = %d, %v, %v; want 2", v, ok, err)
	}
}

// TestMigrateSchemaHasRequiredColumns verifies the migration creates every
// column the sync engine writes.
func TestMigrateSchemaHasRequiredColumns(t *testing.T) {
	db := testDB(t)

	requiredOps := []struct {
		desc  string
		query string
		args  []any
	}{
		{"insert conversation", "INSERT INTO conversations (counterpart_id, counterpart_name, last_message_body, last_message_at, last_sender_id, unread_count) VALUES (?, ?, ?, ?, ?, ?)", []any{"u2", "Sam", "hi", 1000, "u2", 1}},
		{"insert message", "INSERT INTO messages (counterpart_id, msg_id, sender_id, sender_name, body, timestamp) VALUES (?, ?, ?, ?, ?, ?)", []any{"u2", "m1", "u2", "Sam", "hello", 1000}},
		{"set sync state", "INSERT INTO sync_state (key, value) VALUES (?, ?)", []any{"k", "v"}},
	}

	for _, op := range requiredOps {
		t.Run(op.desc, func(t *testing.T) {
			if _, err := db.Exec(op.query, op.args...); err != nil {
				t.Fatalf("%s failed: %v", op.desc, err)
			}
		})
	}
}

func TestConversationUpsertAndList(t *testing.T) {
	db := testDB(t)

	convs := []Conversation{
		{CounterpartID: "u2", CounterpartName: "Sam", LastMessageBody: "a", LastMessageAt: 1000},
		{CounterpartID: "u3", CounterpartName: "Ana", LastMessageBody: "b", LastMessageAt: 3000},
		{CounterpartID: "u1", CounterpartName: "Bo", LastMessageBody: "c", LastMessageAt: 3000},
	}
	if err := db.BulkUpsertConversations(convs); err != nil {
		t.Fatal(err)
	}

	// Rename keeps the row count.
	if err := db.UpsertConversation(&Conversation{CounterpartID: "u2", CounterpartName: "Samuel", LastMessageBody: "d", LastMessageAt: 4000}); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListConversations(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"u2", "u1", "u3"}
	if len(got) != len(want) {
		t.Fatalf("got %d conversations, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].CounterpartID != id {
			t.Errorf("position %d = %s, want %s", i, got[i].CounterpartID, id)
		}
	}
	if got[0].CounterpartName != "Samuel" || got[0].LastMessageBody != "d" {
		t.Errorf("u2 = %+v", got[0])
	}
}

func TestConversationNeverRegresses(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConversation(&Conversation{CounterpartID: "u2", CounterpartName: "Sam", LastMessageBody: "new", LastMessageAt: 5000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertConversation(&Conversation{CounterpartID: "u2", LastMessageBody: "old", LastMessageAt: 1000, UnreadCount: 2}); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetConversation("u2")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("conversation missing")
	}
	if c.LastMessageBody != "new" || c.LastMessageAt != 5000 {
		t.Errorf("last message regressed: %+v", c)
	}
	if c.CounterpartName != "Sam" {
		t.Errorf("empty name overwrote cached name: %q", c.CounterpartName)
	}
	if c.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2", c.UnreadCount)
	}
}

func TestGetConversationMissing(t *testing.T) {
	db := testDB(t)
	c, err := db.GetConversation("nobody")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing conversation, got %+v", c)
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testDB(t)

	msg := &Message{CounterpartID: "u2", MsgID: "m1", SenderID: "u2", Body: "hello", Timestamp: 1000}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	msg.Body = "hello updated"
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("u2", 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent upsert failed)", len(msgs))
	}
	if msgs[0].Body != "hello updated" {
		t.Errorf("body = %q, want hello updated", msgs[0].Body)
	}
	if n, _ := db.MessageCount(); n != 1 {
		t.Errorf("MessageCount() = %d, want 1", n)
	}
}

func TestListMessagesOldestFirstWithKeyset(t *testing.T) {
	db := testDB(t)

	batch := []Message{
		{CounterpartID: "u2", MsgID: "m3", Body: "three", Timestamp: 3000},
		{CounterpartID: "u2", MsgID: "m1", Body: "one", Timestamp: 1000},
		{CounterpartID: "u2", MsgID: "m2", Body: "two", Timestamp: 2000},
		{CounterpartID: "u9", MsgID: "x", Body: "other thread", Timestamp: 1500},
	}
	if err := db.UpsertMessages(batch); err != nil {
		t.Fatal(err)
	}

	all, err := db.ListMessages("u2", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Body != "one" || all[2].Body != "three" {
		t.Errorf("ListMessages = %+v", all)
	}

	latest, err := db.ListMessages("u2", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 2 || latest[0].Body != "two" || latest[1].Body != "three" {
		t.Errorf("latest two = %+v", latest)
	}

	older, err := db.ListMessages("u2", latest[0].Timestamp, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 1 || older[0].Body != "one" {
		t.Errorf("page before %d = %+v", latest[0].Timestamp, older)
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)

	batch := []Message{
		{CounterpartID: "u2", MsgID: "m1", Body: "hello world", Timestamp: 1000},
		{CounterpartID: "u2", MsgID: "m2", Body: "goodbye world", Timestamp: 2000},
		{CounterpartID: "u3", MsgID: "m3", Body: "hello court", Timestamp: 3000},
		{CounterpartID: "u3", MsgID: "m4", Body: "100% sure", Timestamp: 4000},
	}
	if err := db.UpsertMessages(batch); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query, thread string
		want          []string
	}{
		{"hello", "", []string{"m3", "m1"}},
		{"hello", "u2", []string{"m1"}},
		{"%", "", []string{"m4"}},
		{"nothing", "", nil},
	}
	for _, tt := range tests {
		results, err := db.SearchMessages(tt.query, tt.thread, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != len(tt.want) {
			t.Errorf("Search(%q, %q) = %d results, want %d", tt.query, tt.thread, len(results), len(tt.want))
			continue
		}
		for i, id := range tt.want {
			if results[i].MsgID != id {
				t.Errorf("Search(%q, %q)[%d] = %s, want %s", tt.query, tt.thread, i, results[i].MsgID, id)
			}
		}
	}
}

func TestSyncState(t *testing.T) {
	db := testDB(t)

	if _, ok, err := db.GetSyncState("inbox.last_sync"); err != nil || ok {
		t.Fatalf("unset key: ok=%v err=%v", ok, err)
	}
	if err := db.SetSyncState("inbox.last_sync", "1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSyncState("inbox.last_sync", "2"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.GetSyncState("inbox.last_sync")
	if err != nil || !ok || v != "2" {
		t.Errorf("GetSyncState = %q, %v, %v", v, ok, err)
	}
}
