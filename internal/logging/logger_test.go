package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileOnlyWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pptui.log")
	logger, err := NewFileOnly(path, "work")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("log line %q is not JSON: %v", line, err)
	}
	if rec["msg"] != "hello" || rec["session"] != "work" {
		t.Errorf("record = %v", rec)
	}
	if _, ok := rec["ts"]; !ok {
		t.Error("record has no ts field")
	}
	if _, ok := rec["pid"]; !ok {
		t.Error("record has no pid field")
	}
}

func TestNewCreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if _, err := New(filepath.Join(dir, "ppchatd.log"), "main"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("log dir not created: %v", err)
	}
}
