package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"main", false},
		{"work123", false},
		{"my-session", false},
		{"my_session", false},
		{"a", false},
		{"9lives", false},
		{strings.Repeat("a", 64), false},
		{"", true},
		{"Main", true},
		{"-main", true},
		{"_main", true},
		{"my session", true},
		{"my.session", true},
		{"..", true},
		{"my/session", true},
		{strings.Repeat("a", 65), true},
	}
	for _, tt := range tests {
		err := ValidateName(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) error %v does not wrap ErrInvalidName", tt.input, err)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)
	t.Setenv(EnvSession, "")

	if got := Resolve(""); got != DefaultName {
		t.Fatalf("no config: Resolve = %q, want %q", got, DefaultName)
	}

	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(`default_session = "work"`), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "work" {
		t.Fatalf("config: Resolve = %q, want work", got)
	}

	t.Setenv(EnvSession, "personal")
	if got := Resolve(""); got != "personal" {
		t.Fatalf("env: Resolve = %q, want personal", got)
	}

	if got := Resolve("flag"); got != "flag" {
		t.Fatalf("flag: Resolve = %q, want flag", got)
	}
}
