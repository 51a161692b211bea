// Package config loads ~/.picklepick/config.toml, .env overlays and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/picklepick/ppchat/internal/auth"
)

// Defaults.
const (
	DefaultBaseURL              = "http://127.0.0.1:8000/api"
	DefaultTimeout              = 15 * time.Second
	DefaultConversationInterval = 3 * time.Second
	DefaultInboxInterval        = 10 * time.Second
)

// Environment variables that override the file.
const (
	EnvAPIURL   = "PICKLEPICK_API_URL"
	EnvToken    = "PICKLEPICK_TOKEN"
	EnvUserID   = "PICKLEPICK_USER_ID"
	EnvUserName = "PICKLEPICK_USER_NAME"
)

// Config represents the global ~/.picklepick/config.toml.
type Config struct {
	DefaultSession string     `toml:"default_session"`
	API            APIConfig  `toml:"api"`
	Poll           PollConfig `toml:"poll"`
	Auth           AuthConfig `toml:"auth"`
	TUI            TUIConfig  `toml:"tui"`
}

// TUIConfig customizes pptui. Colors maps theme roles ("self", "border")
// to tcell color names or hex values.
type TUIConfig struct {
	Colors map[string]string `toml:"colors,omitempty"`
}

// APIConfig locates the chat API.
type APIConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

// PollConfig holds the two refresh cadences.
type PollConfig struct {
	ConversationInterval Duration `toml:"conversation_interval"`
	InboxInterval        Duration `toml:"inbox_interval"`
}

// AuthConfig holds the bearer token and the current user's identity.
// Token takes precedence over TokenFile.
type AuthConfig struct {
	Token     string `toml:"token,omitempty"`
	TokenFile string `toml:"token_file,omitempty"`
	UserID    string `toml:"user_id,omitempty"`
	UserName  string `toml:"user_name,omitempty"`
}

// TokenSource returns the configured bearer token source. An empty config
// yields a source that always reports auth.ErrNoToken.
func (a AuthConfig) TokenSource() auth.TokenSource {
	if a.Token != "" || a.TokenFile == "" {
		return auth.StaticToken(a.Token)
	}
	return auth.FileToken{Path: expandHome(a.TokenFile)}
}

func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}

// Duration is a time.Duration written as "3s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("negative duration %q", text)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a config with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve builds the effective config: the file at path (a missing file is
// not an error), then envFiles loaded into the environment without
// replacing variables already set, then environment overrides, then
// defaults.
func Resolve(path string, envFiles ...string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadEnvFiles loads each existing dotenv file. Earlier files and the
// process environment win over later files.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from PICKLEPICK_* variables.
func (c *Config) ApplyEnv() {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.API.BaseURL, EnvAPIURL)
	set(&c.Auth.Token, EnvToken)
	set(&c.Auth.UserID, EnvUserID)
	set(&c.Auth.UserName, EnvUserName)
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.Timeout.Duration == 0 {
		c.API.Timeout.Duration = DefaultTimeout
	}
	if c.Poll.ConversationInterval.Duration == 0 {
		c.Poll.ConversationInterval.Duration = DefaultConversationInterval
	}
	if c.Poll.InboxInterval.Duration == 0 {
		c.Poll.InboxInterval.Duration = DefaultInboxInterval
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
