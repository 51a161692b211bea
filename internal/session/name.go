package session

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/picklepick/ppchat/internal/config"
)

// DefaultName is used when neither flag, environment nor config names a
// session.
const DefaultName = "main"

// EnvSession selects the session when no --session flag is given.
const EnvSession = "PICKLEPICK_SESSION"

// ErrInvalidName is wrapped by ValidateName failures.
var ErrInvalidName = errors.New("invalid session name")

// Names start with a letter or digit so they cannot be mistaken for flags.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateName checks that name is usable as a directory under SessionsDir.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w %q: want 1-64 of a-z 0-9 _ -, starting with a letter or digit", ErrInvalidName, name)
	}
	return nil
}

// Resolve picks the session name: the flag, then $PICKLEPICK_SESSION, then
// default_session from the config file, then DefaultName.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := strings.TrimSpace(os.Getenv(EnvSession)); env != "" {
		return env
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultName
}
