package session

import (
	"os"
	"path/filepath"
)

// EnvHome overrides the base directory.
const EnvHome = "PICKLEPICK_HOME"

// BaseDir returns ~/.picklepick, or $PICKLEPICK_HOME when set.
func BaseDir() string {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".picklepick")
}

// SessionsDir returns the directory holding every session.
func SessionsDir() string {
	return filepath.Join(BaseDir(), "sessions")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(SessionsDir(), name)
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// EnvPath returns the session's dotenv file.
func EnvPath(name string) string {
	return filepath.Join(Dir(name), ".env")
}

// HistoryDBPath returns the local history cache path.
func HistoryDBPath(name string) string {
	return filepath.Join(Dir(name), "history.db")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the log file path for the named binary.
func LogPath(name, binary string) string {
	return filepath.Join(LogDir(name), binary+".log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// List returns the names of sessions that have a directory.
func List() ([]string, error) {
	entries, err := os.ReadDir(SessionsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && ValidateName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
