package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.layover, or $LAYOVER_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("LAYOVER_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".layover")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SettingsPath returns the profile.toml path of a profile.
func SettingsPath(name string) string {
	return filepath.Join(Dir(name), "profile.toml")
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DBPath returns the development record store path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "layover.db")
}

// ObjectsDir returns the directory of the filesystem object store.
func ObjectsDir(name string) string {
	return filepath.Join(Dir(name), "objects")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the log file path of one binary.
func LogPath(name, binary string) string {
	return filepath.Join(LogDir(name), binary+".log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
		ObjectsDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
