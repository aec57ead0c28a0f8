package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the application directory when set.
const HomeEnv = "TILAWA_HOME"

// GetAppDir returns the root application directory (~/.tilawa by default).
func GetAppDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".tilawa"
	}
	return filepath.Join(home, ".tilawa")
}

// GetStateDir returns the directory holding the key-value database
func GetStateDir() string {
	return filepath.Join(GetAppDir(), "state")
}

// GetLogsDir returns the directory debug logs are written to
func GetLogsDir() string {
	return filepath.Join(GetAppDir(), "logs")
}

// GetDefaultOfflineDir returns the default offline content root
func GetDefaultOfflineDir() string {
	return filepath.Join(GetAppDir(), "offline")
}

// GetDatabasePath returns the sqlite file backing the key-value store.
func GetDatabasePath() string {
	return filepath.Join(GetStateDir(), "tilawa.db")
}

// GetLockPath returns the lock held by the process that owns the download queue.
func GetLockPath() string {
	return filepath.Join(GetAppDir(), "serve.lock")
}

// EnsureDirs creates all required directories
func EnsureDirs() error {
	dirs := []string{GetAppDir(), GetStateDir(), GetLogsDir(), GetDefaultOfflineDir()}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
