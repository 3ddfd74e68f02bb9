package config

import (
	"os"
	"path/filepath"
)

// Dir returns the path to ~/.nupush.
func Dir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".nupush")
	}
	return filepath.Join(homeDir, ".nupush")
}

// DefaultPath returns the path to ~/.nupush/config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DebugDir returns the directory holding per-task debug logs.
func DebugDir() string {
	return filepath.Join(Dir(), "debug")
}
