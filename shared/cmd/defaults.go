package cmd

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir is the default data directory to use for the databases and
// other persistence requirements.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		// As we cannot guess a stable location, return empty and handle later.
		return ""
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "SelectConnect")
	} else if runtime.GOOS == "windows" {
		return filepath.Join(home, "AppData", "Local", "SelectConnect")
	}
	return filepath.Join(home, ".selectconnect")
}
