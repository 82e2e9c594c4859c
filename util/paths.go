package util

import (
	"os"
	"path/filepath"
)

// DataDirEnv overrides the default data directory
const DataDirEnv = "RAILPASS_DIR"

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv(DataDirEnv); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		// No home directory (containers, CI): fall back to the working directory
		return filepath.Join(".", ".railpass-data")
	}
	return filepath.Join(home, ".railpass-data")
}

// GetAirDir returns the directory the simulated radio uses as its medium
func GetAirDir(dataDir string) string {
	return filepath.Join(dataDir, "air")
}

// EnsureDir creates dir (and parents) if missing
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
