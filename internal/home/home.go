package home

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultDirName is the default name for the figlang home directory.
	DefaultDirName = ".figlang"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the analysis database file name.
	DatabaseFileName = "figlang.db"

	// RunsDirName is the subdirectory holding per-run manifests and logs.
	RunsDirName = "runs"
)

// Dir represents the figlang home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.figlang).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DatabasePath returns the path to the analysis database.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.path, DatabaseFileName)
}

// RunsPath returns the directory holding all run directories.
func (d *Dir) RunsPath() string {
	return filepath.Join(d.path, RunsDirName)
}

// NewRunDir returns a fresh timestamped directory path for one run.
// The directory is not created; the pipeline creates it on first write.
func (d *Dir) NewRunDir(now time.Time) string {
	return filepath.Join(d.RunsPath(), now.UTC().Format("20060102T150405Z"))
}

// CallLogPath returns the JSONL call log path inside a run directory.
func (d *Dir) CallLogPath(runDir string) string {
	return filepath.Join(runDir, "calls.jsonl")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.RunsPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
