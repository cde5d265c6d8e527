// Package dotdir manages the .chatstream/ and ~/.chatstream directories that
// hold config.toml and the session log.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the chatstream directory.
	dirName = ".chatstream"

	logFile = "chatstream.log"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to an existing .chatstream/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.chatstream/ dir
//  3. Home ~/.chatstream/ dir
//
// Returns "" when no directory is found and no override is given.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		return m.create(overrideDir)
	}

	if dir, ok := m.localDir(); ok {
		return filepath.Abs(dir)
	}

	home, err := m.homeDir()
	if err != nil {
		return "", err
	}
	if isDir(home) {
		return filepath.Abs(home)
	}

	return "", nil
}

// Ensure behaves like Target but creates ~/.chatstream/ when nothing else is
// found, so callers that need to write always get a directory.
func (m *Manager) Ensure(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil || dir != "" {
		return dir, err
	}

	home, err := m.homeDir()
	if err != nil {
		return "", err
	}
	return m.create(home)
}

// LogPath returns the session log file path inside the ensured directory.
func (m *Manager) LogPath(overrideDir string) (string, error) {
	dir, err := m.Ensure(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, logFile), nil
}

func (m *Manager) create(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating chatstream directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

// localDir reports whether a .chatstream/ directory exists in the current
// working directory.
func (m *Manager) localDir() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}

	dir := filepath.Join(cwd, dirName)
	return dir, isDir(dir)
}

func (m *Manager) homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
