// ABOUTME: Persists the agent id issued by the gateway in a small file
// ABOUTME: An absent or empty file means the agent has not registered yet

package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IDFile is the on-disk record of the agent's identity.
type IDFile struct {
	Path string
}

// Load returns the stored id, or "" when none is stored.
func (f IDFile) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading id file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save stores id, replacing any previous one atomically.
func (f IDFile) Save(id string) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating id directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".agent-id-*")
	if err != nil {
		return fmt.Errorf("creating id file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(id + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("writing id file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing id file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing id file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("installing id file: %w", err)
	}
	return nil
}

// Clear removes the stored id.
func (f IDFile) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing id file: %w", err)
	}
	return nil
}
