package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/verho/replayd/internal/checksum"
)

// JSONFile implements Provider with one file per collection under a
// data directory. Writes are atomic: tmp file, fsync, rename.
type JSONFile struct {
	root string

	mu       sync.Mutex
	lastSums map[string]string // checksum of the most recent self-write
}

// NewJSONFile creates a provider rooted at dir, creating it if needed.
func NewJSONFile(dir string) (*JSONFile, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("store: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("store: create root: %w", err)
	}
	return &JSONFile{root: abs, lastSums: make(map[string]string)}, nil
}

// Root returns the absolute data directory.
func (j *JSONFile) Root() string { return j.root }

// collectionPath rejects names that would escape the data directory.
func (j *JSONFile) collectionPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("store: invalid collection name %q", name)
	}
	return filepath.Join(j.root, name), nil
}

// ReadCollection implements Provider.
func (j *JSONFile) ReadCollection(name string) ([]byte, error) {
	p, err := j.collectionPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", name, err)
	}
	return data, nil
}

// WriteCollection implements Provider. The whole collection is replaced
// via tmp file, fsync, rename so a crash mid-write cannot corrupt it.
func (j *JSONFile) WriteCollection(name string, data []byte) error {
	p, err := j.collectionPath(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(j.root, ".replayd-tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("store: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("store: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("store: rename: %w", err)
	}
	success = true

	j.mu.Lock()
	j.lastSums[name] = checksum.Sum(data)
	j.mu.Unlock()
	return nil
}

// LastChecksum returns the checksum of the most recent self-write for a
// collection, or empty if the process has not written it. The watcher
// uses it to tell external edits from our own saves.
func (j *JSONFile) LastChecksum(name string) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSums[name]
}
