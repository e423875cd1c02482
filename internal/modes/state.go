// Package modes owns the persisted control modes: the manual and temporary
// modes, their expiry timestamps and the bypass valve state.
package modes

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ghodss/yaml"
)

// State is the persisted mode record.
type State struct {
	ManualMode                 bool  `json:"manualMode"`
	TemporaryManualMode        bool  `json:"temporaryManualMode"`
	TemporaryBoostMode         bool  `json:"temporaryBoostMode"`
	TemporaryManualModeOffTime int64 `json:"temporaryManualModeOffTime"`
	TemporaryBoostModeOffTime  int64 `json:"temporaryBoostModeOffTime"`
	Bypass                     bool  `json:"bypass"`
}

// Store loads and saves the mode record.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// FileStore keeps the mode record in a YAML file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the record. A missing file yields the zero State.
func (f *FileStore) Load() (State, error) {
	var s State
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read state: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("parse state %s: %w", f.path, err)
	}
	return s, nil
}

// Save writes the record atomically via a temporary file and rename.
func (f *FileStore) Save(s State) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o660); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests and for running without a state file.
type MemoryStore struct {
	mu sync.Mutex
	s  State
	// SaveError, if set, is returned by Save.
	SaveError error
	// Saves counts successful Save calls.
	Saves int
}

// Load returns the stored record.
func (m *MemoryStore) Load() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

// Save replaces the stored record.
func (m *MemoryStore) Save(s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.s = s
	m.Saves++
	return nil
}
