package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ruteri/contract-registry/registry"
)

// loadState reads the state file. found is false when path is empty or the
// file does not exist yet.
func loadState(path string) (state registry.State, found bool, err error) {
	if path == "" {
		return registry.State{}, false, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return registry.State{}, false, nil
	} else if err != nil {
		return registry.State{}, false, fmt.Errorf("failed to open state file: %w", err)
	}
	defer f.Close()

	state, err = registry.ReadState(f)
	if err != nil {
		return registry.State{}, false, fmt.Errorf("failed to read state file %s: %w", path, err)
	}
	return state, true, nil
}

// saveState replaces the state file atomically.
func saveState(path string, state registry.State) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".registry-state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := registry.WriteState(tmp, state); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// stateSaver rewrites the state file from the live registry. Saves are
// serialized and each takes its snapshot after acquiring the lock, so a save
// that returns covers every mutation that completed before it was called.
type stateSaver struct {
	mu   sync.Mutex
	path string
	reg  *registry.Registry
}

func newStateSaver(path string, reg *registry.Registry) *stateSaver {
	return &stateSaver{path: path, reg: reg}
}

// Save ignores cancellation: the mutation it records has already happened.
func (s *stateSaver) Save(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveState(s.path, s.reg.Snapshot())
}
