package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/ruteri/contract-registry/interfaces"
)

// State is the persisted form of a registry: the owner, the kill flag and the
// entries sorted by hash.
type State struct {
	Owner   interfaces.Principal `json:"owner"`
	Killed  bool                 `json:"killed"`
	Entries []interfaces.Entry   `json:"entries"`
}

// Snapshot copies the registry state. It remains available after Kill so the
// kill flag itself can be persisted.
func (r *Registry) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]interfaces.Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b interfaces.Entry) int {
		return bytes.Compare(a.Hash[:], b.Hash[:])
	})

	return State{Owner: r.owner, Killed: r.killed, Entries: entries}
}

// Restore builds a registry from a snapshot. Observers registered through opts
// are not notified about restored entries.
func Restore(state State, opts ...Option) (*Registry, error) {
	r, err := New(state.Owner, opts...)
	if err != nil {
		return nil, err
	}

	for _, entry := range state.Entries {
		if _, dup := r.entries[entry.Hash]; dup {
			return nil, fmt.Errorf("duplicate entry for %s in snapshot", entry.Hash)
		}
		if !entry.State.Valid() {
			return nil, fmt.Errorf("entry %s has unknown state %d", entry.Hash, entry.State)
		}
		r.entries[entry.Hash] = entry
	}
	r.killed = state.Killed

	r.log.Info("Registry restored",
		slog.Int("entries", len(state.Entries)),
		slog.Bool("killed", state.Killed))
	return r, nil
}

// WriteState encodes a snapshot as JSON.
func WriteState(w io.Writer, state State) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}

// ReadState decodes a snapshot written by WriteState.
func ReadState(rd io.Reader) (State, error) {
	var state State
	if err := json.NewDecoder(rd).Decode(&state); err != nil {
		return State{}, fmt.Errorf("could not decode registry state: %w", err)
	}
	return state, nil
}
