package registry

import (
	"time"

	"github.com/ruteri/contract-registry/interfaces"
)

// EventKind names the mutation an Event records.
type EventKind string

const (
	EventSubmitted EventKind = "submitted"
	EventApproved  EventKind = "approved"
	EventRejected  EventKind = "rejected"
	EventDeleted   EventKind = "deleted"
	EventKilled    EventKind = "killed"
)

// Event describes one successful mutation of the registry.
type Event struct {
	Kind   EventKind               `json:"kind"`
	Hash   interfaces.ContractHash `json:"hash"`
	Caller interfaces.Principal    `json:"caller"`

	// HadPrevious is false when the mutation created the entry; From is then meaningless.
	HadPrevious bool                  `json:"had_previous"`
	From        interfaces.EntryState `json:"from"`
	// To is meaningless for EventDeleted and EventKilled.
	To          interfaces.EntryState `json:"to"`
	Time        time.Time             `json:"time"`
}

// Observer receives events synchronously while the registry lock is held.
// Observers must return quickly and must not call back into the registry.
type Observer func(Event)
