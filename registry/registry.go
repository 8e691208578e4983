package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/contract-registry/interfaces"
)

// Registry is the in-memory contract hash registry. It owns the hash to entry
// mapping and enforces the approval state machine.
//
// Every operation runs under a single mutex, so the authorization and state
// checks of an operation are atomic with its write. Failed operations leave the
// registry untouched.
type Registry struct {
	mu        sync.Mutex
	owner     interfaces.Principal
	entries   map[interfaces.ContractHash]interfaces.Entry
	killed    bool
	policy    TransitionPolicy
	oracle    interfaces.IdentityOracle
	observers []Observer
	log       *slog.Logger
	now       func() time.Time
}

var _ interfaces.HashRegistry = (*Registry)(nil)

// Option configures a Registry.
type Option func(*Registry)

// WithPolicy selects the transition policy.
func WithPolicy(policy TransitionPolicy) Option {
	return func(r *Registry) {
		r.policy = policy
	}
}

// WithIdentityOracle configures the oracle consulted by CheckIdentity.
func WithIdentityOracle(oracle interfaces.IdentityOracle) Option {
	return func(r *Registry) {
		r.oracle = oracle
	}
}

// WithObserver registers an observer for registry events.
func WithObserver(observer Observer) Option {
	return func(r *Registry) {
		r.observers = append(r.observers, observer)
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// New creates an empty registry owned by owner. The owner can never be changed.
func New(owner interfaces.Principal, opts ...Option) (*Registry, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("%w: owner must not be the zero address", interfaces.ErrInvalidPrincipal)
	}

	r := &Registry{
		owner:   owner,
		entries: make(map[interfaces.ContractHash]interfaces.Entry),
		policy:  DefaultPolicy,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Owner returns the principal fixed at construction.
func (r *Registry) Owner() interfaces.Principal {
	return r.owner
}

// Policy returns the active transition policy.
func (r *Registry) Policy() TransitionPolicy {
	return r.policy
}

// Submit creates or overwrites the entry at hash as Pending with caller as
// submitter. Resubmitting resets both the state and the submitter, discarding any
// earlier approval. The zero principal stands for "nobody" and is refused with
// ErrInvalidPrincipal; authenticated transports never produce it.
func (r *Registry) Submit(hash interfaces.ContractHash, caller interfaces.Principal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.killed {
		return false, interfaces.ErrRegistryKilled
	}
	if caller.IsZero() {
		return false, fmt.Errorf("%w: zero caller", interfaces.ErrInvalidPrincipal)
	}

	prev, existed := r.entries[hash]
	if existed {
		if err := r.policy.checkResubmit(prev.State); err != nil {
			return false, err
		}
	}

	r.entries[hash] = interfaces.Entry{Hash: hash, Submitter: caller, State: interfaces.StatePending}
	r.log.Debug("Contract submitted",
		slog.String("hash", hash.Short()),
		slog.String("submitter", caller.String()),
		slog.Bool("resubmission", existed))

	r.emit(Event{
		Kind:        EventSubmitted,
		Hash:        hash,
		Caller:      caller,
		HadPrevious: existed,
		From:        prev.State,
		To:          interfaces.StatePending,
	})
	return true, nil
}

// Approve sets an existing entry Active. It returns false when no entry exists
// for hash; no entry is created.
func (r *Registry) Approve(hash interfaces.ContractHash, caller interfaces.Principal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOwner("approve", caller); err != nil {
		return false, err
	}

	entry, ok := r.entries[hash]
	if !ok {
		return false, nil
	}
	if err := r.policy.checkApprove(entry.State); err != nil {
		return false, err
	}

	from := entry.State
	entry.State = interfaces.StateActive
	r.entries[hash] = entry
	r.log.Debug("Contract approved", slog.String("hash", hash.Short()), slog.String("from", from.String()))

	r.emit(Event{Kind: EventApproved, Hash: hash, Caller: caller, HadPrevious: true, From: from, To: interfaces.StateActive})
	return true, nil
}

// Reject sets the entry at hash Rejected. Under PolicyPermissive an unknown hash
// gets a new Rejected entry with no submitter; under PolicyStrict it returns false.
func (r *Registry) Reject(hash interfaces.ContractHash, caller interfaces.Principal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOwner("reject", caller); err != nil {
		return false, err
	}

	entry, ok := r.entries[hash]
	if !ok {
		if !r.policy.rejectCreates() {
			return false, nil
		}
		entry = interfaces.Entry{Hash: hash}
	} else if err := r.policy.checkReject(entry.State); err != nil {
		return false, err
	}

	from := entry.State
	entry.State = interfaces.StateRejected
	r.entries[hash] = entry
	r.log.Debug("Contract rejected", slog.String("hash", hash.Short()), slog.Bool("known", ok))

	r.emit(Event{Kind: EventRejected, Hash: hash, Caller: caller, HadPrevious: ok, From: from, To: interfaces.StateRejected})
	return true, nil
}

// Delete removes the entry at hash. The caller must be the owner and the entry's
// submitter, and the entry must not be Rejected. Any unmet precondition fails the
// call; Delete never returns (false, nil).
func (r *Registry) Delete(hash interfaces.ContractHash, caller interfaces.Principal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOwner("delete", caller); err != nil {
		return false, err
	}

	entry, ok := r.entries[hash]
	if !ok {
		return false, fmt.Errorf("%w: %s", interfaces.ErrEntryNotFound, hash)
	}
	if entry.State == interfaces.StateRejected {
		return false, fmt.Errorf("%w: rejected contracts cannot be deleted", interfaces.ErrPrecondition)
	}
	if entry.Submitter != caller {
		return false, fmt.Errorf("%w: caller is not the submitter", interfaces.ErrPrecondition)
	}

	delete(r.entries, hash)
	r.log.Debug("Contract deleted", slog.String("hash", hash.Short()))

	r.emit(Event{Kind: EventDeleted, Hash: hash, Caller: caller, HadPrevious: true, From: entry.State})
	return true, nil
}

// IsValid reports whether hash is Active. A Rejected hash fails with a
// *RejectedError; every other state, and an unknown hash, is simply not valid.
func (r *Registry) IsValid(hash interfaces.ContractHash) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.killed {
		return false, interfaces.ErrRegistryKilled
	}

	entry, ok := r.entries[hash]
	if !ok {
		return false, nil
	}
	switch entry.State {
	case interfaces.StateActive:
		return true, nil
	case interfaces.StateRejected:
		return false, &interfaces.RejectedError{Hash: hash}
	default:
		return false, nil
	}
}

// Lookup returns the entry for hash. The boolean distinguishes an unknown hash
// from a Pending entry.
func (r *Registry) Lookup(hash interfaces.ContractHash) (interfaces.Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.killed {
		return interfaces.Entry{}, false, interfaces.ErrRegistryKilled
	}

	entry, ok := r.entries[hash]
	return entry, ok, nil
}

// Kill permanently disables the registry. Every later operation fails with
// ErrRegistryKilled.
func (r *Registry) Kill(caller interfaces.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOwner("kill", caller); err != nil {
		return err
	}

	r.killed = true
	r.log.Warn("Registry killed", slog.String("owner", caller.String()))

	r.emit(Event{Kind: EventKilled, Caller: caller})
	return nil
}

// Killed reports whether the registry has been killed.
func (r *Registry) Killed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.killed
}

// CheckIdentity asks the configured identity oracle whether it vouches for
// caller. The oracle is consulted without holding the registry lock.
func (r *Registry) CheckIdentity(ctx context.Context, caller interfaces.Principal) error {
	if r.Killed() {
		return interfaces.ErrRegistryKilled
	}
	if r.oracle == nil {
		return interfaces.ErrNoIdentityOracle
	}

	valid, err := r.oracle.IdentityValid(ctx, caller)
	if err != nil {
		return fmt.Errorf("identity oracle: %w", err)
	}
	if !valid {
		return fmt.Errorf("%w: %s", interfaces.ErrIdentityNotValid, caller)
	}
	return nil
}

// HasIdentityOracle reports whether CheckIdentity can be used.
func (r *Registry) HasIdentityOracle() bool {
	return r.oracle != nil
}

// checkOwner must be called with r.mu held.
func (r *Registry) checkOwner(op string, caller interfaces.Principal) error {
	if r.killed {
		return interfaces.ErrRegistryKilled
	}
	if caller != r.owner {
		r.log.Warn("Unauthorized owner operation",
			slog.String("op", op),
			slog.String("caller", caller.String()))
		return fmt.Errorf("%w: %s requires the owner", interfaces.ErrUnauthorized, op)
	}
	return nil
}

// emit must be called with r.mu held.
func (r *Registry) emit(ev Event) {
	ev.Time = r.now()
	for _, observer := range r.observers {
		observer(ev)
	}
}
