package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the caller may not perform an operation.
	// The registry state is unchanged.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrPrecondition is returned when an operation's state preconditions do not hold.
	ErrPrecondition = errors.New("precondition failed")

	// ErrEntryNotFound is returned by operations that require an existing entry.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrInvalidTransition is returned when the active transition policy forbids
	// moving an entry out of its current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrRejected signals that a hash was explicitly rejected by the owner.
	// Validity checks return it instead of false.
	ErrRejected = errors.New("contract rejected")

	// ErrRegistryKilled is returned by every operation after the registry was killed.
	ErrRegistryKilled = errors.New("registry killed")

	// ErrIdentityNotValid is returned when an identity oracle does not vouch for a caller.
	ErrIdentityNotValid = errors.New("identity not valid")

	// ErrNoIdentityOracle is returned when identity delegation is requested but not configured.
	ErrNoIdentityOracle = errors.New("no identity oracle configured")

	ErrInvalidHash      = errors.New("invalid contract hash")
	ErrInvalidPrincipal = errors.New("invalid principal")
)

// RejectedError is the hard failure returned when a rejected hash is checked.
type RejectedError struct {
	Hash ContractHash
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("contract %s rejected", e.Hash)
}

// Is makes errors.Is(err, ErrRejected) hold for any *RejectedError.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}
