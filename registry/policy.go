package registry

import (
	"fmt"
	"strings"

	"github.com/ruteri/contract-registry/interfaces"
)

// TransitionPolicy decides which prior states submit, approve and reject may
// fire from.
type TransitionPolicy int

const (
	// PolicyStrict allows approve and reject only from Pending (re-applying the
	// same verdict is an idempotent success), refuses to resubmit a rejected hash
	// and never creates an entry on reject.
	PolicyStrict TransitionPolicy = iota

	// PolicyPermissive approves from any state, rejects unconditionally (creating a
	// Rejected entry for unknown hashes) and lets submit overwrite any entry.
	PolicyPermissive
)

// DefaultPolicy is the policy used when none is configured.
const DefaultPolicy = PolicyStrict

func (p TransitionPolicy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicyPermissive:
		return "permissive"
	default:
		return "unknown"
	}
}

// ParseTransitionPolicy parses "strict" or "permissive". Empty selects DefaultPolicy.
func ParseTransitionPolicy(name string) (TransitionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return DefaultPolicy, nil
	case "strict":
		return PolicyStrict, nil
	case "permissive":
		return PolicyPermissive, nil
	default:
		return 0, fmt.Errorf("unknown transition policy %q", name)
	}
}

// checkResubmit validates overwriting an existing entry with a fresh submission.
func (p TransitionPolicy) checkResubmit(existing interfaces.EntryState) error {
	if p == PolicyStrict && existing == interfaces.StateRejected {
		return fmt.Errorf("%w: cannot resubmit a rejected contract", interfaces.ErrInvalidTransition)
	}
	return nil
}

func (p TransitionPolicy) checkApprove(from interfaces.EntryState) error {
	if p == PolicyPermissive {
		return nil
	}
	switch from {
	case interfaces.StatePending, interfaces.StateActive:
		return nil
	default:
		return fmt.Errorf("%w: cannot approve from %s", interfaces.ErrInvalidTransition, from)
	}
}

func (p TransitionPolicy) checkReject(from interfaces.EntryState) error {
	if p == PolicyPermissive {
		return nil
	}
	switch from {
	case interfaces.StatePending, interfaces.StateRejected:
		return nil
	default:
		return fmt.Errorf("%w: cannot reject from %s", interfaces.ErrInvalidTransition, from)
	}
}

// rejectCreates reports whether rejecting an unknown hash records a new entry.
func (p TransitionPolicy) rejectCreates() bool {
	return p == PolicyPermissive
}
