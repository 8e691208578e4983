package interfaces

import "context"

// HashRegistry is the call surface of the contract hash registry.
//
// Write operations are authorized against the caller. Every method either fully
// applies or fails with no state change.
type HashRegistry interface {
	// Submit creates or resets the entry for hash with caller as submitter.
	Submit(hash ContractHash, caller Principal) (bool, error)

	// Approve marks an existing entry Active. Owner only.
	Approve(hash ContractHash, caller Principal) (bool, error)

	// Reject marks an entry Rejected. Owner only.
	Reject(hash ContractHash, caller Principal) (bool, error)

	// Delete removes a non-rejected entry the owner submitted itself.
	Delete(hash ContractHash, caller Principal) (bool, error)

	// IsValid reports whether hash is Active. A rejected hash yields a
	// *RejectedError instead of false.
	IsValid(hash ContractHash) (bool, error)

	// Lookup returns the entry for hash, if one exists.
	Lookup(hash ContractHash) (Entry, bool, error)

	// Kill permanently disables the registry. Owner only.
	Kill(caller Principal) error

	// Owner returns the principal fixed at construction.
	Owner() Principal
}

// IdentityOracle vouches for caller identities, typically by asking another
// registry whether the identity's hash is valid.
type IdentityOracle interface {
	IdentityValid(ctx context.Context, identity Principal) (bool, error)
}

// IdentityHash maps a principal to the hash under which a registry records it.
func IdentityHash(identity Principal) ContractHash {
	return ComputeContractHash(identity.Bytes())
}
