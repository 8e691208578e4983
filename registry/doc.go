// Package registry implements the contract hash registry: a single owner
// approves, rejects or deletes submitted hashes, and any caller may ask whether
// a hash is currently valid.
//
// # Lifecycle
//
//	Submit  (any caller)      -> Pending
//	Approve (owner)           -> Active
//	Reject  (owner)           -> Rejected
//	Delete  (owner+submitter) -> removed, never for Rejected entries
//	Kill    (owner)           -> every later operation fails
//
// Inactive, Cancelled and Locked are declared for compatibility with existing
// snapshots but no operation moves an entry into them.
//
// # Validity
//
// IsValid returns true only for Active entries. A Rejected entry does not yield
// false: the call fails with *interfaces.RejectedError so that a known-bad hash
// stops the dependent process instead of looking like a hash that is merely not
// approved yet.
//
// # Policies
//
// PolicyStrict (the default) only approves or rejects Pending entries and refuses
// to resubmit a rejected hash. PolicyPermissive reproduces an open workflow where
// approve can resurrect any entry, reject records unknown hashes as Rejected and
// submit overwrites anything.
//
// # Usage Example
//
//	reg, err := registry.New(owner, registry.WithPolicy(registry.PolicyStrict))
//	if err != nil {
//	    return err
//	}
//
//	hash := interfaces.ComputeContractHash(bytecode)
//	if _, err := reg.Submit(hash, submitter); err != nil {
//	    return err
//	}
//	if _, err := reg.Approve(hash, owner); err != nil {
//	    return err
//	}
//
//	valid, err := reg.IsValid(hash)
//	if errors.Is(err, interfaces.ErrRejected) {
//	    // abort: the owner rejected this contract
//	}
package registry
