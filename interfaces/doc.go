// Package interfaces defines the core types and contracts of the contract hash
// registry, separating interface definitions from their implementations.
//
// # Registry
//
//   - HashRegistry: the owner-governed approval registry call surface
//     (Submit, Approve, Reject, Delete, IsValid, Lookup, Kill, Owner)
//   - IdentityOracle: vouches for a caller, usually by consulting another registry
//
// # Storage
//
//   - StorageBackend: artifact storage addressed by ContractHash
//   - StorageBackendFactory: creates backends from location URIs
//
// # Types
//
//   - ContractHash: 32-byte keccak256 identifier of a contract artifact
//   - Principal: 20-byte caller identity, shaped like an Ethereum address
//   - EntryState: Pending, Active, Inactive, Rejected, Cancelled, Locked
//   - Entry: hash, submitter and state of one registration
//
// # Errors
//
// Authorization and precondition failures (ErrUnauthorized, ErrPrecondition,
// ErrEntryNotFound, ErrInvalidTransition) abort an operation with no state change.
// A validity check on a rejected hash fails with *RejectedError, which matches
// ErrRejected, so callers cannot mistake a known-bad hash for one that is merely
// not approved yet.
package interfaces
