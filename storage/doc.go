// Package storage provides content-addressed storage for contract artifacts.
//
// An artifact (bytecode, source bundle, audit report) is identified by its
// interfaces.ContractHash, the keccak256 of its bytes. This is the same hash
// that is submitted to the registry, so a verifier can fetch an approved
// artifact by hash and check it locally. Every backend verifies fetched bytes
// against the requested hash and returns interfaces.ErrContentMismatch on a
// mismatch.
//
// # Backends
//
//   - FileBackend: local directory, <base>/artifacts/<hash>
//   - S3Backend: Amazon S3 or compatible object storage
//   - VaultBackend: HashiCorp Vault KV v2 mount
//   - IPFSBackend: IPFS node, files kept in MFS under a root directory
//   - MultiStorageBackend: writes to every available backend, reads from the first
//
// # Storage URI Format
//
//	file:///var/lib/registry
//	s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=http://minio:9000
//	vault://vault.example.com:8200/secret/contracts?token=...
//	ipfs://localhost:5001/contract-registry/artifacts?timeout=30s
//
// # Usage Example
//
//	factory := storage.NewStorageBackendFactory(logger)
//	locations, err := storage.ParseLocations([]string{
//	    "file:///var/lib/registry",
//	    "s3://artifacts/contracts?region=us-east-1",
//	})
//	if err != nil {
//	    return err
//	}
//	backend, err := factory.CreateMultiBackend(locations)
//	if err != nil {
//	    return err
//	}
//	hash, err := backend.Store(ctx, bytecode)
package storage
