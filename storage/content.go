package storage

import (
	"fmt"

	"github.com/ruteri/contract-registry/interfaces"
)

// verifyContent checks that data hashes to id. Backends call it on every fetch so
// a tampered store cannot substitute a different artifact.
func verifyContent(id interfaces.ContractHash, data []byte) error {
	if actual := interfaces.ComputeContractHash(data); actual != id {
		return fmt.Errorf("%w: expected %s, got %s", interfaces.ErrContentMismatch, id.Short(), actual.Short())
	}
	return nil
}
