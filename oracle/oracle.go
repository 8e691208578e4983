// Package oracle provides interfaces.IdentityOracle implementations used to
// compose trust across registries: a caller is accepted by one registry when
// another registry considers the caller's identity hash valid.
package oracle

import (
	"context"

	"github.com/ruteri/contract-registry/interfaces"
)

// Func adapts a plain function to interfaces.IdentityOracle.
type Func func(ctx context.Context, identity interfaces.Principal) (bool, error)

// IdentityValid calls f.
func (f Func) IdentityValid(ctx context.Context, identity interfaces.Principal) (bool, error) {
	return f(ctx, identity)
}

// RegistryOracle vouches for identities whose hash is valid in another registry.
// The identity hash is interfaces.IdentityHash(identity).
type RegistryOracle struct {
	registry interfaces.HashRegistry
}

// NewRegistryOracle creates an oracle backed by registry.
func NewRegistryOracle(registry interfaces.HashRegistry) *RegistryOracle {
	return &RegistryOracle{registry: registry}
}

// IdentityValid reports whether the identity hash is Active in the backing
// registry. A rejected identity fails with the registry's rejection error.
func (o *RegistryOracle) IdentityValid(ctx context.Context, identity interfaces.Principal) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return o.registry.IsValid(interfaces.IdentityHash(identity))
}

// Static vouches for a fixed set of identities.
type Static map[interfaces.Principal]bool

// IdentityValid reports whether identity is in the set.
func (s Static) IdentityValid(_ context.Context, identity interfaces.Principal) (bool, error) {
	return s[identity], nil
}
