package api

import (
	"github.com/ruteri/contract-registry/interfaces"
	"github.com/ruteri/contract-registry/registry"
)

// OperationResponse is returned by submit, approve, reject and delete.
type OperationResponse struct {
	Hash   interfaces.ContractHash `json:"hash"`
	Result bool                    `json:"result"`
}

// ValidityResponse is returned by the validity check.
type ValidityResponse struct {
	Hash  interfaces.ContractHash `json:"hash"`
	Valid bool                    `json:"valid"`
}

// OwnerResponse describes the registry as a whole.
type OwnerResponse struct {
	Owner  interfaces.Principal `json:"owner"`
	Killed bool                 `json:"killed"`
	Policy string               `json:"policy"`
}

type KillResponse struct {
	Killed bool `json:"killed"`
}

// ArtifactResponse is returned after an artifact upload.
type ArtifactResponse struct {
	Hash      interfaces.ContractHash `json:"hash"`
	Size      int                     `json:"size"`
	Submitted bool                    `json:"submitted"`
}

// EventsResponse lists recent registry events, oldest first.
type EventsResponse struct {
	Events []registry.Event `json:"events"`
	Total  uint64           `json:"total"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
