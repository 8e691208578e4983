package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ContractHash is a 32-byte identifier of a registered contract or artifact.
type ContractHash [32]byte

// NewContractHashFromBytes creates a hash from a 32-byte slice.
func NewContractHashFromBytes(source []byte) (ContractHash, error) {
	if len(source) != 32 {
		return ContractHash{}, fmt.Errorf("%w: incorrect length %d", ErrInvalidHash, len(source))
	}

	var hash ContractHash
	copy(hash[:], source)
	return hash, nil
}

// NewContractHashFromHex parses a 64-character hex string, with or without 0x prefix.
func NewContractHashFromHex(source string) (ContractHash, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContractHash{}, fmt.Errorf("%w: hex string must be 64 characters", ErrInvalidHash)
	}

	hashBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContractHash{}, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}

	return NewContractHashFromBytes(hashBytes)
}

// ComputeContractHash returns the keccak256 hash of data.
func ComputeContractHash(data []byte) ContractHash {
	return ContractHash(crypto.Keccak256Hash(data))
}

// String returns hex representation.
func (h ContractHash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns raw 32-byte hash.
func (h ContractHash) Bytes() []byte {
	return h[:]
}

// Short returns the first 8 bytes in hex, for log lines.
func (h ContractHash) Short() string {
	return hex.EncodeToString(h[:8])
}

func (h ContractHash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *ContractHash) UnmarshalText(text []byte) error {
	parsed, err := NewContractHashFromHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Principal is the 20-byte identity of a caller. The zero value identifies nobody.
type Principal [20]byte

// NewPrincipalFromBytes creates a principal from a 20-byte slice.
func NewPrincipalFromBytes(addr []byte) (Principal, error) {
	if len(addr) != 20 {
		return Principal{}, fmt.Errorf("%w: must be 20 bytes", ErrInvalidPrincipal)
	}

	var res Principal
	copy(res[:], addr)
	return res, nil
}

// NewPrincipalFromHex parses a 40-character hex address, with or without 0x prefix.
func NewPrincipalFromHex(addr string) (Principal, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return Principal{}, fmt.Errorf("%w: hex string must be 40 characters", ErrInvalidPrincipal)
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}

	return NewPrincipalFromBytes(addrBytes)
}

// String returns the EIP-55 checksummed address.
func (p Principal) String() string {
	return common.Address(p).Hex()
}

// Bytes returns the raw 20-byte address.
func (p Principal) Bytes() []byte {
	return p[:]
}

// IsZero reports whether p is the zero principal.
func (p Principal) IsZero() bool {
	return p == Principal{}
}

func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := NewPrincipalFromHex(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// EntryState is the lifecycle state of a registry entry.
type EntryState uint8

const (
	StatePending EntryState = iota
	StateActive
	// StateInactive is reserved. No operation transitions into it.
	StateInactive
	StateRejected
	// StateCancelled is reserved. No operation transitions into it.
	StateCancelled
	// StateLocked is reserved. No operation transitions into it.
	StateLocked
)

var stateNames = map[EntryState]string{
	StatePending:   "pending",
	StateActive:    "active",
	StateInactive:  "inactive",
	StateRejected:  "rejected",
	StateCancelled: "cancelled",
	StateLocked:    "locked",
}

// String returns state name.
func (s EntryState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is one of the declared states.
func (s EntryState) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

func (s EntryState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown entry state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *EntryState) UnmarshalText(text []byte) error {
	parsed, err := ParseEntryState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseEntryState parses a state name as produced by String.
func ParseEntryState(name string) (EntryState, error) {
	for state, stateName := range stateNames {
		if stateName == strings.ToLower(name) {
			return state, nil
		}
	}
	return 0, errors.New("unknown entry state: " + name)
}

// AllStates lists every declared state in declaration order.
func AllStates() []EntryState {
	return []EntryState{StatePending, StateActive, StateInactive, StateRejected, StateCancelled, StateLocked}
}

// Entry is a registered hash together with its submitter and lifecycle state.
type Entry struct {
	Hash      ContractHash `json:"hash"`
	Submitter Principal    `json:"submitter"`
	State     EntryState   `json:"state"`
}
