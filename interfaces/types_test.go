package interfaces

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContractHashFromHex(t *testing.T) {
	hash := ComputeContractHash([]byte("contract"))

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain hex", hash.String(), false},
		{"0x prefix", "0x" + hash.String(), false},
		{"too short", hash.String()[:62], true},
		{"not hex", "zz" + hash.String()[2:], true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := NewContractHashFromHex(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidHash)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, hash, parsed)
		})
	}
}

func TestComputeContractHash_Keccak(t *testing.T) {
	// keccak256("") is a well-known constant.
	empty := ComputeContractHash(nil)
	assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", empty.String())
}

func TestNewPrincipalFromHex(t *testing.T) {
	p, err := NewPrincipalFromHex("0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	assert.Equal(t, Principal{19: 0xaa}, p)
	assert.False(t, p.IsZero())

	_, err = NewPrincipalFromHex("0xaa")
	assert.ErrorIs(t, err, ErrInvalidPrincipal)

	assert.True(t, Principal{}.IsZero())
}

func TestEntryJSON(t *testing.T) {
	entry := Entry{
		Hash:      ComputeContractHash([]byte("a")),
		Submitter: Principal{0x01, 0x02},
		State:     StateRejected,
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"rejected"`)

	var decoded Entry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, entry, decoded)
}

func TestEntryState_Names(t *testing.T) {
	for _, state := range AllStates() {
		parsed, err := ParseEntryState(state.String())
		require.NoError(t, err)
		assert.Equal(t, state, parsed)
	}

	_, err := ParseEntryState("approved")
	assert.Error(t, err)

	_, err = EntryState(99).MarshalText()
	assert.Error(t, err)
}

func TestRejectedError(t *testing.T) {
	err := fmt.Errorf("checking dependency: %w", &RejectedError{Hash: ComputeContractHash([]byte("x"))})
	assert.True(t, errors.Is(err, ErrRejected))
	assert.False(t, errors.Is(err, ErrUnauthorized))
}
