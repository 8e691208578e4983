package clients

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/contract-registry/api"
	"github.com/ruteri/contract-registry/audit"
	"github.com/ruteri/contract-registry/httpserver"
	"github.com/ruteri/contract-registry/interfaces"
	"github.com/ruteri/contract-registry/registry"
	"github.com/ruteri/contract-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

// startServer runs a registry server owned by ownerKey and returns its URL.
func startServer(t *testing.T, ownerKey *ecdsa.PrivateKey, opts ...registry.Option) (string, *registry.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	auditLog := audit.New(32, nil)
	opts = append(opts, registry.WithObserver(auditLog.Observer()))
	reg, err := registry.New(api.PrincipalFromKey(ownerKey), opts...)
	require.NoError(t, err)

	backend, err := storage.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)

	handler := httpserver.NewHandler(reg, logger, httpserver.WithStorage(backend), httpserver.WithAuditLog(auditLog))
	srv, err := httpserver.New(&api.HTTPServerConfig{Log: logger}, handler, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts.URL, reg
}

func TestRegistryClient_Lifecycle(t *testing.T) {
	ctx := context.Background()
	ownerKey := newKey(t)
	url, _ := startServer(t, ownerKey)

	owner := NewRegistryClient(url, ownerKey)
	submitter := NewRegistryClient(url, newKey(t))
	hash := interfaces.ComputeContractHash([]byte("contract"))

	ok, err := submitter.Submit(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	entry, found, err := owner.Lookup(ctx, hash)
	require.NoError(t, err)
	require.True(t, found)
	submitterID, err := submitter.Caller()
	require.NoError(t, err)
	assert.Equal(t, submitterID, entry.Submitter)
	assert.Equal(t, interfaces.StatePending, entry.State)

	_, err = submitter.Approve(ctx, hash)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	ok, err = owner.Approve(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	valid, err := submitter.IsValid(ctx, hash)
	require.NoError(t, err)
	assert.True(t, valid)

	// Only the owner's own submissions can be deleted.
	_, err = owner.Delete(ctx, hash)
	assert.ErrorIs(t, err, interfaces.ErrPrecondition)

	events, err := owner.Events(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events.Events, 2)
}

func TestRegistryClient_Rejected(t *testing.T) {
	ctx := context.Background()
	ownerKey := newKey(t)
	url, _ := startServer(t, ownerKey)

	owner := NewRegistryClient(url, ownerKey)
	hash := interfaces.ComputeContractHash([]byte("bad"))

	_, err := owner.Submit(ctx, hash)
	require.NoError(t, err)
	_, err = owner.Reject(ctx, hash)
	require.NoError(t, err)

	_, err = owner.IsValid(ctx, hash)
	require.ErrorIs(t, err, interfaces.ErrRejected)
	var rejected *interfaces.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, hash, rejected.Hash)

	_, err = owner.Delete(ctx, hash)
	assert.ErrorIs(t, err, interfaces.ErrPrecondition)
}

func TestRegistryClient_LookupMissing(t *testing.T) {
	url, _ := startServer(t, newKey(t))
	client := NewRegistryClient(url, nil)

	_, found, err := client.Lookup(context.Background(), interfaces.ComputeContractHash([]byte("missing")))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRegistryClient_ReadOnly(t *testing.T) {
	url, _ := startServer(t, newKey(t))
	client := NewRegistryClient(url, nil)

	_, err := client.Submit(context.Background(), interfaces.ContractHash{0x01})
	assert.ErrorIs(t, err, ErrNoSigningKey)

	_, err = client.Caller()
	assert.ErrorIs(t, err, ErrNoSigningKey)
}

func TestRegistryClient_Kill(t *testing.T) {
	ctx := context.Background()
	ownerKey := newKey(t)
	url, reg := startServer(t, ownerKey)
	owner := NewRegistryClient(url, ownerKey)

	require.NoError(t, owner.Kill(ctx))
	assert.True(t, reg.Killed())

	_, err := owner.Submit(ctx, interfaces.ContractHash{0x01})
	assert.ErrorIs(t, err, interfaces.ErrRegistryKilled)
	assert.ErrorIs(t, owner.Kill(ctx), interfaces.ErrRegistryKilled)

	info, err := owner.Owner(ctx)
	require.NoError(t, err)
	assert.True(t, info.Killed)
	assert.Equal(t, api.PrincipalFromKey(ownerKey), info.Owner)
}

func TestRegistryClient_Artifacts(t *testing.T) {
	ctx := context.Background()
	ownerKey := newKey(t)
	url, _ := startServer(t, ownerKey)
	client := NewRegistryClient(url, ownerKey)

	bytecode := []byte{0x60, 0x80, 0x60, 0x40}
	resp, err := client.UploadArtifact(ctx, bytecode)
	require.NoError(t, err)
	assert.True(t, resp.Submitted)

	data, err := client.FetchArtifact(ctx, resp.Hash)
	require.NoError(t, err)
	assert.Equal(t, bytecode, data)

	_, err = client.FetchArtifact(ctx, interfaces.ComputeContractHash([]byte("other")))
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

// A remote membership registry gates submissions to a local one.
func TestRegistryClient_AsIdentityOracle(t *testing.T) {
	ctx := context.Background()
	membersOwnerKey := newKey(t)
	membersURL, _ := startServer(t, membersOwnerKey)
	members := NewRegistryClient(membersURL, membersOwnerKey)

	memberKey := newKey(t)
	member := api.PrincipalFromKey(memberKey)
	memberHash := interfaces.IdentityHash(member)
	_, err := members.Submit(ctx, memberHash)
	require.NoError(t, err)
	_, err = members.Approve(ctx, memberHash)
	require.NoError(t, err)

	local, err := registry.New(interfaces.Principal{0x01}, registry.WithIdentityOracle(NewRegistryClient(membersURL, nil)))
	require.NoError(t, err)

	require.NoError(t, local.CheckIdentity(ctx, member))
	assert.ErrorIs(t, local.CheckIdentity(ctx, api.PrincipalFromKey(newKey(t))), interfaces.ErrIdentityNotValid)
}
