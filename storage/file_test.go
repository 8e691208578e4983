package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/contract-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_StoreFetch(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)
	assert.True(t, backend.Available(ctx))

	data := []byte{0x60, 0x80, 0x60, 0x40, 0x52}
	id, err := backend.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeContractHash(data), id)

	fetched, err := backend.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)

	// Storing the same bytes twice is idempotent.
	again, err := backend.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestFileBackend_NotFound(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)

	_, err = backend.Fetch(context.Background(), interfaces.ComputeContractHash([]byte("missing")))
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestFileBackend_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)

	id, err := backend.Store(ctx, []byte("original"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "artifacts", id.String()), []byte("replaced"), 0644))

	_, err = backend.Fetch(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrContentMismatch)
}

func TestStorageBackendFactory(t *testing.T) {
	factory := NewStorageBackendFactory(discardLogger())
	dir := t.TempDir()

	location, err := interfaces.NewStorageBackendLocation("file://" + dir)
	require.NoError(t, err)

	backend, err := factory.StorageBackendFor(location)
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, backend)
	assert.Equal(t, "file://"+dir, backend.LocationURI())

	s3Location, err := interfaces.NewStorageBackendLocation("s3://AKID:SECRET@artifacts/contracts?region=eu-west-1&endpoint=http://localhost:9000")
	require.NoError(t, err)
	s3Backend, err := factory.StorageBackendFor(s3Location)
	require.NoError(t, err)
	assert.Equal(t, "s3-artifacts", s3Backend.Name())
	assert.NotContains(t, s3Backend.LocationURI(), "SECRET")

	vaultLocation, err := interfaces.NewStorageBackendLocation("vault://vault.local:8200/secret/contracts?tls=false")
	require.NoError(t, err)
	vaultBackend, err := factory.StorageBackendFor(vaultLocation)
	require.NoError(t, err)
	assert.Equal(t, "vault-secret-contracts", vaultBackend.Name())

	ipfsLocation, err := interfaces.NewStorageBackendLocation("ipfs://localhost:5001/registry?timeout=5s")
	require.NoError(t, err)
	ipfsBackend, err := factory.StorageBackendFor(ipfsLocation)
	require.NoError(t, err)
	assert.Equal(t, "ipfs-localhost-5001", ipfsBackend.Name())

	badTimeout, err := interfaces.NewStorageBackendLocation("ipfs://localhost:5001/?timeout=soon")
	require.NoError(t, err)
	_, err = factory.StorageBackendFor(badTimeout)
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	_, err = interfaces.NewStorageBackendLocation("github://owner/repo")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestStorageBackendFactory_CreateMultiBackend(t *testing.T) {
	factory := NewStorageBackendFactory(discardLogger())

	locations, err := ParseLocations([]string{"file://" + t.TempDir(), "file://" + t.TempDir()})
	require.NoError(t, err)

	backend, err := factory.CreateMultiBackend(locations)
	require.NoError(t, err)

	ctx := context.Background()
	id, err := backend.Store(ctx, []byte("artifact"))
	require.NoError(t, err)

	data, err := backend.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("artifact"), data)

	_, err = factory.CreateMultiBackend(nil)
	assert.Error(t, err)
}
