package storage

import (
	"context"

	"github.com/ruteri/contract-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockStorageBackend implements interfaces.StorageBackend for testing.
type MockStorageBackend struct {
	mock.Mock
	BackendName string
}

var _ interfaces.StorageBackend = (*MockStorageBackend)(nil)

func (m *MockStorageBackend) Fetch(ctx context.Context, id interfaces.ContractHash) ([]byte, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorageBackend) Store(ctx context.Context, data []byte) (interfaces.ContractHash, error) {
	args := m.Called(ctx, data)
	return args.Get(0).(interfaces.ContractHash), args.Error(1)
}

func (m *MockStorageBackend) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockStorageBackend) Name() string {
	return m.BackendName
}

func (m *MockStorageBackend) LocationURI() string {
	return "mock:" + m.BackendName
}
