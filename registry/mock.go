package registry

import (
	"github.com/ruteri/contract-registry/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockRegistry mocks the HashRegistry interface
type MockRegistry struct {
	mock.Mock
}

var _ interfaces.HashRegistry = (*MockRegistry)(nil)

// Submit mocks the Submit method
func (m *MockRegistry) Submit(hash interfaces.ContractHash, caller interfaces.Principal) (bool, error) {
	args := m.Called(hash, caller)
	return args.Bool(0), args.Error(1)
}

// Approve mocks the Approve method
func (m *MockRegistry) Approve(hash interfaces.ContractHash, caller interfaces.Principal) (bool, error) {
	args := m.Called(hash, caller)
	return args.Bool(0), args.Error(1)
}

// Reject mocks the Reject method
func (m *MockRegistry) Reject(hash interfaces.ContractHash, caller interfaces.Principal) (bool, error) {
	args := m.Called(hash, caller)
	return args.Bool(0), args.Error(1)
}

// Delete mocks the Delete method
func (m *MockRegistry) Delete(hash interfaces.ContractHash, caller interfaces.Principal) (bool, error) {
	args := m.Called(hash, caller)
	return args.Bool(0), args.Error(1)
}

// IsValid mocks the IsValid method
func (m *MockRegistry) IsValid(hash interfaces.ContractHash) (bool, error) {
	args := m.Called(hash)
	return args.Bool(0), args.Error(1)
}

// Lookup mocks the Lookup method
func (m *MockRegistry) Lookup(hash interfaces.ContractHash) (interfaces.Entry, bool, error) {
	args := m.Called(hash)
	return args.Get(0).(interfaces.Entry), args.Bool(1), args.Error(2)
}

// Kill mocks the Kill method
func (m *MockRegistry) Kill(caller interfaces.Principal) error {
	args := m.Called(caller)
	return args.Error(0)
}

// Owner mocks the Owner method
func (m *MockRegistry) Owner() interfaces.Principal {
	args := m.Called()
	return args.Get(0).(interfaces.Principal)
}
