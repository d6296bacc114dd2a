package mocks

import "github.com/stretchr/testify/mock"

// MockInstallationInfo is a mock implementation of the InstallationInfoInterface
type MockInstallationInfo struct {
	mock.Mock
}

func (m *MockInstallationInfo) LoadOrCreate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockInstallationInfo) GetInstallationID() string {
	args := m.Called()
	return args.String(0)
}
