package environment

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockI2CBus is a mock implementation of sensorwatch.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
	mu            sync.Mutex
	concurrentOps int
	maxConcurrent int
}

func (m *MockI2CBus) enter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concurrentOps++
	if m.concurrentOps > m.maxConcurrent {
		m.maxConcurrent = m.concurrentOps
	}
}

func (m *MockI2CBus) leave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.concurrentOps--
}

func (m *MockI2CBus) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxConcurrent
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	m.enter()
	defer m.leave()
	// copy so later writes do not alter recorded calls
	args := m.Called(ctx, address, append([]byte{}, buffer...))
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	m.enter()
	defer m.leave()
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
