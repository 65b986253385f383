package bus

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockPublisher is a testify mock implementation of Publisher.
type MockPublisher struct {
	mock.Mock
}

// Publish is the mock implementation of the Publish method.
func (m *MockPublisher) Publish(ctx context.Context, urls []string) ([]string, error) {
	args := m.Called(ctx, urls)
	rejected, _ := args.Get(0).([]string)
	return rejected, args.Error(1)
}

// Close is the mock implementation of the Close method.
func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
