package testhelper

import (
	"context"
	"fmt"
	"sync"

	"github.com/ozanardine/phanteon-rewards/internal/domain/delivery"
)

// MockChannel is a mock implementation of delivery.Channel for testing
type MockChannel struct {
	mu sync.Mutex

	Calls []delivery.Request

	// FailTimes makes the first N calls fail; ShouldFail fails every call.
	FailTimes  int
	ShouldFail bool
	Err        error

	// OnDeliver runs inside Deliver before the result is decided.
	OnDeliver func(req delivery.Request)

	PingErr error
}

// Deliver mocks the Deliver method
func (m *MockChannel) Deliver(ctx context.Context, req delivery.Request) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	call := len(m.Calls)
	hook := m.OnDeliver
	fail := m.ShouldFail || call <= m.FailTimes
	err := m.Err
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if !fail {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("mock channel: delivery failed")
	}
	return err
}

// Ping mocks the Ping method
func (m *MockChannel) Ping(ctx context.Context) error {
	return m.PingErr
}

func (m *MockChannel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
