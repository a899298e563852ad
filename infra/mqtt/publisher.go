package mqtt

import (
	"context"
	"fmt"
	"sync"

	coremqtt "github.com/kilianp07/taskalloc/core/mqtt"
	"github.com/kilianp07/taskalloc/pkg/export"
)

// Client mirrors the core mqtt.Client interface.
type Client = coremqtt.Client

// MockClient is an in-memory Client used in tests.
type MockClient struct {
	Records []export.Record
	Fail    bool

	mu      sync.Mutex
	handler func([]byte)
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a new MockClient.
func NewMockClient() *MockClient { return &MockClient{} }

// PublishResult records rec or returns an error if configured to fail.
func (m *MockClient) PublishResult(_ context.Context, rec export.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Records = append(m.Records, rec)
	return nil
}

// Published returns a copy of the records published so far.
func (m *MockClient) Published() []export.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]export.Record(nil), m.Records...)
}

// SubscribeSituations stores handler for Deliver.
func (m *MockClient) SubscribeSituations(handler func([]byte)) error {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
	return nil
}

// Deliver hands payload to the subscribed handler, as the broker would.
func (m *MockClient) Deliver(payload []byte) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(payload)
	}
}

// Disconnect is a no-op.
func (m *MockClient) Disconnect() {}
