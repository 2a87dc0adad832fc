// Package mock provides a simulated gateway.Client for tests and mock-mode
// deployments. Behavior is overridable per operation through func fields;
// without overrides it plays a deterministic happy path with optional
// scripted status sequences and delays.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/qr-payment-adapter/internal/gateway"
)

// Client is a mock implementation of gateway.Client.
type Client struct {
	OpenSessionFunc  func(ctx context.Context, device gateway.Device, groupID string) (gateway.Session, error)
	CreateChargeFunc func(ctx context.Context, session gateway.Session, req gateway.ChargeRequest) (gateway.Charge, error)
	PollStatusFunc   func(ctx context.Context, session gateway.Session, transactionID string) (gateway.Status, error)
	CloseSessionFunc func(ctx context.Context, session gateway.Session) error

	// Statuses is the scripted sequence the default PollStatus walks through,
	// sticking at the last entry. Empty means COMPLETED immediately.
	Statuses []gateway.Status

	// Delay is slept before each default operation to simulate latency.
	Delay time.Duration

	mu         sync.Mutex
	calls      []string
	pollIndex  int
	closeCalls int
}

// NewClient creates a mock with default happy-path behavior.
func NewClient() *Client {
	return &Client{}
}

func (m *Client) record(op string) {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	m.mu.Unlock()
}

func (m *Client) sleep(ctx context.Context) error {
	if m.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.Delay):
		return nil
	}
}

// Calls returns the operations invoked so far, in order.
func (m *Client) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CloseCalls returns how many times CloseSession was invoked.
func (m *Client) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// PollCalls returns how many times PollStatus was invoked.
func (m *Client) PollCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pollIndex
}

// OpenSession implements gateway.Client.
func (m *Client) OpenSession(ctx context.Context, device gateway.Device, groupID string) (gateway.Session, error) {
	m.record("open_session")
	if m.OpenSessionFunc != nil {
		return m.OpenSessionFunc(ctx, device, groupID)
	}
	if err := m.sleep(ctx); err != nil {
		return gateway.Session{}, err
	}
	return gateway.Session{Token: "mock-token-" + uuid.NewString()}, nil
}

// CreateCharge implements gateway.Client. The default keeps the real client's
// pre-network validation so mock-mode deployments reject bad amounts too.
func (m *Client) CreateCharge(ctx context.Context, session gateway.Session, req gateway.ChargeRequest) (gateway.Charge, error) {
	m.record("create_charge")
	if m.CreateChargeFunc != nil {
		return m.CreateChargeFunc(ctx, session, req)
	}
	if req.AmountMinor <= 0 {
		return gateway.Charge{}, &gateway.ValidationError{
			Msg: fmt.Sprintf("charge amount must be a positive number of minor units, got %d", req.AmountMinor),
		}
	}
	if err := m.sleep(ctx); err != nil {
		return gateway.Charge{}, err
	}
	suffix := uuid.NewString()
	return gateway.Charge{TransactionID: "mock-tx-" + suffix, Hash: "mock-hash-" + suffix}, nil
}

// PollStatus implements gateway.Client.
func (m *Client) PollStatus(ctx context.Context, session gateway.Session, transactionID string) (gateway.Status, error) {
	m.record("poll_status")
	if m.PollStatusFunc != nil {
		m.mu.Lock()
		m.pollIndex++
		m.mu.Unlock()
		return m.PollStatusFunc(ctx, session, transactionID)
	}
	if err := m.sleep(ctx); err != nil {
		return gateway.StatusError, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Statuses) == 0 {
		m.pollIndex++
		return gateway.StatusCompleted, nil
	}
	idx := m.pollIndex
	if idx >= len(m.Statuses) {
		idx = len(m.Statuses) - 1
	}
	m.pollIndex++
	return m.Statuses[idx], nil
}

// CloseSession implements gateway.Client.
func (m *Client) CloseSession(ctx context.Context, session gateway.Session) error {
	m.record("close_session")
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	if m.CloseSessionFunc != nil {
		return m.CloseSessionFunc(ctx, session)
	}
	return nil
}
