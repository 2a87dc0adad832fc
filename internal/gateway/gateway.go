// Package gateway implements the client for the QR payment gateway.
// It wraps the four session-protocol operations (open session, create charge,
// poll transaction status, close session) behind the Client interface,
// normalizing every failure mode into the error taxonomy defined in errors.go.
// The real HTTP implementation lives in client.go; a deterministic simulated
// implementation for tests and mock deployments lives in the mock subpackage.
package gateway

import "context"

// Credentials identify the integration with the gateway. They are process-wide
// configuration and immutable for the process lifetime.
type Credentials struct {
	APIKey    string
	SecretKey string
	BaseURL   string
}

// Device identifies the physical terminal to the gateway.
type Device struct {
	ID   string
	Name string
	User string
}

// Session is an open device session with the gateway. The token is an opaque
// short-lived credential owned by exactly one in-flight payment run; it is
// never persisted or shared across runs.
type Session struct {
	Token string
}

// ChargeRequest describes a dynamic QR charge to be created.
// AmountMinor is the monetary amount in integer minor units (cents).
type ChargeRequest struct {
	AmountMinor int64
	Currency    string
	OrderID     string
	Description string
}

// Charge is the gateway-side record created for a ChargeRequest: the gateway's
// transaction identifier plus the opaque payload the customer scans.
type Charge struct {
	TransactionID string
	Hash          string
}

// Status is the gateway's view of a transaction. PENDING is the only
// non-terminal value; TIMEOUT and CANCELED are assigned locally by the
// orchestrator, never parsed off the wire.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusTimeout   Status = "TIMEOUT"
	StatusError     Status = "ERROR"
	StatusCanceled  Status = "CANCELED"
)

// Terminal reports whether the status ends the monitoring loop.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// ParseStatus maps a gateway status string onto the Status enum.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusPending, StatusCompleted, StatusFailed, StatusTimeout, StatusError, StatusCanceled:
		return Status(raw), true
	}
	return StatusError, false
}

// Client is the contract for driving the gateway's session protocol.
// Implementations must be safe for use by a single orchestration run at a
// time; none of the operations loop or back off internally except for the
// single transient retry documented on CreateCharge.
type Client interface {
	// OpenSession opens an authenticated device session and returns its token.
	OpenSession(ctx context.Context, device Device, groupID string) (Session, error)

	// CreateCharge creates a dynamic QR charge inside the session. The request
	// amount is validated before any network traffic. On a transient
	// service-unavailable response the implementation performs at most one
	// automatic retry after a fixed backoff.
	CreateCharge(ctx context.Context, session Session, req ChargeRequest) (Charge, error)

	// PollStatus performs a single status check. Error and unparseable
	// responses are reported as StatusError rather than an error so a polling
	// loop can treat every response uniformly; the error return is reserved
	// for context cancellation.
	PollStatus(ctx context.Context, session Session, transactionID string) (Status, error)

	// CloseSession tears the session down. 200 and 204 both count as success.
	// The token must be considered invalid once this returns, error or not.
	CloseSession(ctx context.Context, session Session) error
}
