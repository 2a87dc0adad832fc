package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/yourorg/qr-payment-adapter/internal/metrics"
	"github.com/yourorg/qr-payment-adapter/internal/policy"
)

const (
	opOpenSession  = "open_session"
	opCreateCharge = "create_charge"
	opPollStatus   = "poll_status"
	opCloseSession = "close_session"

	defaultHTTPTimeout  = 30 * time.Second
	defaultRetryBackoff = 2 * time.Second
)

// RetryPolicy decides whether a failed gateway call may be retried.
type RetryPolicy interface {
	Evaluate(params map[string]interface{}) policy.Decision
}

// HTTPClient is the real Client implementation speaking the gateway's
// JSON-over-HTTP protocol. It is stateless per call; the session token is
// carried by the caller.
type HTTPClient struct {
	creds        Credentials
	httpc        *http.Client
	retry        RetryPolicy
	breaker      *Breaker
	retryBackoff time.Duration
}

// NewHTTPClient creates an HTTPClient. A nil retry policy falls back to the
// default rule set; a nil http.Client gets the default 30 s timeout.
func NewHTTPClient(creds Credentials, retry RetryPolicy, httpc *http.Client) *HTTPClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if retry == nil {
		retry = policy.DefaultEnforcer()
	}
	return &HTTPClient{
		creds:        creds,
		httpc:        httpc,
		retry:        retry,
		breaker:      NewBreaker(),
		retryBackoff: defaultRetryBackoff,
	}
}

// Wire envelope. Every request body is wrapped as {"body": ...}; every
// response carries {"status": {code, description}, "body": ...}.
type wireStatus struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type wireEnvelope struct {
	Status *wireStatus     `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type wireDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	User string `json:"user"`
}

type openSessionBody struct {
	Device  wireDevice `json:"device"`
	GroupID string     `json:"group_id"`
}

type chargeAmountBody struct {
	SubTotal MinorAmount `json:"sub_total"`
	Total    MinorAmount `json:"total"`
	Tax      MinorAmount `json:"tax"`
	Tip      MinorAmount `json:"tip"`
	Discount MinorAmount `json:"discount"`
}

type createChargeBody struct {
	ChargeAmount chargeAmountBody `json:"charge_amount"`
	OrderID      string           `json:"order_id"`
	Description  string           `json:"description"`
}

type closeSessionBody struct {
	Token string `json:"token"`
}

// roundTrip performs one HTTP exchange: envelope marshaling, auth headers,
// breaker bookkeeping and metrics. It returns the HTTP status and raw body;
// a non-nil error means the exchange itself failed (network, cancellation,
// open breaker).
func (c *HTTPClient) roundTrip(ctx context.Context, op, method, path, token string, body interface{}) (int, []byte, error) {
	if !c.breaker.Allow() {
		metrics.ObserveGateway(op, "breaker_open", 0)
		return 0, nil, &NetworkError{Op: op, Msg: "gateway marked unavailable, call skipped"}
	}

	var rd io.Reader
	if body != nil {
		wrapped, err := json.Marshal(struct {
			Body interface{} `json:"body"`
		}{Body: body})
		if err != nil {
			return 0, nil, fmt.Errorf("%s: encoding request: %w", op, err)
		}
		rd = bytes.NewReader(wrapped)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.creds.BaseURL+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: building request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("api-key", c.creds.APIKey)
	req.Header.Set("secret-key", c.creds.SecretKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		metrics.ObserveGateway(op, "network_error", time.Since(start).Seconds())
		return 0, nil, classifyTransportError(ctx, op, err)
	}
	defer resp.Body.Close()

	// Any HTTP response means the endpoint is reachable.
	c.breaker.RecordSuccess()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveGateway(op, "read_error", time.Since(start).Seconds())
		return resp.StatusCode, nil, &NetworkError{Op: op, Msg: "reading gateway response", Err: err}
	}
	metrics.ObserveGateway(op, fmt.Sprintf("http_%d", resp.StatusCode), time.Since(start).Seconds())
	return resp.StatusCode, raw, nil
}

// decodeError maps a non-200 response onto the error taxonomy, parsing the
// structured {status:{code,description}} body when present.
func decodeError(op string, httpStatus int, raw []byte) error {
	var env wireEnvelope
	code, apiDesc := "", ""
	if err := json.Unmarshal(raw, &env); err == nil && env.Status != nil {
		code = env.Status.Code
		apiDesc = env.Status.Description
	}

	if httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden {
		if code != "" {
			return &AuthError{Code: code, Description: Describe(code), HTTPStatus: httpStatus}
		}
		return &AuthError{
			Description: fmt.Sprintf("Credenciales rechazadas por el gateway (HTTP %d).", httpStatus),
			HTTPStatus:  httpStatus,
		}
	}

	if code != "" {
		return &GatewayError{Code: code, Description: Describe(code), APIDescription: apiDesc, HTTPStatus: httpStatus}
	}
	return &GatewayError{
		Description: fmt.Sprintf("El gateway respondió HTTP %d sin cuerpo de error estructurado.", httpStatus),
		HTTPStatus:  httpStatus,
	}
}

// OpenSession implements Client.
func (c *HTTPClient) OpenSession(ctx context.Context, device Device, groupID string) (Session, error) {
	body := openSessionBody{
		Device:  wireDevice{ID: device.ID, Name: device.Name, User: device.User},
		GroupID: groupID,
	}
	httpStatus, raw, err := c.roundTrip(ctx, opOpenSession, http.MethodPost, "/session/device", "", body)
	if err != nil {
		return Session{}, err
	}
	if httpStatus != http.StatusOK {
		return Session{}, decodeError(opOpenSession, httpStatus, raw)
	}

	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Session{}, &ProtocolError{Op: opOpenSession, Msg: "response is not valid JSON"}
	}
	var sb struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Body, &sb); err != nil || sb.Token == "" {
		return Session{}, &ProtocolError{Op: opOpenSession, Msg: "session token missing from response"}
	}
	log.Printf("gateway: session opened for device %s", device.ID)
	return Session{Token: sb.Token}, nil
}

// CreateCharge implements Client.
func (c *HTTPClient) CreateCharge(ctx context.Context, session Session, req ChargeRequest) (Charge, error) {
	if req.AmountMinor <= 0 {
		return Charge{}, &ValidationError{
			Msg: fmt.Sprintf("charge amount must be a positive number of minor units, got %d", req.AmountMinor),
		}
	}
	if session.Token == "" {
		return Charge{}, &ValidationError{Msg: "charge requires an open session"}
	}

	amount := MinorAmount(req.AmountMinor)
	body := createChargeBody{
		ChargeAmount: chargeAmountBody{SubTotal: amount, Total: amount},
		OrderID:      req.OrderID,
		Description:  req.Description,
	}

	for attempt := 1; ; attempt++ {
		httpStatus, raw, err := c.roundTrip(ctx, opCreateCharge, http.MethodPost, "/qr/generate/DYN", session.Token, body)
		if err != nil {
			return Charge{}, err
		}

		if httpStatus == http.StatusOK {
			var env wireEnvelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return Charge{}, &ProtocolError{Op: opCreateCharge, Msg: "response is not valid JSON"}
			}
			var cb struct {
				TransactionID string `json:"transactionId"`
				Hash          string `json:"hash"`
			}
			if err := json.Unmarshal(env.Body, &cb); err != nil || cb.TransactionID == "" || cb.Hash == "" {
				return Charge{}, &ProtocolError{Op: opCreateCharge, Msg: "transactionId or hash missing from response"}
			}
			log.Printf("gateway: charge created, transactionId=%s order=%s", cb.TransactionID, req.OrderID)
			return Charge{TransactionID: cb.TransactionID, Hash: cb.Hash}, nil
		}

		callErr := decodeError(opCreateCharge, httpStatus, raw)
		code := ErrorCode(callErr)
		decision := c.retry.Evaluate(map[string]interface{}{
			policy.ParamOperation:   opCreateCharge,
			policy.ParamAttempt:     float64(attempt),
			policy.ParamHTTPStatus:  float64(httpStatus),
			policy.ParamErrorCode:   code,
			policy.ParamRecoverable: Recoverable(code),
		})
		if !decision.AllowRetry {
			return Charge{}, callErr
		}

		log.Printf("gateway: transient HTTP %d creating charge, retrying in %s (%s)", httpStatus, c.retryBackoff, decision.Reason)
		select {
		case <-ctx.Done():
			return Charge{}, ctx.Err()
		case <-time.After(c.retryBackoff):
		}
	}
}

// PollStatus implements Client. All failure modes collapse into StatusError
// so the monitoring loop treats every response uniformly; only context
// cancellation is surfaced as an error.
func (c *HTTPClient) PollStatus(ctx context.Context, session Session, transactionID string) (Status, error) {
	httpStatus, raw, err := c.roundTrip(ctx, opPollStatus, http.MethodGet, "/transaction/"+url.PathEscape(transactionID), session.Token, nil)
	if err != nil {
		if ctx.Err() != nil {
			return StatusError, ctx.Err()
		}
		log.Printf("gateway: status poll failed: %v", err)
		return StatusError, nil
	}
	if httpStatus != http.StatusOK {
		log.Printf("gateway: status poll rejected: %v", decodeError(opPollStatus, httpStatus, raw))
		return StatusError, nil
	}

	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("gateway: status poll returned invalid JSON")
		return StatusError, nil
	}
	var sb struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Body, &sb); err != nil || sb.Status == "" {
		log.Printf("gateway: status missing from poll response")
		return StatusError, nil
	}
	st, ok := ParseStatus(sb.Status)
	if !ok {
		log.Printf("gateway: unknown transaction status %q", sb.Status)
		return StatusError, nil
	}
	return st, nil
}

// CloseSession implements Client.
func (c *HTTPClient) CloseSession(ctx context.Context, session Session) error {
	httpStatus, raw, err := c.roundTrip(ctx, opCloseSession, http.MethodDelete, "/session/device", session.Token, closeSessionBody{Token: session.Token})
	if err != nil {
		return err
	}
	if httpStatus == http.StatusOK || httpStatus == http.StatusNoContent {
		return nil
	}
	return decodeError(opCloseSession, httpStatus, raw)
}
