package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewHTTPClient(Credentials{
		APIKey:    "test-api-key",
		SecretKey: "test-secret-key",
		BaseURL:   srv.URL,
	}, nil, srv.Client())
	c.retryBackoff = 5 * time.Millisecond
	return c, srv
}

func writeEnvelope(w http.ResponseWriter, httpStatus int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	fmt.Fprintf(w, `{"status":{"code":"YP-0000","description":"ok"},"body":%s}`, body)
}

func writeError(w http.ResponseWriter, httpStatus int, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	fmt.Fprintf(w, `{"status":{"code":%q,"description":%q}}`, code, description)
}

var testDevice = Device{ID: "dev-1", Name: "Caja 1", User: "operador"}

func TestOpenSession_SendsCredentialsAndEnvelope(t *testing.T) {
	var seen struct {
		method, path, apiKey, secretKey string
		body                            map[string]interface{}
	}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen.method = r.Method
		seen.path = r.URL.Path
		seen.apiKey = r.Header.Get("api-key")
		seen.secretKey = r.Header.Get("secret-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen.body))
		writeEnvelope(w, http.StatusOK, `{"token":"tok-123"}`)
	})

	session, err := c.OpenSession(context.Background(), testDevice, "grp-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", session.Token)

	assert.Equal(t, http.MethodPost, seen.method)
	assert.Equal(t, "/session/device", seen.path)
	assert.Equal(t, "test-api-key", seen.apiKey)
	assert.Equal(t, "test-secret-key", seen.secretKey)

	inner, ok := seen.body["body"].(map[string]interface{})
	require.True(t, ok, "request must be wrapped in a body envelope")
	assert.Equal(t, "grp-1", inner["group_id"])
	device, ok := inner["device"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "dev-1", device["id"])
	assert.Equal(t, "Caja 1", device["name"])
	assert.Equal(t, "operador", device["user"])
}

func TestOpenSession_AuthRejection(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "YP-0001", "invalid credentials")
	})

	_, err := c.OpenSession(context.Background(), testDevice, "grp-1")
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "YP-0001", ae.Code)
	assert.Equal(t, http.StatusUnauthorized, ae.HTTPStatus)
	assert.Contains(t, ae.Description, "Credenciales inválidas")
}

func TestOpenSession_MissingTokenIsProtocolError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, `{}`)
	})

	_, err := c.OpenSession(context.Background(), testDevice, "grp-1")
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Msg, "token")
}

func TestOpenSession_UnreachableGateway(t *testing.T) {
	c := NewHTTPClient(Credentials{BaseURL: "http://127.0.0.1:1"}, nil, nil)
	_, err := c.OpenSession(context.Background(), testDevice, "grp-1")
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.Contains(t, nerr.Msg, "unreachable")
}

func TestCreateCharge_ValidationBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusOK, `{"transactionId":"t1","hash":"h1"}`)
	})

	_, err := c.CreateCharge(context.Background(), Session{Token: "tok"}, ChargeRequest{AmountMinor: 0})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = c.CreateCharge(context.Background(), Session{Token: "tok"}, ChargeRequest{AmountMinor: -100})
	require.ErrorAs(t, err, &ve)

	_, err = c.CreateCharge(context.Background(), Session{}, ChargeRequest{AmountMinor: 100})
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Msg, "session")

	assert.Zero(t, calls.Load(), "validation failures must not reach the wire")
}

func TestCreateCharge_SendsBearerTokenAndAmounts(t *testing.T) {
	var auth string
	var body map[string]interface{}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "/qr/generate/DYN", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeEnvelope(w, http.StatusOK, `{"transactionId":"t1","hash":"h1"}`)
	})

	charge, err := c.CreateCharge(context.Background(), Session{Token: "tok-9"}, ChargeRequest{
		AmountMinor: 10050,
		Currency:    "USD",
		OrderID:     "42",
		Description: "YAPPY VENTA 42",
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", charge.TransactionID)
	assert.Equal(t, "h1", charge.Hash)
	assert.Equal(t, "Bearer tok-9", auth)

	inner := body["body"].(map[string]interface{})
	amounts := inner["charge_amount"].(map[string]interface{})
	assert.Equal(t, 100.50, amounts["sub_total"])
	assert.Equal(t, 100.50, amounts["total"])
	assert.Equal(t, 0.00, amounts["tax"])
	assert.Equal(t, "42", inner["order_id"])
	assert.Equal(t, "YAPPY VENTA 42", inner["description"])
}

func TestCreateCharge_RetriesOnceOn503(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeError(w, http.StatusServiceUnavailable, "YAPPY-998", "unavailable")
			return
		}
		writeEnvelope(w, http.StatusOK, `{"transactionId":"t1","hash":"h1"}`)
	})

	charge, err := c.CreateCharge(context.Background(), Session{Token: "tok"}, ChargeRequest{AmountMinor: 500})
	require.NoError(t, err)
	assert.Equal(t, "h1", charge.Hash)
	assert.EqualValues(t, 2, calls.Load(), "exactly one retry after the first 503")
}

func TestCreateCharge_SecondConsecutive503Fails(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusServiceUnavailable, "YAPPY-998", "unavailable")
	})

	_, err := c.CreateCharge(context.Background(), Session{Token: "tok"}, ChargeRequest{AmountMinor: 500})
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "YAPPY-998", ge.Code)
	assert.Equal(t, http.StatusServiceUnavailable, ge.HTTPStatus)
	assert.EqualValues(t, 2, calls.Load(), "one retry, then give up")
}

func TestCreateCharge_NonTransientErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusBadRequest, "YP-0024", "invalid amount")
	})

	_, err := c.CreateCharge(context.Background(), Session{Token: "tok"}, ChargeRequest{AmountMinor: 500})
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "YP-0024", ge.Code)
	assert.Contains(t, ge.Description, "monto")
	assert.EqualValues(t, 1, calls.Load())
}

func TestCreateCharge_CancellationDuringBackoff(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusServiceUnavailable, "YAPPY-998", "unavailable")
	})
	c.retryBackoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.CreateCharge(ctx, Session{Token: "tok"}, ChargeRequest{AmountMinor: 500})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPollStatus_ParsesStatus(t *testing.T) {
	var path string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		writeEnvelope(w, http.StatusOK, `{"status":"COMPLETED"}`)
	})

	st, err := c.PollStatus(context.Background(), Session{Token: "tok"}, "tx-7")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st)
	assert.Equal(t, "/transaction/tx-7", path)
}

func TestPollStatus_FailuresCollapseToStatusError(t *testing.T) {
	t.Run("HTTP500", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusInternalServerError, "YP-0099", "boom")
		})
		st, err := c.PollStatus(context.Background(), Session{Token: "tok"}, "tx-7")
		assert.NoError(t, err)
		assert.Equal(t, StatusError, st)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "not json")
		})
		st, err := c.PollStatus(context.Background(), Session{Token: "tok"}, "tx-7")
		assert.NoError(t, err)
		assert.Equal(t, StatusError, st)
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusOK, `{"status":"WAITING"}`)
		})
		st, err := c.PollStatus(context.Background(), Session{Token: "tok"}, "tx-7")
		assert.NoError(t, err)
		assert.Equal(t, StatusError, st)
	})

	t.Run("Unreachable", func(t *testing.T) {
		c := NewHTTPClient(Credentials{BaseURL: "http://127.0.0.1:1"}, nil, nil)
		st, err := c.PollStatus(context.Background(), Session{Token: "tok"}, "tx-7")
		assert.NoError(t, err)
		assert.Equal(t, StatusError, st)
	})
}

func TestPollStatus_CancellationSurfacesError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, `{"status":"PENDING"}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := c.PollStatus(ctx, Session{Token: "tok"}, "tx-7")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusError, st)
}

func TestCloseSession(t *testing.T) {
	t.Run("NoContentIsSuccess", func(t *testing.T) {
		var seen struct {
			method, auth string
			body         map[string]interface{}
		}
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			seen.method = r.Method
			seen.auth = r.Header.Get("Authorization")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&seen.body))
			w.WriteHeader(http.StatusNoContent)
		})

		require.NoError(t, c.CloseSession(context.Background(), Session{Token: "tok-5"}))
		assert.Equal(t, http.MethodDelete, seen.method)
		assert.Equal(t, "Bearer tok-5", seen.auth)
		inner := seen.body["body"].(map[string]interface{})
		assert.Equal(t, "tok-5", inner["token"])
	})

	t.Run("OKIsSuccess", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusOK, `{}`)
		})
		assert.NoError(t, c.CloseSession(context.Background(), Session{Token: "tok"}))
	})

	t.Run("ErrorIsReported", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "YP-0031", "no session")
		})
		err := c.CloseSession(context.Background(), Session{Token: "tok"})
		var ge *GatewayError
		require.ErrorAs(t, err, &ge)
		assert.Equal(t, "YP-0031", ge.Code)
	})
}

func TestHTTPClient_BreakerFailsFastAfterRepeatedTransportErrors(t *testing.T) {
	c := NewHTTPClient(Credentials{BaseURL: "http://127.0.0.1:1"}, nil, nil)
	c.breaker = NewBreakerWithSettings(2, time.Hour, 1)

	ctx := context.Background()
	_, err := c.OpenSession(ctx, testDevice, "g")
	require.Error(t, err)
	_, err = c.OpenSession(ctx, testDevice, "g")
	require.Error(t, err)

	_, err = c.OpenSession(ctx, testDevice, "g")
	var nerr *NetworkError
	require.ErrorAs(t, err, &nerr)
	assert.Contains(t, nerr.Msg, "marked unavailable")
}
