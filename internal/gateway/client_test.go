package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/racepay/internal/clock"
	"github.com/smallbiznis/racepay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)

type fakePhonePe struct {
	authCalls   atomic.Int32
	payCalls    atomic.Int32
	statusCalls atomic.Int32

	tokenTTL time.Duration
	auth     http.HandlerFunc
	pay      http.HandlerFunc
	status   http.HandlerFunc
}

func (f *fakePhonePe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/oauth/token":
		n := f.authCalls.Add(1)
		if f.auth != nil {
			f.auth(w, r)
			return
		}
		ttl := f.tokenTTL
		if ttl == 0 {
			ttl = time.Hour
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": fmt.Sprintf("token-%d", n),
			"expires_at":   testNow.Add(ttl).Unix(),
			"token_type":   "O-Bearer",
		})
	case r.URL.Path == "/checkout/v2/pay":
		f.payCalls.Add(1)
		f.pay(w, r)
	default:
		f.statusCalls.Add(1)
		f.status(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, fake *fakePhonePe, clk clock.Clock) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		ClientID:      "client",
		ClientSecret:  "secret",
		ClientVersion: "1",
		Environment:   config.GatewaySandbox,
		AuthURL:       srv.URL + "/v1/oauth/token",
		APIBaseURL:    srv.URL + "/",
		AuthTimeout:   time.Second,
		CreateTimeout: time.Second,
		StatusTimeout: 50 * time.Millisecond,
	},
		WithTokenCache(NewTokenCache(clk, nil)),
		WithRetryPolicy(RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, Retryable: IsTransient}),
	)
}

func completedStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"orderId": "OMO123",
		"state":   "COMPLETED",
		"amount":  30000,
		"paymentDetails": []map[string]any{
			{"paymentMode": "UPI_QR", "transactionId": "T1", "timestamp": testNow.UnixMilli(), "amount": 30000, "state": "COMPLETED"},
		},
	})
}

func slowUntilCancelled(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(time.Second):
	}
}

func TestAccessTokenCachedUntilRefreshBuffer(t *testing.T) {
	clk := clock.NewFakeClock(testNow)
	fake := &fakePhonePe{tokenTTL: 10 * time.Minute}
	c := newTestClient(t, fake, clk)
	ctx := context.Background()

	tok, err := c.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	tok, err = c.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
	assert.Equal(t, int32(1), fake.authCalls.Load())

	clk.Advance(9*time.Minute + 30*time.Second)
	tok, err = c.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.Equal(t, int32(2), fake.authCalls.Load())
}

func TestAccessTokenSendsClientCredentials(t *testing.T) {
	var form url.Values
	fake := &fakePhonePe{auth: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "abc", "expires_at": testNow.Add(time.Hour).Unix()})
	}}
	c := newTestClient(t, fake, clock.NewFakeClock(testNow))

	_, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "client", form.Get("client_id"))
	assert.Equal(t, "1", form.Get("client_version"))
	assert.Equal(t, "secret", form.Get("client_secret"))
	assert.Equal(t, "client_credentials", form.Get("grant_type"))
}

func TestAccessTokenRejectedIsNotRetried(t *testing.T) {
	fake := &fakePhonePe{auth: func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "bad credentials"})
	}}
	c := newTestClient(t, fake, clock.NewFakeClock(testNow))

	_, err := c.AccessToken(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.Contains(t, err.Error(), "bad credentials")
	assert.Equal(t, int32(1), fake.authCalls.Load())
}

func TestCreatePaymentSendsCheckoutRequest(t *testing.T) {
	expireAt := testNow.Add(20 * time.Minute)
	var got createPaymentBody
	fake := &fakePhonePe{pay: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "O-Bearer token-1", r.Header.Get("Authorization"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &got))
		writeJSON(w, http.StatusOK, map[string]any{
			"orderId":     "OMO123",
			"state":       "PENDING",
			"expireAt":    expireAt.UnixMilli(),
			"redirectUrl": "https://mercury.phonepe.com/pay/OMO123",
		})
	}}
	c := newTestClient(t, fake, clock.NewFakeClock(testNow))

	longName := make([]byte, 300)
	for i := range longName {
		longName[i] = 'a'
	}
	session, err := c.CreatePayment(context.Background(), PaymentRequest{
		MerchantOrderID:  "ORDER_1",
		AmountMinorUnits: 30000,
		RedirectURL:      "https://run.example.com/payment/status?orderId=ORDER_1",
		Metadata:         map[string]string{"udf1": string(longName), "udf2": "a@x.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, "ORDER_1", got.MerchantOrderID)
	assert.Equal(t, int64(30000), got.Amount)
	assert.Equal(t, 1200, got.ExpireAfter)
	assert.Equal(t, "PG_CHECKOUT", got.PaymentFlow.Type)
	assert.Equal(t, "https://run.example.com/payment/status?orderId=ORDER_1", got.PaymentFlow.MerchantUrls.RedirectURL)
	assert.Len(t, got.MetaInfo["udf1"], 256)
	assert.Equal(t, "a@x.com", got.MetaInfo["udf2"])

	assert.Equal(t, "OMO123", session.GatewayOrderID)
	assert.Equal(t, StatePending, session.State)
	assert.Equal(t, "https://mercury.phonepe.com/pay/OMO123", session.RedirectURL)
	assert.True(t, expireAt.Truncate(time.Millisecond).Equal(session.ExpiresAt))
}

func TestCreatePaymentReturnsAPIError(t *testing.T) {
	fake := &fakePhonePe{pay: func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"code": "BAD_REQUEST", "message": "amount invalid"})
	}}
	c := newTestClient(t, fake, clock.NewFakeClock(testNow))

	_, err := c.CreatePayment(context.Background(), PaymentRequest{MerchantOrderID: "ORDER_1", AmountMinorUnits: 100})
	require.Error(t, err)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "BAD_REQUEST", apiErr.Code)
	assert.Equal(t, "amount invalid", apiErr.Message)
	assert.Equal(t, int32(1), fake.payCalls.Load())
}

func TestCreatePaymentRejectsInvalidRequest(t *testing.T) {
	c := newTestClient(t, &fakePhonePe{}, clock.NewFakeClock(testNow))
	_, err := c.CreatePayment(context.Background(), PaymentRequest{MerchantOrderID: "ORDER_1"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOrderStatusParsesDetails(t *testing.T) {
	var query url.Values
	fake := &fakePhonePe{status: func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkout/v2/order/ORDER_1/status", r.URL.Path)
		query = r.URL.Query()
		completedStatus(w, r)
	}}
	c := newTestClient(t, fake, clock.NewFakeClock(testNow))

	status, err := c.OrderStatus(context.Background(), "ORDER_1", StatusOptions{IncludeDetails: true, IncludeErrorContext: true})
	require.NoError(t, err)
	assert.Equal(t, "true", query.Get("details"))
	assert.Equal(t, "true", query.Get("errorContext"))
	assert.Equal(t, StateCompleted, status.State)
	require.Len(t, status.PaymentDetails, 1)
	assert.Equal(t, "UPI_QR", status.PaymentDetails[0].PaymentMode)
	assert.Equal(t, "T1", status.PaymentDetails[0].TransactionID)
}

func TestOrderStatusRetriesAfterTimeout(t *testing.T) {
	fake := &fakePhonePe{}
	fake.status = func(w http.ResponseWriter, r *http.Request) {
		if fake.statusCalls.Load() == 1 {
			slowUntilCancelled(w, r)
			return
		}
		completedStatus(w, r)
	}
	c := newTestClient(t, fake, clock.NewFakeClock(testNow))

	status, err := c.OrderStatus(context.Background(), "ORDER_1", StatusOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, int32(2), fake.statusCalls.Load())
}

func TestOrderStatusGivesUpAfterMaxRetries(t *testing.T) {
	fake := &fakePhonePe{status: slowUntilCancelled}
	c := newTestClient(t, fake, clock.NewFakeClock(testNow))

	_, err := c.OrderStatus(context.Background(), "ORDER_1", StatusOptions{})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, int32(3), fake.statusCalls.Load())
}

func TestOrderStatusSandboxOutageMessage(t *testing.T) {
	fake := &fakePhonePe{status: func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal"})
	}}
	c := newTestClient(t, fake, clock.NewFakeClock(testNow))

	_, err := c.OrderStatus(context.Background(), "ORDER_1", StatusOptions{})
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, sandboxUnavailableMessage, apiErr.Message)
	assert.Equal(t, int32(1), fake.statusCalls.Load())
}

func TestOrderStatusUnauthorizedDropsCachedToken(t *testing.T) {
	fake := &fakePhonePe{}
	fake.status = func(w http.ResponseWriter, r *http.Request) {
		if fake.statusCalls.Load() == 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token expired"})
			return
		}
		assert.Equal(t, "O-Bearer token-2", r.Header.Get("Authorization"))
		completedStatus(w, r)
	}
	c := newTestClient(t, fake, clock.NewFakeClock(testNow))

	_, err := c.OrderStatus(context.Background(), "ORDER_1", StatusOptions{})
	require.Error(t, err)
	assert.True(t, IsAuth(err))

	_, err = c.OrderStatus(context.Background(), "ORDER_1", StatusOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.authCalls.Load())
}
