package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/racepay/internal/clock"
	"github.com/smallbiznis/racepay/internal/payment/poll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakePoller() *poll.Poller {
	clk := clock.NewFakeClock(time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC))
	return poll.New(poll.DefaultConfig(),
		poll.WithClock(clk),
		poll.WithSleeper(func(_ context.Context, d time.Duration) error {
			clk.Advance(d)
			return nil
		}),
	)
}

func verifyServer(t *testing.T, handle func(n int32, w http.ResponseWriter)) (*verifier, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verifyPayment", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ORDER_1", body["merchantOrderId"])
		w.Header().Set("Content-Type", "application/json")
		handle(calls.Add(1), w)
	}))
	t.Cleanup(srv.Close)
	return &verifier{endpoint: srv.URL + "/verifyPayment", client: srv.Client()}, &calls
}

func TestWatchStopsOnTerminalState(t *testing.T) {
	v, calls := verifyServer(t, func(n int32, w http.ResponseWriter) {
		state := "PENDING"
		if n == 3 {
			state = "COMPLETED"
		}
		_, _ = w.Write([]byte(`{"success":true,"verified":true,"state":"` + state + `","transaction":{"transactionId":"T1","paymentMode":"UPI_QR"}}`))
	})

	var out bytes.Buffer
	require.NoError(t, watch(context.Background(), &out, fakePoller(), v, "ORDER_1"))
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, out.String(), "order ORDER_1 COMPLETED (transaction T1, UPI_QR)")
}

func TestWatchTimesOutWhilePending(t *testing.T) {
	v, calls := verifyServer(t, func(_ int32, w http.ResponseWriter) {
		_, _ = w.Write([]byte(`{"success":true,"verified":false,"state":"PENDING"}`))
	})

	var out bytes.Buffer
	err := watch(context.Background(), &out, fakePoller(), v, "ORDER_1")
	require.ErrorIs(t, err, errTimedOut)
	assert.Equal(t, int32(15), calls.Load())
	assert.Contains(t, out.String(), "Payment status unknown after 15 attempts")
}

func TestWatchGivesUpOnUnknownOrder(t *testing.T) {
	v, calls := verifyServer(t, func(_ int32, w http.ResponseWriter) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"Order not found","errorType":"NOT_FOUND"}`))
	})

	err := watch(context.Background(), &bytes.Buffer{}, fakePoller(), v, "ORDER_1")
	require.ErrorIs(t, err, poll.ErrStop)
	assert.NotErrorIs(t, err, errTimedOut)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatchRetriesServerErrors(t *testing.T) {
	v, calls := verifyServer(t, func(n int32, w http.ResponseWriter) {
		if n == 1 {
			w.WriteHeader(http.StatusGatewayTimeout)
			_, _ = w.Write([]byte(`{"success":false,"error":"timed out","errorType":"TIMEOUT"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"state":"FAILED","transaction":{"errorCode":"INSUFFICIENT_FUNDS"}}`))
	})

	var out bytes.Buffer
	require.NoError(t, watch(context.Background(), &out, fakePoller(), v, "ORDER_1"))
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, out.String(), "reason=INSUFFICIENT_FUNDS")
}
