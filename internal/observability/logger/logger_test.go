package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zapcore"

	obscontext "github.com/smallbiznis/racepay/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithOrderID(ctx, "ORDER_42")
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" {
		t.Fatalf("expected request_id req-1, got %v", fields["request_id"])
	}
	if fields["merchant_order_id"] != "ORDER_42" {
		t.Fatalf("expected merchant_order_id ORDER_42, got %v", fields["merchant_order_id"])
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"select * from transactions":           "SELECT",
		"  update transactions set status = ?": "UPDATE",
		"":                                     "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %s, want %s", sql, got, want)
		}
	}
}

func TestMaskedKeepsLastFourCharacters(t *testing.T) {
	if got := Masked("client_id", "PHONEPE_CLIENT_1234").String; got != "****1234" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := Masked("client_id", "abc").String; got != "***" {
		t.Fatalf("unexpected short mask %q", got)
	}
}

func TestRequestLevel(t *testing.T) {
	cases := []struct {
		route  string
		status int
		want   zapcore.Level
	}{
		{"/health", http.StatusOK, zapcore.DebugLevel},
		{"/initiatePayment", http.StatusOK, zapcore.InfoLevel},
		{"/initiatePayment", http.StatusBadRequest, zapcore.WarnLevel},
		{"/checkStatus", http.StatusGatewayTimeout, zapcore.ErrorLevel},
	}
	for _, tc := range cases {
		if got := requestLevel(tc.route, tc.status); got != tc.want {
			t.Fatalf("requestLevel(%s, %d) = %s, want %s", tc.route, tc.status, got, tc.want)
		}
	}
}

func TestGinMiddlewareEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = c.GetString("request_id")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Header().Get(RequestIDHeader) != "req-abc" || seen != "req-abc" {
		t.Fatalf("request id not propagated: header=%q ctx=%q", rec.Header().Get(RequestIDHeader), seen)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}
