package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/racepay/internal/config"
	obsmetrics "github.com/smallbiznis/racepay/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	OpAuth   = "auth"
	OpCreate = "create_payment"
	OpStatus = "order_status"

	checkoutExpireAfterSeconds = 1200
	metaInfoMaxLen             = 256

	sandboxUnavailableMessage = "PhonePe sandbox is temporarily unavailable. Please try again in a moment or contact support."
)

// State is the order state reported by the gateway.
type State string

const (
	StatePending   State = "PENDING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

type Config struct {
	ClientID      string
	ClientSecret  string
	ClientVersion string
	Environment   string
	AuthURL       string
	APIBaseURL    string

	AuthTimeout   time.Duration
	CreateTimeout time.Duration
	StatusTimeout time.Duration
}

func ConfigFrom(cfg config.Config) Config {
	return Config{
		ClientID:      cfg.Gateway.ClientID,
		ClientSecret:  cfg.Gateway.ClientSecret,
		ClientVersion: cfg.Gateway.ClientVersion,
		Environment:   cfg.Gateway.Environment,
		AuthURL:       cfg.Gateway.AuthURL,
		APIBaseURL:    cfg.Gateway.APIBaseURL,
	}
}

func (c Config) withDefaults() Config {
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 10 * time.Second
	}
	if c.CreateTimeout <= 0 {
		c.CreateTimeout = 15 * time.Second
	}
	if c.StatusTimeout <= 0 {
		c.StatusTimeout = 10 * time.Second
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	return c
}

func (c Config) cacheKey() string {
	return c.Environment + ":" + c.ClientID + ":" + c.ClientVersion
}

// PaymentRequest describes a checkout session to create.
type PaymentRequest struct {
	MerchantOrderID  string
	AmountMinorUnits int64
	RedirectURL      string
	Metadata         map[string]string
}

type PaymentSession struct {
	GatewayOrderID string
	State          State
	RedirectURL    string
	ExpiresAt      time.Time
}

type StatusOptions struct {
	IncludeDetails      bool
	IncludeErrorContext bool
}

type PaymentDetail struct {
	PaymentMode       string `json:"paymentMode,omitempty"`
	TransactionID     string `json:"transactionId,omitempty"`
	Timestamp         int64  `json:"timestamp,omitempty"`
	Amount            int64  `json:"amount,omitempty"`
	State             string `json:"state,omitempty"`
	ErrorCode         string `json:"errorCode,omitempty"`
	DetailedErrorCode string `json:"detailedErrorCode,omitempty"`
}

// OrderStatus is the gateway view of a merchant order.
type OrderStatus struct {
	OrderID           string            `json:"orderId"`
	State             State             `json:"state"`
	Amount            int64             `json:"amount"`
	ExpireAt          int64             `json:"expireAt,omitempty"`
	MetaInfo          map[string]string `json:"metaInfo,omitempty"`
	PaymentDetails    []PaymentDetail   `json:"paymentDetails,omitempty"`
	ErrorCode         string            `json:"errorCode,omitempty"`
	DetailedErrorCode string            `json:"detailedErrorCode,omitempty"`
}

// Client talks to the PhonePe Standard Checkout v2 API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *TokenCache
	retry      RetryPolicy
	tokenRetry RetryPolicy
	log        *zap.Logger
	metrics    *obsmetrics.HTTPMetrics
	tracer     trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTokenCache(cache *TokenCache) Option {
	return func(c *Client) { c.tokens = cache }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
		c.tokenRetry = p.WithMaxRetries(min(p.MaxRetries, 1))
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithMetrics(m *obsmetrics.HTTPMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(cfg Config, opts ...Option) *Client {
	retry := DefaultRetryPolicy()
	c := &Client{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{},
		retry:      retry,
		tokenRetry: retry.WithMaxRetries(1),
		log:        zap.NewNop(),
		tracer:     otel.Tracer("racepay/gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		c.tokens = NewTokenCache(nil, nil)
	}
	if c.retry.Notify == nil {
		c.retry.Notify = c.logRetry
		c.tokenRetry.Notify = c.logRetry
	}
	return c
}

func (c *Client) Environment() string {
	return c.cfg.Environment
}

// AccessToken returns a cached token or exchanges client credentials for a new one.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	key := c.cfg.cacheKey()
	if tok, ok := c.tokens.Get(ctx, key); ok {
		return tok, nil
	}

	return Retry(ctx, c.tokenRetry, func(ctx context.Context) (string, error) {
		tok, err := c.fetchToken(ctx)
		if err != nil {
			return "", err
		}
		c.tokens.Set(ctx, key, tok)
		return tok.AccessToken, nil
	})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	TokenType   string `json:"token_type"`
}

func (c *Client) fetchToken(ctx context.Context) (tok Token, err error) {
	ctx, finish := c.begin(ctx, OpAuth)
	defer func() { finish(err) }()

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_version", c.cfg.ClientVersion)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", "client_credentials")

	var body tokenResponse
	status, raw, err := c.do(ctx, OpAuth, c.cfg.AuthTimeout, http.MethodPost, c.cfg.AuthURL,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", "", &body)
	if err != nil {
		return Token{}, err
	}
	if status < 200 || status >= 300 {
		return Token{}, &AuthError{Status: status, Message: errorMessage(raw, "failed to generate access token")}
	}
	if body.AccessToken == "" {
		return Token{}, &AuthError{Status: status, Message: "empty access token"}
	}

	tok = Token{AccessToken: body.AccessToken, ExpiresAt: time.Unix(body.ExpiresAt, 0).UTC()}
	c.log.Info("gateway access token issued", zap.Time("expires_at", tok.ExpiresAt))
	return tok, nil
}

type createPaymentBody struct {
	MerchantOrderID string            `json:"merchantOrderId"`
	Amount          int64             `json:"amount"`
	ExpireAfter     int               `json:"expireAfter"`
	MetaInfo        map[string]string `json:"metaInfo"`
	PaymentFlow     paymentFlow       `json:"paymentFlow"`
}

type paymentFlow struct {
	Type         string       `json:"type"`
	Message      string       `json:"message"`
	MerchantUrls merchantUrls `json:"merchantUrls"`
}

type merchantUrls struct {
	RedirectURL string `json:"redirectUrl"`
}

type createPaymentResponse struct {
	OrderID     string `json:"orderId"`
	State       State  `json:"state"`
	ExpireAt    int64  `json:"expireAt"`
	RedirectURL string `json:"redirectUrl"`
}

// CreatePayment opens a checkout session keyed by the merchant order id.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentSession, error) {
	if req.MerchantOrderID == "" || req.AmountMinorUnits <= 0 {
		return PaymentSession{}, ErrInvalidConfig
	}
	payload, err := json.Marshal(createPaymentBody{
		MerchantOrderID: req.MerchantOrderID,
		Amount:          req.AmountMinorUnits,
		ExpireAfter:     checkoutExpireAfterSeconds,
		MetaInfo:        truncateMeta(req.Metadata),
		PaymentFlow: paymentFlow{
			Type:         "PG_CHECKOUT",
			Message:      "Payment for event registration",
			MerchantUrls: merchantUrls{RedirectURL: req.RedirectURL},
		},
	})
	if err != nil {
		return PaymentSession{}, err
	}

	return Retry(ctx, c.retry, func(ctx context.Context) (session PaymentSession, err error) {
		token, err := c.AccessToken(ctx)
		if err != nil {
			return PaymentSession{}, err
		}

		ctx, finish := c.begin(ctx, OpCreate)
		defer func() { finish(err) }()

		var body createPaymentResponse
		status, raw, err := c.do(ctx, OpCreate, c.cfg.CreateTimeout, http.MethodPost, c.cfg.APIBaseURL+"/checkout/v2/pay",
			bytes.NewReader(payload), "application/json", token, &body)
		if err != nil {
			return PaymentSession{}, err
		}
		if err := c.checkStatus(OpCreate, status, raw); err != nil {
			return PaymentSession{}, err
		}

		session = PaymentSession{
			GatewayOrderID: body.OrderID,
			State:          body.State,
			RedirectURL:    body.RedirectURL,
		}
		if body.ExpireAt > 0 {
			session.ExpiresAt = time.UnixMilli(body.ExpireAt).UTC()
		}
		return session, nil
	})
}

// OrderStatus fetches the current state of a merchant order.
func (c *Client) OrderStatus(ctx context.Context, merchantOrderID string, opts StatusOptions) (OrderStatus, error) {
	if merchantOrderID == "" {
		return OrderStatus{}, ErrInvalidConfig
	}
	query := url.Values{}
	query.Set("details", fmt.Sprint(opts.IncludeDetails))
	query.Set("errorContext", fmt.Sprint(opts.IncludeErrorContext))
	endpoint := c.cfg.APIBaseURL + "/checkout/v2/order/" + url.PathEscape(merchantOrderID) + "/status?" + query.Encode()

	return Retry(ctx, c.retry, func(ctx context.Context) (out OrderStatus, err error) {
		token, err := c.AccessToken(ctx)
		if err != nil {
			return OrderStatus{}, err
		}

		ctx, finish := c.begin(ctx, OpStatus)
		defer func() { finish(err) }()

		status, raw, err := c.do(ctx, OpStatus, c.cfg.StatusTimeout, http.MethodGet, endpoint, nil, "", token, &out)
		if err != nil {
			return OrderStatus{}, err
		}
		if err := c.checkStatus(OpStatus, status, raw); err != nil {
			return OrderStatus{}, err
		}
		return out, nil
	})
}

func (c *Client) checkStatus(op string, status int, raw []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate(c.cfg.cacheKey())
		return &AuthError{Status: status, Message: errorMessage(raw, "unauthorized")}
	}
	apiErr := &APIError{Op: op, Status: status, Code: errorCode(raw), Message: errorMessage(raw, fmt.Sprintf("%s failed: %d", op, status))}
	if op == OpStatus && status == http.StatusInternalServerError && c.cfg.Environment == config.GatewaySandbox {
		apiErr.Message = sandboxUnavailableMessage
	}
	return apiErr
}

// do issues one request bounded by timeout and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, op string, timeout time.Duration, method, endpoint string, body io.Reader, contentType, token string, out any) (int, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	} else {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "O-Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, classifyTransportError(ctx, callCtx, op, timeout, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, classifyTransportError(ctx, callCtx, op, timeout, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, raw, &APIError{Op: op, Status: resp.StatusCode, Message: "invalid gateway response"}
		}
	}
	return resp.StatusCode, raw, nil
}

func classifyTransportError(parent, callCtx context.Context, op string, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, After: timeout, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &TimeoutError{Op: op, After: timeout, Err: err}
	}
	return err
}

func (c *Client) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "phonepe."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("gateway.environment", c.cfg.Environment))
	return ctx, func(err error) {
		outcome := outcomeOf(err)
		c.metrics.ObserveGatewayCall(op, outcome, time.Since(start))
		span.SetAttributes(attribute.String("gateway.outcome", outcome))
		if err != nil {
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsTimeout(err):
		return "timeout"
	case IsAuth(err):
		return "auth_error"
	default:
		if _, ok := AsAPIError(err); ok {
			return "api_error"
		}
		return "network_error"
	}
}

func (c *Client) logRetry(err error, next time.Duration) {
	c.log.Warn("gateway call failed, retrying",
		zap.String("error_type", outcomeOf(err)),
		zap.Duration("retry_in", next),
		zap.Error(err),
	)
}

type gatewayErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorMessage(raw []byte, fallback string) string {
	var body gatewayErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && strings.TrimSpace(body.Message) != "" {
		return strings.TrimSpace(body.Message)
	}
	return fallback
}

func errorCode(raw []byte) string {
	var body gatewayErrorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		return strings.TrimSpace(body.Code)
	}
	return ""
}

func truncateMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		if len(v) > metaInfoMaxLen {
			v = v[:metaInfoMaxLen]
		}
		out[k] = v
	}
	return out
}
