package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/racepay/internal/contact"
	"github.com/smallbiznis/racepay/internal/gateway"
	paymentdomain "github.com/smallbiznis/racepay/internal/payment/domain"
)

const (
	ErrorTypeValidation   = "VALIDATION_ERROR"
	ErrorTypeUnauthorized = "UNAUTHORIZED"
	ErrorTypeNotFound     = "NOT_FOUND"
	ErrorTypeTimeout      = "TIMEOUT"
	ErrorTypePaymentAPI   = "PAYMENT_API_ERROR"
	ErrorTypeStatusCheck  = "STATUS_CHECK_ERROR"
	ErrorTypeInternal     = "INTERNAL_ERROR"
)

var ErrInvalidRequest = errors.New("invalid_request")

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
}

// operationError tags an error with the errorType reported when it is not
// otherwise classified, so gateway failures on initiate and status checks can
// be told apart by the client.
type operationError struct {
	errorType string
	message   string
	err       error
}

func (e *operationError) Error() string { return e.err.Error() }
func (e *operationError) Unwrap() error { return e.err }

func gatewayFailure(errorType, message string, err error) error {
	if err == nil {
		return nil
	}
	return &operationError{errorType: errorType, message: message, err: err}
}

func ErrorHandlingMiddleware(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err, production)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error, production bool) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{Error: "Internal server error", ErrorType: ErrorTypeInternal}
	}

	if message, ok := validationMessage(err); ok {
		return http.StatusBadRequest, errorResponse{Error: message, ErrorType: ErrorTypeValidation}
	}

	switch {
	case errors.Is(err, paymentdomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: "Unauthorized", ErrorType: ErrorTypeUnauthorized}
	case errors.Is(err, paymentdomain.ErrOrderNotFound):
		return http.StatusNotFound, errorResponse{Error: "Order not found", ErrorType: ErrorTypeNotFound}
	case gateway.IsTimeout(err):
		return http.StatusGatewayTimeout, errorResponse{
			Error:     "Payment gateway did not respond in time. Please try again.",
			ErrorType: ErrorTypeTimeout,
		}
	}

	var opErr *operationError
	if errors.As(err, &opErr) {
		message := opErr.message
		if apiErr, ok := gateway.AsAPIError(err); ok && !production && apiErr.Message != "" {
			message = apiErr.Message
		}
		return http.StatusInternalServerError, errorResponse{Error: message, ErrorType: opErr.errorType}
	}

	return http.StatusInternalServerError, errorResponse{Error: "Internal server error", ErrorType: ErrorTypeInternal}
}

func validationMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "Invalid request body", true
	case errors.Is(err, paymentdomain.ErrMissingFields):
		return "Missing required fields: name, email, phone", true
	case errors.Is(err, paymentdomain.ErrInvalidAmount):
		return "Invalid amount", true
	case errors.Is(err, paymentdomain.ErrMissingOrderID):
		return "Order ID required", true
	case errors.Is(err, paymentdomain.ErrInvalidState):
		return "Invalid payment state", true
	case errors.Is(err, contact.ErrMissingFields):
		return "Missing required fields: name, email, message", true
	case errors.Is(err, contact.ErrInvalidEmail):
		return "Invalid email address", true
	default:
		return "", false
	}
}

// classifyErrorForLog feeds the request logger the same taxonomy clients see.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err, true)
	return payload.ErrorType, http.StatusText(status)
}
