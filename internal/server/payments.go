package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/racepay/internal/payment/domain"
)

const (
	initiateFailureMessage = "Failed to initiate payment. Please try again."
	statusFailureMessage   = "Failed to check payment status. Please try again."
)

const orderIDKey = "merchant_order_id"

func (s *Server) InitiatePayment(c *gin.Context) {
	var req paymentdomain.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.paymentSvc.Initiate(c.Request.Context(), req)
	if resp.MerchantOrderID != "" {
		c.Set(orderIDKey, resp.MerchantOrderID)
	}
	if err != nil {
		AbortWithError(c, gatewayFailure(ErrorTypePaymentAPI, initiateFailureMessage, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": resp})
}

func (s *Server) PaymentWebhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req paymentdomain.WebhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Raw = raw
	req.Authorization = c.GetHeader("Authorization")
	c.Set(orderIDKey, strings.TrimSpace(req.Payload.MerchantOrderID))

	if _, err := s.paymentSvc.HandleWebhook(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) CheckStatus(c *gin.Context) {
	orderID := strings.TrimSpace(c.Query("orderId"))
	c.Set(orderIDKey, orderID)

	status, err := s.paymentSvc.CheckStatus(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, gatewayFailure(ErrorTypeStatusCheck, statusFailureMessage, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": status})
}

type verifyRequest struct {
	MerchantOrderID string `json:"merchantOrderId"`
}

func (s *Server) VerifyPayment(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	c.Set(orderIDKey, strings.TrimSpace(req.MerchantOrderID))

	result, err := s.paymentSvc.Verify(c.Request.Context(), req.MerchantOrderID)
	if err != nil {
		AbortWithError(c, gatewayFailure(ErrorTypeStatusCheck, statusFailureMessage, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"verified":     result.Verified,
		"state":        result.State,
		"transaction":  result.Transaction,
		"registration": result.Registration,
	})
}
