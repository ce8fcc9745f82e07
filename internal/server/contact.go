package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/racepay/internal/contact"
)

func (s *Server) SubmitContact(c *gin.Context) {
	var req contact.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.contactSvc.Submit(c.Request.Context(), req); err != nil {
		if _, ok := validationMessage(err); ok {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to send message. Please try again later.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Your message has been sent successfully. We will get back to you soon!",
	})
}
