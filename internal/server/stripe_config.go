package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStripeConfig exposes the values a browser needs to load Stripe.js.
func (s *Server) GetStripeConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"publishable_key": s.cfg.Stripe.PublishableKey,
		"currency":        s.cfg.Stripe.Currency,
	})
}
