package server

import (
	"net/http"

	"github.com/commercekit/paystack-gateway/internal/paystack"
	"github.com/gin-gonic/gin"
)

// HandleGatewayMeta describes the gateway to consuming storefronts.
func (s *Server) HandleGatewayMeta(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"title": "Paystack",
		"slug":  "paystack",
		"mode":  s.cfg.Mode,
		"supported_features": []string{
			"payments",
			"refunds",
			"subscriptions",
			"webhooks",
		},
		"supported_currencies": paystack.SupportedCurrencies(),
		"webhook_path":         "/webhooks/paystack",
		"public_key":           s.cfg.Paystack.PublicKey(s.cfg.Mode),
	})
}
