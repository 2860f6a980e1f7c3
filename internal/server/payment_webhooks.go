package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	paymentdomain "github.com/commercekit/paystack-gateway/internal/payment/domain"
	"github.com/commercekit/paystack-gateway/internal/paystack"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// webhookRateLimit caps per-source delivery rates when the Redis limiter is
// configured. Limiter errors admit the request; a Redis outage must not drop
// payment webhooks.
func (s *Server) webhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		result, err := s.limiter.AllowSource(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("webhook rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "Too many requests"})
			return
		}
		c.Next()
	}
}

// HandlePaystackWebhook accepts Paystack deliveries. Responses carry the
// exact status the delivery stage produced: 400 for malformed payloads, 401
// for bad signatures, 404 when no local order matches, 200 otherwise.
func (s *Server) HandlePaystackWebhook(c *gin.Context) {
	reader := http.MaxBytesReader(c.Writer, c.Request.Body, paymentdomain.MaxWebhookPayload+1)
	payload, err := io.ReadAll(reader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Payload too large"})
		return
	}

	signature := c.GetHeader(paystack.SignatureHeader)
	message, err := s.dispatcher.Dispatch(c.Request.Context(), payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, paymentdomain.ErrEmptyPayload),
			errors.Is(err, paymentdomain.ErrInvalidPayload):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid payload"})
		case errors.Is(err, paymentdomain.ErrPayloadTooLarge):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Payload too large"})
		case errors.Is(err, paystack.ErrInvalidSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid signature"})
		case errors.Is(err, paymentdomain.ErrOrderNotResolved),
			errors.Is(err, paymentdomain.ErrTransactionNotResolved):
			c.JSON(http.StatusNotFound, gin.H{"message": "Order not found"})
		default:
			AbortWithError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message})
}
