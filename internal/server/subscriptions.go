package server

import (
	"net/http"
	"strings"

	auditdomain "github.com/commercekit/paystack-gateway/internal/audit/domain"
	subdomain "github.com/commercekit/paystack-gateway/internal/subscription/domain"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// HandleCancelSubscription disables the subscription at Paystack using the
// email token issued at creation, then marks it canceled locally.
func (s *Server) HandleCancelSubscription(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := s.findSubscription(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if sub.VendorSubscriptionID == "" {
		AbortWithError(c, subdomain.ErrNotPaystack)
		return
	}
	token := cast.ToString(sub.Meta[subdomain.MetaEmailToken])
	if token == "" {
		AbortWithError(c, subdomain.ErrMissingEmailToken)
		return
	}

	if err := s.client.DisableSubscription(ctx, sub.VendorSubscriptionID, token); err != nil {
		AbortWithError(c, err)
		return
	}

	now := s.clock.Now()
	sub.Status = subdomain.SubscriptionStatusCanceled
	sub.CanceledAt = &now
	if err := s.subs.Update(ctx, s.db, sub); err != nil {
		AbortWithError(c, err)
		return
	}

	_ = s.auditSvc.RecordEvent(ctx, "Subscription canceled",
		"The subscription was disabled at Paystack.",
		auditdomain.LevelInfo,
		map[string]any{
			"module_name":       "subscription",
			"module_id":         sub.ID,
			"subscription_code": sub.VendorSubscriptionID,
		})

	c.JSON(http.StatusOK, gin.H{
		"subscription": gin.H{
			"uuid":   sub.UUID,
			"status": sub.Status,
		},
	})
}

// HandleResyncSubscription reconciles the subscription with Paystack on
// demand.
func (s *Server) HandleResyncSubscription(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := s.findSubscription(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.reconciler.Resync(ctx, sub); err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err = s.subs.Find(ctx, s.db, sub.ID)
	if err != nil || sub == nil {
		AbortWithError(c, subdomain.ErrSubscriptionNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription": gin.H{
			"uuid":              sub.UUID,
			"status":            sub.Status,
			"next_billing_date": sub.NextBillingDate,
		},
	})
}

func (s *Server) findSubscription(c *gin.Context) (*subdomain.Subscription, error) {
	uuid := strings.TrimSpace(c.Param("uuid"))
	if uuid == "" {
		return nil, newValidationError("uuid", "missing_uuid", "subscription uuid is required")
	}
	sub, err := s.subs.FindByUUID(c.Request.Context(), s.db, uuid)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, subdomain.ErrSubscriptionNotFound
	}
	return sub, nil
}
