package server

import (
	"errors"
	"net/http"
	"strings"

	orderdomain "github.com/commercekit/paystack-gateway/internal/order/domain"
	paymentdomain "github.com/commercekit/paystack-gateway/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

type checkoutRequest struct {
	OrderUUID       string `json:"order_uuid"`
	TransactionUUID string `json:"transaction_uuid"`
}

// HandleCheckout initiates a Paystack checkout session for a pending
// transaction. Orders with a subscription attached go through the
// plan-backed subscription flow.
func (s *Server) HandleCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	req.OrderUUID = strings.TrimSpace(req.OrderUUID)
	req.TransactionUUID = strings.TrimSpace(req.TransactionUUID)
	if req.OrderUUID == "" || req.TransactionUUID == "" {
		AbortWithError(c, newValidationError("request", "missing_identifiers", "order_uuid and transaction_uuid are required"))
		return
	}

	ctx := c.Request.Context()
	order, err := s.orders.FindOrderByUUID(ctx, s.db, req.OrderUUID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order == nil {
		AbortWithError(c, orderdomain.ErrOrderNotFound)
		return
	}

	tx, err := s.orders.FindTransactionByUUID(ctx, s.db, req.TransactionUUID, paymentdomain.PaymentMethod)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tx == nil || tx.OrderID != order.ID {
		AbortWithError(c, orderdomain.ErrTransactionNotFound)
		return
	}

	sub, err := s.subs.FindByParentOrderID(ctx, s.db, order.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if sub != nil {
		session, err := s.checkoutSvc.Subscription(ctx, order, tx, sub)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, session)
		return
	}

	session, err := s.checkoutSvc.OneTime(ctx, order, tx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// HandleConfirmPayment is the browser return leg of checkout: the
// storefront passes the processor transaction id and the checkout nonce,
// and the charge is verified remotely before any local mutation.
func (s *Server) HandleConfirmPayment(c *gin.Context) {
	trxID := strings.TrimSpace(c.Query("trx_id"))
	if trxID == "" {
		trxID = strings.TrimSpace(c.PostForm("trx_id"))
	}
	nonce := strings.TrimSpace(c.Query("nonce"))
	if nonce == "" {
		nonce = strings.TrimSpace(c.PostForm("nonce"))
	}
	if trxID == "" || nonce == "" {
		AbortWithError(c, newValidationError("request", "missing_parameters", "trx_id and nonce are required"))
		return
	}

	order, err := s.confirmSvc.ConfirmByChargeID(c.Request.Context(), trxID)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrChargeNotSuccessful) {
			c.JSON(http.StatusOK, gin.H{
				"redirect_url": s.receiptURL(order.UUID),
				"order":        gin.H{"uuid": order.UUID},
				"message":      "Payment was not successful",
				"status":       "failed",
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"redirect_url": s.receiptURL(order.UUID),
		"order":        gin.H{"uuid": order.UUID},
		"message":      "Payment confirmed",
		"status":       "success",
	})
}

// HandleReceiptCheck is a safety net for customers landing on the receipt
// page before the webhook arrived: any pending charge that already has a
// processor id is re-verified and confirmed.
func (s *Server) HandleReceiptCheck(c *gin.Context) {
	orderHash := strings.TrimSpace(c.Param("orderHash"))

	ctx := c.Request.Context()
	order, err := s.orders.FindOrderByUUID(ctx, s.db, orderHash)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if order == nil {
		AbortWithError(c, orderdomain.ErrOrderNotFound)
		return
	}

	confirmed := false
	txs, err := s.orders.ListTransactionsByOrder(ctx, s.db, order.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	for i := range txs {
		tx := &txs[i]
		if tx.Type != orderdomain.TransactionTypeCharge ||
			tx.Status != orderdomain.TransactionStatusPending ||
			tx.PaymentMethod != paymentdomain.PaymentMethod ||
			tx.VendorChargeID == "" {
			continue
		}
		if _, err := s.confirmSvc.ConfirmByChargeID(ctx, tx.VendorChargeID); err != nil {
			if errors.Is(err, paymentdomain.ErrChargeNotSuccessful) {
				continue
			}
			AbortWithError(c, err)
			return
		}
		confirmed = true
	}

	if confirmed {
		order, err = s.orders.FindOrderByUUID(ctx, s.db, orderHash)
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"order": gin.H{
			"uuid":   order.UUID,
			"status": order.Status,
		},
		"confirmed": confirmed,
	})
}

type refundRequest struct {
	TransactionUUID string `json:"transaction_uuid"`
	Amount          int64  `json:"amount"`
	Reason          string `json:"reason"`
}

// HandleCreateRefund issues a merchant-initiated refund against a settled
// charge.
func (s *Server) HandleCreateRefund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	ctx := c.Request.Context()
	tx, err := s.orders.FindTransactionByUUID(ctx, s.db, strings.TrimSpace(req.TransactionUUID), paymentdomain.PaymentMethod)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tx == nil || tx.Type != orderdomain.TransactionTypeCharge {
		AbortWithError(c, orderdomain.ErrTransactionNotFound)
		return
	}
	if !tx.Succeeded() {
		AbortWithError(c, newValidationError("transaction", "not_succeeded", "only succeeded charges can be refunded"))
		return
	}

	row, err := s.refundSvc.CreateMerchantRefund(ctx, tx, req.Amount, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"refund": gin.H{
			"uuid":     row.UUID,
			"amount":   row.Total,
			"currency": row.Currency,
		},
	})
}

func (s *Server) receiptURL(orderHash string) string {
	return strings.TrimRight(s.cfg.ReceiptBaseURL, "/") + "/" + orderHash
}
