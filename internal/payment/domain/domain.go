// Package domain holds the shared vocabulary of the payment flows: sentinel
// errors, the checkout reference format, and the plan-code cache model.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentMethod is the method key stored on transactions handled by this
// gateway.
const PaymentMethod = "paystack"

var (
	ErrEmptyPayload     = errors.New("webhook_empty_payload")
	ErrPayloadTooLarge  = errors.New("webhook_payload_too_large")
	ErrInvalidPayload   = errors.New("webhook_invalid_payload")
	ErrOrderNotResolved = errors.New("webhook_order_not_resolved")

	ErrTransactionNotResolved = errors.New("transaction_not_resolved")
	ErrChargeNotSuccessful    = errors.New("charge_not_successful")

	ErrInvalidRefundAmount = errors.New("invalid_refund_amount")
	ErrRefundRejected      = errors.New("refund_rejected")
)

// MaxWebhookPayload caps the accepted webhook body size.
const MaxWebhookPayload = 1 << 20

// BuildReference renders the processor reference for a checkout attempt.
// The transaction hash before the first underscore is the stable resolution
// key; the timestamp suffix makes retried initializations unique.
func BuildReference(transactionHash string, now time.Time) string {
	return fmt.Sprintf("%s_%d", transactionHash, now.Unix())
}

// HashFromReference recovers the transaction hash from a reference. An
// empty or underscore-led reference yields "".
func HashFromReference(reference string) string {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return ""
	}
	if idx := strings.Index(reference, "_"); idx >= 0 {
		return reference[:idx]
	}
	return reference
}

// PlanCode caches the processor plan created for one pricing shape so
// identical subscriptions reuse the same remote plan.
type PlanCode struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Fingerprint string       `gorm:"type:text;not null;uniqueIndex"`
	Code        string       `gorm:"type:text;not null"`
	Mode        string       `gorm:"type:text;not null"`
	CreatedAt   time.Time    `gorm:"not null"`
}

func (PlanCode) TableName() string { return "plan_codes" }
