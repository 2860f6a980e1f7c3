// Package domain contains persistence models for recurring-billing
// subscriptions.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusTrialing  SubscriptionStatus = "trialing"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled  SubscriptionStatus = "canceled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCompleted SubscriptionStatus = "completed"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	// SubscriptionStatusUnknown is the fail-closed mapping for remote status
	// codes we do not recognize. A subscription is never activated on an
	// unmapped status.
	SubscriptionStatusUnknown SubscriptionStatus = "unknown"
)

// Activated reports whether the status counts as an activated subscription.
func (s SubscriptionStatus) Activated() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// FromRemoteStatus maps Paystack's subscription status vocabulary onto the
// local enum. Unknown codes map to SubscriptionStatusUnknown; callers log
// those rather than silently activating.
func FromRemoteStatus(remote string) SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(remote)) {
	case "active":
		return SubscriptionStatusActive
	case "non-renewing":
		return SubscriptionStatusActive
	case "inactive", "complete", "completed":
		return SubscriptionStatusExpired
	case "cancelled", "canceled":
		return SubscriptionStatusCanceled
	case "paused":
		return SubscriptionStatusPaused
	case "attention":
		return SubscriptionStatusPastDue
	default:
		return SubscriptionStatusUnknown
	}
}

// Meta keys stored on Subscription.Meta.
const (
	MetaActivePaymentMethod = "active_payment_method"
	MetaEmailToken          = "paystack_email_token"
	MetaCustomerCode        = "customer_code"
	MetaAuthorizationCode   = "authorization_code"
)

// Subscription captures a recurring billing agreement rooted at a parent
// order. Vendor fields hold the processor-side identifiers.
type Subscription struct {
	ID                   snowflake.ID       `gorm:"primaryKey"`
	UUID                 string             `gorm:"type:text;not null;uniqueIndex"`
	ParentOrderID        snowflake.ID       `gorm:"not null;index"`
	CustomerID           snowflake.ID       `gorm:"not null;index"`
	ItemName             string             `gorm:"type:text"`
	Status               SubscriptionStatus `gorm:"type:text;not null"`
	BillingInterval      string             `gorm:"type:text;not null"`
	RecurringTotal       int64              `gorm:"not null"`
	BillTimes            int                `gorm:"not null;default:0"`
	TrialDays            int                `gorm:"not null;default:0"`
	VendorPlanID         string             `gorm:"type:text;index"`
	VendorSubscriptionID string             `gorm:"type:text;index"`
	VendorCustomerID     string             `gorm:"type:text;index"`
	CurrentPaymentMethod string             `gorm:"type:text"`
	NextBillingDate      *time.Time         `gorm:""`
	CanceledAt           *time.Time         `gorm:""`
	Meta                 datatypes.JSONMap  `gorm:"type:jsonb"`
	CreatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string { return "subscriptions" }
