// Package domain contains persistence models for orders and their payment
// transactions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OrderType distinguishes first purchases from billing-cycle renewals.
type OrderType string

const (
	OrderTypeNormal  OrderType = "normal"
	OrderTypeRenewal OrderType = "renewal"
)

// OrderStatus is the aggregate status derived from an order's transactions.
type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"
	OrderStatusPaid              OrderStatus = "paid"
	OrderStatusPartiallyPaid     OrderStatus = "partially_paid"
	OrderStatusRefunded          OrderStatus = "refunded"
	OrderStatusPartiallyRefunded OrderStatus = "partially_refunded"
)

// Order captures a purchase. UUID is the external-facing order hash carried
// in charge metadata.
type Order struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	UUID          string       `gorm:"type:text;not null;uniqueIndex"`
	Type          OrderType    `gorm:"type:text;not null"`
	ParentID      snowflake.ID `gorm:"index"`
	CustomerID    snowflake.ID `gorm:"not null;index"`
	CustomerEmail string       `gorm:"type:text;not null"`
	CustomerName  string       `gorm:"type:text"`
	ProductID     snowflake.ID `gorm:""`
	VariationID   snowflake.ID `gorm:""`
	Mode          string       `gorm:"type:text;not null"`
	Status        OrderStatus  `gorm:"type:text;not null"`
	Currency      string       `gorm:"type:text;not null"`
	Total         int64        `gorm:"not null"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Order) TableName() string { return "orders" }

// IsRenewal reports whether this order records a billing-cycle renewal of a
// parent order.
func (o *Order) IsRenewal() bool { return o.Type == OrderTypeRenewal }

// TransactionType separates charges from refunds; a refund is a Transaction
// row of type refund linked to its parent charge via Meta["parent_id"].
type TransactionType string

const (
	TransactionTypeCharge TransactionType = "charge"
	TransactionTypeRefund TransactionType = "refund"
)

// TransactionStatus is the payment-attempt lifecycle. A transaction moves to
// succeeded at most once; all confirmation paths check the current status
// first and no-op when already succeeded.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSucceeded TransactionStatus = "succeeded"
	TransactionStatusRefunded  TransactionStatus = "refunded"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is one payment attempt or settlement tied to an order. UUID is
// the external transaction hash; VendorChargeID is the processor's charge id
// and is authoritative once set. Amounts are integers in the currency's
// minor unit.
type Transaction struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	UUID              string            `gorm:"type:text;not null;uniqueIndex"`
	OrderID           snowflake.ID      `gorm:"not null;index"`
	SubscriptionID    snowflake.ID      `gorm:"index"`
	Type              TransactionType   `gorm:"column:transaction_type;type:text;not null"`
	Status            TransactionStatus `gorm:"type:text;not null"`
	PaymentMethod     string            `gorm:"type:text;not null"`
	PaymentMethodType string            `gorm:"type:text"`
	Total             int64             `gorm:"not null"`
	RefundedTotal     int64             `gorm:"not null;default:0"`
	Currency          string            `gorm:"type:text;not null"`
	CardLast4         string            `gorm:"column:card_last_4;type:text"`
	CardBrand         string            `gorm:"type:text"`
	VendorChargeID    string            `gorm:"type:text;index"`
	Reference         string            `gorm:"type:text;index"`
	Meta              datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Transaction) TableName() string { return "order_transactions" }

// Succeeded reports whether this transaction already completed; callers
// treat this as success-without-mutation.
func (t *Transaction) Succeeded() bool { return t.Status == TransactionStatusSucceeded }
