package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound       = errors.New("order_not_found")
	ErrTransactionNotFound = errors.New("transaction_not_found")
)

// SucceededUpdate is the set of fields written when a pending transaction is
// confirmed. Applied with a conditional write guarded by
// "status != succeeded" so concurrent confirmation paths collapse to one
// mutation.
type SucceededUpdate struct {
	Total             int64
	Currency          string
	CardLast4         string
	CardBrand         string
	PaymentMethodType string
	VendorChargeID    string
	Reference         string
	Meta              map[string]any
}

type Repository interface {
	FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindOrderByUUID(ctx context.Context, db *gorm.DB, uuid string) (*Order, error)
	UpdateOrderStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status OrderStatus) error

	FindTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	FindTransactionByUUID(ctx context.Context, db *gorm.DB, uuid string, paymentMethod string) (*Transaction, error)
	FindTransactionByVendorChargeID(ctx context.Context, db *gorm.DB, vendorChargeID string) (*Transaction, error)
	// FindPendingPlaceholder returns the pending charge transaction created
	// at checkout for a subscription that has not yet been attributed a
	// processor charge.
	FindPendingPlaceholder(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*Transaction, error)
	ListTransactionsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Transaction, error)
	// ListRefundsByOrder returns refund-type transactions, newest first.
	ListRefundsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Transaction, error)

	CreateTransaction(ctx context.Context, db *gorm.DB, tx *Transaction) error
	UpdateTransaction(ctx context.Context, db *gorm.DB, tx *Transaction) error
	// MarkSucceeded performs the conditional confirmation write. It returns
	// false when the transaction was already succeeded and nothing changed.
	MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, update SucceededUpdate) (bool, error)
	AddRefundedTotal(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) error
}
