package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrMissingEmailToken    = errors.New("subscription_missing_email_token")
	ErrNotPaystack          = errors.New("subscription_not_paystack")
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByUUID(ctx context.Context, db *gorm.DB, uuid string) (*Subscription, error)
	FindByParentOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Subscription, error)
	FindByVendorSubscriptionID(ctx context.Context, db *gorm.DB, code string) (*Subscription, error)
	// FindByEmailToken resolves a subscription via the processor email token
	// stored in its meta bag. Used as the last webhook order-resolution
	// fallback.
	FindByEmailToken(ctx context.Context, db *gorm.DB, token string) (*Subscription, error)
	// ListDueForResync returns Paystack subscriptions whose next billing
	// date has passed without a recorded renewal, oldest first.
	ListDueForResync(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]Subscription, error)
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error
	UpdateMeta(ctx context.Context, db *gorm.DB, id snowflake.ID, key string, value any) error
}
