package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/commercekit/paystack-gateway/internal/subscription/domain"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions WHERE id = ? LIMIT 1`, id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByUUID(ctx context.Context, db *gorm.DB, uuid string) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions WHERE uuid = ? LIMIT 1`, uuid,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByParentOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions WHERE parent_order_id = ? LIMIT 1`, orderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByVendorSubscriptionID(ctx context.Context, db *gorm.DB, code string) (*domain.Subscription, error) {
	if code == "" {
		return nil, nil
	}
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions WHERE vendor_subscription_id = ? LIMIT 1`, code,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByEmailToken(ctx context.Context, db *gorm.DB, token string) (*domain.Subscription, error) {
	if token == "" {
		return nil, nil
	}

	// The meta bag is stored as JSON text; a LIKE prefilter narrows the
	// candidates portably across dialects, then the token is re-checked on
	// the decoded map.
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions WHERE meta LIKE ?`,
		"%"+token+"%",
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	for i := range items {
		if cast.ToString(items[i].Meta[domain.MetaEmailToken]) == token {
			return &items[i], nil
		}
	}
	return nil, nil
}

func (r *repo) ListDueForResync(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]domain.Subscription, error) {
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions
		 WHERE vendor_subscription_id != ''
		   AND status IN (?, ?, ?)
		   AND next_billing_date IS NOT NULL
		   AND next_billing_date <= ?
		 ORDER BY next_billing_date ASC
		 LIMIT ?`,
		domain.SubscriptionStatusActive,
		domain.SubscriptionStatusTrialing,
		domain.SubscriptionStatusPastDue,
		before, limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(sub).Error
}

func (r *repo) UpdateMeta(ctx context.Context, db *gorm.DB, id snowflake.ID, key string, value any) error {
	sub, err := r.Find(ctx, db, id)
	if err != nil {
		return err
	}
	if sub == nil {
		return domain.ErrSubscriptionNotFound
	}
	if sub.Meta == nil {
		sub.Meta = map[string]any{}
	}
	sub.Meta[key] = value
	return r.Update(ctx, db, sub)
}
