package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/commercekit/paystack-gateway/internal/order/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM orders WHERE id = ? LIMIT 1`, id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindOrderByUUID(ctx context.Context, db *gorm.DB, uuid string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM orders WHERE uuid = ? LIMIT 1`, uuid,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateOrderStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.OrderStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	).Error
}

func (r *repo) FindTransaction(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM order_transactions WHERE id = ? LIMIT 1`, id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindTransactionByUUID(ctx context.Context, db *gorm.DB, uuid string, paymentMethod string) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM order_transactions
		 WHERE uuid = ? AND payment_method = ?
		 LIMIT 1`,
		uuid, paymentMethod,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindTransactionByVendorChargeID(ctx context.Context, db *gorm.DB, vendorChargeID string) (*domain.Transaction, error) {
	if vendorChargeID == "" {
		return nil, nil
	}
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM order_transactions WHERE vendor_charge_id = ? LIMIT 1`,
		vendorChargeID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindPendingPlaceholder(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*domain.Transaction, error) {
	var item domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM order_transactions
		 WHERE subscription_id = ?
		   AND (vendor_charge_id = '' OR vendor_charge_id IS NULL)
		   AND transaction_type = ?
		 ORDER BY id ASC
		 LIMIT 1`,
		subscriptionID, domain.TransactionTypeCharge,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListTransactionsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM order_transactions WHERE order_id = ? ORDER BY id ASC`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListRefundsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM order_transactions
		 WHERE order_id = ? AND transaction_type = ?
		 ORDER BY id DESC`,
		orderID, domain.TransactionTypeRefund,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CreateTransaction(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	return db.WithContext(ctx).Create(tx).Error
}

func (r *repo) UpdateTransaction(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	tx.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(tx).Error
}

func (r *repo) MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.SucceededUpdate) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE order_transactions
		 SET status = ?,
		     total = ?,
		     currency = ?,
		     card_last_4 = ?,
		     card_brand = ?,
		     payment_method_type = ?,
		     vendor_charge_id = ?,
		     reference = ?,
		     meta = ?,
		     updated_at = ?
		 WHERE id = ? AND status != ?`,
		domain.TransactionStatusSucceeded,
		update.Total,
		update.Currency,
		update.CardLast4,
		update.CardBrand,
		update.PaymentMethodType,
		update.VendorChargeID,
		update.Reference,
		datatypes.JSONMap(update.Meta),
		time.Now().UTC(),
		id,
		domain.TransactionStatusSucceeded,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AddRefundedTotal(ctx context.Context, db *gorm.DB, id snowflake.ID, amount int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE order_transactions
		 SET refunded_total = refunded_total + ?,
		     updated_at = ?
		 WHERE id = ?`,
		amount, time.Now().UTC(), id,
	).Error
}
