package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/commercekit/paystack-gateway/internal/order/domain"
	"github.com/commercekit/paystack-gateway/internal/order/repository"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const orderSchema = `
CREATE TABLE IF NOT EXISTS orders (
	id BIGINT PRIMARY KEY,
	uuid TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	parent_id BIGINT,
	customer_id BIGINT NOT NULL,
	customer_email TEXT NOT NULL,
	customer_name TEXT,
	product_id BIGINT,
	variation_id BIGINT,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,
	currency TEXT NOT NULL,
	total BIGINT NOT NULL,
	created_at TIMESTAMP,
	updated_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS order_transactions (
	id BIGINT PRIMARY KEY,
	uuid TEXT NOT NULL UNIQUE,
	order_id BIGINT NOT NULL,
	subscription_id BIGINT,
	transaction_type TEXT NOT NULL,
	status TEXT NOT NULL,
	payment_method TEXT NOT NULL,
	payment_method_type TEXT,
	total BIGINT NOT NULL,
	refunded_total BIGINT NOT NULL DEFAULT 0,
	currency TEXT NOT NULL,
	card_last_4 TEXT,
	card_brand TEXT,
	vendor_charge_id TEXT,
	reference TEXT,
	meta TEXT,
	created_at TIMESTAMP,
	updated_at TIMESTAMP
);
`

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name                  string
		total, paid, refunded int64
		want                  domain.OrderStatus
	}{
		{"nothing settled", 10000, 0, 0, domain.OrderStatusPending},
		{"partial payment", 10000, 4000, 0, domain.OrderStatusPartiallyPaid},
		{"fully paid", 10000, 10000, 0, domain.OrderStatusPaid},
		{"overpaid still paid", 10000, 12000, 0, domain.OrderStatusPaid},
		{"partial refund", 10000, 10000, 4000, domain.OrderStatusPartiallyRefunded},
		{"full refund", 10000, 10000, 10000, domain.OrderStatusRefunded},
		{"refund exceeds paid", 10000, 10000, 12000, domain.OrderStatusRefunded},
		{"zero total unpaid", 0, 0, 0, domain.OrderStatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, deriveStatus(tc.total, tc.paid, tc.refunded))
		})
	}
}

func TestSyncOrderStatuses(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(orderSchema).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	repo := repository.Provide()
	svc := NewService(Params{DB: db, Log: zaptest.NewLogger(t), Repo: repo})
	ctx := context.Background()

	order := &domain.Order{
		ID:            node.Generate(),
		UUID:          uuid.NewString(),
		Type:          domain.OrderTypeNormal,
		CustomerID:    node.Generate(),
		CustomerEmail: "buyer@example.test",
		Mode:          "test",
		Status:        domain.OrderStatusPending,
		Currency:      "NGN",
		Total:         10000,
	}
	require.NoError(t, db.Create(order).Error)

	addTx := func(txType domain.TransactionType, status domain.TransactionStatus, total int64) {
		require.NoError(t, repo.CreateTransaction(ctx, db, &domain.Transaction{
			ID:            node.Generate(),
			UUID:          uuid.NewString(),
			OrderID:       order.ID,
			Type:          txType,
			Status:        status,
			PaymentMethod: "paystack",
			Total:         total,
			Currency:      "NGN",
		}))
	}

	status := func() domain.OrderStatus {
		stored, err := repo.FindOrder(ctx, db, order.ID)
		require.NoError(t, err)
		return stored.Status
	}

	// A pending charge settles nothing.
	addTx(domain.TransactionTypeCharge, domain.TransactionStatusPending, 10000)
	require.NoError(t, svc.SyncOrderStatuses(ctx, order.ID))
	assert.Equal(t, domain.OrderStatusPending, status())

	addTx(domain.TransactionTypeCharge, domain.TransactionStatusSucceeded, 10000)
	require.NoError(t, svc.SyncOrderStatuses(ctx, order.ID))
	assert.Equal(t, domain.OrderStatusPaid, status())

	addTx(domain.TransactionTypeRefund, domain.TransactionStatusSucceeded, 4000)
	require.NoError(t, svc.SyncOrderStatuses(ctx, order.ID))
	assert.Equal(t, domain.OrderStatusPartiallyRefunded, status())

	addTx(domain.TransactionTypeRefund, domain.TransactionStatusSucceeded, 6000)
	require.NoError(t, svc.SyncOrderStatuses(ctx, order.ID))
	assert.Equal(t, domain.OrderStatusRefunded, status())
}

func TestSyncOrderStatusesMissingOrder(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(orderSchema).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := NewService(Params{DB: db, Log: zaptest.NewLogger(t), Repo: repository.Provide()})

	err = svc.SyncOrderStatuses(context.Background(), node.Generate())
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
