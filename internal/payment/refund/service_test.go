package refund

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditservice "github.com/commercekit/paystack-gateway/internal/audit/service"
	"github.com/commercekit/paystack-gateway/internal/clock"
	"github.com/commercekit/paystack-gateway/internal/events"
	orderdomain "github.com/commercekit/paystack-gateway/internal/order/domain"
	orderrepo "github.com/commercekit/paystack-gateway/internal/order/repository"
	orderservice "github.com/commercekit/paystack-gateway/internal/order/service"
	"github.com/commercekit/paystack-gateway/internal/payment/domain"
	"github.com/commercekit/paystack-gateway/internal/paystack"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const refundSchema = `
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
CREATE TABLE IF NOT EXISTS audit_logs (
	id BIGINT PRIMARY KEY,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	level TEXT NOT NULL,
	module_name TEXT,
	module_id BIGINT,
	context TEXT,
	created_at TIMESTAMP
);
`

type refundFixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	orders  orderdomain.Repository
	pub     *events.Publisher
	svc     *Service
	created int
}

func newRefundFixture(t *testing.T, remote http.Handler) *refundFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(refundSchema).Error)

	srv := httptest.NewServer(remote)
	t.Cleanup(srv.Close)

	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ordersRepo := orderrepo.Provide()
	pub := events.NewPublisher(log)

	svc := NewService(Params{
		DB:      db,
		Log:     log,
		Client:  paystack.NewClient(srv.URL, "sk_test_abc", log),
		Orders:  ordersRepo,
		OrderSv: orderservice.NewService(orderservice.Params{DB: db, Log: log, Repo: ordersRepo}),
		Audit:   auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node}),
		Events:  pub,
		Clock:   clock.NewSystemClock(),
		GenID:   node,
	})

	f := &refundFixture{db: db, node: node, orders: ordersRepo, pub: pub, svc: svc}
	pub.Subscribe(events.RefundCreated, func(ctx context.Context, ev events.Event) error {
		f.created++
		return nil
	})
	return f
}

func (f *refundFixture) seedChargedOrder(t *testing.T, total int64) (*orderdomain.Order, *orderdomain.Transaction) {
	t.Helper()
	ctx := context.Background()

	order := &orderdomain.Order{
		ID:            f.node.Generate(),
		UUID:          uuid.NewString(),
		Type:          orderdomain.OrderTypeNormal,
		CustomerID:    f.node.Generate(),
		CustomerEmail: "buyer@example.test",
		Mode:          "test",
		Status:        orderdomain.OrderStatusPaid,
		Currency:      "NGN",
		Total:         total,
	}
	require.NoError(t, f.db.Create(order).Error)

	tx := &orderdomain.Transaction{
		ID:             f.node.Generate(),
		UUID:           uuid.NewString(),
		OrderID:        order.ID,
		Type:           orderdomain.TransactionTypeCharge,
		Status:         orderdomain.TransactionStatusSucceeded,
		PaymentMethod:  domain.PaymentMethod,
		Total:          total,
		Currency:       "NGN",
		VendorChargeID: "9001",
	}
	require.NoError(t, f.orders.CreateTransaction(ctx, f.db, tx))
	return order, tx
}

func refundBackend(t *testing.T, status string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/refund", r.URL.Path)
		var req paystack.CreateRefundRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": true, "message": "ok",
			"data": map[string]any{"id": 777, "amount": req.Amount, "status": status},
		})
	})
}

func TestCreateMerchantRefundAmountBounds(t *testing.T) {
	f := newRefundFixture(t, refundBackend(t, "pending"))
	_, tx := f.seedChargedOrder(t, 10000)
	ctx := context.Background()

	for _, amount := range []int64{0, -5, 10001} {
		_, err := f.svc.CreateMerchantRefund(ctx, tx, amount, "requested_by_customer")
		assert.ErrorIs(t, err, domain.ErrInvalidRefundAmount)
	}

	created, err := f.svc.CreateMerchantRefund(ctx, tx, 4000, "requested_by_customer")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), created.Total)
	assert.Equal(t, "777", created.VendorChargeID)

	// The remaining refundable amount shrinks after a partial refund.
	parent, err := f.orders.FindTransaction(ctx, f.db, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), parent.RefundedTotal)

	_, err = f.svc.CreateMerchantRefund(ctx, parent, 6001, "duplicate")
	assert.ErrorIs(t, err, domain.ErrInvalidRefundAmount)
}

func TestCreateMerchantRefundRejectedStatus(t *testing.T) {
	f := newRefundFixture(t, refundBackend(t, "failed"))
	order, tx := f.seedChargedOrder(t, 10000)
	ctx := context.Background()

	_, err := f.svc.CreateMerchantRefund(ctx, tx, 5000, "fraudulent")
	assert.ErrorIs(t, err, domain.ErrRefundRejected)

	refunds, err := f.orders.ListRefundsByOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	assert.Empty(t, refunds)
	assert.Equal(t, 0, f.created)
}

func TestUpsertWebhookRefundDeduplicates(t *testing.T) {
	f := newRefundFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected remote call %s %s", r.Method, r.URL.Path)
	}))
	order, tx := f.seedChargedOrder(t, 10000)
	ctx := context.Background()

	data := WebhookRefund{
		VendorRefundID: "777",
		Amount:         3000,
		Currency:       "NGN",
		Status:         "processed",
		Note:           "Customer request",
	}
	require.NoError(t, f.svc.UpsertWebhookRefund(ctx, tx, data))
	require.NoError(t, f.svc.UpsertWebhookRefund(ctx, tx, data))

	refunds, err := f.orders.ListRefundsByOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(3000), refunds[0].Total)
	assert.Equal(t, 1, f.created)

	parent, err := f.orders.FindTransaction(ctx, f.db, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), parent.RefundedTotal)
}

func TestUpsertWebhookRefundAmountUpdate(t *testing.T) {
	f := newRefundFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	_, tx := f.seedChargedOrder(t, 10000)
	ctx := context.Background()

	require.NoError(t, f.svc.UpsertWebhookRefund(ctx, tx, WebhookRefund{
		VendorRefundID: "777", Amount: 3000, Currency: "NGN", Status: "processed",
	}))
	// Processor corrected the refund amount on a later delivery.
	require.NoError(t, f.svc.UpsertWebhookRefund(ctx, tx, WebhookRefund{
		VendorRefundID: "777", Amount: 4500, Currency: "NGN", Status: "processed",
	}))

	refunds, err := f.orders.ListRefundsByOrder(ctx, f.db, tx.OrderID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(4500), refunds[0].Total)

	parent, err := f.orders.FindTransaction(ctx, f.db, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), parent.RefundedTotal)
	// An amount correction is not a new refund.
	assert.Equal(t, 1, f.created)
}

func TestUpsertWebhookRefundClaimsLocalRefund(t *testing.T) {
	f := newRefundFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	order, tx := f.seedChargedOrder(t, 10000)
	ctx := context.Background()

	local := &orderdomain.Transaction{
		ID:            f.node.Generate(),
		UUID:          uuid.NewString(),
		OrderID:       order.ID,
		Type:          orderdomain.TransactionTypeRefund,
		Status:        orderdomain.TransactionStatusSucceeded,
		PaymentMethod: domain.PaymentMethod,
		Total:         2500,
		Currency:      "NGN",
		Meta:          datatypes.JSONMap{"parent_id": tx.ID.String()},
	}
	require.NoError(t, f.orders.CreateTransaction(ctx, f.db, local))

	require.NoError(t, f.svc.UpsertWebhookRefund(ctx, tx, WebhookRefund{
		VendorRefundID: "888", Amount: 2500, Currency: "NGN", Status: "processed",
	}))

	refunds, err := f.orders.ListRefundsByOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, "888", refunds[0].VendorChargeID)
	// Claiming an existing local refund emits no event.
	assert.Equal(t, 0, f.created)
}
