package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditservice "github.com/commercekit/paystack-gateway/internal/audit/service"
	"github.com/commercekit/paystack-gateway/internal/clock"
	"github.com/commercekit/paystack-gateway/internal/config"
	"github.com/commercekit/paystack-gateway/internal/events"
	"github.com/commercekit/paystack-gateway/internal/observability"
	orderdomain "github.com/commercekit/paystack-gateway/internal/order/domain"
	orderrepo "github.com/commercekit/paystack-gateway/internal/order/repository"
	orderservice "github.com/commercekit/paystack-gateway/internal/order/service"
	"github.com/commercekit/paystack-gateway/internal/payment/checkout"
	"github.com/commercekit/paystack-gateway/internal/payment/confirmation"
	"github.com/commercekit/paystack-gateway/internal/payment/domain"
	"github.com/commercekit/paystack-gateway/internal/payment/reconcile"
	"github.com/commercekit/paystack-gateway/internal/payment/refund"
	"github.com/commercekit/paystack-gateway/internal/payment/webhook"
	"github.com/commercekit/paystack-gateway/internal/paystack"
	subrepo "github.com/commercekit/paystack-gateway/internal/subscription/repository"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const serverSchema = `
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
CREATE TABLE IF NOT EXISTS subscriptions (
	id BIGINT PRIMARY KEY,
	uuid TEXT NOT NULL UNIQUE,
	parent_order_id BIGINT NOT NULL,
	customer_id BIGINT NOT NULL,
	item_name TEXT,
	status TEXT NOT NULL,
	billing_interval TEXT NOT NULL,
	recurring_total BIGINT NOT NULL,
	bill_times INTEGER NOT NULL DEFAULT 0,
	trial_days INTEGER NOT NULL DEFAULT 0,
	vendor_plan_id TEXT,
	vendor_subscription_id TEXT,
	vendor_customer_id TEXT,
	current_payment_method TEXT,
	next_billing_date TIMESTAMP,
	canceled_at TIMESTAMP,
	meta TEXT,
	created_at TIMESTAMP,
	updated_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS plan_codes (
	id BIGINT PRIMARY KEY,
	fingerprint TEXT NOT NULL UNIQUE,
	code TEXT NOT NULL,
	mode TEXT NOT NULL,
	created_at TIMESTAMP
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

const serverTestSecret = "sk_test_server"

type serverFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	orders   orderdomain.Repository
	verifier *paystack.SignatureVerifier
	engine   *gin.Engine
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Exec(serverSchema).Error)

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected remote call %s %s", r.Method, r.URL.Path)
	}))
	t.Cleanup(remote.Close)

	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{HTTPAddr: ":0", ReceiptBaseURL: "/receipt", Mode: config.ModeTest}
	client := paystack.NewClient(remote.URL, serverTestSecret, log)
	ordersRepo := orderrepo.Provide()
	subsRepo := subrepo.Provide()
	orderSvc := orderservice.NewService(orderservice.Params{DB: db, Log: log, Repo: ordersRepo})
	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node})
	pub := events.NewPublisher(log)
	clk := clock.NewSystemClock()

	refundSvc := refund.NewService(refund.Params{
		DB: db, Log: log, Client: client,
		Orders: ordersRepo, OrderSv: orderSvc,
		Audit: auditSvc, Events: pub, Clock: clk, GenID: node,
	})
	confirmSvc := confirmation.NewEngine(confirmation.Params{
		DB: db, Log: log, Client: client,
		Orders: ordersRepo, OrderSv: orderSvc, Subs: subsRepo,
		Refunds: refundSvc, Audit: auditSvc, Events: pub,
	})
	reconciler := reconcile.NewReconciler(reconcile.Params{
		DB: db, Log: log, Client: client,
		Orders: ordersRepo, OrderSv: orderSvc, Subs: subsRepo,
		Audit: auditSvc, Clock: clk, GenID: node,
	})
	checkoutSvc := checkout.NewService(checkout.Params{
		DB: db, Log: log, Client: client,
		Orders: ordersRepo, Subs: subsRepo, Clock: clk, GenID: node,
	})
	verifier := paystack.NewSignatureVerifier(serverTestSecret)
	dispatcher := webhook.NewDispatcher(webhook.Params{
		DB: db, Log: log, Verifier: verifier,
		Orders: ordersRepo, OrderSv: orderSvc, Subs: subsRepo,
		Confirm: confirmSvc, Refunds: refundSvc,
		Reconciler: reconciler, Audit: auditSvc,
	})

	engine := NewEngine(observability.Config{})
	NewServer(ServerParams{
		Gin: engine, Cfg: cfg, DB: db, Log: log, GenID: node, Clock: clk,
		Orders: ordersRepo, OrderSvc: orderSvc, Subs: subsRepo,
		Client: client, CheckoutSvc: checkoutSvc, ConfirmSvc: confirmSvc,
		RefundSvc: refundSvc, Reconciler: reconciler, Dispatcher: dispatcher,
		AuditSvc: auditSvc,
	})

	return &serverFixture{db: db, node: node, orders: ordersRepo, verifier: verifier, engine: engine}
}

func (f *serverFixture) postWebhook(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(paystack.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestWebhookEndpointStatusCodes(t *testing.T) {
	f := newServerFixture(t)

	order := &orderdomain.Order{
		ID:            f.node.Generate(),
		UUID:          uuid.NewString(),
		Type:          orderdomain.OrderTypeNormal,
		CustomerID:    f.node.Generate(),
		CustomerEmail: "buyer@example.test",
		Mode:          "test",
		Status:        orderdomain.OrderStatusPending,
		Currency:      "NGN",
		Total:         90000,
	}
	require.NoError(t, f.db.Create(order).Error)
	tx := &orderdomain.Transaction{
		ID:            f.node.Generate(),
		UUID:          uuid.NewString(),
		OrderID:       order.ID,
		Type:          orderdomain.TransactionTypeCharge,
		Status:        orderdomain.TransactionStatusPending,
		PaymentMethod: domain.PaymentMethod,
		Total:         90000,
		Currency:      "NGN",
	}
	require.NoError(t, f.orders.CreateTransaction(context.Background(), f.db, tx))

	t.Run("empty body", func(t *testing.T) {
		rec := f.postWebhook(nil, "irrelevant")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		body := []byte("{broken")
		rec := f.postWebhook(body, f.verifier.Sign(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		body := []byte(`{"event":"charge.success","data":{}}`)
		rec := f.postWebhook(body, "deadbeef")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing signature", func(t *testing.T) {
		body := []byte(`{"event":"charge.success","data":{}}`)
		rec := f.postWebhook(body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("order not resolved", func(t *testing.T) {
		body := []byte(`{"event":"charge.success","data":{"reference":"missing_1700000000"}}`)
		rec := f.postWebhook(body, f.verifier.Sign(body))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown event acknowledged", func(t *testing.T) {
		body := []byte(`{"event":"transfer.success","data":{}}`)
		rec := f.postWebhook(body, f.verifier.Sign(body))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("charge success handled", func(t *testing.T) {
		body := []byte(`{"event":"charge.success","data":{` +
			`"id":9001,"status":"success","reference":"` + tx.UUID + `_1700000000",` +
			`"amount":90000,"currency":"NGN",` +
			`"metadata":{"order_hash":"` + order.UUID + `","transaction_hash":"` + tx.UUID + `"},` +
			`"authorization":{"authorization_code":"AUTH_x","last4":"4081","brand":"visa","channel":"card"},` +
			`"customer":{"customer_code":"CUS_x"}}}`)
		rec := f.postWebhook(body, f.verifier.Sign(body))
		assert.Equal(t, http.StatusOK, rec.Code)

		stored, err := f.orders.FindTransaction(context.Background(), f.db, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, orderdomain.TransactionStatusSucceeded, stored.Status)
	})
}
