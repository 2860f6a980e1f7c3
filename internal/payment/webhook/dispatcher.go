// Package webhook validates and routes inbound Paystack deliveries. The
// processing order is strict: parse, verify signature, resolve the order,
// then dispatch by event name. Unknown events are acknowledged so the
// processor stops retrying them.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	auditdomain "github.com/commercekit/paystack-gateway/internal/audit/domain"
	"github.com/commercekit/paystack-gateway/internal/observability/metrics"
	orderdomain "github.com/commercekit/paystack-gateway/internal/order/domain"
	"github.com/commercekit/paystack-gateway/internal/payment/confirmation"
	"github.com/commercekit/paystack-gateway/internal/payment/domain"
	"github.com/commercekit/paystack-gateway/internal/payment/reconcile"
	"github.com/commercekit/paystack-gateway/internal/payment/refund"
	"github.com/commercekit/paystack-gateway/internal/paystack"
	subdomain "github.com/commercekit/paystack-gateway/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handled event names.
const (
	EventChargeSuccess        = "charge.success"
	EventSubscriptionCreate   = "subscription.create"
	EventSubscriptionNotRenew = "subscription.not_renew"
	EventSubscriptionDisable  = "subscription.disable"
	EventRefundProcessed      = "refund.processed"
	EventInvoiceUpdate        = "invoice.update"
	EventInvoiceCreate        = "invoice.create"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Verifier   *paystack.SignatureVerifier
	Orders     orderdomain.Repository
	OrderSv    orderdomain.Service
	Subs       subdomain.Repository
	Confirm    *confirmation.Engine
	Refunds    *refund.Service
	Reconciler *reconcile.Reconciler
	Audit      auditdomain.Service
	Metrics    *metrics.Metrics
}

// Dispatcher is the webhook entry point.
type Dispatcher struct {
	db         *gorm.DB
	log        *zap.Logger
	verifier   *paystack.SignatureVerifier
	orders     orderdomain.Repository
	orderSv    orderdomain.Service
	subs       subdomain.Repository
	confirm    *confirmation.Engine
	refunds    *refund.Service
	reconciler *reconcile.Reconciler
	audit      auditdomain.Service
	metrics    *metrics.Metrics

	handlers map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, order *orderdomain.Order, data json.RawMessage) (string, error)

func NewDispatcher(p Params) *Dispatcher {
	d := &Dispatcher{
		db:         p.DB,
		log:        p.Log.Named("webhook.dispatcher"),
		verifier:   p.Verifier,
		orders:     p.Orders,
		orderSv:    p.OrderSv,
		subs:       p.Subs,
		confirm:    p.Confirm,
		refunds:    p.Refunds,
		reconciler: p.Reconciler,
		audit:      p.Audit,
		metrics:    p.Metrics,
	}
	d.handlers = map[string]handlerFunc{
		EventChargeSuccess:        d.handleChargeSuccess,
		EventSubscriptionCreate:   d.handleSubscriptionCreate,
		EventSubscriptionNotRenew: d.handleSubscriptionSync,
		EventSubscriptionDisable:  d.handleSubscriptionSync,
		EventRefundProcessed:      d.handleRefundProcessed,
		EventInvoiceUpdate:        d.handleSubscriptionSync,
	}
	return d
}

type eventEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// resolutionHints are the identifier fields inspected when mapping a
// delivery back to a local order, decoded independently of the event type.
type resolutionHints struct {
	Reference            string                  `json:"reference"`
	TransactionReference string                  `json:"transaction_reference"`
	Metadata             paystack.ChargeMetadata `json:"metadata"`
	SubscriptionCode     string                  `json:"subscription_code"`
	EmailToken           string                  `json:"email_token"`
	Subscription     *struct {
		SubscriptionCode string `json:"subscription_code"`
		EmailToken       string `json:"email_token"`
	} `json:"subscription"`
	Transaction *struct {
		Reference string `json:"reference"`
	} `json:"transaction"`
}

// Dispatch processes one delivery. The returned message accompanies the
// HTTP acknowledgement; the error, when non-nil, selects the failure status
// (invalid payload, bad signature, unresolvable order).
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte, signature string) (string, error) {
	if len(body) == 0 {
		return "", domain.ErrEmptyPayload
	}
	if len(body) > domain.MaxWebhookPayload {
		return "", domain.ErrPayloadTooLarge
	}

	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil || strings.TrimSpace(env.Event) == "" {
		return "", domain.ErrInvalidPayload
	}

	if err := d.verifier.Verify(body, signature); err != nil {
		d.metrics.RecordWebhookEvent(ctx, env.Event, "bad_signature")
		return "", err
	}

	handler, handled := d.handlers[env.Event]
	if !handled {
		d.metrics.RecordWebhookEvent(ctx, env.Event, "ignored")
		if env.Event == EventInvoiceCreate {
			return "Event acknowledged", nil
		}
		d.log.Debug("ignoring webhook event", zap.String("event", env.Event))
		return "Event ignored", nil
	}

	order, err := d.resolveOrder(ctx, env.Data)
	if err != nil {
		d.metrics.RecordWebhookEvent(ctx, env.Event, "unresolved")
		return "", err
	}

	message, err := handler(ctx, order, env.Data)
	if err != nil {
		d.metrics.RecordWebhookEvent(ctx, env.Event, "error")
		d.log.Error("webhook handler failed",
			zap.String("event", env.Event),
			zap.String("order_uuid", order.UUID),
			zap.Error(err),
		)
		_ = d.audit.RecordEvent(ctx, "Webhook processing failed",
			err.Error(),
			auditdomain.LevelError,
			map[string]any{
				"module_name": "order",
				"module_id":   order.ID,
				"event":       env.Event,
			})
		// The delivery was authentic and routed; acknowledge it so the
		// processor does not retry a terminal failure forever.
		return "Webhook received", nil
	}

	d.metrics.RecordWebhookEvent(ctx, env.Event, "handled")
	if message == "" {
		message = "Webhook processed"
	}
	return message, nil
}

// resolveOrder maps a delivery to a local order. Resolution tries, in
// order: the metadata order hash, the reference prefix, the subscription
// code, and finally the email token.
func (d *Dispatcher) resolveOrder(ctx context.Context, data json.RawMessage) (*orderdomain.Order, error) {
	var hints resolutionHints
	_ = json.Unmarshal(data, &hints)

	if hash := strings.TrimSpace(hints.Metadata.OrderHash); hash != "" {
		order, err := d.orders.FindOrderByUUID(ctx, d.db, hash)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}

	reference := strings.TrimSpace(hints.Reference)
	if reference == "" {
		reference = strings.TrimSpace(hints.TransactionReference)
	}
	if reference == "" && hints.Transaction != nil {
		reference = strings.TrimSpace(hints.Transaction.Reference)
	}
	if hash := domain.HashFromReference(reference); hash != "" {
		tx, err := d.orders.FindTransactionByUUID(ctx, d.db, hash, domain.PaymentMethod)
		if err != nil {
			return nil, err
		}
		if tx != nil {
			order, err := d.orders.FindOrder(ctx, d.db, tx.OrderID)
			if err != nil {
				return nil, err
			}
			if order != nil {
				return order, nil
			}
		}
	}

	code := strings.TrimSpace(hints.SubscriptionCode)
	if code == "" && hints.Subscription != nil {
		code = strings.TrimSpace(hints.Subscription.SubscriptionCode)
	}
	if code != "" {
		sub, err := d.subs.FindByVendorSubscriptionID(ctx, d.db, code)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			order, err := d.orders.FindOrder(ctx, d.db, sub.ParentOrderID)
			if err != nil {
				return nil, err
			}
			if order != nil {
				return order, nil
			}
		}
	}

	token := strings.TrimSpace(hints.EmailToken)
	if token == "" && hints.Subscription != nil {
		token = strings.TrimSpace(hints.Subscription.EmailToken)
	}
	if token != "" {
		sub, err := d.subs.FindByEmailToken(ctx, d.db, token)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			order, err := d.orders.FindOrder(ctx, d.db, sub.ParentOrderID)
			if err != nil {
				return nil, err
			}
			if order != nil {
				return order, nil
			}
		}
	}

	return nil, domain.ErrOrderNotResolved
}

func (d *Dispatcher) handleChargeSuccess(ctx context.Context, _ *orderdomain.Order, data json.RawMessage) (string, error) {
	var charge paystack.Charge
	if err := json.Unmarshal(data, &charge); err != nil {
		return "", domain.ErrInvalidPayload
	}
	if _, err := d.confirm.ConfirmCharge(ctx, &charge); err != nil {
		if errors.Is(err, domain.ErrChargeNotSuccessful) {
			return "Charge not successful", nil
		}
		return "", err
	}
	return "Payment confirmed", nil
}

func (d *Dispatcher) handleSubscriptionCreate(ctx context.Context, order *orderdomain.Order, data json.RawMessage) (string, error) {
	var remote paystack.Subscription
	if err := json.Unmarshal(data, &remote); err != nil {
		return "", domain.ErrInvalidPayload
	}

	sub, err := d.findSubscription(ctx, order, remote.SubscriptionCode)
	if err != nil {
		return "", err
	}
	if sub == nil {
		d.log.Warn("no local subscription for subscription.create, skipping",
			zap.String("order_uuid", order.UUID),
			zap.String("subscription_code", remote.SubscriptionCode),
		)
		return "Subscription not found locally", nil
	}

	if err := d.confirm.ApplyRemoteSubscription(ctx, sub, &remote); err != nil {
		return "", err
	}
	return "Subscription recorded", nil
}

// handleSubscriptionSync covers the lifecycle events whose local effect is
// a full resync against the processor: cancellations, non-renewals and
// invoice updates.
func (d *Dispatcher) handleSubscriptionSync(ctx context.Context, order *orderdomain.Order, data json.RawMessage) (string, error) {
	var hints resolutionHints
	_ = json.Unmarshal(data, &hints)

	code := strings.TrimSpace(hints.SubscriptionCode)
	if code == "" && hints.Subscription != nil {
		code = strings.TrimSpace(hints.Subscription.SubscriptionCode)
	}

	sub, err := d.findSubscription(ctx, order, code)
	if err != nil {
		return "", err
	}
	if sub == nil {
		d.log.Warn("no local subscription for lifecycle event, skipping",
			zap.String("order_uuid", order.UUID),
		)
		return "Subscription not found locally", nil
	}

	if err := d.reconciler.Resync(ctx, sub); err != nil {
		return "", err
	}
	return "Subscription synced", nil
}

// webhookRefundData is the refund.processed payload subset we consume.
type webhookRefundData struct {
	ID                   int64  `json:"id"`
	Amount               int64  `json:"amount"`
	Currency             string `json:"currency"`
	Status               string `json:"status"`
	MerchantNote         string `json:"merchant_note"`
	TransactionReference string `json:"transaction_reference"`
}

func (d *Dispatcher) handleRefundProcessed(ctx context.Context, order *orderdomain.Order, data json.RawMessage) (string, error) {
	var payload webhookRefundData
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", domain.ErrInvalidPayload
	}

	parent, err := d.findParentCharge(ctx, order, payload.TransactionReference)
	if err != nil {
		return "", err
	}
	if parent == nil {
		return "", domain.ErrTransactionNotResolved
	}

	vendorRefundID := ""
	if payload.ID != 0 {
		vendorRefundID = paystack.ChargeIDString(payload.ID)
	}
	err = d.refunds.UpsertWebhookRefund(ctx, parent, refund.WebhookRefund{
		VendorRefundID: vendorRefundID,
		Amount:         payload.Amount,
		Currency:       payload.Currency,
		Status:         payload.Status,
		Note:           payload.MerchantNote,
	})
	if err != nil {
		return "", err
	}
	return "Refund recorded", nil
}

// findParentCharge locates the charge a refund applies to: by the refund's
// transaction reference first, then the order's succeeded charge.
func (d *Dispatcher) findParentCharge(ctx context.Context, order *orderdomain.Order, reference string) (*orderdomain.Transaction, error) {
	if hash := domain.HashFromReference(reference); hash != "" {
		tx, err := d.orders.FindTransactionByUUID(ctx, d.db, hash, domain.PaymentMethod)
		if err != nil {
			return nil, err
		}
		if tx != nil && tx.Type == orderdomain.TransactionTypeCharge {
			return tx, nil
		}
	}

	all, err := d.orders.ListTransactionsByOrder(ctx, d.db, order.ID)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Type == orderdomain.TransactionTypeCharge && all[i].Succeeded() {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (d *Dispatcher) findSubscription(ctx context.Context, order *orderdomain.Order, code string) (*subdomain.Subscription, error) {
	if code != "" {
		sub, err := d.subs.FindByVendorSubscriptionID(ctx, d.db, code)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			return sub, nil
		}
	}
	return d.subs.FindByParentOrderID(ctx, d.db, order.ID)
}
