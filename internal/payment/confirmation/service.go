// Package confirmation settles pending transactions against verified
// processor charges. Every entry point (redirect confirm, webhook, receipt
// re-check, reconciliation) funnels through ConfirmCharge, which is
// idempotent: a transaction transitions to succeeded at most once.
package confirmation

import (
	"context"

	auditdomain "github.com/commercekit/paystack-gateway/internal/audit/domain"
	"github.com/commercekit/paystack-gateway/internal/events"
	"github.com/commercekit/paystack-gateway/internal/observability/metrics"
	orderdomain "github.com/commercekit/paystack-gateway/internal/order/domain"
	"github.com/commercekit/paystack-gateway/internal/payment/domain"
	"github.com/commercekit/paystack-gateway/internal/payment/refund"
	"github.com/commercekit/paystack-gateway/internal/paystack"
	subdomain "github.com/commercekit/paystack-gateway/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Client  *paystack.Client
	Orders  orderdomain.Repository
	OrderSv orderdomain.Service
	Subs    subdomain.Repository
	Refunds *refund.Service
	Audit   auditdomain.Service
	Events  *events.Publisher
	Metrics *metrics.Metrics
}

// Engine applies verified charges to local state.
type Engine struct {
	db      *gorm.DB
	log     *zap.Logger
	client  *paystack.Client
	orders  orderdomain.Repository
	orderSv orderdomain.Service
	subs    subdomain.Repository
	refunds *refund.Service
	audit   auditdomain.Service
	events  *events.Publisher
	metrics *metrics.Metrics
}

func NewEngine(p Params) *Engine {
	return &Engine{
		db:      p.DB,
		log:     p.Log.Named("confirmation.engine"),
		client:  p.Client,
		orders:  p.Orders,
		orderSv: p.OrderSv,
		subs:    p.Subs,
		refunds: p.Refunds,
		audit:   p.Audit,
		events:  p.Events,
		metrics: p.Metrics,
	}
}

// ConfirmCharge settles the local transaction referenced by a verified
// charge. Already-succeeded transactions short-circuit without mutation.
// Recoverable remote failures leave the transaction pending so a webhook
// replay or reconciliation pass can finish the job.
func (e *Engine) ConfirmCharge(ctx context.Context, charge *paystack.Charge) (*orderdomain.Order, error) {
	tx, err := e.resolveTransaction(ctx, charge)
	if err != nil {
		return nil, err
	}

	order, err := e.orders.FindOrder(ctx, e.db, tx.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}

	if tx.Succeeded() {
		e.metrics.RecordConfirmation(ctx, "already_succeeded")
		return order, nil
	}

	if charge.Status != "success" {
		e.metrics.RecordConfirmation(ctx, "charge_failed")
		return order, domain.ErrChargeNotSuccessful
	}

	applied, err := e.orders.MarkSucceeded(ctx, e.db, tx.ID, orderdomain.SucceededUpdate{
		Total:             charge.Amount,
		Currency:          charge.Currency,
		CardLast4:         charge.Authorization.Last4,
		CardBrand:         charge.Authorization.Brand,
		PaymentMethodType: charge.Authorization.Channel,
		VendorChargeID:    paystack.ChargeIDString(charge.ID),
		Reference:         charge.Reference,
		Meta:              mergeChargeMeta(tx.Meta, charge),
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// Another confirmation path won the conditional write.
		e.metrics.RecordConfirmation(ctx, "already_succeeded")
		return order, nil
	}

	tx.Status = orderdomain.TransactionStatusSucceeded
	tx.Total = charge.Amount
	tx.VendorChargeID = paystack.ChargeIDString(charge.ID)

	e.metrics.RecordConfirmation(ctx, "succeeded")
	_ = e.audit.RecordEvent(ctx, "Payment confirmed",
		"A Paystack charge was confirmed for this order.",
		auditdomain.LevelInfo,
		map[string]any{
			"module_name":      "order",
			"module_id":        order.ID,
			"transaction_uuid": tx.UUID,
			"vendor_charge_id": tx.VendorChargeID,
			"amount":           charge.Amount,
			"currency":         charge.Currency,
		})

	if charge.Metadata.AuthorizationOnly() {
		if err := e.refunds.ReverseAuthorizationCharge(ctx, tx); err != nil {
			// The payment itself settled. Leave the reversal for the
			// refund webhook or a manual retry.
			e.log.Error("authorization reversal failed",
				zap.String("transaction_uuid", tx.UUID),
				zap.Error(err),
			)
		}
	}

	switch {
	case order.IsRenewal():
		if err := e.recordRenewal(ctx, order, tx); err != nil {
			return order, err
		}
	default:
		if err := e.ensureSubscription(ctx, order, tx, charge); err != nil {
			return order, err
		}
	}

	if err := e.orderSv.SyncOrderStatuses(ctx, order.ID); err != nil {
		return order, err
	}
	return order, nil
}

// ConfirmByChargeID fetches the charge from the processor and confirms it.
func (e *Engine) ConfirmByChargeID(ctx context.Context, vendorChargeID string) (*orderdomain.Order, error) {
	charge, err := e.client.GetTransaction(ctx, vendorChargeID)
	if err != nil {
		return nil, err
	}
	return e.ConfirmCharge(ctx, charge)
}

// resolveTransaction locates the local transaction for a charge. The
// metadata transaction hash is authoritative; the reference prefix before
// the first underscore is the fallback for payloads without metadata.
func (e *Engine) resolveTransaction(ctx context.Context, charge *paystack.Charge) (*orderdomain.Transaction, error) {
	if hash := charge.Metadata.TransactionHash; hash != "" {
		tx, err := e.orders.FindTransactionByUUID(ctx, e.db, hash, domain.PaymentMethod)
		if err != nil {
			return nil, err
		}
		if tx != nil {
			return tx, nil
		}
	}
	if hash := domain.HashFromReference(charge.Reference); hash != "" {
		tx, err := e.orders.FindTransactionByUUID(ctx, e.db, hash, domain.PaymentMethod)
		if err != nil {
			return nil, err
		}
		if tx != nil {
			return tx, nil
		}
	}
	return nil, domain.ErrTransactionNotResolved
}

// ensureSubscription creates the processor-side subscription for a first
// charge that carries a plan, then applies the remote state locally. A
// missing local subscription row is logged and skipped.
func (e *Engine) ensureSubscription(ctx context.Context, order *orderdomain.Order, tx *orderdomain.Transaction, charge *paystack.Charge) error {
	planCode := charge.Metadata.PlanCode
	if planCode == "" && charge.Plan == "" {
		return nil
	}

	sub, err := e.subs.FindByParentOrderID(ctx, e.db, order.ID)
	if err != nil {
		return err
	}
	if sub == nil {
		e.log.Warn("no local subscription for subscription charge, skipping",
			zap.String("order_uuid", order.UUID),
			zap.String("plan_code", planCode),
		)
		return nil
	}

	if sub.VendorSubscriptionID == "" {
		if planCode == "" {
			planCode = charge.Plan
		}
		remote, err := e.client.CreateSubscription(ctx, paystack.CreateSubscriptionRequest{
			Customer:      charge.Customer.CustomerCode,
			Plan:          planCode,
			Authorization: charge.Authorization.AuthorizationCode,
		})
		if err != nil {
			if paystack.IsRecoverable(err) {
				return err
			}
			// The processor may have auto-subscribed the customer when the
			// charge carried a plan. Pull state on the next webhook instead
			// of failing the confirmation.
			e.log.Warn("subscription creation rejected",
				zap.String("subscription_uuid", sub.UUID),
				zap.Error(err),
			)
			return nil
		}
		return e.ApplyRemoteSubscription(ctx, sub, remote)
	}

	return nil
}

// ApplyRemoteSubscription copies processor subscription state onto the
// local row. The activation event fires only on the transition into an
// activated status.
func (e *Engine) ApplyRemoteSubscription(ctx context.Context, sub *subdomain.Subscription, remote *paystack.Subscription) error {
	status := subdomain.FromRemoteStatus(remote.Status)
	if status == subdomain.SubscriptionStatusUnknown {
		e.log.Warn("unknown remote subscription status",
			zap.String("subscription_uuid", sub.UUID),
			zap.String("remote_status", remote.Status),
		)
	}

	wasActivated := sub.Status.Activated()

	sub.VendorSubscriptionID = remote.SubscriptionCode
	if remote.Customer.CustomerCode != "" {
		sub.VendorCustomerID = remote.Customer.CustomerCode
	}
	sub.CurrentPaymentMethod = domain.PaymentMethod
	sub.NextBillingDate = remote.NextPaymentTime()
	if status != subdomain.SubscriptionStatusUnknown {
		sub.Status = status
	}
	if sub.Meta == nil {
		sub.Meta = datatypes.JSONMap{}
	}
	sub.Meta[subdomain.MetaActivePaymentMethod] = domain.PaymentMethod
	if remote.EmailToken != "" {
		sub.Meta[subdomain.MetaEmailToken] = remote.EmailToken
	}
	if remote.Customer.CustomerCode != "" {
		sub.Meta[subdomain.MetaCustomerCode] = remote.Customer.CustomerCode
	}
	if remote.Authorization.AuthorizationCode != "" {
		sub.Meta[subdomain.MetaAuthorizationCode] = remote.Authorization.AuthorizationCode
	}

	if err := e.subs.Update(ctx, e.db, sub); err != nil {
		return err
	}

	if !wasActivated && sub.Status.Activated() {
		e.events.Publish(ctx, events.Event{
			Name:           events.SubscriptionActivated,
			OrderID:        sub.ParentOrderID,
			SubscriptionID: sub.ID,
			Amount:         sub.RecurringTotal,
		})
		_ = e.audit.RecordEvent(ctx, "Subscription activated",
			"The Paystack subscription became active.",
			auditdomain.LevelInfo,
			map[string]any{
				"module_name":       "subscription",
				"module_id":         sub.ID,
				"subscription_code": sub.VendorSubscriptionID,
			})
	}
	return nil
}

// recordRenewal refreshes the subscription's billing schedule after a
// renewal-order charge settled.
func (e *Engine) recordRenewal(ctx context.Context, order *orderdomain.Order, tx *orderdomain.Transaction) error {
	sub, err := e.findRenewalSubscription(ctx, order, tx)
	if err != nil {
		return err
	}
	if sub == nil {
		e.log.Warn("no local subscription for renewal order, skipping",
			zap.String("order_uuid", order.UUID),
		)
		return nil
	}

	if sub.VendorSubscriptionID != "" {
		remote, err := e.client.GetSubscription(ctx, sub.VendorSubscriptionID)
		if err != nil {
			if paystack.IsRecoverable(err) {
				return err
			}
			e.log.Warn("remote subscription fetch failed on renewal",
				zap.String("subscription_uuid", sub.UUID),
				zap.Error(err),
			)
		} else {
			sub.NextBillingDate = remote.NextPaymentTime()
			status := subdomain.FromRemoteStatus(remote.Status)
			if status == subdomain.SubscriptionStatusUnknown {
				e.log.Warn("unknown remote subscription status",
					zap.String("subscription_uuid", sub.UUID),
					zap.String("remote_status", remote.Status),
				)
			} else {
				sub.Status = status
			}
		}
	}

	if err := e.subs.Update(ctx, e.db, sub); err != nil {
		return err
	}

	_ = e.audit.RecordEvent(ctx, "Subscription renewal recorded",
		"A renewal payment was confirmed for this subscription.",
		auditdomain.LevelInfo,
		map[string]any{
			"module_name":      "subscription",
			"module_id":        sub.ID,
			"order_uuid":       order.UUID,
			"transaction_uuid": tx.UUID,
		})
	return nil
}

func (e *Engine) findRenewalSubscription(ctx context.Context, order *orderdomain.Order, tx *orderdomain.Transaction) (*subdomain.Subscription, error) {
	if tx.SubscriptionID != 0 {
		return e.subs.Find(ctx, e.db, tx.SubscriptionID)
	}
	if order.ParentID != 0 {
		return e.subs.FindByParentOrderID(ctx, e.db, order.ParentID)
	}
	return nil, nil
}

// mergeChargeMeta layers charge detail over the transaction's existing meta
// without discarding checkout-time entries.
func mergeChargeMeta(existing datatypes.JSONMap, charge *paystack.Charge) map[string]any {
	merged := map[string]any{}
	for k, v := range existing {
		merged[k] = v
	}
	merged["channel"] = charge.Channel
	merged["fees"] = charge.Fees
	merged["paid_at"] = charge.PaidAt
	merged["authorization_code"] = charge.Authorization.AuthorizationCode
	merged["customer_code"] = charge.Customer.CustomerCode
	if charge.Metadata.AuthorizationOnly() {
		merged["amount_is_for_authorization_only"] = "yes"
	}
	return merged
}
