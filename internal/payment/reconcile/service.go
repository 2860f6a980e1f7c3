// Package reconcile re-synchronizes a local subscription with the
// processor: it pulls the remote subscription state and the customer's
// charge history, records any payments the webhooks missed, and aligns the
// local status when nothing new settled.
package reconcile

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/commercekit/paystack-gateway/internal/audit/domain"
	"github.com/commercekit/paystack-gateway/internal/clock"
	"github.com/commercekit/paystack-gateway/internal/observability/metrics"
	orderdomain "github.com/commercekit/paystack-gateway/internal/order/domain"
	"github.com/commercekit/paystack-gateway/internal/payment/domain"
	"github.com/commercekit/paystack-gateway/internal/paystack"
	subdomain "github.com/commercekit/paystack-gateway/internal/subscription/domain"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxPages bounds the remote history walk per resync.
const maxPages = 20

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Client  *paystack.Client
	Orders  orderdomain.Repository
	OrderSv orderdomain.Service
	Subs    subdomain.Repository
	Audit   auditdomain.Service
	Metrics *metrics.Metrics
	Clock   clock.Clock
	GenID   *snowflake.Node
}

type Reconciler struct {
	db      *gorm.DB
	log     *zap.Logger
	client  *paystack.Client
	orders  orderdomain.Repository
	orderSv orderdomain.Service
	subs    subdomain.Repository
	audit   auditdomain.Service
	metrics *metrics.Metrics
	clock   clock.Clock
	genID   *snowflake.Node
}

func NewReconciler(p Params) *Reconciler {
	return &Reconciler{
		db:      p.DB,
		log:     p.Log.Named("reconcile.service"),
		client:  p.Client,
		orders:  p.Orders,
		orderSv: p.OrderSv,
		subs:    p.Subs,
		audit:   p.Audit,
		metrics: p.Metrics,
		clock:   p.Clock,
		genID:   p.GenID,
	}
}

// Resync aligns the local subscription with the processor. Payments found
// remotely but missing locally are recorded; the subscription's own state
// is only overwritten when no new payment was discovered, so a freshly
// recorded payment's confirmation flow keeps authority over status.
func (r *Reconciler) Resync(ctx context.Context, sub *subdomain.Subscription) error {
	if sub.CurrentPaymentMethod != "" && sub.CurrentPaymentMethod != domain.PaymentMethod {
		return subdomain.ErrNotPaystack
	}
	if sub.VendorSubscriptionID == "" {
		return subdomain.ErrNotPaystack
	}

	remote, err := r.client.GetSubscription(ctx, sub.VendorSubscriptionID)
	if err != nil {
		r.metrics.RecordResync(ctx, "remote_error")
		return err
	}

	status := subdomain.FromRemoteStatus(remote.Status)
	if status == subdomain.SubscriptionStatusUnknown {
		r.log.Warn("unknown remote subscription status",
			zap.String("subscription_uuid", sub.UUID),
			zap.String("remote_status", remote.Status),
		)
	}

	authCode := cast.ToString(sub.Meta[subdomain.MetaAuthorizationCode])
	if authCode == "" {
		authCode = remote.Authorization.AuthorizationCode
		if authCode != "" {
			if err := r.subs.UpdateMeta(ctx, r.db, sub.ID, subdomain.MetaAuthorizationCode, authCode); err != nil {
				return err
			}
		}
	}

	customer := sub.VendorCustomerID
	if customer == "" {
		customer = remote.Customer.CustomerCode
	}

	newPayment := false
	if customer != "" && authCode != "" {
		newPayment, err = r.recordMissingPayments(ctx, sub, customer, authCode)
		if err != nil {
			r.metrics.RecordResync(ctx, "remote_error")
			return err
		}
	}

	if !newPayment {
		if status != subdomain.SubscriptionStatusUnknown {
			sub.Status = status
			if status == subdomain.SubscriptionStatusCanceled && sub.CanceledAt == nil {
				now := r.clock.Now()
				sub.CanceledAt = &now
			}
		}
		sub.NextBillingDate = remote.NextPaymentTime()
		if err := r.subs.Update(ctx, r.db, sub); err != nil {
			return err
		}
	}

	r.metrics.RecordResync(ctx, "ok")
	_ = r.audit.RecordEvent(ctx, "Subscription resynced",
		"Local subscription state was reconciled with Paystack.",
		auditdomain.LevelInfo,
		map[string]any{
			"module_name": "subscription",
			"module_id":   sub.ID,
			"new_payment": newPayment,
		})
	return nil
}

// recordMissingPayments walks the customer's remote charge history, keeps
// only successful charges made with this subscription's card authorization,
// and records the ones the local store has never seen.
func (r *Reconciler) recordMissingPayments(ctx context.Context, sub *subdomain.Subscription, customer, authCode string) (bool, error) {
	newPayment := false
	cursor := ""

	for page := 0; page < maxPages; page++ {
		resp, err := r.client.ListTransactions(ctx, customer, cursor)
		if err != nil {
			return newPayment, err
		}

		for i := range resp.Transactions {
			charge := &resp.Transactions[i]
			if !strings.EqualFold(charge.Status, "success") {
				continue
			}
			if charge.Authorization.AuthorizationCode != authCode {
				continue
			}
			recorded, err := r.recordPayment(ctx, sub, charge)
			if err != nil {
				return newPayment, err
			}
			if recorded {
				newPayment = true
			}
		}

		cursor = resp.Next
		if cursor == "" {
			break
		}
	}
	return newPayment, nil
}

// recordPayment makes sure one successful remote charge exists locally as a
// succeeded transaction. It returns true only when local state changed.
func (r *Reconciler) recordPayment(ctx context.Context, sub *subdomain.Subscription, charge *paystack.Charge) (bool, error) {
	vendorID := paystack.ChargeIDString(charge.ID)

	existing, err := r.orders.FindTransactionByVendorChargeID(ctx, r.db, vendorID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if existing.Succeeded() {
			return false, nil
		}
		applied, err := r.orders.MarkSucceeded(ctx, r.db, existing.ID, orderdomain.SucceededUpdate{
			Total:             existing.Total,
			Currency:          existing.Currency,
			CardLast4:         charge.Authorization.Last4,
			CardBrand:         charge.Authorization.Brand,
			PaymentMethodType: charge.Authorization.Channel,
			VendorChargeID:    vendorID,
			Reference:         charge.Reference,
			Meta:              metaWithSource(existing.Meta, "reconciler"),
		})
		if err != nil {
			return false, err
		}
		if applied {
			return true, r.orderSv.SyncOrderStatuses(ctx, existing.OrderID)
		}
		return false, nil
	}

	placeholder, err := r.orders.FindPendingPlaceholder(ctx, r.db, sub.ID)
	if err != nil {
		return false, err
	}
	if placeholder != nil {
		applied, err := r.orders.MarkSucceeded(ctx, r.db, placeholder.ID, orderdomain.SucceededUpdate{
			Total:             charge.Amount,
			Currency:          charge.Currency,
			CardLast4:         charge.Authorization.Last4,
			CardBrand:         charge.Authorization.Brand,
			PaymentMethodType: charge.Authorization.Channel,
			VendorChargeID:    vendorID,
			Reference:         charge.Reference,
			Meta:              metaWithSource(placeholder.Meta, "reconciler"),
		})
		if err != nil {
			return false, err
		}
		if applied {
			return true, r.orderSv.SyncOrderStatuses(ctx, placeholder.OrderID)
		}
		return false, nil
	}

	row := &orderdomain.Transaction{
		ID:             r.genID.Generate(),
		UUID:           uuid.NewString(),
		OrderID:        sub.ParentOrderID,
		SubscriptionID: sub.ID,
		Type:           orderdomain.TransactionTypeCharge,
		Status:         orderdomain.TransactionStatusSucceeded,
		PaymentMethod:  domain.PaymentMethod,
		Total:          charge.Amount,
		Currency:       charge.Currency,
		CardLast4:      charge.Authorization.Last4,
		CardBrand:      charge.Authorization.Brand,
		VendorChargeID: vendorID,
		Reference:      charge.Reference,
		Meta: datatypes.JSONMap{
			"source":             "reconciler",
			"authorization_code": charge.Authorization.AuthorizationCode,
		},
		CreatedAt: r.clock.Now(),
	}
	if err := r.orders.CreateTransaction(ctx, r.db, row); err != nil {
		return false, err
	}

	r.log.Info("recorded missing renewal payment",
		zap.String("subscription_uuid", sub.UUID),
		zap.String("vendor_charge_id", vendorID),
		zap.Int64("amount", charge.Amount),
	)
	return true, r.orderSv.SyncOrderStatuses(ctx, sub.ParentOrderID)
}

func metaWithSource(existing datatypes.JSONMap, source string) map[string]any {
	merged := map[string]any{}
	for k, v := range existing {
		merged[k] = v
	}
	merged["source"] = source
	return merged
}
