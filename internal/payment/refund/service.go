// Package refund records refunds locally and issues them against Paystack.
// Webhook-delivered refunds are deduplicated by vendor refund id so repeated
// deliveries never double-count.
package refund

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/commercekit/paystack-gateway/internal/audit/domain"
	"github.com/commercekit/paystack-gateway/internal/clock"
	"github.com/commercekit/paystack-gateway/internal/events"
	"github.com/commercekit/paystack-gateway/internal/observability/metrics"
	orderdomain "github.com/commercekit/paystack-gateway/internal/order/domain"
	"github.com/commercekit/paystack-gateway/internal/payment/domain"
	"github.com/commercekit/paystack-gateway/internal/paystack"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookRefund is the refund detail extracted from a refund.processed
// delivery.
type WebhookRefund struct {
	VendorRefundID string
	Amount         int64
	Currency       string
	Status         string
	Note           string
}

// merchantNotes maps storefront refund reason codes to the note sent to the
// processor.
var merchantNotes = map[string]string{
	"requested_by_customer": "Refund requested by customer",
	"duplicate":             "Duplicate payment",
	"fraudulent":            "Fraudulent payment",
}

const defaultMerchantNote = "Refund issued by merchant"

// acceptedRefundStatuses are the processor refund states treated as a
// successfully submitted refund.
var acceptedRefundStatuses = map[string]struct{}{
	"pending":    {},
	"processing": {},
	"processed":  {},
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Client  *paystack.Client
	Orders  orderdomain.Repository
	OrderSv orderdomain.Service
	Audit   auditdomain.Service
	Events  *events.Publisher
	Metrics *metrics.Metrics
	Clock   clock.Clock
	GenID   *snowflake.Node
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	client  *paystack.Client
	orders  orderdomain.Repository
	orderSv orderdomain.Service
	audit   auditdomain.Service
	events  *events.Publisher
	metrics *metrics.Metrics
	clock   clock.Clock
	genID   *snowflake.Node
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("refund.service"),
		client:  p.Client,
		orders:  p.Orders,
		orderSv: p.OrderSv,
		audit:   p.Audit,
		events:  p.Events,
		metrics: p.Metrics,
		clock:   p.Clock,
		genID:   p.GenID,
	}
}

// ReverseAuthorizationCharge refunds a charge that was made only to obtain a
// card authorization. The full charged amount is returned to the customer.
func (s *Service) ReverseAuthorizationCharge(ctx context.Context, tx *orderdomain.Transaction) error {
	refund, err := s.client.CreateRefund(ctx, paystack.CreateRefundRequest{
		Transaction:  tx.VendorChargeID,
		Amount:       tx.Total,
		Currency:     tx.Currency,
		MerchantNote: "Authorization amount reversal",
	})
	if err != nil {
		return err
	}

	if _, err := s.record(ctx, tx, recordInput{
		VendorRefundID: paystack.ChargeIDString(refund.ID),
		Amount:         tx.Total,
		Currency:       tx.Currency,
		Note:           "Authorization amount reversal",
		Source:         "authorization_reversal",
	}); err != nil {
		return err
	}

	_ = s.audit.RecordEvent(ctx, "Authorization charge reversed",
		"The temporary authorization charge was refunded.",
		auditdomain.LevelInfo,
		map[string]any{
			"module_name":      "order",
			"module_id":        tx.OrderID,
			"transaction_uuid": tx.UUID,
			"amount":           tx.Total,
		})
	return nil
}

// CreateMerchantRefund issues a merchant-initiated refund for part or all of
// a succeeded charge.
func (s *Service) CreateMerchantRefund(ctx context.Context, tx *orderdomain.Transaction, amount int64, reason string) (*orderdomain.Transaction, error) {
	if amount <= 0 || amount > tx.Total-tx.RefundedTotal {
		return nil, domain.ErrInvalidRefundAmount
	}

	note, ok := merchantNotes[strings.ToLower(strings.TrimSpace(reason))]
	if !ok {
		note = defaultMerchantNote
	}

	refund, err := s.client.CreateRefund(ctx, paystack.CreateRefundRequest{
		Transaction:  tx.VendorChargeID,
		Amount:       amount,
		Currency:     tx.Currency,
		MerchantNote: note,
	})
	if err != nil {
		return nil, err
	}
	if _, ok := acceptedRefundStatuses[strings.ToLower(strings.TrimSpace(refund.Status))]; !ok {
		return nil, domain.ErrRefundRejected
	}

	created, err := s.record(ctx, tx, recordInput{
		VendorRefundID: paystack.ChargeIDString(refund.ID),
		Amount:         amount,
		Currency:       tx.Currency,
		Note:           note,
		Source:         "merchant",
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpsertWebhookRefund applies a refund.processed delivery against the parent
// charge. Repeated deliveries of the same vendor refund id only adjust the
// recorded amount; the RefundCreated event fires once per distinct refund.
func (s *Service) UpsertWebhookRefund(ctx context.Context, parent *orderdomain.Transaction, data WebhookRefund) error {
	vendorID := strings.TrimSpace(data.VendorRefundID)

	existing, err := s.orders.ListRefundsByOrder(ctx, s.db, parent.OrderID)
	if err != nil {
		return err
	}

	if vendorID != "" {
		for i := range existing {
			if existing[i].VendorChargeID != vendorID {
				continue
			}
			if existing[i].Total == data.Amount {
				return nil
			}
			delta := data.Amount - existing[i].Total
			existing[i].Total = data.Amount
			if err := s.orders.UpdateTransaction(ctx, s.db, &existing[i]); err != nil {
				return err
			}
			if err := s.orders.AddRefundedTotal(ctx, s.db, parent.ID, delta); err != nil {
				return err
			}
			return s.orderSv.SyncOrderStatuses(ctx, parent.OrderID)
		}

		// A refund issued locally before the webhook arrived has no vendor
		// id yet. Claim the first amount match instead of duplicating it.
		for i := range existing {
			if existing[i].VendorChargeID == "" && existing[i].Total == data.Amount &&
				cast.ToString(existing[i].Meta["parent_id"]) == parent.ID.String() {
				existing[i].VendorChargeID = vendorID
				return s.orders.UpdateTransaction(ctx, s.db, &existing[i])
			}
		}
	}

	if _, err := s.record(ctx, parent, recordInput{
		VendorRefundID: vendorID,
		Amount:         data.Amount,
		Currency:       data.Currency,
		Note:           data.Note,
		Source:         "webhook",
	}); err != nil {
		return err
	}
	return nil
}

type recordInput struct {
	VendorRefundID string
	Amount         int64
	Currency       string
	Note           string
	Source         string
}

// record persists the refund row, bumps the parent's refunded total, syncs
// the order status and emits RefundCreated.
func (s *Service) record(ctx context.Context, parent *orderdomain.Transaction, in recordInput) (*orderdomain.Transaction, error) {
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = parent.Currency
	}

	row := &orderdomain.Transaction{
		ID:             s.genID.Generate(),
		UUID:           uuid.NewString(),
		OrderID:        parent.OrderID,
		SubscriptionID: parent.SubscriptionID,
		Type:           orderdomain.TransactionTypeRefund,
		Status:         orderdomain.TransactionStatusSucceeded,
		PaymentMethod:  domain.PaymentMethod,
		Total:          in.Amount,
		Currency:       currency,
		VendorChargeID: in.VendorRefundID,
		Meta: datatypes.JSONMap{
			"parent_id": parent.ID.String(),
			"note":      in.Note,
			"source":    in.Source,
		},
		CreatedAt: s.clock.Now(),
	}
	if err := s.orders.CreateTransaction(ctx, s.db, row); err != nil {
		return nil, err
	}
	if err := s.orders.AddRefundedTotal(ctx, s.db, parent.ID, in.Amount); err != nil {
		return nil, err
	}
	if err := s.orderSv.SyncOrderStatuses(ctx, parent.OrderID); err != nil {
		return nil, err
	}

	s.metrics.RecordRefund(ctx, in.Source)
	s.events.Publish(ctx, events.Event{
		Name:           events.RefundCreated,
		OrderID:        parent.OrderID,
		TransactionID:  row.ID,
		SubscriptionID: parent.SubscriptionID,
		Amount:         in.Amount,
		Currency:       currency,
	})

	s.log.Info("refund recorded",
		zap.String("refund_uuid", row.UUID),
		zap.String("vendor_refund_id", in.VendorRefundID),
		zap.Int64("amount", in.Amount),
		zap.String("source", in.Source),
	)
	return row, nil
}
