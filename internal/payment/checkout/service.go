// Package checkout initiates Paystack checkout sessions for one-time and
// subscription purchases.
package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/commercekit/paystack-gateway/internal/clock"
	orderdomain "github.com/commercekit/paystack-gateway/internal/order/domain"
	"github.com/commercekit/paystack-gateway/internal/payment/domain"
	"github.com/commercekit/paystack-gateway/internal/paystack"
	subdomain "github.com/commercekit/paystack-gateway/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Session is the initiated checkout handed back to the storefront.
type Session struct {
	AccessCode       string `json:"access_code"`
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	Intent           string `json:"intent"`
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Client *paystack.Client
	Orders orderdomain.Repository
	Subs   subdomain.Repository
	Clock  clock.Clock
	GenID  *snowflake.Node
}

// Service builds checkout sessions against Paystack.
type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	client *paystack.Client
	orders orderdomain.Repository
	subs   subdomain.Repository
	clock  clock.Clock
	genID  *snowflake.Node
}

func NewService(p Params) *Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("checkout.service"),
		client: p.Client,
		orders: p.Orders,
		subs:   p.Subs,
		clock:  p.Clock,
		genID:  p.GenID,
	}
}

// OneTime initiates a single-payment checkout for a pending transaction.
func (s *Service) OneTime(ctx context.Context, order *orderdomain.Order, tx *orderdomain.Transaction) (*Session, error) {
	if !paystack.SupportsCurrency(order.Currency) {
		return nil, paystack.ErrUnsupportedCurrency
	}

	reference := domain.BuildReference(tx.UUID, s.clock.Now())
	resp, err := s.client.InitializeTransaction(ctx, paystack.InitializeRequest{
		Amount:    tx.Total,
		Currency:  strings.ToUpper(order.Currency),
		Email:     order.CustomerEmail,
		Reference: reference,
		Metadata: map[string]any{
			"order_hash":       order.UUID,
			"transaction_hash": tx.UUID,
			"customer_name":    order.CustomerName,
		},
	})
	if err != nil {
		return nil, err
	}

	tx.Reference = reference
	if err := s.orders.UpdateTransaction(ctx, s.db, tx); err != nil {
		return nil, err
	}

	s.log.Info("checkout initiated",
		zap.String("order_uuid", order.UUID),
		zap.String("reference", reference),
	)

	return &Session{
		AccessCode:       resp.AccessCode,
		AuthorizationURL: resp.AuthorizationURL,
		Reference:        reference,
		Intent:           "onetime",
	}, nil
}

// Subscription initiates a checkout that both charges the first payment and
// attaches the customer to a recurring plan. A zero first payment is
// replaced with the currency's minimum authorization amount and flagged so
// confirmation refunds it.
func (s *Service) Subscription(ctx context.Context, order *orderdomain.Order, tx *orderdomain.Transaction, sub *subdomain.Subscription) (*Session, error) {
	if !paystack.SupportsCurrency(order.Currency) {
		return nil, paystack.ErrUnsupportedCurrency
	}

	planCode, err := s.getOrCreatePlan(ctx, order, sub)
	if err != nil {
		return nil, err
	}
	if sub.VendorPlanID != planCode {
		sub.VendorPlanID = planCode
		if err := s.subs.Update(ctx, s.db, sub); err != nil {
			return nil, err
		}
	}

	amount := tx.Total
	authOnly := false
	if amount <= 0 {
		amount = paystack.MinimumAuthorizationAmount(order.Currency)
		authOnly = true
	}

	metadata := map[string]any{
		"order_hash":        order.UUID,
		"transaction_hash":  tx.UUID,
		"subscription_hash": sub.UUID,
		"paystack_plan":     planCode,
		"customer_name":     order.CustomerName,
	}
	if authOnly {
		metadata["amount_is_for_authorization_only"] = "yes"
	}

	reference := domain.BuildReference(tx.UUID, s.clock.Now())
	resp, err := s.client.InitializeTransaction(ctx, paystack.InitializeRequest{
		Amount:    amount,
		Currency:  strings.ToUpper(order.Currency),
		Email:     order.CustomerEmail,
		Reference: reference,
		Metadata:  metadata,
	})
	if err != nil {
		return nil, err
	}

	tx.Reference = reference
	if err := s.orders.UpdateTransaction(ctx, s.db, tx); err != nil {
		return nil, err
	}

	s.log.Info("subscription checkout initiated",
		zap.String("order_uuid", order.UUID),
		zap.String("subscription_uuid", sub.UUID),
		zap.String("plan_code", planCode),
		zap.Bool("authorization_only", authOnly),
	)

	return &Session{
		AccessCode:       resp.AccessCode,
		AuthorizationURL: resp.AuthorizationURL,
		Reference:        reference,
		Intent:           "subscription",
	}, nil
}

// getOrCreatePlan returns the processor plan code for this subscription's
// pricing shape, creating the plan on first use. Cached codes are re-checked
// against the processor before reuse; an unfetchable plan is recreated.
func (s *Service) getOrCreatePlan(ctx context.Context, order *orderdomain.Order, sub *subdomain.Subscription) (string, error) {
	fingerprint := planFingerprint(order, sub)

	var cached domain.PlanCode
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM plan_codes WHERE fingerprint = ? LIMIT 1`, fingerprint,
	).Scan(&cached).Error
	if err != nil {
		return "", err
	}
	if cached.ID != 0 {
		if _, err := s.client.GetPlan(ctx, cached.Code); err == nil {
			return cached.Code, nil
		} else if paystack.IsRecoverable(err) {
			return "", err
		}
		s.log.Warn("cached plan no longer fetchable, recreating",
			zap.String("plan_code", cached.Code),
		)
	}

	name := strings.TrimSpace(sub.ItemName)
	if name == "" {
		name = "Subscription " + sub.UUID
	}
	req := paystack.CreatePlanRequest{
		Name:     name,
		Amount:   sub.RecurringTotal,
		Interval: paystack.Interval(sub.BillingInterval),
	}
	if sub.BillTimes > 0 {
		req.InvoiceLimit = sub.BillTimes
	}

	plan, err := s.client.CreatePlan(ctx, req)
	if err != nil {
		return "", err
	}

	now := s.clock.Now()
	if cached.ID != 0 {
		err = s.db.WithContext(ctx).Exec(
			`UPDATE plan_codes SET code = ? WHERE id = ?`, plan.PlanCode, cached.ID,
		).Error
	} else {
		err = s.db.WithContext(ctx).Create(&domain.PlanCode{
			ID:          s.genID.Generate(),
			Fingerprint: fingerprint,
			Code:        plan.PlanCode,
			Mode:        order.Mode,
			CreatedAt:   now,
		}).Error
	}
	if err != nil {
		return "", err
	}
	return plan.PlanCode, nil
}

func planFingerprint(order *orderdomain.Order, sub *subdomain.Subscription) string {
	key := fmt.Sprintf("%s|%d|%d|%d|%s|%d|%d|%s",
		order.Mode,
		order.ProductID,
		order.VariationID,
		sub.RecurringTotal,
		strings.ToLower(strings.TrimSpace(sub.BillingInterval)),
		sub.BillTimes,
		sub.TrialDays,
		strings.ToUpper(strings.TrimSpace(order.Currency)),
	)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
