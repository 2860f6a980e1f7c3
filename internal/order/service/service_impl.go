package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/commercekit/paystack-gateway/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("order.service"),
		repo: p.Repo,
	}
}

// SyncOrderStatuses derives the order's aggregate status from all of its
// transactions: fully refunded beats paid, paid requires the settled total
// to cover the order total.
func (s *Service) SyncOrderStatuses(ctx context.Context, orderID snowflake.ID) error {
	order, err := s.repo.FindOrder(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.ErrOrderNotFound
	}

	transactions, err := s.repo.ListTransactionsByOrder(ctx, s.db, orderID)
	if err != nil {
		return err
	}

	var paid, refunded int64
	for _, tx := range transactions {
		switch tx.Type {
		case domain.TransactionTypeCharge:
			if tx.Status == domain.TransactionStatusSucceeded {
				paid += tx.Total
			}
		case domain.TransactionTypeRefund:
			refunded += tx.Total
		}
	}

	status := deriveStatus(order.Total, paid, refunded)
	if status == order.Status {
		return nil
	}

	s.log.Info("order status changed",
		zap.String("order", order.UUID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(status)),
	)
	return s.repo.UpdateOrderStatus(ctx, s.db, orderID, status)
}

func deriveStatus(total, paid, refunded int64) domain.OrderStatus {
	switch {
	case refunded > 0 && refunded >= paid && paid > 0:
		return domain.OrderStatusRefunded
	case refunded > 0:
		return domain.OrderStatusPartiallyRefunded
	case paid >= total && total > 0:
		return domain.OrderStatusPaid
	case paid > 0:
		return domain.OrderStatusPartiallyPaid
	default:
		return domain.OrderStatusPending
	}
}
