// Package migration creates the gateway's tables on startup so the service
// is usable out of the box for local and self-hosted environments.
package migration

import (
	auditdomain "github.com/commercekit/paystack-gateway/internal/audit/domain"
	orderdomain "github.com/commercekit/paystack-gateway/internal/order/domain"
	paymentdomain "github.com/commercekit/paystack-gateway/internal/payment/domain"
	subdomain "github.com/commercekit/paystack-gateway/internal/subscription/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the schema for every persisted model.
func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&orderdomain.Order{},
		&orderdomain.Transaction{},
		&subdomain.Subscription{},
		&paymentdomain.PlanCode{},
		&auditdomain.AuditLog{},
	)
}
