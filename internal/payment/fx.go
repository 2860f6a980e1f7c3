package payment

import (
	"github.com/commercekit/paystack-gateway/internal/config"
	"github.com/commercekit/paystack-gateway/internal/payment/checkout"
	"github.com/commercekit/paystack-gateway/internal/payment/confirmation"
	"github.com/commercekit/paystack-gateway/internal/payment/reconcile"
	"github.com/commercekit/paystack-gateway/internal/payment/refund"
	"github.com/commercekit/paystack-gateway/internal/payment/webhook"
	"github.com/commercekit/paystack-gateway/internal/paystack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment",
	fx.Provide(
		provideClient,
		provideVerifier,
		checkout.NewService,
		confirmation.NewEngine,
		refund.NewService,
		reconcile.NewReconciler,
		webhook.NewDispatcher,
	),
	reconcile.WorkerModule,
)

func provideClient(cfg config.Config, log *zap.Logger) *paystack.Client {
	return paystack.NewClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey(cfg.Mode), log)
}

func provideVerifier(cfg config.Config) *paystack.SignatureVerifier {
	return paystack.NewSignatureVerifier(cfg.Paystack.SecretKey(cfg.Mode))
}
