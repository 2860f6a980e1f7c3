package order

import (
	"github.com/commercekit/paystack-gateway/internal/order/repository"
	"github.com/commercekit/paystack-gateway/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
