package subscription

import (
	"github.com/commercekit/paystack-gateway/internal/subscription/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(repository.Provide),
)
