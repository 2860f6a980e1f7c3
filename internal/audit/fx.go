package audit

import (
	"github.com/commercekit/paystack-gateway/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(service.NewService),
)
