package payment

import (
	"github.com/smallbiznis/racepay/internal/gateway"
	paymentdomain "github.com/smallbiznis/racepay/internal/payment/domain"
	paymentservice "github.com/smallbiznis/racepay/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(func(c *gateway.Client) paymentdomain.Gateway { return c }),
	fx.Provide(paymentservice.NewService),
)
