package providers

import (
	"github.com/smallbiznis/racepay/internal/providers/email"
	"github.com/smallbiznis/racepay/internal/providers/pdf"
	"go.uber.org/fx"
)

// Module wires the outbound mail relay and the receipt renderer.
var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
