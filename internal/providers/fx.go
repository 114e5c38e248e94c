package providers

import (
	"github.com/smallbiznis/washbay/internal/payment"
	"github.com/smallbiznis/washbay/internal/providers/email"
	"github.com/smallbiznis/washbay/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
	payment.Module,
)
