package purchasing

import (
	"github.com/smallbiznis/pricewatch/internal/purchasing/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("purchasing.repository",
	fx.Provide(repository.NewInvoiceLineRepository),
	fx.Provide(repository.NewAgreementRepository),
)
