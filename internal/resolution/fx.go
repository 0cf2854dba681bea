package resolution

import (
	"github.com/smallbiznis/pricewatch/internal/resolution/repository"
	"github.com/smallbiznis/pricewatch/internal/resolution/service"
	"go.uber.org/fx"
)

var Module = fx.Module("resolution.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
