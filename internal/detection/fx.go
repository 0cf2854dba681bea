package detection

import (
	"github.com/smallbiznis/pricewatch/internal/detection/service"
	"go.uber.org/fx"
)

var Module = fx.Module("detection.service",
	fx.Provide(service.New),
)
