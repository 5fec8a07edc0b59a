package vehicle

import (
	"github.com/fleetpass/fleetpass/internal/vehicle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("vehicle.service",
	fx.Provide(service.New),
)
