package balance

import (
	"github.com/fleetpass/fleetpass/internal/balance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("balance.service",
	fx.Provide(service.New),
)
