package subscription

import (
	"github.com/fleetpass/fleetpass/internal/subscription/repository"
	"github.com/fleetpass/fleetpass/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
