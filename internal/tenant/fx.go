package tenant

import (
	"github.com/fleetpass/fleetpass/internal/tenant/repository"
	"github.com/fleetpass/fleetpass/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
