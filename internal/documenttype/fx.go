package documenttype

import (
	"github.com/fleetpass/fleetpass/internal/documenttype/service"
	"go.uber.org/fx"
)

var Module = fx.Module("documenttype.service",
	fx.Provide(service.New),
)
