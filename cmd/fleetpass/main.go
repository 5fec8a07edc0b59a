package main

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/alert"
	attestationservice "github.com/fleetpass/fleetpass/internal/attestation/service"
	"github.com/fleetpass/fleetpass/internal/authorization"
	"github.com/fleetpass/fleetpass/internal/balance"
	"github.com/fleetpass/fleetpass/internal/cache"
	"github.com/fleetpass/fleetpass/internal/clock"
	"github.com/fleetpass/fleetpass/internal/config"
	"github.com/fleetpass/fleetpass/internal/documenttype"
	"github.com/fleetpass/fleetpass/internal/joblock"
	"github.com/fleetpass/fleetpass/internal/migration"
	"github.com/fleetpass/fleetpass/internal/observability"
	"github.com/fleetpass/fleetpass/internal/providers/email"
	"github.com/fleetpass/fleetpass/internal/providers/pdf"
	"github.com/fleetpass/fleetpass/internal/reference"
	"github.com/fleetpass/fleetpass/internal/scheduler"
	"github.com/fleetpass/fleetpass/internal/server"
	"github.com/fleetpass/fleetpass/internal/subscription"
	"github.com/fleetpass/fleetpass/internal/tenant"
	"github.com/fleetpass/fleetpass/internal/vehicle"
	"github.com/fleetpass/fleetpass/pkg/db"
	"github.com/fleetpass/fleetpass/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		fx.Provide(
			fx.Annotate(OperatorEmails, fx.ResultTags(`name:"operators_email"`)),
		),
		db.Module,
		clock.Module,
		migration.Module,

		email.Module,
		pdf.Module,
		joblock.Module,
		alert.Module,
		fx.Provide(cache.NewVerifyCache),

		tenant.Module,
		vehicle.Module,
		documenttype.Module,
		authorization.Module,
		balance.Module,
		subscription.Module,
		reference.Module,
		attestationservice.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// OperatorEmails splits the configured operator list for alerting and
// authorization-request notifications.
func OperatorEmails(cfg config.Config) []string {
	raw := strings.Split(cfg.OperatorsTo, ",")
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
