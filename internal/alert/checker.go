// Package alert watches tenant balances against per-currency thresholds and
// notifies operators when a balance runs low. Thresholds come from the
// hot-reloaded alerts config file.
package alert

import (
	"context"
	"fmt"
	"sync"

	balancedomain "github.com/fleetpass/fleetpass/internal/balance/domain"
	"github.com/fleetpass/fleetpass/internal/config"
	"github.com/fleetpass/fleetpass/internal/money"
	"github.com/fleetpass/fleetpass/internal/providers/email"
	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Checker evaluates a balance after each mutation.
type Checker interface {
	CheckLowBalance(ctx context.Context, tenant tenantdomain.Tenant, balance balancedomain.Balance)
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Holder      *config.AlertConfigHolder
	Notifier    email.Notifier
	OperatorsTo []string `name:"operators_email" optional:"true"`
}

type checker struct {
	log         *zap.Logger
	holder      *config.AlertConfigHolder
	notifier    email.Notifier
	operatorsTo []string

	mu       sync.Mutex
	notified map[int64]bool
}

func New(p Params) Checker {
	return &checker{
		log:         p.Log.Named("alert.checker"),
		holder:      p.Holder,
		notifier:    p.Notifier,
		operatorsTo: p.OperatorsTo,
		notified:    make(map[int64]bool),
	}
}

var Module = fx.Module("alert", fx.Provide(New))

// CheckLowBalance fires at most one notification per low-balance episode. The
// flag resets once the balance recovers above the threshold. Only PREPAID and
// DEPOSIT balances carry a spendable amount worth alerting on.
func (c *checker) CheckLowBalance(ctx context.Context, tenant tenantdomain.Tenant, balance balancedomain.Balance) {
	if balance.Kind == balancedomain.BalanceKindCreditLine {
		return
	}

	threshold := c.holder.ThresholdFor(balance.Currency)
	if threshold <= 0 {
		return
	}

	key := int64(balance.TenantID)

	c.mu.Lock()
	already := c.notified[key]
	low := balance.AmountMinor < threshold
	if !low {
		delete(c.notified, key)
	} else if !already {
		c.notified[key] = true
	}
	c.mu.Unlock()

	if !low || already {
		return
	}

	c.log.Warn("tenant balance below threshold",
		zap.String("tenant_id", balance.TenantID.String()),
		zap.String("currency", balance.Currency),
		zap.Int64("amount_minor", balance.AmountMinor),
		zap.Int64("threshold_minor", threshold),
	)

	to := c.operatorsTo
	if tenant.ContactEmail != "" {
		to = append(append([]string{}, to...), tenant.ContactEmail)
	}
	if len(to) == 0 {
		return
	}

	subject := fmt.Sprintf("Low balance for %s", tenant.Name)
	body := fmt.Sprintf(
		"Balance for tenant %s dropped to %s %s (threshold %s %s). Please top up to keep issuance running.",
		tenant.Name,
		money.FormatMinor(balance.AmountMinor),
		balance.Currency,
		money.FormatMinor(threshold),
		balance.Currency,
	)
	if err := c.notifier.Send(ctx, to, subject, body); err != nil {
		c.log.Error("failed to send low balance notification",
			zap.String("tenant_id", balance.TenantID.String()),
			zap.Error(err),
		)
	}
}

// NoOpChecker is used in tests.
type NoOpChecker struct{}

func (NoOpChecker) CheckLowBalance(context.Context, tenantdomain.Tenant, balancedomain.Balance) {}
