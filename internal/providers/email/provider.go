// Package email delivers fire-and-forget notifications over SMTP.
package email

import (
	"context"

	"github.com/fleetpass/fleetpass/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Notifier sends outbound messages. Delivery is best-effort: callers must not
// fail their own operation on a send error.
type Notifier interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

// Module provides the configured notifier, falling back to no-op without SMTP config.
var Module = fx.Module("providers.email",
	fx.Provide(NewNotifier),
)

func NewNotifier(cfg config.Config, log *zap.Logger) Notifier {
	if cfg.SMTPHost == "" {
		log.Named("providers.email").Info("smtp not configured, notifications disabled")
		return &NoOpNotifier{}
	}
	return NewSMTP(Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}

type NoOpNotifier struct{}

func (p *NoOpNotifier) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}
