// Package service implements the balance engine behind the payment ledger.
// Every mutation locks the tenant's balance row, runs the payment model's
// bound check, and writes the new amount together with exactly one ledger
// transaction in the same storage transaction.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/alert"
	"github.com/fleetpass/fleetpass/internal/balance/domain"
	"github.com/fleetpass/fleetpass/internal/clock"
	"github.com/fleetpass/fleetpass/internal/money"
	"github.com/fleetpass/fleetpass/internal/observability/metrics"
	subscriptiondomain "github.com/fleetpass/fleetpass/internal/subscription/domain"
	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	pkgdb "github.com/fleetpass/fleetpass/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	TenantSvc        tenantdomain.Service
	SubscriptionRepo subscriptiondomain.Repository
	Metrics          *metrics.Metrics `optional:"true"`
	Alerts           alert.Checker    `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	tenantSvc        tenantdomain.Service
	subscriptionRepo subscriptiondomain.Repository
	metrics          *metrics.Metrics
	alerts           alert.Checker
}

func New(p Params) domain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("balance.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		tenantSvc:        p.TenantSvc,
		subscriptionRepo: p.SubscriptionRepo,
		metrics:          p.Metrics,
		alerts:           p.Alerts,
	}
}

type direction int

const (
	directionCredit direction = iota
	directionDebit
)

func (s *Service) Open(ctx context.Context, req domain.OpenBalanceRequest) (domain.Balance, error) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(req.TenantID))
	if err != nil || tenantID == 0 {
		return domain.Balance{}, domain.ErrInvalidBalanceTenant
	}

	tenant, model, err := s.tenantSvc.ResolvePaymentModel(ctx, tenantID)
	if err != nil {
		return domain.Balance{}, err
	}

	kind, err := kindForModel(model)
	if err != nil {
		return domain.Balance{}, err
	}

	var initialMinor int64
	if kind != domain.BalanceKindCreditLine && strings.TrimSpace(req.InitialAmount) != "" {
		initialMinor, err = money.ParsePositiveMinor(req.InitialAmount)
		if err != nil {
			return domain.Balance{}, domain.ErrInvalidAmount
		}
	}

	now := s.clock.Now()
	balance := domain.Balance{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Kind:      kind,
		Currency:  tenant.Currency,
		Status:    domain.BalanceStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findBalance(ctx, tx, tenantID, false)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrBalanceExists
		}

		if kind == domain.BalanceKindDeposit {
			subscription, err := s.subscriptionRepo.FindByTenantID(ctx, tx, tenantID)
			if err != nil {
				return err
			}
			if subscription == nil {
				return domain.ErrSubscriptionRequired
			}
			// The opening deposit defaults to the subscribed amount and may
			// never exceed it.
			if initialMinor == 0 {
				initialMinor = subscription.LimitMinor
			}
			if initialMinor > subscription.LimitMinor {
				return domain.ErrDepositOverflow
			}
		}

		if err := s.insertBalance(ctx, tx, &balance); err != nil {
			return err
		}

		if initialMinor == 0 {
			return nil
		}

		openingKind := domain.TransactionKindCredit
		description := "opening credit"
		if kind == domain.BalanceKindDeposit {
			openingKind = domain.TransactionKindDeposit
			description = "security deposit"
		}

		if _, err := s.applyMutation(ctx, tx, &balance, openingKind, initialMinor, initialMinor, description, ""); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Balance{}, err
	}

	s.log.Info("balance opened",
		zap.String("tenant_id", tenantID.String()),
		zap.String("kind", string(kind)),
		zap.Int64("initial_minor", initialMinor),
	)
	return balance, nil
}

func (s *Service) Credit(ctx context.Context, req domain.MutationRequest) (domain.Transaction, error) {
	return s.mutateChecked(ctx, req, directionCredit)
}

func (s *Service) Debit(ctx context.Context, req domain.MutationRequest) (domain.Transaction, error) {
	return s.mutateChecked(ctx, req, directionDebit)
}

func (s *Service) mutateChecked(ctx context.Context, req domain.MutationRequest, dir direction) (domain.Transaction, error) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(req.TenantID))
	if err != nil || tenantID == 0 {
		return domain.Transaction{}, domain.ErrInvalidBalanceTenant
	}
	amountMinor, err := money.ParsePositiveMinor(req.Amount)
	if err != nil {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	tenant, _, err := s.tenantSvc.ResolvePaymentModel(ctx, tenantID)
	if err != nil {
		return domain.Transaction{}, err
	}

	var entry domain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err = s.mutate(ctx, tx, tenant, dir, amountMinor, req.Description, "")
		return err
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.metrics.RecordLedgerTransaction(ctx, string(entry.Kind))
	if s.alerts != nil && dir == directionDebit && entry.Kind != domain.TransactionKindCreditUsage {
		kind := domain.BalanceKindPrepaid
		if entry.Kind == domain.TransactionKindDepositUsage {
			kind = domain.BalanceKindDeposit
		}
		s.alerts.CheckLowBalance(ctx, tenant, domain.Balance{
			TenantID:    tenant.ID,
			Kind:        kind,
			AmountMinor: entry.BalanceAfterMinor,
			Currency:    entry.Currency,
		})
	}
	return entry, nil
}

// DebitTx runs one debit inside the caller's transaction. The caller owns the
// commit; alerting and metrics stay with the caller as well since the write is
// not durable until then.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, tenant tenantdomain.Tenant, amountMinor int64, description, reference string) (domain.Transaction, error) {
	if amountMinor <= 0 {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}
	return s.mutate(ctx, tx, tenant, directionDebit, amountMinor, description, reference)
}

// mutate is the single write path behind every balance change. The balance
// row is locked first so concurrent debits serialize; the engine then decides
// kind and delta, and applyMutation pairs the balance update with its ledger
// row.
func (s *Service) mutate(ctx context.Context, tx *gorm.DB, tenant tenantdomain.Tenant, dir direction, amountMinor int64, description, reference string) (domain.Transaction, error) {
	balance, err := s.findBalance(ctx, tx, tenant.ID, true)
	if err != nil {
		return domain.Transaction{}, err
	}
	if balance == nil {
		return domain.Transaction{}, domain.ErrBalanceNotFound
	}
	if balance.Status != domain.BalanceStatusActive {
		return domain.Transaction{}, domain.ErrBalanceClosed
	}

	in := engineInput{balance: *balance, amountMinor: amountMinor}

	if balance.Kind != domain.BalanceKindPrepaid {
		in.subscription, err = s.subscriptionRepo.FindByTenantID(ctx, tx, tenant.ID)
		if err != nil {
			return domain.Transaction{}, err
		}
	}
	if balance.Kind == domain.BalanceKindCreditLine && dir == directionDebit {
		in.monthlyUsageMinor, err = s.monthlyCreditUsage(ctx, tx, tenant.ID)
		if err != nil {
			return domain.Transaction{}, err
		}
	}

	eng, err := engineFor(balance.Kind)
	if err != nil {
		return domain.Transaction{}, err
	}

	var outcome engineOutcome
	if dir == directionCredit {
		outcome, err = eng.credit(in)
	} else {
		outcome, err = eng.debit(in)
	}
	if err != nil {
		return domain.Transaction{}, err
	}

	return s.applyMutation(ctx, tx, balance, outcome.kind, outcome.delta, amountMinor, description, reference)
}

// applyMutation writes the new balance amount and exactly one ledger row. A
// balance update that does not hit exactly one row is an invariant violation
// and aborts the whole transaction.
func (s *Service) applyMutation(ctx context.Context, tx *gorm.DB, balance *domain.Balance, kind domain.TransactionKind, delta, amountMinor int64, description, reference string) (domain.Transaction, error) {
	before := balance.AmountMinor
	after := before + delta
	now := s.clock.Now()

	var lastRecharge any
	if kind == domain.TransactionKindCredit || kind == domain.TransactionKindDeposit {
		lastRecharge = now
	}

	var result *gorm.DB
	if lastRecharge != nil {
		result = tx.WithContext(ctx).Exec(
			`UPDATE balances SET amount_minor = ?, last_recharge_at = ?, updated_at = ? WHERE id = ? AND amount_minor = ?`,
			after, lastRecharge, now, balance.ID, before,
		)
	} else {
		result = tx.WithContext(ctx).Exec(
			`UPDATE balances SET amount_minor = ?, updated_at = ? WHERE id = ? AND amount_minor = ?`,
			after, now, balance.ID, before,
		)
	}
	if result.Error != nil {
		return domain.Transaction{}, result.Error
	}
	if result.RowsAffected != 1 {
		return domain.Transaction{}, domain.ErrInvariantViolation
	}

	entry := domain.Transaction{
		ID:                 s.genID.Generate(),
		TenantID:           balance.TenantID,
		BalanceID:          balance.ID,
		Kind:               kind,
		AmountMinor:        amountMinor,
		BalanceBeforeMinor: before,
		BalanceAfterMinor:  after,
		Currency:           balance.Currency,
		Description:        description,
		Reference:          reference,
		OccurredAt:         now,
		CreatedAt:          now,
	}
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO balance_transactions (id, tenant_id, balance_id, kind, amount_minor, balance_before_minor, balance_after_minor, currency, description, reference, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.TenantID,
		entry.BalanceID,
		entry.Kind,
		entry.AmountMinor,
		entry.BalanceBeforeMinor,
		entry.BalanceAfterMinor,
		entry.Currency,
		entry.Description,
		entry.Reference,
		entry.OccurredAt,
		entry.CreatedAt,
	).Error; err != nil {
		return domain.Transaction{}, err
	}

	balance.AmountMinor = after
	balance.UpdatedAt = now
	return entry, nil
}

func (s *Service) CurrentBalance(ctx context.Context, tenantID snowflake.ID) (domain.Balance, error) {
	balance, err := s.findBalance(ctx, s.db, tenantID, false)
	if err != nil {
		return domain.Balance{}, err
	}
	if balance == nil {
		return domain.Balance{}, domain.ErrBalanceNotFound
	}
	return *balance, nil
}

func (s *Service) ListTransactions(ctx context.Context, tenantID snowflake.ID) ([]domain.Transaction, error) {
	var entries []domain.Transaction
	err := s.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("tenant_id = ?", tenantID).
		Order("occurred_at asc, id asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) insertBalance(ctx context.Context, tx *gorm.DB, balance *domain.Balance) error {
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO balances (id, tenant_id, kind, amount_minor, currency, status, last_recharge_at, created_at, updated_at)
		 VALUES (?, ?, ?, 0, ?, ?, NULL, ?, ?)`,
		balance.ID,
		balance.TenantID,
		balance.Kind,
		balance.Currency,
		balance.Status,
		balance.CreatedAt,
		balance.UpdatedAt,
	).Error
	// A concurrent Open can slip past the existence read; the unique
	// tenant index settles the race.
	if pkgdb.IsDuplicateKeyErr(err) {
		return domain.ErrBalanceExists
	}
	return err
}

func (s *Service) findBalance(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, forUpdate bool) (*domain.Balance, error) {
	query := `SELECT id, tenant_id, kind, amount_minor, currency, status, last_recharge_at, created_at, updated_at
	 FROM balances WHERE tenant_id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var balance domain.Balance
	if err := db.WithContext(ctx).Raw(query, tenantID).Scan(&balance).Error; err != nil {
		return nil, err
	}
	if balance.ID == 0 {
		return nil, nil
	}
	return &balance, nil
}

// monthlyCreditUsage sums CREDIT_USAGE ledger rows inside the current
// calendar month. Derived from the ledger on purpose: there is no separate
// counter to drift out of sync.
func (s *Service) monthlyCreditUsage(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (int64, error) {
	now := s.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)

	var total int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount_minor), 0)
		 FROM balance_transactions
		 WHERE tenant_id = ? AND kind = ? AND occurred_at >= ? AND occurred_at < ?`,
		tenantID,
		domain.TransactionKindCreditUsage,
		monthStart,
		nextMonth,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func kindForModel(model tenantdomain.PaymentModel) (domain.BalanceKind, error) {
	switch model {
	case tenantdomain.PaymentModelPrepaid:
		return domain.BalanceKindPrepaid, nil
	case tenantdomain.PaymentModelCreditLine:
		return domain.BalanceKindCreditLine, nil
	case tenantdomain.PaymentModelDeposit:
		return domain.BalanceKindDeposit, nil
	default:
		return "", tenantdomain.ErrNoPaymentModel
	}
}
