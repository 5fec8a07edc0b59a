package service

import (
	"github.com/fleetpass/fleetpass/internal/balance/domain"
	subscriptiondomain "github.com/fleetpass/fleetpass/internal/subscription/domain"
)

// engineInput carries everything a bound check needs. The balance row is
// already locked when an engine runs, so the values cannot move underneath it.
type engineInput struct {
	balance           domain.Balance
	subscription      *subscriptiondomain.Subscription
	monthlyUsageMinor int64
	amountMinor       int64
}

// engineOutcome is the ledger entry kind plus the signed change to apply to
// the stored balance.
type engineOutcome struct {
	kind  domain.TransactionKind
	delta int64
}

// engine validates one credit or debit against the payment model's bounds.
// Engines are pure: they never touch the database.
type engine interface {
	credit(in engineInput) (engineOutcome, error)
	debit(in engineInput) (engineOutcome, error)
}

func engineFor(kind domain.BalanceKind) (engine, error) {
	switch kind {
	case domain.BalanceKindPrepaid:
		return prepaidEngine{}, nil
	case domain.BalanceKindCreditLine:
		return creditLineEngine{}, nil
	case domain.BalanceKindDeposit:
		return depositEngine{}, nil
	default:
		return nil, domain.ErrBalanceNotFound
	}
}

// prepaidEngine has no upper bound. Debits fail when they would take the
// balance below zero.
type prepaidEngine struct{}

func (prepaidEngine) credit(in engineInput) (engineOutcome, error) {
	return engineOutcome{kind: domain.TransactionKindCredit, delta: in.amountMinor}, nil
}

func (prepaidEngine) debit(in engineInput) (engineOutcome, error) {
	if in.amountMinor > in.balance.AmountMinor {
		return engineOutcome{}, domain.ErrInsufficientFunds
	}
	return engineOutcome{kind: domain.TransactionKindDebit, delta: -in.amountMinor}, nil
}

// creditLineEngine holds no spendable balance. Usage is capped by the
// subscription limit over the current calendar month, derived from the ledger.
type creditLineEngine struct{}

func (creditLineEngine) credit(in engineInput) (engineOutcome, error) {
	return engineOutcome{}, domain.ErrCreditNotSupported
}

func (creditLineEngine) debit(in engineInput) (engineOutcome, error) {
	if in.subscription == nil {
		return engineOutcome{}, domain.ErrSubscriptionRequired
	}
	if in.subscription.Status != subscriptiondomain.SubscriptionStatusActive {
		return engineOutcome{}, domain.ErrSubscriptionNotActive
	}
	if in.monthlyUsageMinor+in.amountMinor > in.subscription.LimitMinor {
		return engineOutcome{}, domain.ErrCreditLimitExceeded
	}
	return engineOutcome{kind: domain.TransactionKindCreditUsage, delta: 0}, nil
}

// depositEngine keeps the balance inside [0, original deposit]. The original
// deposit amount lives on the subscription.
type depositEngine struct{}

func (depositEngine) credit(in engineInput) (engineOutcome, error) {
	if in.subscription == nil {
		return engineOutcome{}, domain.ErrSubscriptionRequired
	}
	if in.balance.AmountMinor+in.amountMinor > in.subscription.LimitMinor {
		return engineOutcome{}, domain.ErrDepositOverflow
	}
	return engineOutcome{kind: domain.TransactionKindDepositRelease, delta: in.amountMinor}, nil
}

func (depositEngine) debit(in engineInput) (engineOutcome, error) {
	if in.subscription == nil {
		return engineOutcome{}, domain.ErrSubscriptionRequired
	}
	if in.subscription.Status != subscriptiondomain.SubscriptionStatusActive {
		return engineOutcome{}, domain.ErrSubscriptionNotActive
	}
	if in.amountMinor > in.balance.AmountMinor {
		return engineOutcome{}, domain.ErrDepositExhausted
	}
	return engineOutcome{kind: domain.TransactionKindDepositUsage, delta: -in.amountMinor}, nil
}
