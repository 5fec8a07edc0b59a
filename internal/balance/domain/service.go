package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	"gorm.io/gorm"
)

type OpenBalanceRequest struct {
	TenantID string `json:"tenant_id"`
	// InitialAmount funds the balance at creation: the opening credit for
	// PREPAID, the security deposit for DEPOSIT. Ignored for CREDIT_LINE.
	InitialAmount string `json:"initial_amount,omitempty"`
}

type MutationRequest struct {
	TenantID    string `json:"tenant_id"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
}

type Service interface {
	Open(ctx context.Context, req OpenBalanceRequest) (Balance, error)
	Credit(ctx context.Context, req MutationRequest) (Transaction, error)
	Debit(ctx context.Context, req MutationRequest) (Transaction, error)
	// DebitTx performs one debit inside the caller's transaction. The batch
	// orchestrator uses it so the charge commits or rolls back with the
	// attestation rows.
	DebitTx(ctx context.Context, tx *gorm.DB, tenant tenantdomain.Tenant, amountMinor int64, description, reference string) (Transaction, error)
	CurrentBalance(ctx context.Context, tenantID snowflake.ID) (Balance, error)
	ListTransactions(ctx context.Context, tenantID snowflake.ID) ([]Transaction, error)
}

var (
	ErrInvalidBalanceTenant  = errors.New("invalid_balance_tenant")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrBalanceNotFound       = errors.New("balance_not_found")
	ErrBalanceExists         = errors.New("balance_already_exists")
	ErrBalanceClosed         = errors.New("balance_closed")
	ErrInsufficientFunds     = errors.New("insufficient_funds")
	ErrCreditLimitExceeded   = errors.New("monthly_credit_limit_exceeded")
	ErrDepositExhausted      = errors.New("deposit_exhausted")
	ErrDepositOverflow       = errors.New("deposit_release_exceeds_original")
	ErrCreditNotSupported    = errors.New("credit_line_holds_no_balance")
	ErrSubscriptionRequired  = errors.New("subscription_required")
	ErrSubscriptionNotActive = errors.New("subscription_not_active")
	// ErrInvariantViolation signals a ledger write that did not pair a balance
	// mutation with exactly one transaction row. It is a bug, never expected
	// in normal operation.
	ErrInvariantViolation = errors.New("ledger_invariant_violation")
)

// IsInsufficientFunds reports whether err is any of the fail-closed debit
// rejections across the three payment models.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrCreditLimitExceeded) ||
		errors.Is(err, ErrDepositExhausted)
}
