// Package domain contains persistence models for tenant balances and the
// append-only transaction ledger behind them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BalanceKind mirrors the tenant's payment model.
type BalanceKind string

const (
	BalanceKindPrepaid    BalanceKind = "PREPAID"
	BalanceKindCreditLine BalanceKind = "CREDIT_LINE"
	BalanceKindDeposit    BalanceKind = "DEPOSIT"
)

type BalanceStatus string

const (
	BalanceStatusActive BalanceStatus = "ACTIVE"
	BalanceStatusClosed BalanceStatus = "CLOSED"
)

// Balance holds a tenant's spendable amount in minor units. Created once per
// tenant and never deleted; mutations go through the balance service only.
type Balance struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID  `gorm:"not null;uniqueIndex" json:"tenant_id"`
	Kind           BalanceKind   `gorm:"type:text;not null" json:"kind"`
	AmountMinor    int64         `gorm:"not null;default:0" json:"amount_minor"`
	Currency       string        `gorm:"type:char(3);not null" json:"currency"`
	Status         BalanceStatus `gorm:"type:text;not null;default:'ACTIVE'" json:"status"`
	LastRechargeAt *time.Time    `gorm:"" json:"last_recharge_at,omitempty"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Balance) TableName() string { return "balances" }

// TransactionKind classifies ledger entries.
type TransactionKind string

const (
	TransactionKindCredit         TransactionKind = "CREDIT"
	TransactionKindDebit          TransactionKind = "DEBIT"
	TransactionKindDeposit        TransactionKind = "DEPOSIT"
	TransactionKindDepositUsage   TransactionKind = "DEPOSIT_USAGE"
	TransactionKindDepositRelease TransactionKind = "DEPOSIT_RELEASE"
	TransactionKindCreditUsage    TransactionKind = "CREDIT_USAGE"
)

// Transaction is an immutable ledger entry. Replaying a tenant's transactions
// in order reconstructs its current balance.
type Transaction struct {
	ID                 snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID           snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	BalanceID          snowflake.ID    `gorm:"not null;index" json:"balance_id"`
	Kind               TransactionKind `gorm:"type:text;not null;index" json:"kind"`
	AmountMinor        int64           `gorm:"not null" json:"amount_minor"`
	BalanceBeforeMinor int64           `gorm:"not null" json:"balance_before_minor"`
	BalanceAfterMinor  int64           `gorm:"not null" json:"balance_after_minor"`
	Currency           string          `gorm:"type:char(3);not null" json:"currency"`
	Description        string          `gorm:"type:text" json:"description,omitempty"`
	Reference          string          `gorm:"type:text" json:"reference,omitempty"`
	OccurredAt         time.Time       `gorm:"not null;index" json:"occurred_at"`
	CreatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "balance_transactions" }
