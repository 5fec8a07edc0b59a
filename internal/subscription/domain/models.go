// Package domain contains persistence models for credit-line and deposit
// subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "ACTIVE"
	SubscriptionStatusSuspended  SubscriptionStatus = "SUSPENDED"
	SubscriptionStatusExpired    SubscriptionStatus = "EXPIRED"
	SubscriptionStatusTerminated SubscriptionStatus = "TERMINATED"
)

// SubscriptionKind matches the tenant's payment model.
type SubscriptionKind string

const (
	SubscriptionKindCreditLine SubscriptionKind = "CREDIT_LINE"
	SubscriptionKindDeposit    SubscriptionKind = "DEPOSIT"
)

// Subscription carries the monthly credit limit or the original security
// deposit for a tenant, depending on its kind.
type Subscription struct {
	ID         snowflake.ID       `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID       `gorm:"not null;index;uniqueIndex:ux_subscriptions_tenant_live,where:status <> 'TERMINATED'" json:"tenant_id"`
	Kind       SubscriptionKind   `gorm:"type:text;not null" json:"kind"`
	LimitMinor int64              `gorm:"not null" json:"limit_minor"`
	Status     SubscriptionStatus `gorm:"type:text;not null" json:"status"`
	StartAt    time.Time          `gorm:"not null" json:"start_at"`
	EndAt      *time.Time         `gorm:"" json:"end_at,omitempty"`
	CreatedAt  time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// SubscriptionStatusLog records one transition of a subscription. Rows are
// append-only; balances are never touched from here.
type SubscriptionStatusLog struct {
	ID             snowflake.ID       `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID       `gorm:"not null;index" json:"subscription_id"`
	PreviousStatus SubscriptionStatus `gorm:"type:text;not null" json:"previous_status"`
	NewStatus      SubscriptionStatus `gorm:"type:text;not null" json:"new_status"`
	Reason         string             `gorm:"type:text" json:"reason,omitempty"`
	OccurredAt     time.Time          `gorm:"not null" json:"occurred_at"`
}

// TableName sets the database table name.
func (SubscriptionStatusLog) TableName() string { return "subscription_status_logs" }
