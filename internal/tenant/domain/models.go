// Package domain contains persistence models for tenants.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentModel selects how a tenant pays for issued attestations.
// A tenant has at most one active payment model at a time.
type PaymentModel string

const (
	PaymentModelNone       PaymentModel = "NONE"
	PaymentModelPrepaid    PaymentModel = "PREPAID"
	PaymentModelCreditLine PaymentModel = "CREDIT_LINE"
	PaymentModelDeposit    PaymentModel = "DEPOSIT"
)

type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "ACTIVE"
	TenantStatusDisabled TenantStatus = "DISABLED"
)

// Tenant is a customer organization requesting attestations for its vehicles.
type Tenant struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"not null" json:"name"`
	Code         string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	PaymentModel PaymentModel `gorm:"type:text;not null;default:'NONE'" json:"payment_model"`
	Currency     string       `gorm:"type:char(3);not null" json:"currency"`
	ContactEmail string       `gorm:"type:text" json:"contact_email,omitempty"`
	Status       TenantStatus `gorm:"type:text;not null;default:'ACTIVE'" json:"status"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }
