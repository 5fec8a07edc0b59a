package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateTenantRequest struct {
	Name         string `json:"name"`
	Code         string `json:"code"`
	Currency     string `json:"currency"`
	ContactEmail string `json:"contact_email,omitempty"`
}

type SetPaymentModelRequest struct {
	TenantID     string       `json:"tenant_id"`
	PaymentModel PaymentModel `json:"payment_model"`
}

type ListTenantRequest struct {
	Status string
}

type Service interface {
	Create(ctx context.Context, req CreateTenantRequest) (Tenant, error)
	GetByID(ctx context.Context, id string) (Tenant, error)
	List(ctx context.Context, req ListTenantRequest) ([]Tenant, error)
	SetPaymentModel(ctx context.Context, req SetPaymentModelRequest) (Tenant, error)
	// ResolvePaymentModel loads the tenant and returns its configured model,
	// failing when no model is set.
	ResolvePaymentModel(ctx context.Context, tenantID snowflake.ID) (Tenant, PaymentModel, error)
	Exists(ctx context.Context, tenantID snowflake.ID) (bool, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	List(ctx context.Context, db *gorm.DB, status TenantStatus) ([]Tenant, error)
	UpdatePaymentModel(ctx context.Context, db *gorm.DB, id snowflake.ID, model PaymentModel) error
}

var (
	ErrInvalidTenant      = errors.New("invalid_tenant")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidCode        = errors.New("invalid_code")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidModel       = errors.New("invalid_payment_model")
	ErrTenantNotFound     = errors.New("tenant_not_found")
	ErrDuplicateCode      = errors.New("duplicate_tenant_code")
	ErrNoPaymentModel     = errors.New("no_payment_model_configured")
	ErrPaymentModelLocked = errors.New("payment_model_already_configured")
)

// ValidPaymentModel reports whether the model is one of the configured kinds.
func ValidPaymentModel(model PaymentModel) bool {
	switch model {
	case PaymentModelPrepaid, PaymentModelCreditLine, PaymentModelDeposit:
		return true
	default:
		return false
	}
}
