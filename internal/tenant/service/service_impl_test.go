package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/tenant/domain"
	"github.com/fleetpass/fleetpass/internal/tenant/repository"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func setupService(t *testing.T) domain.Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Tenant{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	return New(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Repo:  repository.Provide(),
	})
}

func TestCreate_NormalizesCodeAndCurrency(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, domain.CreateTenantRequest{
		Name:     "Acme Transports",
		Code:     "acme transports",
		Currency: "eur",
	})
	assert.NoError(t, err)
	assert.Equal(t, "ACME-TRANSPORTS", tenant.Code)
	assert.Equal(t, "EUR", tenant.Currency)
	assert.Equal(t, domain.PaymentModelNone, tenant.PaymentModel)

	_, err = svc.Create(ctx, domain.CreateTenantRequest{
		Name:     "Another",
		Code:     "acme transports",
		Currency: "EUR",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)
}

func TestCreate_RejectsBadInput(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateTenantRequest{Code: "x", Currency: "EUR"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme", Currency: "EURO"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

func TestSetPaymentModel_LocksAfterFirstChoice(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	tenant, err := svc.Create(ctx, domain.CreateTenantRequest{
		Name:     "Acme",
		Code:     "acme",
		Currency: "EUR",
	})
	assert.NoError(t, err)

	_, _, err = svc.ResolvePaymentModel(ctx, tenant.ID)
	assert.ErrorIs(t, err, domain.ErrNoPaymentModel)

	updated, err := svc.SetPaymentModel(ctx, domain.SetPaymentModelRequest{
		TenantID:     tenant.ID.String(),
		PaymentModel: domain.PaymentModelPrepaid,
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.PaymentModelPrepaid, updated.PaymentModel)

	// Reapplying the same model is a no-op, switching is rejected.
	_, err = svc.SetPaymentModel(ctx, domain.SetPaymentModelRequest{
		TenantID:     tenant.ID.String(),
		PaymentModel: domain.PaymentModelPrepaid,
	})
	assert.NoError(t, err)

	_, err = svc.SetPaymentModel(ctx, domain.SetPaymentModelRequest{
		TenantID:     tenant.ID.String(),
		PaymentModel: domain.PaymentModelDeposit,
	})
	assert.ErrorIs(t, err, domain.ErrPaymentModelLocked)

	resolved, model, err := svc.ResolvePaymentModel(ctx, tenant.ID)
	assert.NoError(t, err)
	assert.Equal(t, domain.PaymentModelPrepaid, model)
	assert.Equal(t, tenant.ID, resolved.ID)
}

func TestGetByID_UnknownTenant(t *testing.T) {
	svc := setupService(t)

	_, err := svc.GetByID(context.Background(), "not-a-snowflake")
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	_, err = svc.GetByID(context.Background(), "123456789")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}
