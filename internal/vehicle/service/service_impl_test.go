package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/vehicle/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Vehicle{}); err != nil {
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
	}), db
}

func TestCreate_UppercasesRegistrationAndRejectsDuplicates(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(100)

	vehicle, err := svc.Create(ctx, domain.CreateVehicleRequest{
		TenantID:     tenantID.String(),
		Registration: "ab-123-cd",
		Category:     "truck",
	})
	assert.NoError(t, err)
	assert.Equal(t, "AB-123-CD", vehicle.Registration)
	assert.Equal(t, domain.VehicleStatusActive, vehicle.Status)

	// Same registration differing only in case collides.
	_, err = svc.Create(ctx, domain.CreateVehicleRequest{
		TenantID:     tenantID.String(),
		Registration: "AB-123-CD",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateVehicle)

	// Another tenant may register the same plate.
	_, err = svc.Create(ctx, domain.CreateVehicleRequest{
		TenantID:     snowflake.ID(200).String(),
		Registration: "AB-123-CD",
	})
	assert.NoError(t, err)
}

func TestRetire_IsTerminal(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	vehicle, err := svc.Create(ctx, domain.CreateVehicleRequest{
		TenantID:     snowflake.ID(100).String(),
		Registration: "XY-999-ZZ",
	})
	assert.NoError(t, err)

	assert.NoError(t, svc.Retire(ctx, vehicle.ID.String()))

	got, err := svc.GetByID(ctx, vehicle.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, domain.VehicleStatusRetired, got.Status)

	// A second retire finds no ACTIVE row.
	assert.ErrorIs(t, svc.Retire(ctx, vehicle.ID.String()), domain.ErrVehicleNotFound)
}

func TestEligibleForIssuance(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	owner := snowflake.ID(100)

	vehicle, err := svc.Create(ctx, domain.CreateVehicleRequest{
		TenantID:     owner.String(),
		Registration: "EL-001-IG",
	})
	assert.NoError(t, err)

	got, err := svc.EligibleForIssuance(ctx, db, owner, vehicle.ID)
	assert.NoError(t, err)
	assert.Equal(t, vehicle.ID, got.ID)

	_, err = svc.EligibleForIssuance(ctx, db, snowflake.ID(200), vehicle.ID)
	assert.ErrorIs(t, err, domain.ErrVehicleWrongTenant)

	_, err = svc.EligibleForIssuance(ctx, db, owner, snowflake.ID(999))
	assert.ErrorIs(t, err, domain.ErrVehicleNotFound)

	assert.NoError(t, svc.Retire(ctx, vehicle.ID.String()))
	_, err = svc.EligibleForIssuance(ctx, db, owner, vehicle.ID)
	assert.ErrorIs(t, err, domain.ErrVehicleRetired)
}

func TestListByTenant_OrdersByRegistration(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(100)

	for _, reg := range []string{"ZZ-1", "AA-1", "MM-1"} {
		_, err := svc.Create(ctx, domain.CreateVehicleRequest{
			TenantID:     tenantID.String(),
			Registration: reg,
		})
		assert.NoError(t, err)
	}

	vehicles, err := svc.ListByTenant(ctx, tenantID)
	assert.NoError(t, err)
	assert.Len(t, vehicles, 3)
	assert.Equal(t, "AA-1", vehicles[0].Registration)
	assert.Equal(t, "ZZ-1", vehicles[2].Registration)
}
