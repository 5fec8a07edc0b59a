// Package domain contains persistence models for vehicles.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type VehicleStatus string

const (
	VehicleStatusActive  VehicleStatus = "ACTIVE"
	VehicleStatusRetired VehicleStatus = "RETIRED"
)

// Vehicle is a registered vehicle owned by a tenant.
type Vehicle struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID     snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_vehicles_tenant_registration,priority:1" json:"tenant_id"`
	Registration string        `gorm:"type:text;not null;uniqueIndex:ux_vehicles_tenant_registration,priority:2" json:"registration"`
	Category     string        `gorm:"type:text" json:"category,omitempty"`
	Status       VehicleStatus `gorm:"type:text;not null;default:'ACTIVE'" json:"status"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Vehicle) TableName() string { return "vehicles" }

type CreateVehicleRequest struct {
	TenantID     string `json:"tenant_id"`
	Registration string `json:"registration"`
	Category     string `json:"category,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateVehicleRequest) (Vehicle, error)
	GetByID(ctx context.Context, id string) (Vehicle, error)
	ListByTenant(ctx context.Context, tenantID snowflake.ID) ([]Vehicle, error)
	Retire(ctx context.Context, id string) error
	// EligibleForIssuance verifies within the caller's transaction that the
	// vehicle exists, belongs to the tenant, and is not retired.
	EligibleForIssuance(ctx context.Context, tx *gorm.DB, tenantID, vehicleID snowflake.ID) (*Vehicle, error)
}

var (
	ErrInvalidVehicle       = errors.New("invalid_vehicle")
	ErrInvalidRegistration  = errors.New("invalid_registration")
	ErrVehicleNotFound      = errors.New("vehicle_not_found")
	ErrVehicleWrongTenant   = errors.New("vehicle_belongs_to_other_tenant")
	ErrVehicleRetired       = errors.New("vehicle_retired")
	ErrDuplicateVehicle     = errors.New("duplicate_registration")
	ErrInvalidVehicleTenant = errors.New("invalid_vehicle_tenant")
)
