package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/vehicle/domain"
	"github.com/fleetpass/fleetpass/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("vehicle.service"),
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateVehicleRequest) (domain.Vehicle, error) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(req.TenantID))
	if err != nil || tenantID == 0 {
		return domain.Vehicle{}, domain.ErrInvalidVehicleTenant
	}

	registration := strings.ToUpper(strings.TrimSpace(req.Registration))
	if registration == "" {
		return domain.Vehicle{}, domain.ErrInvalidRegistration
	}

	now := time.Now().UTC()
	vehicle := domain.Vehicle{
		ID:           s.genID.Generate(),
		TenantID:     tenantID,
		Registration: registration,
		Category:     strings.TrimSpace(req.Category),
		Status:       domain.VehicleStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Exec(
		`INSERT INTO vehicles (id, tenant_id, registration, category, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		vehicle.ID,
		vehicle.TenantID,
		vehicle.Registration,
		vehicle.Category,
		vehicle.Status,
		vehicle.CreatedAt,
		vehicle.UpdatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Vehicle{}, domain.ErrDuplicateVehicle
		}
		return domain.Vehicle{}, err
	}

	return vehicle, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Vehicle, error) {
	vehicleID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || vehicleID == 0 {
		return domain.Vehicle{}, domain.ErrInvalidVehicle
	}

	vehicle, err := s.findByID(ctx, s.db, vehicleID)
	if err != nil {
		return domain.Vehicle{}, err
	}
	if vehicle == nil {
		return domain.Vehicle{}, domain.ErrVehicleNotFound
	}
	return *vehicle, nil
}

func (s *Service) ListByTenant(ctx context.Context, tenantID snowflake.ID) ([]domain.Vehicle, error) {
	var vehicles []domain.Vehicle
	err := s.db.WithContext(ctx).
		Model(&domain.Vehicle{}).
		Where("tenant_id = ?", tenantID).
		Order("registration asc").
		Find(&vehicles).Error
	if err != nil {
		return nil, err
	}
	return vehicles, nil
}

func (s *Service) Retire(ctx context.Context, id string) error {
	vehicleID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || vehicleID == 0 {
		return domain.ErrInvalidVehicle
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE vehicles SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.VehicleStatusRetired,
		time.Now().UTC(),
		vehicleID,
		domain.VehicleStatusActive,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrVehicleNotFound
	}
	return nil
}

func (s *Service) EligibleForIssuance(ctx context.Context, tx *gorm.DB, tenantID, vehicleID snowflake.ID) (*domain.Vehicle, error) {
	vehicle, err := s.findByID(ctx, tx, vehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle == nil {
		return nil, domain.ErrVehicleNotFound
	}
	if vehicle.TenantID != tenantID {
		return nil, domain.ErrVehicleWrongTenant
	}
	if vehicle.Status != domain.VehicleStatusActive {
		return nil, domain.ErrVehicleRetired
	}
	return vehicle, nil
}

func (s *Service) findByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Vehicle, error) {
	var vehicle domain.Vehicle
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, registration, category, status, created_at, updated_at
		 FROM vehicles WHERE id = ?`,
		id,
	).Scan(&vehicle).Error
	if err != nil {
		return nil, err
	}
	if vehicle.ID == 0 {
		return nil, nil
	}
	return &vehicle, nil
}
