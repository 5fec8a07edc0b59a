package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/tenant/domain"
	"github.com/fleetpass/fleetpass/pkg/db"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTenantRequest) (domain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Tenant{}, domain.ErrInvalidName
	}

	code := strings.ToUpper(slug.Make(req.Code))
	if code == "" {
		code = strings.ToUpper(slug.Make(name))
	}
	if code == "" {
		return domain.Tenant{}, domain.ErrInvalidCode
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return domain.Tenant{}, domain.ErrInvalidCurrency
	}

	now := time.Now().UTC()
	tenant := domain.Tenant{
		ID:           s.genID.Generate(),
		Name:         name,
		Code:         code,
		PaymentModel: domain.PaymentModelNone,
		Currency:     currency,
		ContactEmail: strings.TrimSpace(req.ContactEmail),
		Status:       domain.TenantStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Insert(ctx, s.db, &tenant); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Tenant{}, domain.ErrDuplicateCode
		}
		return domain.Tenant{}, err
	}

	return tenant, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Tenant, error) {
	tenantID, err := s.parseID(id)
	if err != nil {
		return domain.Tenant{}, err
	}

	tenant, err := s.repo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return domain.Tenant{}, err
	}
	if tenant == nil {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return *tenant, nil
}

func (s *Service) List(ctx context.Context, req domain.ListTenantRequest) ([]domain.Tenant, error) {
	return s.repo.List(ctx, s.db, domain.TenantStatus(strings.ToUpper(strings.TrimSpace(req.Status))))
}

// SetPaymentModel configures the tenant's payment model. Switching away from a
// configured model is rejected so a live balance can never change semantics.
func (s *Service) SetPaymentModel(ctx context.Context, req domain.SetPaymentModelRequest) (domain.Tenant, error) {
	tenantID, err := s.parseID(req.TenantID)
	if err != nil {
		return domain.Tenant{}, err
	}
	if !domain.ValidPaymentModel(req.PaymentModel) {
		return domain.Tenant{}, domain.ErrInvalidModel
	}

	var updated domain.Tenant
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := s.repo.FindByID(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return domain.ErrTenantNotFound
		}
		if tenant.PaymentModel != domain.PaymentModelNone && tenant.PaymentModel != req.PaymentModel {
			return domain.ErrPaymentModelLocked
		}

		if err := s.repo.UpdatePaymentModel(ctx, tx, tenantID, req.PaymentModel); err != nil {
			return err
		}
		tenant.PaymentModel = req.PaymentModel
		updated = *tenant
		return nil
	})
	if err != nil {
		return domain.Tenant{}, err
	}

	s.log.Info("payment model configured",
		zap.String("tenant_id", tenantID.String()),
		zap.String("payment_model", string(req.PaymentModel)),
	)
	return updated, nil
}

func (s *Service) ResolvePaymentModel(ctx context.Context, tenantID snowflake.ID) (domain.Tenant, domain.PaymentModel, error) {
	tenant, err := s.repo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return domain.Tenant{}, domain.PaymentModelNone, err
	}
	if tenant == nil {
		return domain.Tenant{}, domain.PaymentModelNone, domain.ErrTenantNotFound
	}
	if !domain.ValidPaymentModel(tenant.PaymentModel) {
		return *tenant, domain.PaymentModelNone, domain.ErrNoPaymentModel
	}
	return *tenant, tenant.PaymentModel, nil
}

func (s *Service) Exists(ctx context.Context, tenantID snowflake.ID) (bool, error) {
	tenant, err := s.repo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return false, err
	}
	return tenant != nil, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidTenant
	}
	return id, nil
}
