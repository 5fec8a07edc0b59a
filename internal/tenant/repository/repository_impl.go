package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/tenant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenants (id, name, code, payment_model, currency, contact_email, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant.ID,
		tenant.Name,
		tenant.Code,
		tenant.PaymentModel,
		tenant.Currency,
		tenant.ContactEmail,
		tenant.Status,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, code, payment_model, currency, contact_email, status, created_at, updated_at
		 FROM tenants WHERE id = ?`,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, status domain.TenantStatus) ([]domain.Tenant, error) {
	var tenants []domain.Tenant
	stmt := db.WithContext(ctx).Model(&domain.Tenant{})
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if err := stmt.Order("created_at desc, id desc").Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *repo) UpdatePaymentModel(ctx context.Context, db *gorm.DB, id snowflake.ID, model domain.PaymentModel) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenants SET payment_model = ?, updated_at = ? WHERE id = ?`,
		model,
		time.Now().UTC(),
		id,
	).Error
}
