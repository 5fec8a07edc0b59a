package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/subscription/domain"
	pkgdb "github.com/fleetpass/fleetpass/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, tenant_id, kind, limit_minor, status, start_at, end_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (id, tenant_id, kind, limit_minor, status, start_at, end_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.TenantID,
		subscription.Kind,
		subscription.LimitMinor,
		subscription.Status,
		subscription.StartAt,
		subscription.EndAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
	// The live-per-tenant unique index catches a concurrent Create that
	// the existence read missed.
	if pkgdb.IsDuplicateKeyErr(err) {
		return domain.ErrSubscriptionExists
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) FindByTenantID(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.Subscription, error) {
	return r.findOne(ctx, db,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE tenant_id = ? ORDER BY created_at DESC LIMIT 1`,
		tenantID,
	)
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.SubscriptionStatus) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC(),
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func (r *repo) InsertStatusLog(ctx context.Context, db *gorm.DB, entry *domain.SubscriptionStatusLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_status_logs (id, subscription_id, previous_status, new_status, reason, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.SubscriptionID,
		entry.PreviousStatus,
		entry.NewStatus,
		entry.Reason,
		entry.OccurredAt,
	).Error
}

func (r *repo) ListStatusLogs(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]domain.SubscriptionStatusLog, error) {
	var logs []domain.SubscriptionStatusLog
	err := db.WithContext(ctx).
		Model(&domain.SubscriptionStatusLog{}).
		Where("subscription_id = ?", subscriptionID).
		Order("occurred_at asc, id asc").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Raw(query, args...).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}
