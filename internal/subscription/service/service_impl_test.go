package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/clock"
	"github.com/fleetpass/fleetpass/internal/subscription/domain"
	"github.com/fleetpass/fleetpass/internal/subscription/repository"
	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type stubTenantSvc struct {
	tenants map[snowflake.ID]tenantdomain.Tenant
}

func (s *stubTenantSvc) Create(ctx context.Context, req tenantdomain.CreateTenantRequest) (tenantdomain.Tenant, error) {
	return tenantdomain.Tenant{}, nil
}

func (s *stubTenantSvc) GetByID(ctx context.Context, id string) (tenantdomain.Tenant, error) {
	return tenantdomain.Tenant{}, nil
}

func (s *stubTenantSvc) List(ctx context.Context, req tenantdomain.ListTenantRequest) ([]tenantdomain.Tenant, error) {
	return nil, nil
}

func (s *stubTenantSvc) SetPaymentModel(ctx context.Context, req tenantdomain.SetPaymentModelRequest) (tenantdomain.Tenant, error) {
	return tenantdomain.Tenant{}, nil
}

func (s *stubTenantSvc) ResolvePaymentModel(ctx context.Context, tenantID snowflake.ID) (tenantdomain.Tenant, tenantdomain.PaymentModel, error) {
	tenant, ok := s.tenants[tenantID]
	if !ok {
		return tenantdomain.Tenant{}, "", tenantdomain.ErrTenantNotFound
	}
	return tenant, tenant.PaymentModel, nil
}

func (s *stubTenantSvc) Exists(ctx context.Context, tenantID snowflake.ID) (bool, error) {
	_, ok := s.tenants[tenantID]
	return ok, nil
}

func setupDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	// SQLite support hack: remove FOR UPDATE clauses
	db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	})
	db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	})

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.Subscription{}, &domain.SubscriptionStatusLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, tenants *stubTenantSvc, clk clock.Clock) domain.Service {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	return New(Params{
		DB:        db,
		Log:       zaptest.NewLogger(t),
		GenID:     node,
		Clock:     clk,
		Repo:      repository.Provide(),
		TenantSvc: tenants,
	})
}

func TestCreate_CreditLineSubscription(t *testing.T) {
	db := setupDB(t)
	node, _ := snowflake.NewNode(2)
	tenantID := node.Generate()
	tenants := &stubTenantSvc{tenants: map[snowflake.ID]tenantdomain.Tenant{
		tenantID: {ID: tenantID, PaymentModel: tenantdomain.PaymentModelCreditLine, Currency: "EUR"},
	}}
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, tenants, clk)

	subscription, err := svc.Create(context.Background(), domain.CreateSubscriptionRequest{
		TenantID: tenantID.String(),
		Kind:     domain.SubscriptionKindCreditLine,
		Limit:    "500.00",
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, subscription.Status)
	assert.Equal(t, int64(50000), subscription.LimitMinor)
	assert.Equal(t, clk.Now(), subscription.StartAt)

	// A second live subscription for the same tenant is rejected.
	_, err = svc.Create(context.Background(), domain.CreateSubscriptionRequest{
		TenantID: tenantID.String(),
		Kind:     domain.SubscriptionKindCreditLine,
		Limit:    "100.00",
	})
	assert.ErrorIs(t, err, domain.ErrSubscriptionExists)
}

func TestCreate_KindMustMatchPaymentModel(t *testing.T) {
	db := setupDB(t)
	node, _ := snowflake.NewNode(2)
	tenantID := node.Generate()
	tenants := &stubTenantSvc{tenants: map[snowflake.ID]tenantdomain.Tenant{
		tenantID: {ID: tenantID, PaymentModel: tenantdomain.PaymentModelPrepaid, Currency: "EUR"},
	}}
	svc := newTestService(t, db, tenants, clock.NewFakeClock(time.Now()))

	_, err := svc.Create(context.Background(), domain.CreateSubscriptionRequest{
		TenantID: tenantID.String(),
		Kind:     domain.SubscriptionKindDeposit,
		Limit:    "1000.00",
	})
	assert.ErrorIs(t, err, domain.ErrSubscriptionKindMismatch)
}

func TestCreate_RejectsInvalidLimit(t *testing.T) {
	db := setupDB(t)
	node, _ := snowflake.NewNode(2)
	tenantID := node.Generate()
	tenants := &stubTenantSvc{tenants: map[snowflake.ID]tenantdomain.Tenant{
		tenantID: {ID: tenantID, PaymentModel: tenantdomain.PaymentModelCreditLine, Currency: "EUR"},
	}}
	svc := newTestService(t, db, tenants, clock.NewFakeClock(time.Now()))

	for _, limit := range []string{"0", "-10.00", "10.001", "abc", ""} {
		_, err := svc.Create(context.Background(), domain.CreateSubscriptionRequest{
			TenantID: tenantID.String(),
			Kind:     domain.SubscriptionKindCreditLine,
			Limit:    limit,
		})
		assert.ErrorIsf(t, err, domain.ErrInvalidLimit, "limit %q", limit)
	}
}

func TestChangeStatus_Lifecycle(t *testing.T) {
	db := setupDB(t)
	node, _ := snowflake.NewNode(2)
	tenantID := node.Generate()
	tenants := &stubTenantSvc{tenants: map[snowflake.ID]tenantdomain.Tenant{
		tenantID: {ID: tenantID, PaymentModel: tenantdomain.PaymentModelDeposit, Currency: "EUR"},
	}}
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, tenants, clk)

	subscription, err := svc.Create(context.Background(), domain.CreateSubscriptionRequest{
		TenantID: tenantID.String(),
		Kind:     domain.SubscriptionKindDeposit,
		Limit:    "2500.00",
	})
	assert.NoError(t, err)
	id := subscription.ID.String()

	// ACTIVE -> SUSPENDED -> ACTIVE -> TERMINATED
	updated, err := svc.ChangeStatus(context.Background(), domain.ChangeStatusRequest{
		SubscriptionID: id, TargetStatus: domain.SubscriptionStatusSuspended, Reason: "overdue payment",
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusSuspended, updated.Status)

	// SUSPENDED may not expire directly.
	_, err = svc.ChangeStatus(context.Background(), domain.ChangeStatusRequest{
		SubscriptionID: id, TargetStatus: domain.SubscriptionStatusExpired,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// Self-transitions are rejected.
	_, err = svc.ChangeStatus(context.Background(), domain.ChangeStatusRequest{
		SubscriptionID: id, TargetStatus: domain.SubscriptionStatusSuspended,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	clk.Advance(time.Hour)
	_, err = svc.ChangeStatus(context.Background(), domain.ChangeStatusRequest{
		SubscriptionID: id, TargetStatus: domain.SubscriptionStatusActive, Reason: "payment received",
	})
	assert.NoError(t, err)

	_, err = svc.ChangeStatus(context.Background(), domain.ChangeStatusRequest{
		SubscriptionID: id, TargetStatus: domain.SubscriptionStatusTerminated, Reason: "contract ended",
	})
	assert.NoError(t, err)

	// TERMINATED is absorbing.
	for _, target := range []domain.SubscriptionStatus{
		domain.SubscriptionStatusActive,
		domain.SubscriptionStatusSuspended,
		domain.SubscriptionStatusExpired,
	} {
		_, err = svc.ChangeStatus(context.Background(), domain.ChangeStatusRequest{
			SubscriptionID: id, TargetStatus: target,
		})
		assert.ErrorIsf(t, err, domain.ErrInvalidTransition, "target %s", target)
	}

	logs, err := svc.ListStatusLogs(context.Background(), id)
	assert.NoError(t, err)
	assert.Len(t, logs, 3)
	assert.Equal(t, domain.SubscriptionStatusActive, logs[0].PreviousStatus)
	assert.Equal(t, domain.SubscriptionStatusSuspended, logs[0].NewStatus)
	assert.Equal(t, "overdue payment", logs[0].Reason)
	assert.Equal(t, domain.SubscriptionStatusTerminated, logs[2].NewStatus)
}

func TestChangeStatus_UnknownSubscription(t *testing.T) {
	db := setupDB(t)
	tenants := &stubTenantSvc{tenants: map[snowflake.ID]tenantdomain.Tenant{}}
	svc := newTestService(t, db, tenants, clock.NewFakeClock(time.Now()))

	node, _ := snowflake.NewNode(3)
	_, err := svc.ChangeStatus(context.Background(), domain.ChangeStatusRequest{
		SubscriptionID: node.Generate().String(),
		TargetStatus:   domain.SubscriptionStatusSuspended,
	})
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestInsert_SecondLiveSubscriptionRejected(t *testing.T) {
	db := setupDB(t)
	node, _ := snowflake.NewNode(2)
	tenantID := node.Generate()
	repo := repository.Provide()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	first := domain.Subscription{
		ID:         node.Generate(),
		TenantID:   tenantID,
		Kind:       domain.SubscriptionKindCreditLine,
		LimitMinor: 50000,
		Status:     domain.SubscriptionStatusActive,
		StartAt:    now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	assert.NoError(t, repo.Insert(context.Background(), db, &first))

	// Two concurrent Creates can both pass the existence read; the
	// live-per-tenant unique index rejects the loser with the domain error.
	second := first
	second.ID = node.Generate()
	err := repo.Insert(context.Background(), db, &second)
	assert.ErrorIs(t, err, domain.ErrSubscriptionExists)

	// Once the live row is TERMINATED a replacement is allowed.
	assert.NoError(t, repo.UpdateStatus(context.Background(), db, first.ID, domain.SubscriptionStatusTerminated))
	assert.NoError(t, repo.Insert(context.Background(), db, &second))
}
