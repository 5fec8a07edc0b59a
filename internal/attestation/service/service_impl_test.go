package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/attestation/domain"
	"github.com/fleetpass/fleetpass/internal/authorization"
	balancedomain "github.com/fleetpass/fleetpass/internal/balance/domain"
	balanceservice "github.com/fleetpass/fleetpass/internal/balance/service"
	"github.com/fleetpass/fleetpass/internal/cache"
	"github.com/fleetpass/fleetpass/internal/clock"
	"github.com/fleetpass/fleetpass/internal/config"
	documenttypedomain "github.com/fleetpass/fleetpass/internal/documenttype/domain"
	documenttypeservice "github.com/fleetpass/fleetpass/internal/documenttype/service"
	"github.com/fleetpass/fleetpass/internal/providers/pdf"
	"github.com/fleetpass/fleetpass/internal/reference"
	referencedomain "github.com/fleetpass/fleetpass/internal/reference/domain"
	subscriptiondomain "github.com/fleetpass/fleetpass/internal/subscription/domain"
	subscriptionrepo "github.com/fleetpass/fleetpass/internal/subscription/repository"
	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	vehicledomain "github.com/fleetpass/fleetpass/internal/vehicle/domain"
	vehicleservice "github.com/fleetpass/fleetpass/internal/vehicle/service"
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
	parsed, err := snowflake.ParseString(id)
	if err != nil {
		return tenantdomain.Tenant{}, tenantdomain.ErrInvalidTenant
	}
	tenant, ok := s.tenants[parsed]
	if !ok {
		return tenantdomain.Tenant{}, tenantdomain.ErrTenantNotFound
	}
	return tenant, nil
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
	if tenant.PaymentModel == tenantdomain.PaymentModelNone {
		return tenantdomain.Tenant{}, "", tenantdomain.ErrNoPaymentModel
	}
	return tenant, tenant.PaymentModel, nil
}

func (s *stubTenantSvc) Exists(ctx context.Context, tenantID snowflake.ID) (bool, error) {
	_, ok := s.tenants[tenantID]
	return ok, nil
}

type stubAuthzSvc struct {
	grants map[[2]snowflake.ID]bool
}

func (s *stubAuthzSvc) IsAuthorized(ctx context.Context, tenantID, documentTypeID snowflake.ID) (bool, error) {
	return s.grants[[2]snowflake.ID{tenantID, documentTypeID}], nil
}

func (s *stubAuthzSvc) Grant(ctx context.Context, tenantID, documentTypeID snowflake.ID) error {
	s.grants[[2]snowflake.ID{tenantID, documentTypeID}] = true
	return nil
}

func (s *stubAuthzSvc) Revoke(ctx context.Context, tenantID, documentTypeID snowflake.ID) error {
	delete(s.grants, [2]snowflake.ID{tenantID, documentTypeID})
	return nil
}

func (s *stubAuthzSvc) ApplyBulkUpdate(ctx context.Context, entries []authorization.BulkEntry) []authorization.BulkResult {
	return nil
}

func (s *stubAuthzSvc) RequestGrant(ctx context.Context, tenantID, documentTypeID snowflake.ID) error {
	return nil
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

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&domain.Attestation{},
		&balancedomain.Balance{},
		&balancedomain.Transaction{},
		&subscriptiondomain.Subscription{},
		&vehicledomain.Vehicle{},
		&documenttypedomain.DocumentType{},
		&referencedomain.ReferenceSequence{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type fixture struct {
	db         *gorm.DB
	svc        domain.Service
	balanceSvc balancedomain.Service
	vehicleSvc vehicledomain.Service
	docTypeSvc documenttypedomain.Service
	authz      *stubAuthzSvc
	clock      *clock.FakeClock
	node       *snowflake.Node
	tenantID   snowflake.ID
	tenant     tenantdomain.Tenant
}

func newFixture(t *testing.T, model tenantdomain.PaymentModel) *fixture {
	db := setupDB(t)
	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))

	tenantID := node.Generate()
	tenant := tenantdomain.Tenant{
		ID:           tenantID,
		Name:         "Acme Fleet",
		Code:         "ACME",
		PaymentModel: model,
		Currency:     "EUR",
	}
	tenants := &stubTenantSvc{tenants: map[snowflake.ID]tenantdomain.Tenant{tenantID: tenant}}
	authz := &stubAuthzSvc{grants: map[[2]snowflake.ID]bool{}}

	balanceSvc := balanceservice.New(balanceservice.Params{
		DB:               db,
		Log:              log,
		GenID:            node,
		Clock:            clk,
		TenantSvc:        tenants,
		SubscriptionRepo: subscriptionrepo.Provide(),
	})
	vehicleSvc := vehicleservice.New(vehicleservice.Params{DB: db, Log: log, GenID: node})
	docTypeSvc := documenttypeservice.New(documenttypeservice.Params{DB: db, Log: log, GenID: node})
	refGen := reference.New(reference.Params{GenID: node, Clock: clk})

	svc := New(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Config:      config.Config{DocumentDir: t.TempDir(), SweepBatchSize: 100},
		TenantSvc:   tenants,
		VehicleSvc:  vehicleSvc,
		DocTypeSvc:  docTypeSvc,
		AuthzSvc:    authz,
		BalanceSvc:  balanceSvc,
		RefGen:      refGen,
		PDF:         &pdf.NoOpProvider{},
		VerifyCache: cache.NewVerifyCache(),
	})

	return &fixture{
		db:         db,
		svc:        svc,
		balanceSvc: balanceSvc,
		vehicleSvc: vehicleSvc,
		docTypeSvc: docTypeSvc,
		authz:      authz,
		clock:      clk,
		node:       node,
		tenantID:   tenantID,
		tenant:     tenant,
	}
}

func (f *fixture) openPrepaidBalance(t *testing.T, amount string) {
	_, err := f.balanceSvc.Open(context.Background(), balancedomain.OpenBalanceRequest{
		TenantID:      f.tenantID.String(),
		InitialAmount: amount,
	})
	assert.NoError(t, err)
}

func (f *fixture) createVehicle(t *testing.T, registration string) vehicledomain.Vehicle {
	vehicle, err := f.vehicleSvc.Create(context.Background(), vehicledomain.CreateVehicleRequest{
		TenantID:     f.tenantID.String(),
		Registration: registration,
	})
	assert.NoError(t, err)
	return vehicle
}

func (f *fixture) createDocType(t *testing.T, code, price string) documenttypedomain.DocumentType {
	docType, err := f.docTypeSvc.Create(context.Background(), documenttypedomain.CreateDocumentTypeRequest{
		Code:      code,
		Name:      code + " attestation",
		UnitPrice: price,
		Currency:  "EUR",
	})
	assert.NoError(t, err)
	assert.NoError(t, f.authz.Grant(context.Background(), f.tenantID, docType.ID))
	return docType
}

func (f *fixture) counts(t *testing.T) (attestations, transactions int64) {
	assert.NoError(t, f.db.Model(&domain.Attestation{}).Count(&attestations).Error)
	assert.NoError(t, f.db.Model(&balancedomain.Transaction{}).Count(&transactions).Error)
	return attestations, transactions
}

func (f *fixture) window() (time.Time, time.Time) {
	from := f.clock.Now()
	return from, from.AddDate(1, 0, 0)
}

func TestIssueBatch_PrepaidScenario(t *testing.T) {
	f := newFixture(t, tenantdomain.PaymentModelPrepaid)
	f.openPrepaidBalance(t, "100.00")
	docType := f.createDocType(t, "TRANSPORT", "40.00")
	v1 := f.createVehicle(t, "AB-123-CD")
	v2 := f.createVehicle(t, "EF-456-GH")
	from, to := f.window()

	result, err := f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{
		TenantID: f.tenantID.String(),
		Currency: "EUR",
		Items: []domain.BatchItem{
			{VehicleID: v1.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from, ValidTo: to},
			{VehicleID: v2.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from, ValidTo: to},
		},
	})
	assert.NoError(t, err)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, "80.00", result.TotalCharged)
	assert.Equal(t, string(tenantdomain.PaymentModelPrepaid), result.PaymentModel)
	assert.Equal(t, "ATT-2025-ACME-000001", result.Items[0].Reference)
	assert.Equal(t, "ATT-2025-ACME-000002", result.Items[1].Reference)

	balance, err := f.balanceSvc.CurrentBalance(context.Background(), f.tenantID)
	assert.NoError(t, err)
	assert.Equal(t, int64(2000), balance.AmountMinor)

	// A further 30.00 item exceeds the remaining 20.00 and fails closed.
	expensive := f.createDocType(t, "HAZMAT", "30.00")
	v3 := f.createVehicle(t, "IJ-789-KL")
	attsBefore, txsBefore := f.counts(t)

	_, err = f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{
		TenantID: f.tenantID.String(),
		Items: []domain.BatchItem{
			{VehicleID: v3.ID.String(), DocumentTypeID: expensive.ID.String(), ValidFrom: from, ValidTo: to},
		},
	})
	assert.True(t, balancedomain.IsInsufficientFunds(err))

	balance, err = f.balanceSvc.CurrentBalance(context.Background(), f.tenantID)
	assert.NoError(t, err)
	assert.Equal(t, int64(2000), balance.AmountMinor)

	attsAfter, txsAfter := f.counts(t)
	assert.Equal(t, attsBefore, attsAfter)
	assert.Equal(t, txsBefore, txsAfter)
}

func TestIssueBatch_OneInvalidItemAbortsEverything(t *testing.T) {
	f := newFixture(t, tenantdomain.PaymentModelPrepaid)
	f.openPrepaidBalance(t, "500.00")
	docType := f.createDocType(t, "TRANSPORT", "40.00")
	v1 := f.createVehicle(t, "AB-123-CD")
	v2 := f.createVehicle(t, "EF-456-GH")
	from, to := f.window()

	// v2 already holds an ACTIVE attestation.
	_, err := f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{
		TenantID: f.tenantID.String(),
		Items: []domain.BatchItem{
			{VehicleID: v2.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from, ValidTo: to},
		},
	})
	assert.NoError(t, err)
	attsBefore, txsBefore := f.counts(t)

	_, err = f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{
		TenantID: f.tenantID.String(),
		Items: []domain.BatchItem{
			{VehicleID: v1.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from, ValidTo: to},
			{VehicleID: v2.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from, ValidTo: to},
		},
	})
	var itemErr *domain.BatchItemError
	assert.ErrorAs(t, err, &itemErr)
	assert.Equal(t, 1, itemErr.Index)
	assert.ErrorIs(t, err, domain.ErrActiveAttestationExists)

	// Zero attestations, zero transactions from the failed batch.
	attsAfter, txsAfter := f.counts(t)
	assert.Equal(t, attsBefore, attsAfter)
	assert.Equal(t, txsBefore, txsAfter)

	balance, err := f.balanceSvc.CurrentBalance(context.Background(), f.tenantID)
	assert.NoError(t, err)
	assert.Equal(t, int64(46000), balance.AmountMinor)
}

func TestIssueBatch_RejectsBadItems(t *testing.T) {
	f := newFixture(t, tenantdomain.PaymentModelPrepaid)
	f.openPrepaidBalance(t, "500.00")
	docType := f.createDocType(t, "TRANSPORT", "40.00")
	v1 := f.createVehicle(t, "AB-123-CD")
	from, to := f.window()

	// Duplicate vehicle inside one batch.
	_, err := f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{
		TenantID: f.tenantID.String(),
		Items: []domain.BatchItem{
			{VehicleID: v1.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from, ValidTo: to},
			{VehicleID: v1.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from, ValidTo: to},
		},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateVehicleInBatch)

	// Unauthorized document type.
	restricted, err := f.docTypeSvc.Create(context.Background(), documenttypedomain.CreateDocumentTypeRequest{
		Code: "RESTRICTED", Name: "Restricted", UnitPrice: "10.00", Currency: "EUR",
	})
	assert.NoError(t, err)
	_, err = f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{
		TenantID: f.tenantID.String(),
		Items: []domain.BatchItem{
			{VehicleID: v1.ID.String(), DocumentTypeID: restricted.ID.String(), ValidFrom: from, ValidTo: to},
		},
	})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	// Inverted validity window.
	_, err = f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{
		TenantID: f.tenantID.String(),
		Items: []domain.BatchItem{
			{VehicleID: v1.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: to, ValidTo: from},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)

	// Currency mismatch with the tenant.
	_, err = f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{
		TenantID: f.tenantID.String(),
		Currency: "USD",
		Items: []domain.BatchItem{
			{VehicleID: v1.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from, ValidTo: to},
		},
	})
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)

	// Empty batch.
	_, err = f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{TenantID: f.tenantID.String()})
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)

	atts, txs := f.counts(t)
	assert.Equal(t, int64(0), atts)
	assert.Equal(t, int64(1), txs) // the opening credit only
}

func TestCancelAndVerify(t *testing.T) {
	f := newFixture(t, tenantdomain.PaymentModelPrepaid)
	f.openPrepaidBalance(t, "100.00")
	docType := f.createDocType(t, "TRANSPORT", "40.00")
	v1 := f.createVehicle(t, "AB-123-CD")
	from, to := f.window()

	result, err := f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{
		TenantID: f.tenantID.String(),
		Items: []domain.BatchItem{
			{VehicleID: v1.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from, ValidTo: to},
		},
	})
	assert.NoError(t, err)
	issued := result.Items[0]

	verified, err := f.svc.Verify(context.Background(), issued.Reference)
	assert.NoError(t, err)
	assert.True(t, verified.Valid)
	assert.Equal(t, domain.AttestationStatusActive, verified.Status)

	cancelled, err := f.svc.Cancel(context.Background(), issued.AttestationID, "issued in error")
	assert.NoError(t, err)
	assert.Equal(t, domain.AttestationStatusCancelled, cancelled.Status)
	assert.Equal(t, "issued in error", cancelled.StatusReason)

	// Inside the validity window but cancelled: not valid.
	verified, err = f.svc.Verify(context.Background(), issued.Reference)
	assert.NoError(t, err)
	assert.False(t, verified.Valid)
	assert.Equal(t, domain.AttestationStatusCancelled, verified.Status)

	// Cancelling twice is an invalid state transition.
	_, err = f.svc.Cancel(context.Background(), issued.AttestationID, "again")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// Unknown references are reported as such.
	_, err = f.svc.Verify(context.Background(), "ATT-2025-ACME-999999")
	assert.ErrorIs(t, err, domain.ErrAttestationNotFound)
}

func TestExpireAll_IdempotentSweep(t *testing.T) {
	f := newFixture(t, tenantdomain.PaymentModelPrepaid)
	f.openPrepaidBalance(t, "200.00")
	docType := f.createDocType(t, "TRANSPORT", "40.00")
	v1 := f.createVehicle(t, "AB-123-CD")
	v2 := f.createVehicle(t, "EF-456-GH")
	from := f.clock.Now()
	shortTo := from.Add(30 * 24 * time.Hour)

	result, err := f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{
		TenantID: f.tenantID.String(),
		Items: []domain.BatchItem{
			{VehicleID: v1.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from, ValidTo: shortTo},
			{VehicleID: v2.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from, ValidTo: shortTo},
		},
	})
	assert.NoError(t, err)

	// Nothing is due yet.
	expired, err := f.svc.ExpireAll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(0), expired)

	f.clock.Advance(31 * 24 * time.Hour)

	expired, err = f.svc.ExpireAll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(2), expired)

	// Second run matches nothing.
	expired, err = f.svc.ExpireAll(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(0), expired)

	verified, err := f.svc.Verify(context.Background(), result.Items[0].Reference)
	assert.NoError(t, err)
	assert.False(t, verified.Valid)
	assert.Equal(t, domain.AttestationStatusEnded, verified.Status)

	ended, err := f.svc.GetByID(context.Background(), result.Items[0].AttestationID)
	assert.NoError(t, err)
	assert.Equal(t, "automatic expiration", ended.StatusReason)

	// An expired vehicle may be issued a fresh attestation.
	from2 := f.clock.Now()
	_, err = f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{
		TenantID: f.tenantID.String(),
		Items: []domain.BatchItem{
			{VehicleID: v1.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from2, ValidTo: from2.AddDate(1, 0, 0)},
		},
	})
	assert.NoError(t, err)
}

func TestInsertAttestation_SecondActiveRowForVehicleRejected(t *testing.T) {
	f := newFixture(t, tenantdomain.PaymentModelPrepaid)
	f.openPrepaidBalance(t, "100.00")
	docType := f.createDocType(t, "TRANSPORT", "40.00")
	vehicle := f.createVehicle(t, "AB-123-CD")
	from, to := f.window()

	_, err := f.svc.IssueBatch(context.Background(), domain.IssueBatchRequest{
		TenantID: f.tenantID.String(),
		Items: []domain.BatchItem{
			{VehicleID: vehicle.ID.String(), DocumentTypeID: docType.ID.String(), ValidFrom: from, ValidTo: to},
		},
	})
	assert.NoError(t, err)

	// Two batches for the same vehicle can both pass validation before
	// either commits. The unique index over ACTIVE rows is what holds the
	// one-active-per-vehicle invariant; the write maps to the domain error.
	now := f.clock.Now()
	dup := domain.Attestation{
		ID:                 f.node.Generate(),
		TenantID:           f.tenantID,
		VehicleID:          vehicle.ID,
		DocumentTypeID:     docType.ID,
		Reference:          "ATT-2025-ACME-000777",
		ValidFrom:          from,
		ValidTo:            to,
		Status:             domain.AttestationStatusActive,
		AmountChargedMinor: 4000,
		Currency:           "EUR",
		IssuedAt:           now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	impl := f.svc.(*Service)
	err = impl.insertAttestation(context.Background(), f.db, &dup)
	assert.ErrorIs(t, err, domain.ErrActiveAttestationExists)

	// Non-ACTIVE history rows for the same vehicle stay insertable.
	ended := dup
	ended.ID = f.node.Generate()
	ended.Reference = "ATT-2025-ACME-000778"
	ended.Status = domain.AttestationStatusEnded
	assert.NoError(t, impl.insertAttestation(context.Background(), f.db, &ended))
}
