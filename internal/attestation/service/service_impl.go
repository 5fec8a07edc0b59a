// Package service implements the attestation issuance orchestrator. A batch
// is one billing event: every item is validated, the total is debited once,
// and all attestation rows are inserted in the same storage transaction.
// Document rendering happens after commit and never feeds back into the
// ledger.
package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/alert"
	"github.com/fleetpass/fleetpass/internal/attestation/domain"
	"github.com/fleetpass/fleetpass/internal/authorization"
	balancedomain "github.com/fleetpass/fleetpass/internal/balance/domain"
	"github.com/fleetpass/fleetpass/internal/cache"
	"github.com/fleetpass/fleetpass/internal/clock"
	"github.com/fleetpass/fleetpass/internal/config"
	documenttypedomain "github.com/fleetpass/fleetpass/internal/documenttype/domain"
	"github.com/fleetpass/fleetpass/internal/money"
	"github.com/fleetpass/fleetpass/internal/observability/metrics"
	"github.com/fleetpass/fleetpass/internal/providers/pdf"
	"github.com/fleetpass/fleetpass/internal/reference"
	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	vehicledomain "github.com/fleetpass/fleetpass/internal/vehicle/domain"
	"github.com/fleetpass/fleetpass/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	TenantSvc   tenantdomain.Service
	VehicleSvc  vehicledomain.Service
	DocTypeSvc  documenttypedomain.Service
	AuthzSvc    authorization.Service
	BalanceSvc  balancedomain.Service
	RefGen      reference.Generator
	PDF         pdf.Provider
	VerifyCache cache.VerifyCache
	Metrics     *metrics.Metrics `optional:"true"`
	Alerts      alert.Checker    `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	documentDir string
	batchSize   int
	tenantSvc   tenantdomain.Service
	vehicleSvc  vehicledomain.Service
	docTypeSvc  documenttypedomain.Service
	authzSvc    authorization.Service
	balanceSvc  balancedomain.Service
	refGen      reference.Generator
	pdf         pdf.Provider
	verifyCache cache.VerifyCache
	metrics     *metrics.Metrics
	alerts      alert.Checker
}

func New(p Params) domain.Service {
	batchSize := p.Config.SweepBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("attestation.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		documentDir: p.Config.DocumentDir,
		batchSize:   batchSize,
		tenantSvc:   p.TenantSvc,
		vehicleSvc:  p.VehicleSvc,
		docTypeSvc:  p.DocTypeSvc,
		authzSvc:    p.AuthzSvc,
		balanceSvc:  p.BalanceSvc,
		refGen:      p.RefGen,
		pdf:         p.PDF,
		verifyCache: p.VerifyCache,
		metrics:     p.Metrics,
		alerts:      p.Alerts,
	}
}

type pricedItem struct {
	index   int
	item    domain.BatchItem
	vehicle vehicledomain.Vehicle
	docType documenttypedomain.DocumentType
}

func (s *Service) IssueBatch(ctx context.Context, req domain.IssueBatchRequest) (domain.BatchResult, error) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(req.TenantID))
	if err != nil || tenantID == 0 {
		return domain.BatchResult{}, domain.ErrInvalidBatch
	}
	if len(req.Items) == 0 {
		return domain.BatchResult{}, domain.ErrEmptyBatch
	}

	tenant, model, err := s.tenantSvc.ResolvePaymentModel(ctx, tenantID)
	if err != nil {
		return domain.BatchResult{}, err
	}
	if currency := strings.ToUpper(strings.TrimSpace(req.Currency)); currency != "" && currency != tenant.Currency {
		return domain.BatchResult{}, domain.ErrCurrencyMismatch
	}

	var (
		issued   []domain.Attestation
		priced   []pricedItem
		ledgerTx balancedomain.Transaction
	)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		seen := make(map[snowflake.ID]struct{}, len(req.Items))
		var totalMinor int64

		for i, item := range req.Items {
			vehicleID, err := snowflake.ParseString(strings.TrimSpace(item.VehicleID))
			if err != nil || vehicleID == 0 {
				return &domain.BatchItemError{Index: i, Err: vehicledomain.ErrInvalidVehicle}
			}
			typeID, err := snowflake.ParseString(strings.TrimSpace(item.DocumentTypeID))
			if err != nil || typeID == 0 {
				return &domain.BatchItemError{Index: i, Err: documenttypedomain.ErrInvalidDocumentType}
			}
			if item.ValidFrom.IsZero() || item.ValidTo.IsZero() || !item.ValidFrom.Before(item.ValidTo) {
				return &domain.BatchItemError{Index: i, Err: domain.ErrInvalidWindow}
			}
			if _, dup := seen[vehicleID]; dup {
				return &domain.BatchItemError{Index: i, Err: domain.ErrDuplicateVehicleInBatch}
			}
			seen[vehicleID] = struct{}{}

			authorized, err := s.authzSvc.IsAuthorized(ctx, tenantID, typeID)
			if err != nil {
				return &domain.BatchItemError{Index: i, Err: err}
			}
			if !authorized {
				return &domain.BatchItemError{Index: i, Err: domain.ErrNotAuthorized}
			}

			vehicle, err := s.vehicleSvc.EligibleForIssuance(ctx, tx, tenantID, vehicleID)
			if err != nil {
				return &domain.BatchItemError{Index: i, Err: err}
			}

			hasActive, err := s.hasActiveAttestation(ctx, tx, vehicleID)
			if err != nil {
				return &domain.BatchItemError{Index: i, Err: err}
			}
			if hasActive {
				return &domain.BatchItemError{Index: i, Err: domain.ErrActiveAttestationExists}
			}

			docType, err := s.docTypeSvc.PriceSnapshot(ctx, tx, typeID)
			if err != nil {
				return &domain.BatchItemError{Index: i, Err: err}
			}

			totalMinor += docType.UnitPriceMinor
			priced = append(priced, pricedItem{index: i, item: item, vehicle: *vehicle, docType: *docType})
		}

		batchID := s.genID.Generate()
		ledgerTx, err = s.balanceSvc.DebitTx(ctx, tx, tenant, totalMinor,
			fmt.Sprintf("attestation batch (%d items)", len(priced)),
			fmt.Sprintf("BATCH-%s", batchID),
		)
		if err != nil {
			return err
		}

		for _, pi := range priced {
			ref, err := s.refGen.Next(ctx, tx, tenant)
			if err != nil {
				return err
			}

			attestation := domain.Attestation{
				ID:                 s.genID.Generate(),
				TenantID:           tenantID,
				VehicleID:          pi.vehicle.ID,
				DocumentTypeID:     pi.docType.ID,
				Reference:          ref,
				ValidFrom:          pi.item.ValidFrom.UTC(),
				ValidTo:            pi.item.ValidTo.UTC(),
				Status:             domain.AttestationStatusActive,
				AmountChargedMinor: pi.docType.UnitPriceMinor,
				Currency:           tenant.Currency,
				CustomFields:       datatypes.JSONMap(pi.item.CustomFields),
				IssuedAt:           now,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if err := s.insertAttestation(ctx, tx, &attestation); err != nil {
				return err
			}
			issued = append(issued, attestation)
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordIssuanceBatch(ctx, "rejected", len(req.Items))
		return domain.BatchResult{}, err
	}

	s.metrics.RecordIssuanceBatch(ctx, "issued", len(issued))
	s.metrics.RecordLedgerTransaction(ctx, string(ledgerTx.Kind))
	if s.alerts != nil && model != tenantdomain.PaymentModelCreditLine {
		kind := balancedomain.BalanceKindPrepaid
		if model == tenantdomain.PaymentModelDeposit {
			kind = balancedomain.BalanceKindDeposit
		}
		s.alerts.CheckLowBalance(ctx, tenant, balancedomain.Balance{
			TenantID:    tenant.ID,
			Kind:        kind,
			AmountMinor: ledgerTx.BalanceAfterMinor,
			Currency:    ledgerTx.Currency,
		})
	}

	result := domain.BatchResult{
		Items:               make([]domain.BatchItemResult, 0, len(issued)),
		TotalChargedMinor:   ledgerTx.AmountMinor,
		TotalCharged:        money.FormatMinor(ledgerTx.AmountMinor),
		Currency:            tenant.Currency,
		PaymentModel:        string(model),
		LedgerTransactionID: ledgerTx.ID.String(),
	}

	// Rendering runs post-commit: a failure here is logged and retryable via
	// RenderDocument, never rolled back into the ledger.
	for i, attestation := range issued {
		path, err := s.renderAndStore(ctx, tenant, attestation, priced[i].vehicle, priced[i].docType)
		if err != nil {
			s.log.Error("document rendering failed after commit",
				zap.String("attestation_id", attestation.ID.String()),
				zap.String("reference", attestation.Reference),
				zap.Error(err),
			)
			s.metrics.RecordRenderFailure(ctx, "issuance")
		}
		result.Items = append(result.Items, domain.BatchItemResult{
			AttestationID: attestation.ID.String(),
			Reference:     attestation.Reference,
			ValidFrom:     attestation.ValidFrom,
			ValidTo:       attestation.ValidTo,
			DocumentPath:  path,
		})
	}

	s.log.Info("attestation batch issued",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("items", len(issued)),
		zap.Int64("total_charged_minor", ledgerTx.AmountMinor),
		zap.String("payment_model", string(model)),
	)
	return result, nil
}

func (s *Service) Cancel(ctx context.Context, id, reason string) (domain.Attestation, error) {
	attestationID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || attestationID == 0 {
		return domain.Attestation{}, domain.ErrInvalidAttestation
	}

	var updated domain.Attestation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attestation, err := s.findByIDForUpdate(ctx, tx, attestationID)
		if err != nil {
			return err
		}
		if attestation == nil {
			return domain.ErrAttestationNotFound
		}
		if attestation.Status != domain.AttestationStatusActive {
			return domain.ErrInvalidState
		}

		now := s.clock.Now()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE attestations SET status = ?, status_reason = ?, updated_at = ? WHERE id = ?`,
			domain.AttestationStatusCancelled,
			strings.TrimSpace(reason),
			now,
			attestationID,
		).Error; err != nil {
			return err
		}

		attestation.Status = domain.AttestationStatusCancelled
		attestation.StatusReason = strings.TrimSpace(reason)
		attestation.UpdatedAt = now
		updated = *attestation
		return nil
	})
	if err != nil {
		return domain.Attestation{}, err
	}

	s.verifyCache.Invalidate(updated.Reference)
	s.log.Info("attestation cancelled",
		zap.String("attestation_id", updated.ID.String()),
		zap.String("reference", updated.Reference),
		zap.String("reason", reason),
	)
	return updated, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Attestation, error) {
	attestationID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || attestationID == 0 {
		return domain.Attestation{}, domain.ErrInvalidAttestation
	}

	attestation, err := s.findByID(ctx, s.db, attestationID)
	if err != nil {
		return domain.Attestation{}, err
	}
	if attestation == nil {
		return domain.Attestation{}, domain.ErrAttestationNotFound
	}
	return *attestation, nil
}

func (s *Service) ListByTenant(ctx context.Context, tenantID string) ([]domain.Attestation, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(tenantID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidAttestation
	}

	var attestations []domain.Attestation
	err = s.db.WithContext(ctx).
		Model(&domain.Attestation{}).
		Where("tenant_id = ?", id).
		Order("issued_at desc, id desc").
		Find(&attestations).Error
	if err != nil {
		return nil, err
	}
	return attestations, nil
}

func (s *Service) Verify(ctx context.Context, ref string) (domain.VerifyResult, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ref))
	if normalized == "" {
		return domain.VerifyResult{}, domain.ErrInvalidAttestation
	}

	if cached, ok := s.verifyCache.Get(normalized); ok {
		return cached, nil
	}

	var attestation domain.Attestation
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, reference, status, valid_from, valid_to FROM attestations WHERE reference = ?`,
		normalized,
	).Scan(&attestation).Error
	if err != nil {
		return domain.VerifyResult{}, err
	}
	if attestation.ID == 0 {
		return domain.VerifyResult{}, domain.ErrAttestationNotFound
	}

	now := s.clock.Now()
	result := domain.VerifyResult{
		Reference: attestation.Reference,
		Status:    attestation.Status,
		ValidFrom: attestation.ValidFrom,
		ValidTo:   attestation.ValidTo,
		Valid: attestation.Status == domain.AttestationStatusActive &&
			!now.Before(attestation.ValidFrom) &&
			!now.After(attestation.ValidTo),
	}
	s.verifyCache.Set(normalized, result)
	return result, nil
}

// ExpireAll ends every ACTIVE attestation whose validity window has passed.
// Each attestation is transitioned independently: one failure is logged and
// the sweep continues. The status guard in the UPDATE makes re-runs match
// nothing.
func (s *Service) ExpireAll(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	var total int64

	for {
		type dueRow struct {
			ID        snowflake.ID `gorm:"column:id"`
			Reference string       `gorm:"column:reference"`
		}
		var due []dueRow
		err := s.db.WithContext(ctx).Raw(
			`SELECT id, reference FROM attestations
			 WHERE status = ? AND valid_to < ?
			 ORDER BY id
			 LIMIT ?`,
			domain.AttestationStatusActive,
			now,
			s.batchSize,
		).Scan(&due).Error
		if err != nil {
			return total, err
		}
		if len(due) == 0 {
			break
		}

		for _, row := range due {
			result := s.db.WithContext(ctx).Exec(
				`UPDATE attestations SET status = ?, status_reason = ?, updated_at = ?
				 WHERE id = ? AND status = ?`,
				domain.AttestationStatusEnded,
				"automatic expiration",
				now,
				row.ID,
				domain.AttestationStatusActive,
			)
			if result.Error != nil {
				s.log.Error("failed to expire attestation",
					zap.String("attestation_id", row.ID.String()),
					zap.Error(result.Error),
				)
				continue
			}
			if result.RowsAffected > 0 {
				total += result.RowsAffected
				s.verifyCache.Invalidate(row.Reference)
			}
		}

		if len(due) < s.batchSize {
			break
		}
	}

	if total > 0 {
		s.log.Info("expiry sweep completed", zap.Int64("expired", total))
	}
	s.metrics.RecordAttestationsExpired(ctx, total)
	return total, nil
}

// RenderDocument regenerates the certificate for an attestation, for example
// after a post-commit rendering failure during issuance.
func (s *Service) RenderDocument(ctx context.Context, id string) (string, error) {
	attestation, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	tenant, err := s.tenantSvc.GetByID(ctx, attestation.TenantID.String())
	if err != nil {
		return "", err
	}
	vehicle, err := s.vehicleSvc.GetByID(ctx, attestation.VehicleID.String())
	if err != nil {
		return "", err
	}
	docType, err := s.docTypeSvc.GetByID(ctx, attestation.DocumentTypeID.String())
	if err != nil {
		return "", err
	}

	path, err := s.renderAndStore(ctx, tenant, attestation, vehicle, docType)
	if err != nil {
		s.metrics.RecordRenderFailure(ctx, "rerender")
		return "", err
	}
	return path, nil
}

func (s *Service) renderAndStore(ctx context.Context, tenant tenantdomain.Tenant, attestation domain.Attestation, vehicle vehicledomain.Vehicle, docType documenttypedomain.DocumentType) (string, error) {
	data := pdf.CertificateData{
		Reference:    attestation.Reference,
		TenantName:   tenant.Name,
		TenantCode:   tenant.Code,
		Registration: vehicle.Registration,
		DocumentType: docType.Name,
		ValidFrom:    attestation.ValidFrom.Format("2006-01-02"),
		ValidTo:      attestation.ValidTo.Format("2006-01-02"),
		IssuedAt:     attestation.IssuedAt.Format("2006-01-02"),
		AmountLine: fmt.Sprintf("Charged %s %s via %s",
			money.FormatMinor(attestation.AmountChargedMinor),
			attestation.Currency,
			tenant.PaymentModel,
		),
	}

	reader, err := s.pdf.GenerateCertificate(ctx, data)
	if err != nil {
		return "", err
	}
	if reader == nil {
		return "", nil
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.documentDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.documentDir, attestation.Reference+".pdf")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}

	if err := s.db.WithContext(ctx).Exec(
		`UPDATE attestations SET document_path = ?, updated_at = ? WHERE id = ?`,
		path,
		s.clock.Now(),
		attestation.ID,
	).Error; err != nil {
		return "", err
	}
	return path, nil
}

func (s *Service) hasActiveAttestation(ctx context.Context, tx *gorm.DB, vehicleID snowflake.ID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM attestations WHERE vehicle_id = ? AND status = ?`,
		vehicleID,
		domain.AttestationStatusActive,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) insertAttestation(ctx context.Context, tx *gorm.DB, attestation *domain.Attestation) error {
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO attestations (id, tenant_id, vehicle_id, document_type_id, reference, valid_from, valid_to, status, status_reason, amount_charged_minor, currency, custom_fields, document_path, issued_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?, '', ?, ?, ?)`,
		attestation.ID,
		attestation.TenantID,
		attestation.VehicleID,
		attestation.DocumentTypeID,
		attestation.Reference,
		attestation.ValidFrom,
		attestation.ValidTo,
		attestation.Status,
		attestation.AmountChargedMinor,
		attestation.Currency,
		attestation.CustomFields,
		attestation.IssuedAt,
		attestation.CreatedAt,
		attestation.UpdatedAt,
	).Error
	// References are allocated under the sequence row lock in this same
	// transaction, so a duplicate key here can only be the one-ACTIVE-per-
	// vehicle index losing a race that the validation read did not see.
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrActiveAttestationExists
	}
	return err
}

func (s *Service) findByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Attestation, error) {
	return s.findOne(ctx, db,
		`SELECT `+attestationColumns+` FROM attestations WHERE id = ?`, id)
}

func (s *Service) findByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Attestation, error) {
	return s.findOne(ctx, tx,
		`SELECT `+attestationColumns+` FROM attestations WHERE id = ? FOR UPDATE`, id)
}

const attestationColumns = `id, tenant_id, vehicle_id, document_type_id, reference, valid_from, valid_to, status, status_reason, amount_charged_minor, currency, custom_fields, document_path, issued_at, created_at, updated_at`

func (s *Service) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Attestation, error) {
	var attestation domain.Attestation
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&attestation).Error; err != nil {
		return nil, err
	}
	if attestation.ID == 0 {
		return nil, nil
	}
	return &attestation, nil
}

var Module = fx.Module("attestation.service", fx.Provide(New))
