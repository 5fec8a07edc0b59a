package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/documenttype/domain"
	"github.com/fleetpass/fleetpass/internal/money"
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
		log:   p.Log.Named("documenttype.service"),
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateDocumentTypeRequest) (domain.DocumentType, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return domain.DocumentType{}, domain.ErrInvalidTypeCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.DocumentType{}, domain.ErrInvalidTypeName
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return domain.DocumentType{}, domain.ErrInvalidDocumentType
	}
	priceMinor, err := money.ParsePositiveMinor(req.UnitPrice)
	if err != nil {
		return domain.DocumentType{}, domain.ErrInvalidPrice
	}

	now := time.Now().UTC()
	docType := domain.DocumentType{
		ID:             s.genID.Generate(),
		Code:           code,
		Name:           name,
		UnitPriceMinor: priceMinor,
		Currency:       currency,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Exec(
		`INSERT INTO document_types (id, code, name, unit_price_minor, currency, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		docType.ID,
		docType.Code,
		docType.Name,
		docType.UnitPriceMinor,
		docType.Currency,
		docType.Active,
		docType.CreatedAt,
		docType.UpdatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.DocumentType{}, domain.ErrDuplicateTypeCode
		}
		return domain.DocumentType{}, err
	}

	return docType, nil
}

func (s *Service) UpdatePrice(ctx context.Context, req domain.UpdatePriceRequest) (domain.DocumentType, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.DocumentType{}, domain.ErrInvalidDocumentType
	}
	priceMinor, err := money.ParsePositiveMinor(req.UnitPrice)
	if err != nil {
		return domain.DocumentType{}, domain.ErrInvalidPrice
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE document_types SET unit_price_minor = ?, updated_at = ? WHERE id = ?`,
		priceMinor,
		time.Now().UTC(),
		id,
	)
	if result.Error != nil {
		return domain.DocumentType{}, result.Error
	}
	if result.RowsAffected == 0 {
		return domain.DocumentType{}, domain.ErrDocumentTypeNotFound
	}

	return s.GetByID(ctx, req.ID)
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.DocumentType, error) {
	typeID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || typeID == 0 {
		return domain.DocumentType{}, domain.ErrInvalidDocumentType
	}

	docType, err := s.findByID(ctx, s.db, typeID)
	if err != nil {
		return domain.DocumentType{}, err
	}
	if docType == nil {
		return domain.DocumentType{}, domain.ErrDocumentTypeNotFound
	}
	return *docType, nil
}

func (s *Service) List(ctx context.Context) ([]domain.DocumentType, error) {
	var types []domain.DocumentType
	err := s.db.WithContext(ctx).
		Model(&domain.DocumentType{}).
		Order("code asc").
		Find(&types).Error
	if err != nil {
		return nil, err
	}
	return types, nil
}

func (s *Service) PriceSnapshot(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.DocumentType, error) {
	docType, err := s.findByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if docType == nil {
		return nil, domain.ErrDocumentTypeNotFound
	}
	if !docType.Active {
		return nil, domain.ErrDocumentTypeInactive
	}
	return docType, nil
}

func (s *Service) findByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.DocumentType, error) {
	var docType domain.DocumentType
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, unit_price_minor, currency, active, created_at, updated_at
		 FROM document_types WHERE id = ?`,
		id,
	).Scan(&docType).Error
	if err != nil {
		return nil, err
	}
	if docType.ID == 0 {
		return nil, nil
	}
	return &docType, nil
}
