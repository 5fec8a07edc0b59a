// Package domain contains persistence models for attestation document types.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// DocumentType is a priced kind of attestation a tenant can request.
type DocumentType struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Code           string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name           string       `gorm:"not null" json:"name"`
	UnitPriceMinor int64        `gorm:"not null" json:"unit_price_minor"`
	Currency       string       `gorm:"type:char(3);not null" json:"currency"`
	Active         bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (DocumentType) TableName() string { return "document_types" }

type CreateDocumentTypeRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Currency  string `json:"currency"`
}

type UpdatePriceRequest struct {
	ID        string `json:"id"`
	UnitPrice string `json:"unit_price"`
}

type Service interface {
	Create(ctx context.Context, req CreateDocumentTypeRequest) (DocumentType, error)
	UpdatePrice(ctx context.Context, req UpdatePriceRequest) (DocumentType, error)
	GetByID(ctx context.Context, id string) (DocumentType, error)
	List(ctx context.Context) ([]DocumentType, error)
	// PriceSnapshot reads the current unit price of an active type within the
	// caller's transaction; issuance pricing is point-in-time.
	PriceSnapshot(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*DocumentType, error)
}

var (
	ErrInvalidDocumentType  = errors.New("invalid_document_type")
	ErrInvalidTypeCode      = errors.New("invalid_document_type_code")
	ErrInvalidTypeName      = errors.New("invalid_document_type_name")
	ErrInvalidPrice         = errors.New("invalid_unit_price")
	ErrDocumentTypeNotFound = errors.New("document_type_not_found")
	ErrDocumentTypeInactive = errors.New("document_type_inactive")
	ErrDuplicateTypeCode    = errors.New("duplicate_document_type_code")
)
