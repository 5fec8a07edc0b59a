// Package domain contains the attestation model and the issuance contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AttestationStatus is the document lifecycle state. ACTIVE is the only
// non-terminal state; there is no way back once ended or cancelled.
type AttestationStatus string

const (
	AttestationStatusActive    AttestationStatus = "ACTIVE"
	AttestationStatusEnded     AttestationStatus = "ENDED"
	AttestationStatusCancelled AttestationStatus = "CANCELLED"
)

// Attestation is one issued authorization document for a vehicle. The charged
// amount is a point-in-time price snapshot, immune to later price changes.
type Attestation struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID           snowflake.ID      `gorm:"not null;index" json:"tenant_id"`
	VehicleID          snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_attestations_vehicle_active,where:status = 'ACTIVE'" json:"vehicle_id"`
	DocumentTypeID     snowflake.ID      `gorm:"not null" json:"document_type_id"`
	Reference          string            `gorm:"type:text;not null;uniqueIndex" json:"reference"`
	ValidFrom          time.Time         `gorm:"not null" json:"valid_from"`
	ValidTo            time.Time         `gorm:"not null;index" json:"valid_to"`
	Status             AttestationStatus `gorm:"type:text;not null;index" json:"status"`
	StatusReason       string            `gorm:"type:text" json:"status_reason,omitempty"`
	AmountChargedMinor int64             `gorm:"not null" json:"amount_charged_minor"`
	Currency           string            `gorm:"type:char(3);not null" json:"currency"`
	CustomFields       datatypes.JSONMap `gorm:"type:json" json:"custom_fields,omitempty"`
	DocumentPath       string            `gorm:"type:text" json:"document_path,omitempty"`
	IssuedAt           time.Time         `gorm:"not null" json:"issued_at"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Attestation) TableName() string { return "attestations" }
