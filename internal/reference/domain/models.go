// Package domain contains the durable sequence row backing attestation
// reference numbers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ReferenceSequence is one counter per tenant and year. The row survives
// restarts, so sequence numbers never repeat even across process lifetimes.
type ReferenceSequence struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;uniqueIndex:ux_reference_sequences_tenant_year" json:"tenant_id"`
	Year      int          `gorm:"not null;uniqueIndex:ux_reference_sequences_tenant_year" json:"year"`
	LastValue int64        `gorm:"not null;default:0" json:"last_value"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ReferenceSequence) TableName() string { return "reference_sequences" }
