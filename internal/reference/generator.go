// Package reference produces collision-free attestation reference strings of
// the form ATT-<year>-<tenant code>-<sequence>.
package reference

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/clock"
	"github.com/fleetpass/fleetpass/internal/reference/domain"
	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Generator issues the next reference for a tenant. Next must run inside the
// caller's transaction so an aborted issuance never burns a visible gap in
// committed references.
type Generator interface {
	Next(ctx context.Context, tx *gorm.DB, tenant tenantdomain.Tenant) (string, error)
}

type Params struct {
	fx.In

	GenID *snowflake.Node
	Clock clock.Clock
}

type generator struct {
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) Generator {
	return &generator{genID: p.GenID, clock: p.Clock}
}

var Module = fx.Module("reference.generator", fx.Provide(New))

// Next locks the tenant's counter row for the current year, creating it on
// first use, and returns the formatted reference. Concurrent issuances for
// the same tenant serialize on the row lock.
func (g *generator) Next(ctx context.Context, tx *gorm.DB, tenant tenantdomain.Tenant) (string, error) {
	year := g.clock.Now().Year()

	var row domain.ReferenceSequence
	if err := tx.WithContext(ctx).Raw(
		`SELECT id, tenant_id, year, last_value, updated_at
		 FROM reference_sequences
		 WHERE tenant_id = ? AND year = ?
		 FOR UPDATE`,
		tenant.ID, year,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	if row.ID == 0 {
		row = domain.ReferenceSequence{
			ID:        g.genID.Generate(),
			TenantID:  tenant.ID,
			Year:      year,
			LastValue: 0,
			UpdatedAt: g.clock.Now(),
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO reference_sequences (id, tenant_id, year, last_value, updated_at)
			 VALUES (?, ?, ?, 0, ?)`,
			row.ID, row.TenantID, row.Year, row.UpdatedAt,
		).Error; err != nil {
			return "", err
		}
	}

	next := row.LastValue + 1
	result := tx.WithContext(ctx).Exec(
		`UPDATE reference_sequences SET last_value = ?, updated_at = ? WHERE id = ? AND last_value = ?`,
		next, g.clock.Now(), row.ID, row.LastValue,
	)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected != 1 {
		return "", gorm.ErrInvalidTransaction
	}

	return Format(year, tenant.Code, next), nil
}

// Format renders a reference string. Exposed for verification parsing.
func Format(year int, tenantCode string, sequence int64) string {
	return fmt.Sprintf("ATT-%d-%s-%06d", year, strings.ToUpper(strings.TrimSpace(tenantCode)), sequence)
}
