// Package authorization keeps the sparse (tenant, document type) permission
// grid. Absence of a grant means not authorized.
package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/fleetpass/fleetpass/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const actionRequest = "request"

// Module provides the authorization service.
var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type BulkEntry struct {
	TenantID       string `json:"tenant_id"`
	DocumentTypeID string `json:"document_type_id"`
	Authorized     bool   `json:"authorized"`
}

type BulkResult struct {
	Index int    `json:"index"`
	Error string `json:"error,omitempty"`
}

type Service interface {
	IsAuthorized(ctx context.Context, tenantID, documentTypeID snowflake.ID) (bool, error)
	Grant(ctx context.Context, tenantID, documentTypeID snowflake.ID) error
	Revoke(ctx context.Context, tenantID, documentTypeID snowflake.ID) error
	// ApplyBulkUpdate upserts each entry independently; one bad entry does not
	// stop the rest.
	ApplyBulkUpdate(ctx context.Context, entries []BulkEntry) []BulkResult
	// RequestGrant notifies operators that a tenant wants access to a type.
	RequestGrant(ctx context.Context, tenantID, documentTypeID snowflake.ID) error
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Enforcer    *casbin.SyncedEnforcer
	Notifier    email.Notifier
	OperatorsTo []string `name:"operators_email" optional:"true"`
}

type ServiceImpl struct {
	log         *zap.Logger
	enforcer    *casbin.SyncedEnforcer
	notifier    email.Notifier
	operatorsTo []string
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:         p.Log.Named("authorization.service"),
		enforcer:    p.Enforcer,
		notifier:    p.Notifier,
		operatorsTo: p.OperatorsTo,
	}
}

func (s *ServiceImpl) IsAuthorized(ctx context.Context, tenantID, documentTypeID snowflake.ID) (bool, error) {
	if tenantID == 0 || documentTypeID == 0 {
		return false, nil
	}
	return s.enforcer.Enforce(subject(tenantID), object(documentTypeID), actionRequest)
}

func (s *ServiceImpl) Grant(ctx context.Context, tenantID, documentTypeID snowflake.ID) error {
	if tenantID == 0 {
		return ErrInvalidSubject
	}
	if documentTypeID == 0 {
		return ErrInvalidObject
	}
	// AddPolicy returns false when the rule already exists; grants are idempotent.
	_, err := s.enforcer.AddPolicy(subject(tenantID), object(documentTypeID), actionRequest)
	if err != nil {
		return err
	}
	s.log.Info("authorization granted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("document_type_id", documentTypeID.String()),
	)
	return nil
}

func (s *ServiceImpl) Revoke(ctx context.Context, tenantID, documentTypeID snowflake.ID) error {
	if tenantID == 0 {
		return ErrInvalidSubject
	}
	if documentTypeID == 0 {
		return ErrInvalidObject
	}
	_, err := s.enforcer.RemovePolicy(subject(tenantID), object(documentTypeID), actionRequest)
	if err != nil {
		return err
	}
	s.log.Info("authorization revoked",
		zap.String("tenant_id", tenantID.String()),
		zap.String("document_type_id", documentTypeID.String()),
	)
	return nil
}

func (s *ServiceImpl) ApplyBulkUpdate(ctx context.Context, entries []BulkEntry) []BulkResult {
	results := make([]BulkResult, 0, len(entries))
	for i, entry := range entries {
		result := BulkResult{Index: i}
		if err := s.applyEntry(ctx, entry); err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

func (s *ServiceImpl) applyEntry(ctx context.Context, entry BulkEntry) error {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(entry.TenantID))
	if err != nil || tenantID == 0 {
		return ErrInvalidSubject
	}
	documentTypeID, err := snowflake.ParseString(strings.TrimSpace(entry.DocumentTypeID))
	if err != nil || documentTypeID == 0 {
		return ErrInvalidObject
	}
	if entry.Authorized {
		return s.Grant(ctx, tenantID, documentTypeID)
	}
	return s.Revoke(ctx, tenantID, documentTypeID)
}

func (s *ServiceImpl) RequestGrant(ctx context.Context, tenantID, documentTypeID snowflake.ID) error {
	if tenantID == 0 {
		return ErrInvalidSubject
	}
	if documentTypeID == 0 {
		return ErrInvalidObject
	}
	if len(s.operatorsTo) == 0 {
		return nil
	}

	body := fmt.Sprintf(
		"<p>Tenant %s requests authorization for document type %s.</p>",
		tenantID.String(),
		documentTypeID.String(),
	)
	if err := s.notifier.Send(ctx, s.operatorsTo, "Authorization request", body); err != nil {
		s.log.Warn("authorization request notification failed", zap.Error(err))
	}
	return nil
}

func subject(tenantID snowflake.ID) string {
	return "tenant:" + tenantID.String()
}

func object(documentTypeID snowflake.ID) string {
	return "doctype:" + documentTypeID.String()
}
