package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/internal/clock"
	"github.com/fleetpass/fleetpass/internal/money"
	"github.com/fleetpass/fleetpass/internal/subscription/domain"
	tenantdomain "github.com/fleetpass/fleetpass/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	TenantSvc tenantdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	tenantSvc tenantdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("subscription.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		tenantSvc: p.TenantSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateSubscriptionRequest) (domain.Subscription, error) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(req.TenantID))
	if err != nil || tenantID == 0 {
		return domain.Subscription{}, domain.ErrInvalidSubscription
	}

	if req.Kind != domain.SubscriptionKindCreditLine && req.Kind != domain.SubscriptionKindDeposit {
		return domain.Subscription{}, domain.ErrInvalidSubscriptionKind
	}

	limitMinor, err := money.ParsePositiveMinor(req.Limit)
	if err != nil {
		return domain.Subscription{}, domain.ErrInvalidLimit
	}

	_, model, err := s.tenantSvc.ResolvePaymentModel(ctx, tenantID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if (req.Kind == domain.SubscriptionKindCreditLine && model != tenantdomain.PaymentModelCreditLine) ||
		(req.Kind == domain.SubscriptionKindDeposit && model != tenantdomain.PaymentModelDeposit) {
		return domain.Subscription{}, domain.ErrSubscriptionKindMismatch
	}

	now := s.clock.Now()
	startAt := req.StartAt
	if startAt.IsZero() {
		startAt = now
	}

	subscription := domain.Subscription{
		ID:         s.genID.Generate(),
		TenantID:   tenantID,
		Kind:       req.Kind,
		LimitMinor: limitMinor,
		Status:     domain.SubscriptionStatusActive,
		StartAt:    startAt.UTC(),
		EndAt:      req.EndAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByTenantID(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status != domain.SubscriptionStatusTerminated {
			return domain.ErrSubscriptionExists
		}
		return s.repo.Insert(ctx, tx, &subscription)
	})
	if err != nil {
		return domain.Subscription{}, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("kind", string(req.Kind)),
	)
	return subscription, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Subscription, error) {
	subscriptionID, err := s.parseID(id)
	if err != nil {
		return domain.Subscription{}, err
	}

	subscription, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if subscription == nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	return *subscription, nil
}

// ChangeStatus moves a subscription through its lifecycle. The row is locked
// for the duration of the transition and every change is logged with its
// reason. Balance state is never touched from here.
func (s *Service) ChangeStatus(ctx context.Context, req domain.ChangeStatusRequest) (domain.Subscription, error) {
	subscriptionID, err := s.parseID(req.SubscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if !domain.ValidStatus(req.TargetStatus) {
		return domain.Subscription{}, domain.ErrInvalidTargetStatus
	}

	var updated domain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return domain.ErrSubscriptionNotFound
		}

		if !domain.IsTransitionAllowed(subscription.Status, req.TargetStatus) {
			return domain.ErrInvalidTransition
		}

		if err := s.repo.UpdateStatus(ctx, tx, subscriptionID, req.TargetStatus); err != nil {
			return err
		}

		entry := domain.SubscriptionStatusLog{
			ID:             s.genID.Generate(),
			SubscriptionID: subscriptionID,
			PreviousStatus: subscription.Status,
			NewStatus:      req.TargetStatus,
			Reason:         strings.TrimSpace(req.Reason),
			OccurredAt:     s.clock.Now(),
		}
		if err := s.repo.InsertStatusLog(ctx, tx, &entry); err != nil {
			return err
		}

		subscription.Status = req.TargetStatus
		updated = *subscription
		return nil
	})
	if err != nil {
		return domain.Subscription{}, err
	}

	s.log.Info("subscription status changed",
		zap.String("subscription_id", subscriptionID.String()),
		zap.String("previous_status", string(updated.Status)),
		zap.String("new_status", string(req.TargetStatus)),
		zap.String("reason", req.Reason),
	)
	return updated, nil
}

func (s *Service) ListStatusLogs(ctx context.Context, subscriptionID string) ([]domain.SubscriptionStatusLog, error) {
	id, err := s.parseID(subscriptionID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStatusLogs(ctx, s.db, id)
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidSubscription
	}
	return id, nil
}
