package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateSubscriptionRequest struct {
	TenantID string           `json:"tenant_id"`
	Kind     SubscriptionKind `json:"kind"`
	// Limit is the monthly credit limit (CREDIT_LINE) or the security deposit
	// (DEPOSIT) as a decimal string.
	Limit   string     `json:"limit"`
	StartAt time.Time  `json:"start_at"`
	EndAt   *time.Time `json:"end_at,omitempty"`
}

type ChangeStatusRequest struct {
	SubscriptionID string             `json:"subscription_id"`
	TargetStatus   SubscriptionStatus `json:"target_status"`
	Reason         string             `json:"reason"`
}

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error)
	GetByID(ctx context.Context, id string) (Subscription, error)
	ChangeStatus(ctx context.Context, req ChangeStatusRequest) (Subscription, error)
	ListStatusLogs(ctx context.Context, subscriptionID string) ([]SubscriptionStatusLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByTenantID(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Subscription, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status SubscriptionStatus) error
	InsertStatusLog(ctx context.Context, db *gorm.DB, entry *SubscriptionStatusLog) error
	ListStatusLogs(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]SubscriptionStatusLog, error)
}

var (
	ErrInvalidSubscription      = errors.New("invalid_subscription")
	ErrInvalidSubscriptionKind  = errors.New("invalid_subscription_kind")
	ErrInvalidLimit             = errors.New("invalid_limit")
	ErrInvalidTargetStatus      = errors.New("invalid_target_status")
	ErrInvalidTransition        = errors.New("invalid_transition")
	ErrSubscriptionNotFound     = errors.New("subscription_not_found")
	ErrSubscriptionExists       = errors.New("subscription_already_exists")
	ErrSubscriptionKindMismatch = errors.New("subscription_kind_mismatch")
)

var allowedTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusActive:     {SubscriptionStatusSuspended, SubscriptionStatusExpired, SubscriptionStatusTerminated},
	SubscriptionStatusSuspended:  {SubscriptionStatusActive, SubscriptionStatusTerminated},
	SubscriptionStatusExpired:    {SubscriptionStatusActive, SubscriptionStatusTerminated},
	SubscriptionStatusTerminated: {},
}

// IsTransitionAllowed checks the lifecycle table. Self-transitions are
// rejected; TERMINATED is absorbing.
func IsTransitionAllowed(from, to SubscriptionStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether the value is a known lifecycle state.
func ValidStatus(status SubscriptionStatus) bool {
	switch status {
	case SubscriptionStatusActive, SubscriptionStatusSuspended, SubscriptionStatusExpired, SubscriptionStatusTerminated:
		return true
	default:
		return false
	}
}
