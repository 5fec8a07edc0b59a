// Package scheduler runs the attestation expiry sweep on a fixed interval.
// The sweep is an idempotent set-transition, so overlapping or retried runs
// are harmless; the redis lease only avoids duplicate work across nodes.
package scheduler

import (
	"context"
	"errors"
	"time"

	attestationdomain "github.com/fleetpass/fleetpass/internal/attestation/domain"
	"github.com/fleetpass/fleetpass/internal/clock"
	"github.com/fleetpass/fleetpass/internal/joblock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const expiryLockKey = "fleetpass:jobs:expiry-sweep"

var ErrInvalidConfig = errors.New("scheduler requires attestation service, clock and logger")

type Params struct {
	fx.In

	Log            *zap.Logger
	Clock          clock.Clock
	AttestationSvc attestationdomain.Service
	Locker         *joblock.Locker `optional:"true"`
	Config         Config          `optional:"true"`
}

type Scheduler struct {
	log            *zap.Logger
	cfg            Config
	clock          clock.Clock
	attestationSvc attestationdomain.Service
	locker         *joblock.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.AttestationSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:            p.Log.Named("scheduler"),
		cfg:            p.Config.withDefaults(),
		clock:          p.Clock,
		attestationSvc: p.AttestationSvc,
		locker:         p.Locker,
	}, nil
}

// RunOnce performs a single guarded sweep.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	token, acquired, err := s.locker.TryLock(ctx, expiryLockKey, s.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		s.log.Debug("expiry sweep lock held elsewhere, skipping run")
		return nil
	}
	defer func() {
		if err := s.locker.Release(ctx, expiryLockKey, token); err != nil {
			s.log.Warn("failed to release sweep lock", zap.Error(err))
		}
	}()

	start := s.clock.Now()
	expired, err := s.attestationSvc.ExpireAll(ctx)
	if err != nil {
		return err
	}
	s.log.Info("expiry sweep run finished",
		zap.Int64("expired", expired),
		zap.Duration("took", s.clock.Now().Sub(start)),
	)
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("expiry sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
