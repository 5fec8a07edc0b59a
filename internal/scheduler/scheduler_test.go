package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	attestationdomain "github.com/fleetpass/fleetpass/internal/attestation/domain"
	"github.com/fleetpass/fleetpass/internal/clock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type stubAttestationSvc struct {
	attestationdomain.Service

	calls   int
	expired int64
	err     error
}

func (s *stubAttestationSvc) ExpireAll(ctx context.Context) (int64, error) {
	s.calls++
	return s.expired, s.err
}

func newScheduler(t *testing.T, svc attestationdomain.Service) *Scheduler {
	t.Helper()
	sched, err := New(Params{
		Log:            zaptest.NewLogger(t),
		Clock:          clock.NewFakeClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)),
		AttestationSvc: svc,
	})
	assert.NoError(t, err)
	return sched
}

func TestRunOnce_SweepsWithoutLockBackend(t *testing.T) {
	svc := &stubAttestationSvc{expired: 3}
	sched := newScheduler(t, svc)

	assert.NoError(t, sched.RunOnce(context.Background()))
	assert.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 2, svc.calls)
}

func TestRunOnce_PropagatesSweepError(t *testing.T) {
	svc := &stubAttestationSvc{err: errors.New("db unavailable")}
	sched := newScheduler(t, svc)

	err := sched.RunOnce(context.Background())
	assert.EqualError(t, err, "db unavailable")
	assert.Equal(t, 1, svc.calls)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Hour, cfg.RunInterval)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 10*time.Minute, cfg.LockTTL)

	cfg = Config{RunInterval: time.Minute, BatchSize: 50, LockTTL: time.Minute}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 50, cfg.BatchSize)
}
