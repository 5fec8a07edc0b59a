package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransitionAllowed(t *testing.T) {
	cases := []struct {
		from    SubscriptionStatus
		to      SubscriptionStatus
		allowed bool
	}{
		{SubscriptionStatusActive, SubscriptionStatusSuspended, true},
		{SubscriptionStatusActive, SubscriptionStatusExpired, true},
		{SubscriptionStatusActive, SubscriptionStatusTerminated, true},
		{SubscriptionStatusActive, SubscriptionStatusActive, false},
		{SubscriptionStatusSuspended, SubscriptionStatusActive, true},
		{SubscriptionStatusSuspended, SubscriptionStatusTerminated, true},
		{SubscriptionStatusSuspended, SubscriptionStatusExpired, false},
		{SubscriptionStatusSuspended, SubscriptionStatusSuspended, false},
		{SubscriptionStatusExpired, SubscriptionStatusActive, true},
		{SubscriptionStatusExpired, SubscriptionStatusTerminated, true},
		{SubscriptionStatusExpired, SubscriptionStatusSuspended, false},
		{SubscriptionStatusExpired, SubscriptionStatusExpired, false},
		{SubscriptionStatusTerminated, SubscriptionStatusActive, false},
		{SubscriptionStatusTerminated, SubscriptionStatusSuspended, false},
		{SubscriptionStatusTerminated, SubscriptionStatusExpired, false},
		{SubscriptionStatusTerminated, SubscriptionStatusTerminated, false},
	}

	for _, tc := range cases {
		got := IsTransitionAllowed(tc.from, tc.to)
		assert.Equalf(t, tc.allowed, got, "%s -> %s", tc.from, tc.to)
	}
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(SubscriptionStatusActive))
	assert.True(t, ValidStatus(SubscriptionStatusTerminated))
	assert.False(t, ValidStatus(SubscriptionStatus("PAUSED")))
	assert.False(t, ValidStatus(SubscriptionStatus("")))
}
