package cache

import (
	"testing"
	"time"

	attestationdomain "github.com/fleetpass/fleetpass/internal/attestation/domain"
	"github.com/stretchr/testify/assert"
)

func TestTTLCache_SetGetDelete(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	// Non-positive TTL stores nothing.
	c.Set("b", 2, 0)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestTTLCache_ExpiresLazily(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestVerifyCache_NormalizesReferences(t *testing.T) {
	c := NewVerifyCache()

	result := attestationdomain.VerifyResult{
		Reference: "ATT-2025-ACME-000001",
		Valid:     true,
		Status:    attestationdomain.AttestationStatusActive,
	}
	c.Set("  att-2025-acme-000001  ", result)

	got, ok := c.Get("ATT-2025-ACME-000001")
	assert.True(t, ok)
	assert.True(t, got.Valid)

	c.Invalidate("att-2025-ACME-000001")
	_, ok = c.Get("ATT-2025-ACME-000001")
	assert.False(t, ok)
}

func TestVerifyCache_IgnoresEmptyReference(t *testing.T) {
	c := NewVerifyCache()
	c.Set("   ", attestationdomain.VerifyResult{Valid: true})
	_, ok := c.Get("")
	assert.False(t, ok)
}
