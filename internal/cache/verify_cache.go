package cache

import (
	"strings"
	"time"

	attestationdomain "github.com/fleetpass/fleetpass/internal/attestation/domain"
)

// Verification results are cached briefly: long enough to absorb bursts from
// roadside checks, short enough that a cancellation shows up within seconds.
const defaultVerifyTTL = 15 * time.Second

// VerifyCache stores recent verification lookups by reference.
type VerifyCache interface {
	Get(reference string) (attestationdomain.VerifyResult, bool)
	Set(reference string, result attestationdomain.VerifyResult)
	Invalidate(reference string)
}

type verifyCache struct {
	results Cache[string, attestationdomain.VerifyResult]
	ttl     time.Duration
}

func NewVerifyCache() VerifyCache {
	return &verifyCache{
		results: NewTTLCache[string, attestationdomain.VerifyResult](),
		ttl:     defaultVerifyTTL,
	}
}

func (c *verifyCache) Get(reference string) (attestationdomain.VerifyResult, bool) {
	return c.results.Get(verifyKey(reference))
}

func (c *verifyCache) Set(reference string, result attestationdomain.VerifyResult) {
	if strings.TrimSpace(reference) == "" {
		return
	}
	c.results.Set(verifyKey(reference), result, c.ttl)
}

func (c *verifyCache) Invalidate(reference string) {
	c.results.Delete(verifyKey(reference))
}

func verifyKey(reference string) string {
	return strings.ToUpper(strings.TrimSpace(reference))
}
