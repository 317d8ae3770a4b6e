package consent

import "time"

// ExpiryPolicy is the single place expiry is computed. The evaluator,
// listings and any background sweep must delegate here instead of
// re-deriving the comparison.
type ExpiryPolicy struct{}

// IsExpired reports whether the consent's validity window has passed.
func (ExpiryPolicy) IsExpired(c *Consent, now time.Time) bool {
	return c.ValidUntil.Before(now)
}

// IsActive reports whether the consent currently blocks a new request for
// the same (doctor, patient) pair: pending, or granted and unexpired.
func (p ExpiryPolicy) IsActive(c *Consent, now time.Time) bool {
	switch c.Status {
	case StatusPending:
		return true
	case StatusGranted:
		return !p.IsExpired(c, now)
	}
	return false
}
