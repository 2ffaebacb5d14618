package security

import "time"

// Test secrets for unit tests only. Do not use in production.
const (
	testAccessSecret  = "test-access-secret-0123456789abcdef"
	testRefreshSecret = "test-refresh-secret-0123456789abcdef"
)

// NewTestTokenCodec returns a TokenCodec with fixed test secrets, a 12h access TTL and 30d refresh TTL.
// nowF drives both issuing and verification; pass nil for time.Now. For unit tests only.
func NewTestTokenCodec(nowF func() time.Time) *TokenCodec {
	c, err := NewTokenCodec(testAccessSecret, testRefreshSecret, "test-issuer", 12*time.Hour, 30*24*time.Hour)
	if err != nil {
		panic(err)
	}
	if nowF != nil {
		return c.WithClock(nowF)
	}
	return c
}

// NewForeignTokenCodec returns a codec with different secrets but the same issuer as NewTestTokenCodec,
// for forging tokens in tests.
func NewForeignTokenCodec(nowF func() time.Time) *TokenCodec {
	c, err := NewTokenCodec("attacker-access-secret", "attacker-refresh-secret", "test-issuer", 12*time.Hour, 30*24*time.Hour)
	if err != nil {
		panic(err)
	}
	if nowF != nil {
		return c.WithClock(nowF)
	}
	return c
}
