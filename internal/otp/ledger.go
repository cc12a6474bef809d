package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Store is the expiring key-value backend behind the ledger. Implementations
// must make TakeIfMatch atomic: a matching entry is removed in the same step
// it is checked, so a code can be consumed at most once.
type Store interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	TakeIfMatch(ctx context.Context, key, value string) (bool, error)
}

const (
	// DefaultTTL is the validity window of an issued code.
	DefaultTTL = 10 * time.Minute
	// DefaultDigits is the code length. Codes are zero-padded strings, so a
	// draw of 42 becomes "000042" rather than collapsing to two digits.
	DefaultDigits = 6
)

// Ledger issues and verifies one-time codes keyed by a contact identifier,
// typically a phone number. Issuing overwrites any earlier code for the
// same contact; verifying consumes the entry on success and leaves it
// untouched on failure so the caller may retry within the window.
type Ledger struct {
	Store  Store
	TTL    time.Duration
	Digits int
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store, TTL: DefaultTTL, Digits: DefaultDigits}
}

// Issue generates a fresh code for the contact and stores it with the
// ledger TTL. The code is returned so the delivery mock can hand it out.
func (l *Ledger) Issue(ctx context.Context, contact string) (string, error) {
	code, err := GenerateCode(l.digits())
	if err != nil {
		return "", err
	}
	ttl := l.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := l.Store.Put(ctx, contact, code, ttl); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// Verify reports whether the code matches the live entry for the contact.
// A successful verification is single-use.
func (l *Ledger) Verify(ctx context.Context, contact, code string) (bool, error) {
	if contact == "" || code == "" {
		return false, nil
	}
	return l.Store.TakeIfMatch(ctx, contact, code)
}

func (l *Ledger) digits() int {
	if l.Digits <= 0 {
		return DefaultDigits
	}
	return l.Digits
}

// GenerateCode draws a uniformly random numeric code of the given length,
// zero-padded so leading zeros survive.
func GenerateCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
