// Package commitment seals private negotiation attributes into digests that
// can be published on the ledger and checked when the value is revealed.
//
// Seal is deterministic and unsalted: two parties sealing the same amount get
// the same digest. That makes the digest guessable when the value domain is
// small. The ledger format depends on this encoding, so it is kept as is.
package commitment

import (
	"crypto/subtle"

	"github.com/accordsai/negotiation/pkg/canonhash"
	"github.com/accordsai/negotiation/pkg/domain"
)

// Len is the length of a well-formed commitment string.
const Len = 64

// Seal returns the lowercase hex SHA-256 of the canonical encoding of attrs.
// Attributes whose amount does not parse are sealed as given.
func Seal(attrs domain.Attributes) string {
	if c, err := attrs.Canonical(); err == nil {
		attrs = c
	}
	h, _, err := canonhash.CanonicalSHA256(payload(attrs))
	if err != nil {
		// payload is a map of strings; marshalling cannot fail.
		panic(err)
	}
	return h
}

// SealAmount is Seal for a bare amount.
func SealAmount(a domain.Amount) string {
	return Seal(domain.Attributes{Amount: a})
}

// Verify reports whether attrs seals to c.
func Verify(attrs domain.Attributes, c string) bool {
	if !WellFormed(c) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Seal(attrs)), []byte(c)) == 1
}

// WellFormed reports whether c has the shape of a commitment.
func WellFormed(c string) bool {
	return canonhash.IsHexSHA256(c)
}

func payload(attrs domain.Attributes) map[string]any {
	return map[string]any{
		"amount": attrs.Amount.String(),
	}
}

// VerifyAmount is Verify for a bare amount.
func VerifyAmount(a domain.Amount, c string) bool {
	return Verify(domain.Attributes{Amount: a}, c)
}
