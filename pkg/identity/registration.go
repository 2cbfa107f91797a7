package identity

import (
	"fmt"

	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/signature"
)

// RegistrationContext binds a registration proof so it cannot be replayed
// as any other signed payload.
const RegistrationContext = "party-registration"

// Registration is a Party plus proof that the registrant holds its key.
type Registration struct {
	Party Party              `json:"party"`
	Proof signature.Envelope `json:"proof"`
}

// Registration signs s's own Party record.
func (s *Signer) Registration() (Registration, error) {
	env, err := s.Sign(s.Party, RegistrationContext)
	if err != nil {
		return Registration{}, err
	}
	return Registration{Party: s.Party, Proof: env}, nil
}

// Verify checks that Proof is a signature by Party's key over Party.
func (r Registration) Verify() error {
	if !r.Party.Owns(r.Proof) {
		return fmt.Errorf("%w: registration of %s is not signed by its key", errors.ErrUnauthorized, r.Party)
	}
	if _, err := signature.VerifyContext(r.Party, r.Proof, RegistrationContext); err != nil {
		return fmt.Errorf("%w: registration of %s: %v", errors.ErrUnauthorized, r.Party, err)
	}
	return nil
}
