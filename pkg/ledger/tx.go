package ledger

import (
	"fmt"
	"time"

	"github.com/accordsai/negotiation/pkg/canonhash"
	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/identity"
	"github.com/accordsai/negotiation/pkg/signature"
)

// SigningContext is the signature context of transaction signatures.
const SigningContext = "negotiation-tx"

type Intent string

const (
	IntentPropose Intent = "Propose"
	IntentCommit  Intent = "Commit"
	IntentModify  Intent = "Modify"
)

func (i Intent) Known() bool {
	return i == IntentPropose || i == IntentCommit || i == IntentModify
}

// Command declares an intent and the agent ids that must sign for it.
type Command struct {
	Intent  Intent   `json:"intent"`
	Signers []string `json:"signers"`
}

func NewCommand(intent Intent, signers ...identity.Party) Command {
	c := Command{Intent: intent}
	for _, p := range signers {
		c.Signers = append(c.Signers, p.Key)
	}
	return c
}

// HasSigner reports whether p's key is among the command signers.
func (c Command) HasSigner(p identity.Party) bool {
	for _, k := range c.Signers {
		if k != "" && k == p.Key {
			return true
		}
	}
	return false
}

type TimeWindow struct {
	From  *time.Time `json:"from,omitempty"`
	Until *time.Time `json:"until,omitempty"`
}

// Transaction links input states to output states. Its id is the
// canonical hash of everything except the signatures.
type Transaction struct {
	Inputs     []StateAndRef        `json:"inputs"`
	Outputs    []State              `json:"outputs"`
	Commands   []Command            `json:"commands"`
	TimeWindow *TimeWindow          `json:"time_window,omitempty"`
	Signatures []signature.Envelope `json:"signatures,omitempty"`
}

type unsignedBody struct {
	Inputs     []StateAndRef `json:"inputs"`
	Outputs    []State       `json:"outputs"`
	Commands   []Command     `json:"commands"`
	TimeWindow *TimeWindow   `json:"time_window,omitempty"`
}

// Unsigned is the payload every signature covers.
func (tx Transaction) Unsigned() any {
	return unsignedBody{
		Inputs:     nonNil(tx.Inputs),
		Outputs:    nonNil(tx.Outputs),
		Commands:   nonNil(tx.Commands),
		TimeWindow: tx.TimeWindow,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ID is the lowercase hex SHA-256 of the unsigned body.
func (tx Transaction) ID() string {
	h, _, err := canonhash.CanonicalSHA256(tx.Unsigned())
	if err != nil {
		panic(fmt.Sprintf("ledger: hash transaction: %v", err))
	}
	return h
}

// NegotiationID is the id shared by the transaction's states, taken from
// the first output, or the first input when there are no outputs.
func (tx Transaction) NegotiationID() string {
	if len(tx.Outputs) > 0 {
		return tx.Outputs[0].NegotiationID()
	}
	if len(tx.Inputs) > 0 {
		return tx.Inputs[0].State.NegotiationID()
	}
	return ""
}

// RequiredSigners is the union of all command signers. A transaction
// without commands needs the participants of its inputs.
func (tx Transaction) RequiredSigners() []string {
	seen := map[string]bool{}
	var out []string
	add := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for _, c := range tx.Commands {
		for _, k := range c.Signers {
			add(k)
		}
	}
	if len(tx.Commands) == 0 {
		for _, in := range tx.Inputs {
			for _, p := range in.State.Participants() {
				add(p.Key)
			}
		}
	}
	return out
}

// Sign returns a copy of tx with s's signature appended.
func (tx Transaction) Sign(s *identity.Signer) (Transaction, error) {
	env, err := s.Sign(tx.Unsigned(), SigningContext)
	if err != nil {
		return Transaction{}, err
	}
	return tx.WithSignature(env), nil
}

func (tx Transaction) WithSignature(env signature.Envelope) Transaction {
	sigs := make([]signature.Envelope, 0, len(tx.Signatures)+1)
	sigs = append(sigs, tx.Signatures...)
	tx.Signatures = append(sigs, env)
	return tx
}

// SignedBy reports whether tx carries a valid signature by key.
func (tx Transaction) SignedBy(key string) bool {
	id := tx.ID()
	for _, env := range tx.Signatures {
		signer, err := identity.AgentIDFromEnvelope(env)
		if err != nil || signer != key || env.Context != SigningContext {
			continue
		}
		if _, err := signature.VerifyPrehashed(id, env); err == nil {
			return true
		}
	}
	return false
}

// MissingSigners lists required signers without a valid signature.
func (tx Transaction) MissingSigners() []string {
	var missing []string
	for _, k := range tx.RequiredSigners() {
		if !tx.SignedBy(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

// VerifySignatures fails with ErrMissingSignature unless every required
// signer has signed.
func (tx Transaction) VerifySignatures() error {
	if missing := tx.MissingSigners(); len(missing) > 0 {
		return fmt.Errorf("%w: %v", errors.ErrMissingSignature, missing)
	}
	return nil
}

// OutputRef is the ref output i will have once tx is finalized.
func (tx Transaction) OutputRef(i int) StateAndRef {
	return StateAndRef{State: tx.Outputs[i], Ref: StateRef{TxID: tx.ID(), Index: i}}
}

// FinalizedTransaction is a transaction the substrate has accepted.
type FinalizedTransaction struct {
	Tx          Transaction `json:"tx"`
	Sequence    int64       `json:"sequence"`
	FinalizedAt time.Time   `json:"finalized_at"`
}
