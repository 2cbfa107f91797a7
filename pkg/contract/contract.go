// Package contract decides whether a ledger transition is admissible.
//
// Verify is pure and deterministic: every party and the substrate run it
// on the same transaction and reach the same decision. It only ever sees
// commitments, except for the values a terminal record itself discloses.
package contract

import (
	"github.com/accordsai/negotiation/pkg/commitment"
	"github.com/accordsai/negotiation/pkg/domain"
	"github.com/accordsai/negotiation/pkg/errors"
	"github.com/accordsai/negotiation/pkg/identity"
	"github.com/accordsai/negotiation/pkg/ledger"
)

// IntentReconcile labels Reconcile failures. It never appears on the
// ledger since Reconcile carries no command.
const IntentReconcile = "Reconcile"

type verifier struct {
	id     string
	intent string
}

func (v verifier) fail(rule errors.Rule, predicate string) error {
	return errors.NewValidationError(rule, predicate).WithNegotiation(v.id).WithIntent(v.intent)
}

// Verify dispatches tx to the rule set of its intent. A transaction with
// no commands, or whose single output is terminal, is a Reconcile.
func Verify(tx ledger.Transaction) error {
	v := verifier{id: tx.NegotiationID()}
	if err := v.shapes(tx); err != nil {
		return err
	}
	if len(tx.Commands) == 0 || (len(tx.Outputs) == 1 && tx.Outputs[0].Terminal()) {
		v.intent = IntentReconcile
		return v.reconcile(tx)
	}
	if len(tx.Commands) != 1 {
		return v.fail(errors.RuleSingleCommandExpected, "There is exactly one command")
	}
	cmd := tx.Commands[0]
	v.intent = string(cmd.Intent)
	switch cmd.Intent {
	case ledger.IntentPropose:
		return v.propose(tx, cmd)
	case ledger.IntentCommit:
		return v.commit(tx, cmd)
	case ledger.IntentModify:
		return v.modify(tx, cmd)
	}
	return v.fail(errors.RuleUnknownIntent, "The command intent is recognised")
}

// shapes rejects states whose discriminant names a known kind but whose
// payload does not match it. Unknown kinds fall through to the type rules.
func (v verifier) shapes(tx ledger.Transaction) error {
	check := func(s ledger.State) error {
		switch s.Kind {
		case ledger.KindProposal, ledger.KindMismatch, ledger.KindTrade:
			if !s.WellFormed() {
				return v.fail(errors.RuleMalformedState, "Every state carries exactly the record its kind names")
			}
		}
		return nil
	}
	for _, in := range tx.Inputs {
		if err := check(in.State); err != nil {
			return err
		}
	}
	for _, out := range tx.Outputs {
		if err := check(out); err != nil {
			return err
		}
	}
	return nil
}

func isProposal(s ledger.State) bool { return s.Kind == ledger.KindProposal && s.Proposal != nil }

func (v verifier) singleProposalInput(tx ledger.Transaction) (ledger.Proposal, error) {
	if len(tx.Inputs) != 1 {
		return ledger.Proposal{}, v.fail(errors.RuleSingleInputExpected, "There is exactly one input")
	}
	if !isProposal(tx.Inputs[0].State) {
		return ledger.Proposal{}, v.fail(errors.RuleInputType, "The single input is of type ProposalRecord")
	}
	return *tx.Inputs[0].State.Proposal, nil
}

func (v verifier) singleProposalOutput(tx ledger.Transaction) (ledger.Proposal, error) {
	if len(tx.Outputs) != 1 {
		return ledger.Proposal{}, v.fail(errors.RuleSingleOutputExpected, "There is exactly one output")
	}
	if !isProposal(tx.Outputs[0]) {
		return ledger.Proposal{}, v.fail(errors.RuleOutputType, "The single output is of type ProposalRecord")
	}
	return *tx.Outputs[0].Proposal, nil
}

func (v verifier) noTimeWindow(tx ledger.Transaction) error {
	if tx.TimeWindow != nil {
		return v.fail(errors.RuleTimeWindowForbidden, "There is no timestamp")
	}
	return nil
}

// rolesCoverParties checks {buyer, seller} == {proposer, proposee} with
// two distinct parties.
func (v verifier) rolesCoverParties(p ledger.Proposal) error {
	matches := (p.Buyer.Equal(p.Proposer) && p.Seller.Equal(p.Proposee)) ||
		(p.Buyer.Equal(p.Proposee) && p.Seller.Equal(p.Proposer))
	if !matches {
		return v.fail(errors.RuleRoleMismatch, "The buyer and seller are the proposer and the proposee")
	}
	if p.Proposer.Equal(p.Proposee) {
		return v.fail(errors.RuleRoleMismatch, "The proposer and the proposee are different parties")
	}
	return nil
}

func (v verifier) wellFormedCommitments(p ledger.Proposal) error {
	for _, c := range []string{p.BuyerCommitment, p.SellerCommitment} {
		if c != "" && !commitment.WellFormed(c) {
			return v.fail(errors.RuleMalformedCommitment, "Commitments are well-formed digests")
		}
	}
	return nil
}

func (v verifier) signers(cmd ledger.Command, parties ...identity.Party) error {
	for i, p := range parties {
		if cmd.HasSigner(p) {
			continue
		}
		if i%2 == 0 {
			return v.fail(errors.RuleMissingSigner, "The proposer is a required signer")
		}
		return v.fail(errors.RuleMissingSigner, "The proposee is a required signer")
	}
	return nil
}

func (v verifier) unchangedIdentity(in, out ledger.Proposal) error {
	if in.ID != out.ID {
		return v.fail(errors.RuleIDModified, "The negotiation id is unmodified in the output")
	}
	if !in.Buyer.Equal(out.Buyer) {
		return v.fail(errors.RuleBuyerModified, "The buyer is unmodified in the output")
	}
	if !in.Seller.Equal(out.Seller) {
		return v.fail(errors.RuleSellerModified, "The seller is unmodified in the output")
	}
	return nil
}

func (v verifier) propose(tx ledger.Transaction, cmd ledger.Command) error {
	if len(tx.Inputs) != 0 {
		return v.fail(errors.RuleEmptyInputsExpected, "There are no inputs")
	}
	out, err := v.singleProposalOutput(tx)
	if err != nil {
		return err
	}
	if err := v.noTimeWindow(tx); err != nil {
		return err
	}
	if err := v.rolesCoverParties(out); err != nil {
		return err
	}
	if err := v.wellFormedCommitments(out); err != nil {
		return err
	}
	return v.signers(cmd, out.Proposer, out.Proposee)
}

func (v verifier) commit(tx ledger.Transaction, cmd ledger.Command) error {
	in, err := v.singleProposalInput(tx)
	if err != nil {
		return err
	}
	out, err := v.singleProposalOutput(tx)
	if err != nil {
		return err
	}
	if err := v.noTimeWindow(tx); err != nil {
		return err
	}
	if err := v.unchangedIdentity(in, out); err != nil {
		return err
	}
	if !in.Proposer.Equal(out.Proposer) || !in.Proposee.Equal(out.Proposee) {
		return v.fail(errors.RulePartiesReassigned, "The proposer and proposee are unmodified in the output")
	}
	if !setOnce(in.BuyerCommitment, out.BuyerCommitment) {
		return v.fail(errors.RuleCommitmentOverwritten,
			"The buyer's commitment is either unmodified or initialized to a non-NULL value")
	}
	if !setOnce(in.SellerCommitment, out.SellerCommitment) {
		return v.fail(errors.RuleCommitmentOverwritten,
			"The seller's commitment is either unmodified or initialized to a non-NULL value")
	}
	if err := v.wellFormedCommitments(out); err != nil {
		return err
	}
	return v.signers(cmd, in.Proposer, in.Proposee)
}

// setOnce reports whether a commitment stayed put or went absent to present.
func setOnce(before, after string) bool {
	return before == after || (before == "" && after != "")
}

func (v verifier) modify(tx ledger.Transaction, cmd ledger.Command) error {
	in, err := v.singleProposalInput(tx)
	if err != nil {
		return err
	}
	out, err := v.singleProposalOutput(tx)
	if err != nil {
		return err
	}
	if err := v.noTimeWindow(tx); err != nil {
		return err
	}
	if in.BothCommitted() {
		return v.fail(errors.RuleAlreadyCommitted, "The input is not committed by both sides")
	}
	if err := v.unchangedIdentity(in, out); err != nil {
		return err
	}
	if err := v.rolesCoverParties(out); err != nil {
		return err
	}
	if sameProposal(in, out) {
		return v.fail(errors.RuleNoChange, "The output differs from the input")
	}
	if (in.BuyerCommitment != "" && out.BuyerCommitment == "") ||
		(in.SellerCommitment != "" && out.SellerCommitment == "") {
		return v.fail(errors.RuleCommitmentCleared, "A commitment is never removed")
	}
	if err := v.wellFormedCommitments(out); err != nil {
		return err
	}
	return v.signers(cmd, in.Proposer, in.Proposee, out.Proposer, out.Proposee)
}

func sameProposal(a, b ledger.Proposal) bool {
	return a.ID == b.ID &&
		a.Buyer.Equal(b.Buyer) && a.Seller.Equal(b.Seller) &&
		a.Proposer.Equal(b.Proposer) && a.Proposee.Equal(b.Proposee) &&
		a.BuyerCommitment == b.BuyerCommitment && a.SellerCommitment == b.SellerCommitment
}

func (v verifier) reconcile(tx ledger.Transaction) error {
	in, err := v.singleProposalInput(tx)
	if err != nil {
		return err
	}
	if in.BuyerCommitment == "" {
		return v.fail(errors.RuleCommitmentMissing, "The input state has non-null buyer commitment")
	}
	if in.SellerCommitment == "" {
		return v.fail(errors.RuleCommitmentMissing, "The input state has non-null seller commitment")
	}
	if len(tx.Outputs) != 1 {
		return v.fail(errors.RuleSingleOutputExpected, "There is exactly one output")
	}
	out := tx.Outputs[0]
	if !out.Terminal() || !out.WellFormed() {
		return v.fail(errors.RuleOutputType, "The single output is of type MismatchRecord or TradeRecord")
	}
	if len(tx.Commands) != 0 {
		return v.fail(errors.RuleNoCommandsExpected, "There are no commands")
	}
	if err := v.noTimeWindow(tx); err != nil {
		return err
	}

	switch out.Kind {
	case ledger.KindMismatch:
		m := *out.Mismatch
		carried := ledger.Proposal{ID: m.ID, Buyer: m.Buyer, Seller: m.Seller}
		if err := v.unchangedIdentity(in, carried); err != nil {
			return err
		}
		if !in.Proposer.Equal(m.Proposer) || !in.Proposee.Equal(m.Proposee) {
			return v.fail(errors.RulePartiesReassigned, "The proposer and proposee are unmodified in the output")
		}
		if !m.BuyerValue.Valid() || !m.SellerValue.Valid() {
			return v.fail(errors.RuleOutcomeInconsistent, "The disclosed values are well-formed amounts")
		}
		if !commitment.VerifyAmount(m.BuyerValue, in.BuyerCommitment) ||
			!commitment.VerifyAmount(m.SellerValue, in.SellerCommitment) {
			return v.fail(errors.RuleOutcomeInconsistent, "The disclosed values match the input commitments")
		}
		if Decide(m.BuyerValue, m.SellerValue) != ledger.KindMismatch {
			return v.fail(errors.RuleOutcomeInconsistent, "A MismatchRecord discloses differing values")
		}
	case ledger.KindTrade:
		t := *out.Trade
		carried := ledger.Proposal{ID: t.ID, Buyer: t.Buyer, Seller: t.Seller}
		if err := v.unchangedIdentity(in, carried); err != nil {
			return err
		}
		if !t.AgreedValue.Valid() {
			return v.fail(errors.RuleOutcomeInconsistent, "The disclosed values are well-formed amounts")
		}
		if !commitment.VerifyAmount(t.AgreedValue, in.BuyerCommitment) ||
			!commitment.VerifyAmount(t.AgreedValue, in.SellerCommitment) {
			return v.fail(errors.RuleOutcomeInconsistent, "The agreed value matches both input commitments")
		}
	}
	return nil
}

// Decide is the Reconcile decision: Trade iff the canonical amounts are
// equal, Mismatch otherwise.
func Decide(buyer, seller domain.Amount) ledger.Kind {
	if buyer.Equal(seller) {
		return ledger.KindTrade
	}
	return ledger.KindMismatch
}

// Outcome builds the terminal record for p given both revealed values.
func Outcome(p ledger.Proposal, buyer, seller domain.Amount) ledger.State {
	if Decide(buyer, seller) == ledger.KindTrade {
		return ledger.NewTradeState(ledger.Trade{
			ID: p.ID, Buyer: p.Buyer, Seller: p.Seller, AgreedValue: buyer,
		})
	}
	return ledger.NewMismatchState(ledger.Mismatch{
		ID: p.ID, Buyer: p.Buyer, Seller: p.Seller,
		Proposer: p.Proposer, Proposee: p.Proposee,
		BuyerValue: buyer, SellerValue: seller,
	})
}

// VerifyOutcome is the check each party runs on a Reconcile transaction
// with its own copies of the two revealed values.
func VerifyOutcome(tx ledger.Transaction, buyer, seller domain.Amount) error {
	v := verifier{id: tx.NegotiationID(), intent: IntentReconcile}
	if len(tx.Outputs) != 1 || !tx.Outputs[0].Terminal() || !tx.Outputs[0].WellFormed() {
		return v.fail(errors.RuleOutputType, "The single output is of type MismatchRecord or TradeRecord")
	}
	out := tx.Outputs[0]
	if out.Kind != Decide(buyer, seller) {
		return v.fail(errors.RuleOutcomeInconsistent, "The output kind agrees with the locally revealed values")
	}
	switch out.Kind {
	case ledger.KindTrade:
		if !out.Trade.AgreedValue.Equal(buyer) {
			return v.fail(errors.RuleOutcomeInconsistent, "The agreed value is the locally revealed value")
		}
	case ledger.KindMismatch:
		if !out.Mismatch.BuyerValue.Equal(buyer) || !out.Mismatch.SellerValue.Equal(seller) {
			return v.fail(errors.RuleOutcomeInconsistent, "The disclosed values are the locally revealed values")
		}
	}
	return nil
}
