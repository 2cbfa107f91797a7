package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// ValidationError Tests
// -----------------------------------------------------------------------------

func TestValidationError(t *testing.T) {
	err := NewValidationError(RuleMissingSigner, "The proposer is a required signer").
		WithNegotiation("neg-1").
		WithIntent("Propose")

	msg := err.Error()
	for _, want := range []string{"rule=MISSING_SIGNER", "intent=Propose", "negotiation=neg-1", "The proposer is a required signer"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, want it to contain %q", msg, want)
		}
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("expected errors.Is(err, ErrValidation)")
	}
	if !errors.Is(err, &ValidationError{Rule: RuleMissingSigner}) {
		t.Error("expected rule-specific match")
	}
	if errors.Is(err, &ValidationError{Rule: RuleRoleMismatch}) {
		t.Error("expected no match for a different rule")
	}
	if err.IsRetryable() {
		t.Error("validation errors are never retryable")
	}
}

func TestValidationErrorWrapped(t *testing.T) {
	base := NewValidationError(RuleRoleMismatch, "The buyer and seller are the proposer and the proposee")
	wrapped := fmt.Errorf("self-check: %w", base)

	var verr *ValidationError
	if !errors.As(wrapped, &verr) {
		t.Fatal("expected errors.As to find ValidationError")
	}
	if verr.Predicate != "The buyer and seller are the proposer and the proposee" {
		t.Errorf("Predicate = %q", verr.Predicate)
	}
}

// -----------------------------------------------------------------------------
// IntegrityError Tests
// -----------------------------------------------------------------------------

func TestIntegrityError(t *testing.T) {
	err := NewIntegrityError("revealed value does not match commitment").
		WithNegotiation("neg-2").
		WithRole("Seller").
		WithDigests("aa", "bb")

	if err.Severity() != SeverityCritical {
		t.Errorf("Severity() = %v, want critical", err.Severity())
	}
	if !errors.Is(err, ErrIntegrity) {
		t.Error("expected errors.Is(err, ErrIntegrity)")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("integrity errors are distinct from validation errors")
	}
	if !strings.Contains(err.Error(), "role=Seller") {
		t.Errorf("Error() = %q", err.Error())
	}
}

// -----------------------------------------------------------------------------
// NotFound / Submission / Timeout Tests
// -----------------------------------------------------------------------------

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("private value", "neg-3/Buyer")
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is(err, ErrNotFound)")
	}
	if err.Error() != `not found: private value "neg-3/Buyer"` {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSubmissionErrorRetryable(t *testing.T) {
	err := NewSubmissionError("head moved", ErrConflict).WithNegotiation("neg-4").WithTx("tx-1")
	if !IsRetryable(err) {
		t.Error("expected submission errors to be retryable")
	}
	if !errors.Is(err, ErrConflict) {
		t.Error("expected cause to be matched")
	}
	if !errors.Is(err, ErrSubmission) {
		t.Error("expected errors.Is(err, ErrSubmission)")
	}
	if IsRetryable(err.WithRetryable(false)) {
		t.Error("expected WithRetryable(false) to take effect")
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("co-signature", 2*time.Second).WithNegotiation("neg-5")
	if !errors.Is(err, ErrTimeout) {
		t.Error("expected errors.Is(err, ErrTimeout)")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected timeout to match context.DeadlineExceeded")
	}
	if !strings.Contains(err.Error(), "co-signature after 2s") {
		t.Errorf("Error() = %q", err.Error())
	}
}

// -----------------------------------------------------------------------------
// Wire Tests
// -----------------------------------------------------------------------------

func TestWireRoundTripKeepsType(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{
			name: "validation",
			err:  NewValidationError(RuleNoChange, "The output differs from the input").WithNegotiation("n"),
			check: func(err error) bool {
				var v *ValidationError
				return errors.As(err, &v) && v.Rule == RuleNoChange && v.NegotiationID == "n"
			},
		},
		{
			name:  "integrity",
			err:   NewIntegrityError("tampered").WithNegotiation("n").WithRole("Buyer"),
			check: func(err error) bool { return errors.Is(err, ErrIntegrity) },
		},
		{
			name:  "not found",
			err:   NewNotFoundError("ledger state", "n"),
			check: func(err error) bool { return errors.Is(err, ErrNotFound) },
		},
		{
			name:  "submission",
			err:   NewSubmissionError("conflict", ErrConflict),
			check: func(err error) bool { return IsRetryable(err) },
		},
		{
			name: "conflict",
			err:  fmt.Errorf("%w: bob is already registered to another key", ErrConflict),
			check: func(err error) bool {
				return errors.Is(err, ErrConflict) && !IsRetryable(err)
			},
		},
		{
			name:  "aborted",
			err:   fmt.Errorf("%w: earlier failure", ErrSessionAborted),
			check: func(err error) bool { return errors.Is(err, ErrSessionAborted) },
		},
		{
			name:  "refused",
			err:   fmt.Errorf("%w: outcome disagrees", ErrRefused),
			check: func(err error) bool { return errors.Is(err, ErrRefused) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromWire(ToWire(tt.err))
			if !tt.check(got) {
				t.Errorf("FromWire(ToWire(%v)) = %v, lost its type", tt.err, got)
			}
		})
	}
}

func TestCodeConflict(t *testing.T) {
	if got := Code(fmt.Errorf("%w: name taken", ErrConflict)); got != "CONFLICT" {
		t.Errorf("Code() = %q, want CONFLICT", got)
	}
	if got := Code(NewSubmissionError("head moved", ErrConflict)); got != "SUBMISSION_ERROR" {
		t.Errorf("Code() = %q, want SUBMISSION_ERROR", got)
	}
}

func TestCodeUnknown(t *testing.T) {
	if got := Code(New("boom")); got != "INTERNAL" {
		t.Errorf("Code() = %q, want INTERNAL", got)
	}
}
