// Package errors defines the error taxonomy of the negotiation protocol.
//
// # Error Types
//
//   - ValidationError: a transition broke a contract rule. Fatal to the
//     transition, never retried automatically. Carries the rule code and
//     the predicate text of the failed assertion.
//   - IntegrityError: a revealed value does not match the commitment the
//     ledger holds for it. Fatal and treated as a security event.
//   - NotFoundError: a private value or ledger state is missing.
//   - SubmissionError: the ledger refused finalization (conflict, stale
//     input, missing signature). May be retried against a fresh state.
//   - TimeoutError: the counterparty did not answer in time.
//
// # Usage
//
//	err := errors.NewValidationError(errors.RuleMissingSigner, "The proposer is a required signer").
//		WithNegotiation("neg-1").WithIntent("Propose")
//
//	if errors.Is(err, errors.ErrValidation) { ... }
//
//	var verr *errors.ValidationError
//	if errors.As(err, &verr) { log(verr.Predicate) }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	// SeverityCritical marks security events such as integrity failures.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrValidation matches every ValidationError.
	ErrValidation = New("validation failed")
	// ErrIntegrity matches every IntegrityError.
	ErrIntegrity = New("integrity check failed")
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = New("not found")
	// ErrSubmission matches every SubmissionError.
	ErrSubmission = New("submission rejected")
	// ErrTimeout matches every TimeoutError.
	ErrTimeout = New("operation timed out")
)

var (
	// ErrConflict indicates the ledger head moved, an input was already consumed,
	// or a party name is already bound to another key.
	ErrConflict = New("ledger conflict")
	// ErrMissingSignature indicates a required signer did not sign.
	ErrMissingSignature = New("missing required signature")
	// ErrSessionAborted indicates the negotiation session was aborted earlier.
	ErrSessionAborted = New("session aborted")
	// ErrRefused indicates the counterparty declined to co-sign.
	ErrRefused = New("counterparty refused")
	// ErrUnauthorized indicates a peer request was not signed by its claimed sender.
	ErrUnauthorized = New("unauthorized")
	// ErrInvalidInput indicates malformed caller input.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// NegotiationError is implemented by every error type in this package.
type NegotiationError interface {
	error
	Unwrap() error
	Severity() Severity
	IsRetryable() bool
	Code() string
}

type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Severity() Severity { return e.severity }

func (e *baseError) IsRetryable() bool { return e.retryable }

func (e *baseError) is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func format(prefix string, parts []string, message string, cause error) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	switch {
	case message != "" && cause != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	case message != "":
		return fmt.Sprintf("%s: %s", prefix, message)
	case cause != nil:
		return fmt.Sprintf("%s: %v", prefix, cause)
	}
	return prefix
}

// -----------------------------------------------------------------------------
// ValidationError
// -----------------------------------------------------------------------------

// Rule identifies a contract assertion.
type Rule string

const (
	RuleEmptyInputsExpected   Rule = "EMPTY_INPUTS_EXPECTED"
	RuleSingleInputExpected   Rule = "SINGLE_INPUT_EXPECTED"
	RuleInputType             Rule = "INPUT_TYPE"
	RuleSingleOutputExpected  Rule = "SINGLE_OUTPUT_EXPECTED"
	RuleOutputType            Rule = "OUTPUT_TYPE"
	RuleSingleCommandExpected Rule = "SINGLE_COMMAND_EXPECTED"
	RuleNoCommandsExpected    Rule = "NO_COMMANDS_EXPECTED"
	RuleUnknownIntent         Rule = "UNKNOWN_INTENT"
	RuleTimeWindowForbidden   Rule = "TIME_WINDOW_FORBIDDEN"
	RuleRoleMismatch          Rule = "ROLE_MISMATCH"
	RuleMissingSigner         Rule = "MISSING_SIGNER"
	RuleBuyerModified         Rule = "BUYER_MODIFIED"
	RuleSellerModified        Rule = "SELLER_MODIFIED"
	RuleIDModified            Rule = "ID_MODIFIED"
	RuleCommitmentOverwritten Rule = "COMMITMENT_OVERWRITTEN"
	RuleCommitmentCleared     Rule = "COMMITMENT_CLEARED"
	RuleMalformedCommitment   Rule = "MALFORMED_COMMITMENT"
	RulePartiesReassigned     Rule = "PARTIES_REASSIGNED"
	RuleNoChange              Rule = "NO_CHANGE"
	RuleAlreadyCommitted      Rule = "ALREADY_COMMITTED"
	RuleCommitmentMissing     Rule = "COMMITMENT_MISSING"
	RuleOutcomeInconsistent   Rule = "OUTCOME_INCONSISTENT"
	RuleMalformedState        Rule = "MALFORMED_STATE"
)

// ValidationError reports a failed contract predicate.
type ValidationError struct {
	baseError
	Rule          Rule
	Predicate     string
	NegotiationID string
	Intent        string
}

// NewValidationError creates a ValidationError for the failed predicate.
func NewValidationError(rule Rule, predicate string) *ValidationError {
	return &ValidationError{
		baseError: baseError{severity: SeverityError},
		Rule:      rule,
		Predicate: predicate,
	}
}

// WithNegotiation adds the negotiation id to the error context.
func (e *ValidationError) WithNegotiation(id string) *ValidationError {
	e.NegotiationID = id
	return e
}

// WithIntent adds the transition intent to the error context.
func (e *ValidationError) WithIntent(intent string) *ValidationError {
	e.Intent = intent
	return e
}

// WithCause attaches an underlying error.
func (e *ValidationError) WithCause(err error) *ValidationError {
	e.cause = err
	return e
}

func (e *ValidationError) Code() string { return "VALIDATION_ERROR" }

func (e *ValidationError) Error() string {
	parts := []string{"rule=" + string(e.Rule)}
	if e.Intent != "" {
		parts = append(parts, "intent="+e.Intent)
	}
	if e.NegotiationID != "" {
		parts = append(parts, "negotiation="+e.NegotiationID)
	}
	return format("validation error", parts, fmt.Sprintf("failed requirement: %s", e.Predicate), e.cause)
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	if t, ok := target.(*ValidationError); ok {
		return t.Rule == "" || t.Rule == e.Rule
	}
	return e.is(target)
}

// -----------------------------------------------------------------------------
// IntegrityError
// -----------------------------------------------------------------------------

// IntegrityError reports a revealed value that does not seal to the
// commitment recorded on the ledger.
type IntegrityError struct {
	baseError
	NegotiationID string
	Role          string
	Expected      string
	Actual        string
}

// NewIntegrityError creates an IntegrityError.
func NewIntegrityError(message string) *IntegrityError {
	return &IntegrityError{
		baseError: baseError{message: message, severity: SeverityCritical},
	}
}

func (e *IntegrityError) WithNegotiation(id string) *IntegrityError {
	e.NegotiationID = id
	return e
}

// WithRole records the side whose revealed value failed the check.
func (e *IntegrityError) WithRole(role string) *IntegrityError {
	e.Role = role
	return e
}

// WithDigests records the ledger commitment and the digest of the revealed value.
func (e *IntegrityError) WithDigests(expected, actual string) *IntegrityError {
	e.Expected = expected
	e.Actual = actual
	return e
}

func (e *IntegrityError) Code() string { return "INTEGRITY_ERROR" }

func (e *IntegrityError) Error() string {
	var parts []string
	if e.NegotiationID != "" {
		parts = append(parts, "negotiation="+e.NegotiationID)
	}
	if e.Role != "" {
		parts = append(parts, "role="+e.Role)
	}
	return format("integrity error", parts, e.message, e.cause)
}

func (e *IntegrityError) Is(target error) bool {
	if target == ErrIntegrity {
		return true
	}
	if _, ok := target.(*IntegrityError); ok {
		return true
	}
	return e.is(target)
}

// -----------------------------------------------------------------------------
// NotFoundError
// -----------------------------------------------------------------------------

// NotFoundError indicates a missing private value or ledger state.
type NotFoundError struct {
	baseError
	Resource string
	ID       string
}

// NewNotFoundError creates a NotFoundError for the resource and id.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{severity: SeverityWarning},
		Resource:  resource,
		ID:        id,
	}
}

func (e *NotFoundError) WithCause(err error) *NotFoundError {
	e.cause = err
	return e
}

func (e *NotFoundError) Code() string { return "NOT_FOUND" }

func (e *NotFoundError) Error() string {
	return format("not found", nil, fmt.Sprintf("%s %q", e.Resource, e.ID), e.cause)
}

func (e *NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.is(target)
}

// -----------------------------------------------------------------------------
// SubmissionError
// -----------------------------------------------------------------------------

// SubmissionError indicates the ledger refused to finalize a transaction.
type SubmissionError struct {
	baseError
	NegotiationID string
	TxID          string
}

// NewSubmissionError creates a retryable SubmissionError.
func NewSubmissionError(message string, cause error) *SubmissionError {
	return &SubmissionError{
		baseError: baseError{message: message, cause: cause, severity: SeverityWarning, retryable: true},
	}
}

func (e *SubmissionError) WithNegotiation(id string) *SubmissionError {
	e.NegotiationID = id
	return e
}

func (e *SubmissionError) WithTx(id string) *SubmissionError {
	e.TxID = id
	return e
}

// WithRetryable overrides retryability, e.g. for a rejected validation.
func (e *SubmissionError) WithRetryable(r bool) *SubmissionError {
	e.retryable = r
	return e
}

func (e *SubmissionError) Code() string { return "SUBMISSION_ERROR" }

func (e *SubmissionError) Error() string {
	var parts []string
	if e.NegotiationID != "" {
		parts = append(parts, "negotiation="+e.NegotiationID)
	}
	if e.TxID != "" {
		parts = append(parts, "tx="+e.TxID)
	}
	return format("submission error", parts, e.message, e.cause)
}

func (e *SubmissionError) Is(target error) bool {
	if target == ErrSubmission {
		return true
	}
	if _, ok := target.(*SubmissionError); ok {
		return true
	}
	return e.is(target)
}

// -----------------------------------------------------------------------------
// TimeoutError
// -----------------------------------------------------------------------------

// TimeoutError indicates the counterparty did not answer in time.
type TimeoutError struct {
	baseError
	Operation     string
	NegotiationID string
	Timeout       time.Duration
}

// NewTimeoutError creates a TimeoutError.
func NewTimeoutError(operation string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{severity: SeverityError},
		Operation: operation,
		Timeout:   timeout,
	}
}

func (e *TimeoutError) WithNegotiation(id string) *TimeoutError {
	e.NegotiationID = id
	return e
}

func (e *TimeoutError) WithCause(err error) *TimeoutError {
	e.cause = err
	return e
}

func (e *TimeoutError) Code() string { return "TIMEOUT" }

func (e *TimeoutError) Error() string {
	var parts []string
	if e.NegotiationID != "" {
		parts = append(parts, "negotiation="+e.NegotiationID)
	}
	msg := e.Operation
	if e.Timeout > 0 {
		msg = fmt.Sprintf("%s after %s", e.Operation, e.Timeout)
	}
	return format("timeout", parts, msg, e.cause)
}

func (e *TimeoutError) Is(target error) bool {
	if target == ErrTimeout || target == context.DeadlineExceeded {
		return true
	}
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	return e.is(target)
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsRetryable reports whether any error in the chain is retryable.
func IsRetryable(err error) bool {
	var ne NegotiationError
	if As(err, &ne) {
		return ne.IsRetryable()
	}
	return false
}

// GetSeverity returns the severity of the first NegotiationError in the chain.
func GetSeverity(err error) Severity {
	var ne NegotiationError
	if As(err, &ne) {
		return ne.Severity()
	}
	return SeverityError
}

// Code returns the wire code for err, used on HTTP error bodies.
func Code(err error) string {
	var ne NegotiationError
	if As(err, &ne) {
		return ne.Code()
	}
	switch {
	case Is(err, ErrSessionAborted):
		return "SESSION_ABORTED"
	case Is(err, ErrRefused):
		return "REFUSED"
	case Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case Is(err, ErrConflict):
		return "CONFLICT"
	case Is(err, ErrInvalidInput):
		return "BAD_REQUEST"
	case Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	}
	return "INTERNAL"
}

// Wire is the transport form of an error.
type Wire struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToWire converts err into its transport form, keeping the context
// fields needed to rebuild it on the other side.
func ToWire(err error) Wire {
	w := Wire{Code: Code(err), Message: err.Error(), Details: map[string]any{}}
	var verr *ValidationError
	var ierr *IntegrityError
	var nerr *NotFoundError
	var serr *SubmissionError
	switch {
	case As(err, &verr):
		w.Details["rule"] = string(verr.Rule)
		w.Details["predicate"] = verr.Predicate
		w.Details["negotiation_id"] = verr.NegotiationID
		w.Details["intent"] = verr.Intent
	case As(err, &ierr):
		w.Details["negotiation_id"] = ierr.NegotiationID
		w.Details["role"] = ierr.Role
	case As(err, &nerr):
		w.Details["resource"] = nerr.Resource
		w.Details["id"] = nerr.ID
	case As(err, &serr):
		w.Details["negotiation_id"] = serr.NegotiationID
		w.Details["tx_id"] = serr.TxID
		w.Details["retryable"] = serr.retryable
	}
	return w
}

// FromWire rebuilds a typed error from its transport form.
func FromWire(w Wire) error {
	str := func(k string) string {
		v, _ := w.Details[k].(string)
		return v
	}
	switch w.Code {
	case "VALIDATION_ERROR":
		return NewValidationError(Rule(str("rule")), str("predicate")).
			WithNegotiation(str("negotiation_id")).WithIntent(str("intent"))
	case "INTEGRITY_ERROR":
		return NewIntegrityError(w.Message).WithNegotiation(str("negotiation_id")).WithRole(str("role"))
	case "NOT_FOUND":
		return NewNotFoundError(str("resource"), str("id"))
	case "SUBMISSION_ERROR":
		e := NewSubmissionError(w.Message, nil).WithNegotiation(str("negotiation_id")).WithTx(str("tx_id"))
		if r, ok := w.Details["retryable"].(bool); ok {
			e.WithRetryable(r)
		}
		return e
	case "TIMEOUT":
		return NewTimeoutError(w.Message, 0)
	case "SESSION_ABORTED":
		return fmt.Errorf("%w: %s", ErrSessionAborted, w.Message)
	case "REFUSED":
		return fmt.Errorf("%w: %s", ErrRefused, w.Message)
	case "UNAUTHORIZED":
		return fmt.Errorf("%w: %s", ErrUnauthorized, w.Message)
	case "CONFLICT":
		return fmt.Errorf("%w: %s", ErrConflict, w.Message)
	case "BAD_REQUEST", "BAD_JSON":
		return fmt.Errorf("%w: %s", ErrInvalidInput, w.Message)
	}
	return fmt.Errorf("%s: %s", w.Code, w.Message)
}
