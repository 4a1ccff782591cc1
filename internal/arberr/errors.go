// Package arberr is the engine's flat error taxonomy. Every kind is a
// sentinel wrapped with errors.Is-compatible %w so callers can classify a
// failure without string matching, while logs still carry the original
// cause via Unwrap.
package arberr

import (
	"errors"
	"fmt"
)

// Kind is one flat error classification. Kinds never nest: a component
// picks exactly one kind per failure and wraps the underlying cause.
type Kind string

const (
	FeedStale     Kind = "FeedStale"
	FeedReconnect Kind = "FeedReconnect"

	GraphInconsistent Kind = "GraphInconsistent"

	PathInvalid  Kind = "PathInvalid"
	NoCandidates Kind = "NoCandidates"

	MathOverflow  Kind = "MathOverflow"
	PrecisionLoss Kind = "PrecisionLoss"

	OracleOutOfBounds    Kind = "OracleOutOfBounds"
	OracleRateLimited    Kind = "OracleRateLimited"
	OracleStale          Kind = "OracleStale"
	OracleBreakerActive  Kind = "OracleBreakerActive"
	OracleTimelockActive Kind = "OracleTimelockActive"

	RiskRejected    Kind = "RiskRejected"
	EthicsRejected  Kind = "EthicsRejected"

	FlashLoanUnavailable Kind = "FlashLoanUnavailable"

	SimulationFailed Kind = "SimulationFailed"

	CircuitBreakerOpen Kind = "CircuitBreakerOpen"
	EmergencyStop      Kind = "EmergencyStop"
)

// Error is the engine's classified error: a Kind plus an optional wrapped
// cause and a one-sentence Reason for operator-facing surfaces. Stack
// traces never leave the process; Reason is what gets shown to users.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, arberr.New(kind, "")) match any *Error of the
// same Kind regardless of Reason/Cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New builds a classified error with an explanatory reason.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap builds a classified error around an underlying cause.
func Wrap(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Cause: cause}
}

// Of matches any wrapped *Error carrying the given kind.
func Of(kind Kind) error { return &Error{Kind: kind} }

// IsKind reports whether err (or anything it wraps) was classified with
// kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, Of(kind))
}

// Global reports whether a kind is a latching, pipeline-wide fault rather
// than a per-candidate drop — the Breakdown kinds (CircuitBreakerOpen,
// EmergencyStop) halt new work until an operator intervenes.
func (k Kind) Global() bool {
	switch k {
	case CircuitBreakerOpen, EmergencyStop:
		return true
	default:
		return false
	}
}
