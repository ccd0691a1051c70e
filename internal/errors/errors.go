// Package errors implements the closed error taxonomy of §7: every
// NthLayerError carries a stable, enumerated Kind, a severity, and
// whether the failure is worth retrying, so callers can branch on
// structure instead of string-matching messages.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorKind is the closed set of failure categories §7 names. It is
// the thing callers switch on — messages are for humans, Kind is for
// code.
type ErrorKind string

const (
	KindProvider        ErrorKind = "provider"
	KindIdentity        ErrorKind = "identity"
	KindMetricDiscovery ErrorKind = "metric_discovery"
	KindDriftAnalysis   ErrorKind = "drift_analysis"
	KindSpecValidation  ErrorKind = "spec_validation"
	KindGenerator       ErrorKind = "generator"
	KindSink            ErrorKind = "sink"
	KindWebhook         ErrorKind = "webhook"
)

// Severity mirrors the teacher's shared/errors package: a coarse signal
// for how loudly an operator-facing surface should complain.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// NthLayerError is the error type every internal package builds toward
// at its boundary. It is safe to json.Marshal directly, per §7's
// "structured outcome list that is safe to serialize."
type NthLayerError struct {
	Kind       ErrorKind              `json:"kind"`
	Severity   Severity               `json:"severity"`
	Message    string                 `json:"message"`
	Service    string                 `json:"service,omitempty"`
	Provider   string                 `json:"provider,omitempty"`
	Operation  string                 `json:"operation,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Retryable  bool                   `json:"retryable"`
	RetryAfter time.Duration          `json:"retry_after,omitempty"`
	Wrapped    error                  `json:"-"`
}

func (e *NthLayerError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Service != "" {
		msg += fmt.Sprintf(" (service: %s)", e.Service)
	}
	if e.Wrapped != nil {
		msg += fmt.Sprintf(": %v", e.Wrapped)
	}
	return msg
}

// Unwrap makes NthLayerError participate in errors.Is/errors.As chains
// over whatever it wraps.
func (e *NthLayerError) Unwrap() error {
	return e.Wrapped
}

// IsRetryable lets internal/resilience.Retry classify an NthLayerError
// by its explicit Retryable flag instead of falling back to a
// substring heuristic on the error message.
func (e *NthLayerError) IsRetryable() bool {
	return e.Retryable
}

// Is treats two NthLayerErrors as equal when they share a Kind, so
// callers can write `errors.Is(err, &nthlayererrors.NthLayerError{Kind: KindSink})`.
func (e *NthLayerError) Is(target error) bool {
	t, ok := target.(*NthLayerError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// ToJSON serializes the error for structured logging or an API response.
func (e *NthLayerError) ToJSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// Of reports whether err is (or wraps) an NthLayerError of kind.
func Of(err error, kind ErrorKind) bool {
	var ne *NthLayerError
	if stderrors.As(err, &ne) {
		return ne.Kind == kind
	}
	return false
}

// Retryable reports whether err is an NthLayerError marked retryable.
func Retryable(err error) bool {
	var ne *NthLayerError
	if stderrors.As(err, &ne) {
		return ne.Retryable
	}
	return false
}

// ErrorBuilder provides the fluent construction API §7 calls for.
type ErrorBuilder struct {
	err *NthLayerError
}

// New starts building an error of the given kind.
func New(kind ErrorKind, message string) *ErrorBuilder {
	return &ErrorBuilder{err: &NthLayerError{
		Kind:      kind,
		Severity:  SeverityMedium,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Details:   make(map[string]interface{}),
	}}
}

func (b *ErrorBuilder) WithSeverity(s Severity) *ErrorBuilder {
	b.err.Severity = s
	return b
}

func (b *ErrorBuilder) WithService(service string) *ErrorBuilder {
	b.err.Service = service
	return b
}

func (b *ErrorBuilder) WithProvider(provider string) *ErrorBuilder {
	b.err.Provider = provider
	return b
}

func (b *ErrorBuilder) WithOperation(op string) *ErrorBuilder {
	b.err.Operation = op
	return b
}

func (b *ErrorBuilder) WithDetails(key string, value interface{}) *ErrorBuilder {
	b.err.Details[key] = value
	return b
}

func (b *ErrorBuilder) WithWrapped(err error) *ErrorBuilder {
	b.err.Wrapped = err
	return b
}

// WithRetry marks the error retryable (or not) and, for transient
// kinds, how long a caller should back off before trying again.
func (b *ErrorBuilder) WithRetry(retryable bool, retryAfter time.Duration) *ErrorBuilder {
	b.err.Retryable = retryable
	b.err.RetryAfter = retryAfter
	return b
}

// Build returns the concrete *NthLayerError.
func (b *ErrorBuilder) Build() *NthLayerError {
	return b.err
}

// Error returns the built error as the error interface, for call sites
// that want `return errors.New(...).Error()` inline.
func (b *ErrorBuilder) Error() error {
	return b.err
}
