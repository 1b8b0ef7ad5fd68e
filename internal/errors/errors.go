// Package errors provides custom error types for the notification service.
//
// This package defines domain-specific errors that drive recovery decisions
// in the dispatcher and the HTTP surface. Each error type carries enough
// context to decide whether to retry, fall back, or surface the failure:
//
//	ConfigurationError  fatal at startup
//	RoutingMiss         recoverable, routed to the default contact
//	TokenError          surfaced to the action-link handler
//	TransportFailure    retried with backoff
//	GatewayRejection    terminal for the dispatch, not retried
//	LedgerWriteFailure  fatal to the current dispatch
package errors

import (
	"errors"
	"fmt"
)

// ErrShuttingDown is returned for dispatch requests submitted after shutdown began.
var ErrShuttingDown = errors.New("dispatcher is shutting down")

// ConfigurationError indicates invalid startup configuration.
//
// This error is returned when:
//   - A required environment variable is missing
//   - The department directory is malformed (duplicate keys, missing fields)
//
// Recovery strategy: none, the process must not start
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap returns the wrapped error for error chain inspection
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NewConfigurationError creates a new configuration error with context
func NewConfigurationError(msg string, err error) *ConfigurationError {
	return &ConfigurationError{Message: msg, Err: err}
}

// RoutingMiss indicates no department is registered for a city/category pair.
//
// Recovery strategy: route to the default contact and log the miss
type RoutingMiss struct {
	City     string
	Category string
}

func (e *RoutingMiss) Error() string {
	return fmt.Sprintf("routing miss: no department for city=%q category=%q", e.City, e.Category)
}

// NewRoutingMiss creates a new routing miss for the given key
func NewRoutingMiss(city, category string) *RoutingMiss {
	return &RoutingMiss{City: city, Category: category}
}

// TokenReason explains why an action token was refused.
type TokenReason string

const (
	TokenNotFound       TokenReason = "not_found"
	TokenExpired        TokenReason = "expired"
	TokenAlreadyUsed    TokenReason = "already_used"
	TokenSecretMismatch TokenReason = "secret_mismatch"
)

// TokenError indicates that an action token could not be consumed.
//
// Recovery strategy: none inside the dispatcher. The action-link handler
// maps each reason to its own response.
type TokenError struct {
	ComplaintID string
	Reason      TokenReason
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token rejected for complaint %s: %s", e.ComplaintID, e.Reason)
}

// NewTokenError creates a new token error with the refusal reason
func NewTokenError(complaintID string, reason TokenReason) *TokenError {
	return &TokenError{ComplaintID: complaintID, Reason: reason}
}

// TransportFailure wraps errors that occur before the gateway produced a verdict.
//
// This error is returned when:
//   - The HTTP request times out or the connection fails
//   - The gateway answers with a 5xx or 429 status
//
// Recovery strategy: retry with exponential backoff, bounded
type TransportFailure struct {
	Message string
	Err     error
}

func (e *TransportFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport failure: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("transport failure: %s", e.Message)
}

// Unwrap returns the wrapped error for error chain inspection
func (e *TransportFailure) Unwrap() error {
	return e.Err
}

// NewTransportFailure creates a new transport failure with context
func NewTransportFailure(msg string, err error) *TransportFailure {
	return &TransportFailure{Message: msg, Err: err}
}

// GatewayRejection indicates the gateway received the message and refused it.
//
// This error is returned when:
//   - The recipient address is invalid or not on the chat network
//   - The gateway reports the message as not sent
//
// Recovery strategy: do not retry; record and surface to operators
type GatewayRejection struct {
	Detail string
}

func (e *GatewayRejection) Error() string {
	return fmt.Sprintf("gateway rejected message: %s", e.Detail)
}

// NewGatewayRejection creates a new gateway rejection with the provider's detail
func NewGatewayRejection(detail string) *GatewayRejection {
	return &GatewayRejection{Detail: detail}
}

// LedgerWriteFailure indicates a dispatch outcome could not be persisted.
//
// Recovery strategy: abort the current dispatch. The dispatcher remembers
// accepted-but-unrecorded sends so a retry re-records instead of re-sending.
type LedgerWriteFailure struct {
	ComplaintID string
	Role        string
	Err         error
}

func (e *LedgerWriteFailure) Error() string {
	return fmt.Sprintf("ledger write failed for complaint %s (%s): %v", e.ComplaintID, e.Role, e.Err)
}

// Unwrap returns the wrapped error for error chain inspection
func (e *LedgerWriteFailure) Unwrap() error {
	return e.Err
}

// NewLedgerWriteFailure creates a new ledger write failure with context
func NewLedgerWriteFailure(complaintID, role string, err error) *LedgerWriteFailure {
	return &LedgerWriteFailure{ComplaintID: complaintID, Role: role, Err: err}
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsTransient checks if the error is a retryable transport failure
func IsTransient(err error) bool {
	var target *TransportFailure
	return errors.As(err, &target)
}

// IsGatewayRejection checks if the error is a gateway rejection
func IsGatewayRejection(err error) bool {
	var target *GatewayRejection
	return errors.As(err, &target)
}

// IsLedgerWriteFailure checks if the error is a ledger write failure
func IsLedgerWriteFailure(err error) bool {
	var target *LedgerWriteFailure
	return errors.As(err, &target)
}

// TokenReasonOf returns the refusal reason if err is a TokenError
func TokenReasonOf(err error) (TokenReason, bool) {
	var target *TokenError
	if errors.As(err, &target) {
		return target.Reason, true
	}
	return "", false
}
