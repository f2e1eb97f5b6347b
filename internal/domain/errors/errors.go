// Package errors provides the typed error taxonomy for the settlement
// pipeline. Callers branch on these sentinels with errors.Is instead of
// matching message substrings, so each failure class maps to exactly one
// state transition.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a row with the same unique key exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates a validation failure (bad ad, rate, amount)
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientBalance indicates the merchant ledger cannot cover the
	// requested debit; terminal for the triggering settlement
	ErrInsufficientBalance = errors.New("insufficient merchant balance")

	// ErrRailPending indicates the payment rail has not resolved the payout
	// yet; the transaction stays PENDING awaiting webhook reconciliation
	ErrRailPending = errors.New("payment rail processing")

	// ErrRailFailure indicates a terminal payout failure at the rail
	ErrRailFailure = errors.New("payment rail failure")

	// ErrAuthentication indicates a webhook signature/timestamp mismatch
	ErrAuthentication = errors.New("authentication failed")

	// ErrChainRPC indicates a chain node call failed; retried next tick
	ErrChainRPC = errors.New("chain rpc error")

	// ErrTerminalState indicates an update targeted a CONFIRMED or
	// CANCELLED transaction
	ErrTerminalState = errors.New("transaction in terminal state")
)

// DomainError carries a machine-readable code and context alongside the
// sentinel it wraps.
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error wrapping a sentinel
func NewDomainError(err error, code, message string) *DomainError {
	return &DomainError{Err: err, Code: code, Message: message}
}

// WithDetails attaches context to the error
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	e.Details = details
	return e
}

// NotFoundError creates a not found error for a named resource
func NotFoundError(resource string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    fmt.Sprintf("%s_NOT_FOUND", resource),
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// ValidationError creates an invalid-input error for a named field
func ValidationError(field, message string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidInput,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]interface{}{"field": field},
	}
}

// InsufficientBalanceError creates a balance error with the amounts involved
func InsufficientBalanceError(have, need string) *DomainError {
	return &DomainError{
		Err:     ErrInsufficientBalance,
		Code:    "INSUFFICIENT_BALANCE",
		Message: fmt.Sprintf("insufficient merchant balance: have %s, need %s", have, need),
	}
}

// RailPendingError wraps an ambiguous rail response
func RailPendingError(message string) *DomainError {
	return &DomainError{Err: ErrRailPending, Code: "RAIL_PENDING", Message: message}
}

// RailFailureError wraps a terminal rail response
func RailFailureError(message string) *DomainError {
	return &DomainError{Err: ErrRailFailure, Code: "RAIL_FAILURE", Message: message}
}

// AuthenticationError creates a webhook authentication error
func AuthenticationError(message string) *DomainError {
	return &DomainError{Err: ErrAuthentication, Code: "AUTHENTICATION_ERROR", Message: message}
}

// ChainRPCError wraps a node call failure
func ChainRPCError(err error) *DomainError {
	return &DomainError{Err: ErrChainRPC, Code: "CHAIN_RPC_ERROR", Message: err.Error()}
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInsufficientBalance reports whether err is a balance error
func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// IsRailPending reports whether err is an ambiguous rail outcome
func IsRailPending(err error) bool {
	return errors.Is(err, ErrRailPending)
}

// IsRailFailure reports whether err is a terminal rail failure
func IsRailFailure(err error) bool {
	return errors.Is(err, ErrRailFailure)
}

// IsAuthentication reports whether err is a webhook auth failure
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// GetErrorCode extracts the code from a domain error
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "UNKNOWN_ERROR"
}

// Wrap adds context to an error, preserving the sentinel chain
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
