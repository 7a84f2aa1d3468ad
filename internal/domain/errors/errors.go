package errors

import (
	"errors"
	"fmt"
)

var (
	// Tenant / routing errors
	ErrStoreNotFound           = errors.New("store not found")
	ErrStoreInactive           = errors.New("store is inactive")
	ErrProviderConfigNotFound  = errors.New("provider configuration not found")
	ErrDuplicateProviderConfig = errors.New("provider already configured for store")

	// Pending payment errors
	ErrPendingPaymentNotFound = errors.New("pending payment not found")
	ErrPaymentExpired         = errors.New("pending payment has expired")
	ErrAlreadyConsumed        = errors.New("pending payment already consumed")
	ErrCorrelationConflict    = errors.New("correlation id already assigned")

	// Ledger errors
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrDuplicateTransaction   = errors.New("provider transaction already recorded")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidCurrency        = errors.New("invalid currency")

	// Order / refund errors
	ErrOrderNotFound     = errors.New("order not found")
	ErrChargeNotFound    = errors.New("charge transaction not found")
	ErrRefundNotAllowed  = errors.New("refund not allowed")
	ErrRefundInProgress  = errors.New("refund already in progress")
	ErrRefundExceedsPaid = errors.New("refund amount exceeds refundable balance")

	// Provider errors
	ErrProviderNotFound    = errors.New("payment provider not found")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrGatewayFailure      = errors.New("payment gateway failure")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrInvalidCredentials  = errors.New("invalid provider credentials")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
