// Package shared contains common domain types, errors, events and outcomes
// that are used across all domain packages. It depends on nothing outside the
// standard library.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "progression", "mission", "badge"
	Op      string // operation that failed, e.g. "Award", "Advance"
	Kind    error  // base error for errors.Is() checks
	Message string // human-readable message
	Err     error  // underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Progression domain errors
var (
	ErrProgressionNotFound = NewDomainError("progression", "Find", ErrNotFound, "user progression not found")
	ErrNonPositiveXP       = NewDomainError("progression", "Award", ErrValueOutOfRange, "xp amount must be positive")
	ErrEmptyReason         = NewDomainError("progression", "Award", ErrEmptyValue, "xp reason is required")
	ErrEmptyUserID         = NewDomainError("progression", "Validate", ErrInvalidID, "user id is required")
	ErrPaddedUserID        = NewDomainError("progression", "Validate", ErrInvalidID, "user id has surrounding whitespace")
	ErrInvalidLevelTable   = NewDomainError("progression", "LevelTable", ErrValidation, "invalid level table")
)

// Mission domain errors
var (
	ErrMissionNotFound        = NewDomainError("mission", "Find", ErrNotFound, "mission not found")
	ErrInvalidMissionType     = NewDomainError("mission", "Validate", ErrInvalidInput, "invalid mission type")
	ErrInvalidRequirement     = NewDomainError("mission", "Validate", ErrValueOutOfRange, "requirement count must be positive")
	ErrNonPositiveProgress    = NewDomainError("mission", "Advance", ErrValueOutOfRange, "progress amount must be positive")
	ErrEmptyRequirementType   = NewDomainError("mission", "Validate", ErrEmptyValue, "requirement type is required")
	ErrMissionStateMismatched = NewDomainError("mission", "Advance", ErrInvalidState, "mission state does not belong to definition")
)

// Badge domain errors
var (
	ErrBadgeNotFound    = NewDomainError("badge", "Find", ErrNotFound, "badge not found")
	ErrDuplicateRule    = NewDomainError("badge", "RegisterRule", ErrAlreadyExists, "rule already registered for badge")
	ErrInvalidRule      = NewDomainError("badge", "RegisterRule", ErrInvalidInput, "invalid badge rule")
	ErrStatsUnavailable = NewDomainError("badge", "Stats", ErrServiceUnavailable, "activity stats unavailable")
)

// Leaderboard domain errors
var (
	ErrInvalidPage  = NewDomainError("leaderboard", "Validate", ErrValueOutOfRange, "page must be positive")
	ErrInvalidLimit = NewDomainError("leaderboard", "Validate", ErrValueOutOfRange, "limit must be positive")
	ErrInvalidRole  = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "invalid member role")
	ErrCacheMiss    = NewDomainError("leaderboard", "Cache", ErrNotFound, "leaderboard page not cached")
)

// Notification domain errors
var (
	ErrNotificationFailed = NewDomainError("notification", "Send", ErrExternalService, "failed to send notification")
	ErrInvalidChannel     = NewDomainError("notification", "Validate", ErrInvalidInput, "invalid notification channel")
)

// Catalog errors
var (
	ErrInvalidCatalog = NewDomainError("catalog", "Validate", ErrValidation, "invalid catalog")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}

// Conflict marks a storage-level conflict (serialization failure, deadlock,
// busy database) so that callers can retry the unit of work.
func Conflict(op string, err error) error {
	return WrapError("storage", op, ErrConcurrentModification, "transaction conflict", err)
}
