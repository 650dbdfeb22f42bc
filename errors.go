package reservoir

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("reservoir: not found")
	ErrAlreadyExists = errors.New("reservoir: already exists")
	ErrInvalidInput  = errors.New("reservoir: invalid input")

	// Pool errors
	ErrPoolNotFound       = errors.New("reservoir: pool not found")
	ErrPoolMarkedDeleted  = errors.New("reservoir: pool is marked for delete")
	ErrPoolExpired        = errors.New("reservoir: pool is expired")
	ErrInsufficientUnits  = errors.New("reservoir: insufficient units available")
	ErrVersionConflict    = errors.New("reservoir: pool version conflict")
	ErrDuplicateStackPool = errors.New("reservoir: stack already has a derived pool")
	ErrDuplicateSubPool   = errors.New("reservoir: subscription already has a pool for this sub-key")

	// Entitlement errors
	ErrEntitlementNotFound = errors.New("reservoir: entitlement not found")
	ErrRulesDenied         = errors.New("reservoir: denied by rules evaluation")

	// Catalog errors
	ErrConsumerNotFound     = errors.New("reservoir: consumer not found")
	ErrProductNotFound      = errors.New("reservoir: product not found")
	ErrSubscriptionNotFound = errors.New("reservoir: subscription not found")

	// Store errors
	ErrStoreNotReady     = errors.New("reservoir: store not ready")
	ErrStoreClosed       = errors.New("reservoir: store is closed")
	ErrTransactionFailed = errors.New("reservoir: transaction failed")
	ErrMigrationFailed   = errors.New("reservoir: migration failed")
)

// ValidationError represents a validation failure with details. It is
// reported before any state change; a failing mutation is never
// partially applied.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("reservoir: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "reservoir: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("reservoir: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPoolNotFound) ||
		errors.Is(err, ErrEntitlementNotFound) ||
		errors.Is(err, ErrConsumerNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsConflict returns true if the error is an optimistic-locking
// conflict. The caller must re-read and re-run the admission check
// from scratch; the engine never retries on its own.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsValidation returns true if the error is a validation failure.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IsRetryable returns true if the error is temporary and the operation
// can be retried after re-reading state.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
