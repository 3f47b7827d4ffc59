package dues

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios. Messages are terse and
// never carry record identifiers; wrap them for internal context.
var (
	// General errors
	ErrNotFound      = errors.New("dues: not found")
	ErrAlreadyExists = errors.New("dues: already exists")
	ErrInvalidInput  = errors.New("dues: invalid input")
	ErrUnauthorized  = errors.New("dues: not allowed")

	// Record errors
	ErrPlayerNotFound       = errors.New("dues: player not found")
	ErrDueNotFound          = errors.New("dues: due not found")
	ErrAttendanceNotFound   = errors.New("dues: attendance not found")
	ErrEventNotFound        = errors.New("dues: event not found")
	ErrCategoryNotFound     = errors.New("dues: category not found")
	ErrRegistrationNotFound = errors.New("dues: registration not found")
	ErrReceiptNotFound      = errors.New("dues: receipt not found")

	// Settlement errors
	ErrAlreadySettled   = errors.New("dues: duplicate payment not allowed")
	ErrAmountRequired   = errors.New("dues: amount required")
	ErrWrongPlayer      = errors.New("dues: obligation belongs to another player")
	ErrNotDebt          = errors.New("dues: receipt is not an outstanding debt")
	ErrPriceNotSet      = errors.New("dues: per-session price not set")
	ErrNotPerSession    = errors.New("dues: player is billed monthly")
	ErrNothingToSettle  = errors.New("dues: nothing to settle")
	ErrCurrencyMismatch = errors.New("dues: currency mismatch")
	ErrInvalidKind      = errors.New("dues: invalid receipt kind")
	ErrInvalidMonth     = errors.New("dues: invalid month")
	ErrInactivePlayer   = errors.New("dues: player is inactive")

	// Store errors
	ErrStoreClosed       = errors.New("dues: store is closed")
	ErrTransactionFailed = errors.New("dues: transaction failed")
	ErrMigrationFailed   = errors.New("dues: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("dues: %s: %s", e.Field, e.Message)
}

// MultiError collects several errors.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "dues: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("dues: %d errors occurred", len(e.Errors))
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

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrDueNotFound) ||
		errors.Is(err, ErrAttendanceNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrRegistrationNotFound) ||
		errors.Is(err, ErrReceiptNotFound)
}

// IsDuplicate reports whether err is a uniqueness violation. Duplicates
// mean "already handled", not failure.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrAlreadySettled)
}

// IsValidation reports whether err was caused by caller input.
func IsValidation(err error) bool {
	var ve ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrAmountRequired) ||
		errors.Is(err, ErrWrongPlayer) ||
		errors.Is(err, ErrNotDebt) ||
		errors.Is(err, ErrPriceNotSet) ||
		errors.Is(err, ErrNotPerSession) ||
		errors.Is(err, ErrNothingToSettle) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidMonth) ||
		errors.Is(err, ErrInactivePlayer)
}

// IsRetryable returns true if the error is temporary and the operation
// can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailed)
}
