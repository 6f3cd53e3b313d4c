// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Input contract errors
	ErrInvalidDimensions = &Error{Code: "INVALID_DIMENSIONS", Message: "unexpected grid dimensions"}
	ErrInvalidInput      = &Error{Code: "INVALID_INPUT", Message: "invalid input"}
	ErrNoData            = &Error{Code: "NO_DATA", Message: "no data available"}

	// Data source errors
	ErrSourceFailed  = &Error{Code: "SOURCE_FAILED", Message: "data source failed"}
	ErrAssetNotFound = &Error{Code: "ASSET_NOT_FOUND", Message: "asset not found"}

	// Strategy errors
	ErrStrategyFailed = &Error{Code: "STRATEGY_FAILED", Message: "strategy invocation failed"}
	ErrNilWeights     = &Error{Code: "NIL_WEIGHTS", Message: "strategy returned no weights"}
	ErrWrongShape     = &Error{Code: "WRONG_SHAPE", Message: "strategy output must have dims {asset} or {asset, time}"}
	ErrNonFinite      = &Error{Code: "NON_FINITE", Message: "strategy output has no finite values"}

	// Persistence errors
	ErrStateStore = &Error{Code: "STATE_STORE", Message: "state store failed"}
	ErrSinkFailed = &Error{Code: "SINK_FAILED", Message: "output sink failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
