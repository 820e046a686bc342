package pricing

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/toko-pricing/internal/common"
)

// Configuration and execution error codes surfaced to callers.
const (
	CodeAdapterNotFound         = "ADAPTER_NOT_FOUND"
	CodeNotImplemented          = "NOT_IMPLEMENTED"
	CodeIncompleteConfiguration = "INCOMPLETE_CONFIGURATION"
	CodeWrongCredentials        = "WRONG_CREDENTIALS"
	CodeCalculationFailed       = "CALCULATION_FAILED"
)

var (
	// ErrAdapterNotFound is returned when no adapter is registered under a key.
	ErrAdapterNotFound = errors.New("pricing: adapter not found")
	// ErrNotImplemented is returned by adapters that do not support an operation.
	ErrNotImplemented = errors.New("pricing: not implemented")
	// ErrIncompleteConfiguration flags an adapter missing required settings.
	ErrIncompleteConfiguration = errors.New("pricing: incomplete configuration")
	// ErrWrongCredentials flags an adapter whose upstream rejected its credentials.
	ErrWrongCredentials = errors.New("pricing: wrong credentials")
	// ErrCalculationFailed wraps any error raised while an adapter calculates.
	ErrCalculationFailed = errors.New("pricing: calculation failed")
	// ErrCurrencyMismatch is returned when rows or sheets of different currencies meet.
	ErrCurrencyMismatch = errors.New("pricing: currency mismatch")
)

var codeSentinels = map[string]error{
	CodeAdapterNotFound:         ErrAdapterNotFound,
	CodeNotImplemented:          ErrNotImplemented,
	CodeIncompleteConfiguration: ErrIncompleteConfiguration,
	CodeWrongCredentials:        ErrWrongCredentials,
	CodeCalculationFailed:       ErrCalculationFailed,
}

var codeStatus = map[string]int{
	CodeAdapterNotFound:         http.StatusNotFound,
	CodeNotImplemented:          http.StatusNotImplemented,
	CodeIncompleteConfiguration: http.StatusServiceUnavailable,
	CodeWrongCredentials:        http.StatusBadGateway,
	CodeCalculationFailed:       http.StatusUnprocessableEntity,
}

// NewError builds a coded error for the adapter identified by key. The result
// matches the code's sentinel with errors.Is and keeps cause in its chain.
func NewError(code, key string, cause error) *common.AppError {
	sentinel, ok := codeSentinels[code]
	if !ok {
		sentinel = ErrCalculationFailed
		code = CodeCalculationFailed
	}
	var err error
	if cause != nil {
		err = fmt.Errorf("%w: adapter %q: %w", sentinel, key, cause)
	} else {
		err = fmt.Errorf("%w: adapter %q", sentinel, key)
	}
	return common.NewAppError(code, err.Error(), codeStatus[code], err)
}

// CodeOf returns the pricing error code carried by err, or "" when err is not coded.
func CodeOf(err error) string {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	for code, sentinel := range codeSentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// asCalculationError keeps coded adapter errors intact and wraps anything else
// as CALCULATION_FAILED.
func asCalculationError(key string, err error) error {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return NewError(CodeCalculationFailed, key, err)
}
