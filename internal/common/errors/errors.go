// Package errors provides standardized error handling for the assistant core.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeRuleLoadFailed      ErrorCode = "RULE_LOAD_FAILED"
	ErrCodeFormulaInvalid      ErrorCode = "FORMULA_INVALID"
	ErrCodeCatalogLookupFailed ErrorCode = "CATALOG_LOOKUP_FAILED"
	ErrCodeHistoryLoadFailed   ErrorCode = "HISTORY_LOAD_FAILED"
	ErrCodeTransactionFailed   ErrorCode = "TRANSACTION_WRITE_FAILED"
	ErrCodeDictionaryStale     ErrorCode = "DICTIONARY_REFRESH_FAILED"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewRuleLoadFailedError creates a retryable rule-store error.
func NewRuleLoadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRuleLoadFailed,
		Message:   "Pricing rule load failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewFormulaInvalidError creates a non-retryable formula parse error.
func NewFormulaInvalidError(formula string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeFormulaInvalid,
		Message:   "Pricing formula could not be parsed",
		Details:   fmt.Sprintf("formula: %q, error: %s", formula, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCatalogLookupFailedError creates a retryable catalog store error.
func NewCatalogLookupFailedError(name string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCatalogLookupFailed,
		Message:   "Catalog lookup failed",
		Details:   fmt.Sprintf("name: %s, error: %s", name, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewHistoryLoadFailedError creates a retryable history-store error.
func NewHistoryLoadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeHistoryLoadFailed,
		Message:   "Historical price sample load failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransactionFailedError creates a retryable transaction write error.
func NewTransactionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransactionFailed,
		Message:   "Transaction write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDictionaryRefreshError creates a retryable dictionary refresh error.
func NewDictionaryRefreshError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDictionaryStale,
		Message:   "Name dictionary refresh failed, serving previous snapshot",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// IsRetryable reports whether err is a retryable StandardError.
func IsRetryable(err error) bool {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Retryable
	}
	return false
}
