package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeValidation    = "INVALID_FILTERS"
	ErrCodeBrowserLaunch = "BROWSER_LAUNCH_FAILED"
	ErrCodeNavigation    = "NAVIGATION_FAILED"
	ErrCodeTimeout       = "FETCH_TIMEOUT"
	ErrCodeExtraction    = "EXTRACTION_FAILED"
	ErrCodeNoResults     = "NO_RESULTS"
	ErrCodeRetrieval     = "RETRIEVAL_FAILED"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// Category sentinels. Match with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrFetch      = errors.New("fetch error")
	ErrExtraction = errors.New("extraction error")
	ErrAggregate  = errors.New("aggregate failure")
)

// User-facing messages.
const (
	MsgInvalidNumbers = "please enter valid numeric values for price, mileage, and year"
	MsgNoResults      = "no cars found matching the criteria"
	msgRetrieval      = "retrieval error"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SearchError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type SearchError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *SearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the category sentinel for e's code.
func (e *SearchError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Code == ErrCodeValidation
	case ErrFetch:
		return e.Code == ErrCodeBrowserLaunch || e.Code == ErrCodeNavigation || e.Code == ErrCodeTimeout
	case ErrExtraction:
		return e.Code == ErrCodeExtraction
	case ErrAggregate:
		return e.Code == ErrCodeRetrieval || e.Code == ErrCodeNoResults
	}
	return false
}

// NewSearchError creates a new SearchError.
func NewSearchError(code, message string, err error) *SearchError {
	return &SearchError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *SearchError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// RetrievalMessage formats the message shown when every source failed.
func RetrievalMessage(cause string) string {
	if cause == "" {
		return msgRetrieval
	}
	return msgRetrieval + ": " + cause
}
