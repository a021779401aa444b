package services

import (
	"errors"
	"fmt"
)

// Docket business-rule outcomes. These are terminal results, never retried.
var (
	ErrUnknownLocation      = errors.New("unknown location")
	ErrInvalidSlot          = errors.New("invalid time slot")
	ErrSlotTaken            = errors.New("time slot already taken")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrExtractionFailed     = errors.New("extraction failed")
	ErrUnreadableDocument   = errors.New("unreadable document")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("action not permitted")
	ErrFixedLocation        = errors.New("fixed locations cannot be removed")
	ErrDuplicateLocation    = errors.New("location already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrRateLimited          = errors.New("too many requests")
)

// Error codes, also used as i18n keys under "errors."
const (
	CodeUnknownLocation      = "unknown_location"
	CodeInvalidSlot          = "invalid_slot"
	CodeSlotTaken            = "slot_taken"
	CodeMissingRequiredField = "missing_required_field"
	CodeInvalidTransition    = "invalid_transition"
	CodeExtractionFailed     = "extraction_failed"
	CodeUnreadableDocument   = "unreadable_document"
	CodeNotFound             = "not_found"
	CodeForbidden            = "forbidden"
	CodeFixedLocation        = "fixed_location"
	CodeDuplicateLocation    = "duplicate_location"
	CodeInvalidInput         = "invalid_input"
	CodeRateLimited          = "rate_limited"
)

var sentinelCodes = []struct {
	err  error
	code string
}{
	{ErrUnknownLocation, CodeUnknownLocation},
	{ErrInvalidSlot, CodeInvalidSlot},
	{ErrSlotTaken, CodeSlotTaken},
	{ErrMissingRequiredField, CodeMissingRequiredField},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrExtractionFailed, CodeExtractionFailed},
	{ErrUnreadableDocument, CodeUnreadableDocument},
	{ErrNotFound, CodeNotFound},
	{ErrForbidden, CodeForbidden},
	{ErrFixedLocation, CodeFixedLocation},
	{ErrDuplicateLocation, CodeDuplicateLocation},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrRateLimited, CodeRateLimited},
}

// DocketError carries detail about a business-rule failure and unwraps to
// one of the sentinel errors above.
type DocketError struct {
	Code    string
	Message string
	Field   string
	Cause   error
}

func (e *DocketError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DocketError) Unwrap() error {
	return e.Cause
}

func newDocketError(sentinel error, field, format string, args ...interface{}) *DocketError {
	return &DocketError{
		Code:    ErrorCode(sentinel),
		Message: fmt.Sprintf(format, args...),
		Field:   field,
		Cause:   sentinel,
	}
}

// ErrorCode maps any error in the chain to its stable code, or "internal"
func ErrorCode(err error) string {
	var de *DocketError
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return "internal"
}
