package duplicate

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes duplication failures.
type ErrorCode string

const (
	// CodeSuffixCollision indicates the suffix is already used for the template.
	CodeSuffixCollision ErrorCode = "DUPLICATE_SUFFIX_COLLISION"

	// CodePartialWrite indicates a write inside the transaction failed. The
	// transaction was rolled back.
	CodePartialWrite ErrorCode = "PARTIAL_WRITE_FAILURE"

	// CodeTemplateNotFound indicates the template root does not exist.
	CodeTemplateNotFound ErrorCode = "TEMPLATE_NOT_FOUND"

	// CodeInvalidSuffix indicates a suffix below 1.
	CodeInvalidSuffix ErrorCode = "INVALID_SUFFIX"

	// CodeIDCollision indicates an allocated ID already exists, or two
	// template IDs collapse to the same copy ID.
	CodeIDCollision ErrorCode = "ID_COLLISION"

	// CodeInconsistentCopy indicates a rewritten payload still references
	// an identifier of the template subtree.
	CodeInconsistentCopy ErrorCode = "INCONSISTENT_COPY"

	// CodeCancelled indicates the context ended before commit.
	CodeCancelled ErrorCode = "CANCELLED"
)

// AbortedMessage is the user-facing summary of every duplication failure.
const AbortedMessage = "copy aborted, nothing changed"

// Error is returned by Engine.Duplicate. Nothing is written when it is
// returned.
type Error struct {
	Code       ErrorCode
	Message    string
	TemplateID string
	Suffix     int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s (template=%s, suffix=%d)", e.Code, e.Message, e.TemplateID, e.Suffix)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code ErrorCode, templateID string, suffix int, err error, format string, args ...any) *Error {
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		TemplateID: templateID,
		Suffix:     suffix,
		Err:        err,
	}
}

// CodeOf returns the code of a duplication error, or "" if err is not one.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsSuffixCollision returns true if the suffix was already used.
func IsSuffixCollision(err error) bool {
	return CodeOf(err) == CodeSuffixCollision
}

// IsTemplateNotFound returns true if the template root does not exist.
func IsTemplateNotFound(err error) bool {
	return CodeOf(err) == CodeTemplateNotFound
}
