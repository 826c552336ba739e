package comparison

import (
	"errors"
	"fmt"
)

// FormatError reports a document that is not valid JSON or does not have the
// shape of a comparison. Message is safe to show to the person who supplied
// the document.
type FormatError struct {
	Message string
	// Section is the offending section index, or -1 for envelope problems.
	Section int
	Err     error
}

func (e *FormatError) Error() string {
	if e == nil {
		return ""
	}
	if e.Section >= 0 {
		return fmt.Sprintf("format error: section %d: %s", e.Section, e.Message)
	}
	return "format error: " + e.Message
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown to a person, without the error prefix.
func (e *FormatError) UserMessage() string {
	if e.Section >= 0 {
		return fmt.Sprintf("Section %d: %s", e.Section+1, e.Message)
	}
	return e.Message
}

func formatError(section int, message string, err error) *FormatError {
	return &FormatError{Message: message, Section: section, Err: err}
}

// NewFormatError builds a document-level FormatError.
func NewFormatError(message string, err error) *FormatError {
	return formatError(-1, message, err)
}

// IsFormatError reports whether err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

var (
	// ErrReadOnlySection is returned when an edit targets a forkcast-facts section.
	ErrReadOnlySection = errors.New("forkcast-facts sections are read-only")
	// ErrSectionIndex is returned for a section index outside the document.
	ErrSectionIndex = errors.New("section index out of range")
)
