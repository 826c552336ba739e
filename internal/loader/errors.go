package loader

import (
	"errors"
	"fmt"
)

// NotFoundMessage is shown when a Gist does not exist or is private.
const NotFoundMessage = "Gist not found. Make sure the Gist ID is correct and the Gist is public."

// NoJSONFileMessage is the FormatError message for a Gist without a .json file.
const NoJSONFileMessage = "No JSON file found in this Gist"

var (
	// ErrExampleNotFound is returned by LoadExample for an unknown name.
	ErrExampleNotFound = errors.New("example not found")
	// ErrTokenRequired is returned when creating a Gist without a GitHub token.
	ErrTokenRequired = errors.New("github token required to create gists")
)

// NotFoundError reports a Gist that is missing or not public.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("gist %s: not found", e.ID)
}

// UserMessage is the text shown to the reader.
func (e *NotFoundError) UserMessage() string {
	return NotFoundMessage
}

// RemoteError is any other failure talking to the Gist API: a transport
// error or a non-200 response.
type RemoteError struct {
	ID     string
	Status int // 0 when the request never completed
	Body   string
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("gist %s: request failed: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("gist %s: github returned status %d: %s", e.ID, e.Status, e.Body)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the reader.
func (e *RemoteError) UserMessage() string {
	if e.Status == 0 {
		return "Could not reach GitHub. Check your connection and try again."
	}
	return fmt.Sprintf("GitHub returned an error (status %d). Try again later.", e.Status)
}

// ReferenceMissingError notes a forkcast-facts section whose EIP is not in
// the reference dataset. It is reported alongside a successful load, never
// returned as the load error.
type ReferenceMissingError struct {
	Section int
	EIP     int
}

func (e *ReferenceMissingError) Error() string {
	return fmt.Sprintf("section %d: EIP-%d is not in the reference dataset", e.Section, e.EIP)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
