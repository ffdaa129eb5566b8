package protocol

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// ErrorKind classifies a failed command. The set is closed: every failure a
// client can observe maps onto exactly one kind.
type ErrorKind string

const (
	PathEscape       ErrorKind = "PathEscape"
	NotFound         ErrorKind = "NotFound"
	NotADirectory    ErrorKind = "NotADirectory"
	IsADirectory     ErrorKind = "IsADirectory"
	SizeMismatch     ErrorKind = "SizeMismatch"
	HashMismatch     ErrorKind = "HashMismatch"
	IOFailure        ErrorKind = "IOFailure"
	MalformedRequest ErrorKind = "MalformedRequest"
	Unsupported      ErrorKind = "Unsupported"
)

// Kinds lists every ErrorKind.
var Kinds = []ErrorKind{
	PathEscape, NotFound, NotADirectory, IsADirectory,
	SizeMismatch, HashMismatch, IOFailure, MalformedRequest, Unsupported,
}

// Valid reports whether k is a member of the closed set.
func (k ErrorKind) Valid() bool {
	for _, v := range Kinds {
		if k == v {
			return true
		}
	}
	return false
}

// Error is a command failure carrying its kind. The wrapped error, if any,
// stays server-side; only Kind and Message travel on the wire.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the Err* sentinels work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrPathEscape       = &Error{Kind: PathEscape}
	ErrNotFound         = &Error{Kind: NotFound}
	ErrNotADirectory    = &Error{Kind: NotADirectory}
	ErrIsADirectory     = &Error{Kind: IsADirectory}
	ErrSizeMismatch     = &Error{Kind: SizeMismatch}
	ErrHashMismatch     = &Error{Kind: HashMismatch}
	ErrIOFailure        = &Error{Kind: IOFailure}
	ErrMalformedRequest = &Error{Kind: MalformedRequest}
	ErrUnsupported      = &Error{Kind: Unsupported}
)

// Errorf builds an *Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around err.
func Wrap(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// FromFS maps a filesystem error onto the closed set. Errors already carrying
// a kind pass through unchanged; anything unrecognised is IOFailure.
func FromFS(err error, path string) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Wrap(NotFound, err, path)
	case errors.Is(err, syscall.ENOTDIR):
		return Wrap(NotADirectory, err, path)
	case errors.Is(err, syscall.EISDIR):
		return Wrap(IsADirectory, err, path)
	}
	return Wrap(IOFailure, err, path)
}
