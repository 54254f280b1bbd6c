package format

import (
	"errors"
	"fmt"

	"golang.org/x/xerrors"
)

// xErrorsFrameCaller is passed into error functions to indicate the default stack frame
const xErrorsFrameCaller = 1

// Coded error identifiers, useful to uniquely track a particular failure mode
const (
	InvalidMediaType     string = "FORMAT_E-0100"
	ContentNotReadable   string = "FORMAT_E-0200"
	MalformedEncoding    string = "FORMAT_E-0300"
	ResourceNotFound     string = "FORMAT_E-0400"
	ResourceForbidden    string = "FORMAT_E-0401"
	ResourceIOFailure    string = "FORMAT_E-0500"
	ResourceUnexpected   string = "FORMAT_E-0999"
	UnableToListArchive  string = "FORMAT_W-0100"
	UnableToGuessCharset string = "FORMAT_W-0101"
)

// Sentinel errors for the Resource and content error taxonomy; use errors.Is
// (or the Is* helpers below) to classify a failure regardless of how many
// layers wrapped it.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrForbidden          = errors.New("resource forbidden")
	ErrIO                 = errors.New("resource i/o failure")
	ErrOther              = errors.New("unexpected resource failure")
	ErrContentUnavailable = errors.New("content unavailable")
	ErrMalformedEncoding  = errors.New("malformed encoding")
	ErrClosed             = errors.New("already closed")
)

// Error is a coded error for more granular tracking
type Error struct {
	Context string
	Code    string
	Message string
	Cause   error
	Frame   xerrors.Frame
}

// FormatError will print a simple message to the Printer object. This will be what you see when you Println or use %s/%v in a formatted print statement.
func (e Error) FormatError(p xerrors.Printer) error {
	if len(e.Context) > 0 {
		p.Printf("%s %s (%s)", e.Code, e.Message, e.Context)
	} else {
		p.Printf("%s %s", e.Code, e.Message)
	}
	e.Frame.Format(p)
	return e.Cause
}

// Format provide backwards compatibility with pre-xerrors package
func (e Error) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// Error satisfies the Go error contract
func (e Error) Error() string {
	return fmt.Sprint(e)
}

// Unwrap exposes the underlying cause, if any
func (e Error) Unwrap() error {
	return e.Cause
}

// Is maps the error code onto the matching sentinel so that
// errors.Is(err, ErrContentUnavailable) works on coded errors too.
func (e Error) Is(target error) bool {
	switch e.Code {
	case ContentNotReadable:
		return target == ErrContentUnavailable
	case MalformedEncoding:
		return target == ErrMalformedEncoding
	}
	return false
}

func invalidMediaTypeError(raw string, cause error, frame xerrors.Frame) *Error {
	return &Error{
		Context: raw,
		Code:    InvalidMediaType,
		Message: "invalid media type",
		Cause:   cause,
		Frame:   frame,
	}
}

// ResourceError describes why a Resource read failed. Kind is always one of
// the taxonomy sentinels (ErrNotFound, ErrForbidden, ErrIO, ErrOther) so
// that errors.Is sees through it; Cause carries the underlying failure when
// there is one.
type ResourceError struct {
	Href  string
	Kind  error
	Cause error
	Frame xerrors.Frame
}

// FormatError will print a simple message to the Printer object.
func (e *ResourceError) FormatError(p xerrors.Printer) error {
	if len(e.Href) > 0 {
		p.Printf("%s %v (%s)", e.code(), e.Kind, e.Href)
	} else {
		p.Printf("%s %v", e.code(), e.Kind)
	}
	e.Frame.Format(p)
	return e.Cause
}

// Format provide backwards compatibility with pre-xerrors package
func (e *ResourceError) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// Error satisfies the Go error contract
func (e *ResourceError) Error() string {
	return fmt.Sprint(e)
}

// Unwrap returns the underlying cause
func (e *ResourceError) Unwrap() error {
	return e.Cause
}

// Is matches the taxonomy sentinel, so errors.Is(err, ErrNotFound) works
// without unwrapping into the cause chain.
func (e *ResourceError) Is(target error) bool {
	return target == e.Kind
}

func (e *ResourceError) code() string {
	switch e.Kind {
	case ErrNotFound:
		return ResourceNotFound
	case ErrForbidden:
		return ResourceForbidden
	case ErrIO:
		return ResourceIOFailure
	default:
		return ResourceUnexpected
	}
}

func notFoundError(href string, frame xerrors.Frame) *ResourceError {
	return &ResourceError{Href: href, Kind: ErrNotFound, Frame: frame}
}

func forbiddenError(href string, frame xerrors.Frame) *ResourceError {
	return &ResourceError{Href: href, Kind: ErrForbidden, Frame: frame}
}

func ioError(href string, cause error, frame xerrors.Frame) *ResourceError {
	return &ResourceError{Href: href, Kind: ErrIO, Cause: cause, Frame: frame}
}

func otherError(href string, cause error, frame xerrors.Frame) *ResourceError {
	return &ResourceError{Href: href, Kind: ErrOther, Cause: cause, Frame: frame}
}

// IsNotFound reports whether an error indicates the backing asset does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsForbidden reports whether an error indicates access was denied
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
