package canonical

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindDecode      ErrorKind = "decode"
	KindValidation  ErrorKind = "validation"
	KindUnsupported ErrorKind = "unsupported_feature"
	KindBackend     ErrorKind = "backend"
	KindNotFound    ErrorKind = "not_found"
)

// ErrIdleTimeout is reported when a backend stream stays silent too long.
var ErrIdleTimeout = errors.New("backend stream idle timeout")

// Error is the gateway error taxonomy. Adapters render it in their own
// envelope; anything that is not an *Error is treated as a backend failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Decodef(format string, args ...any) *Error {
	return &Error{Kind: KindDecode, Message: fmt.Sprintf(format, args...)}
}

// WrapDecode reports a malformed body, keeping the parser error as cause.
func WrapDecode(err error, message string) *Error {
	return &Error{Kind: KindDecode, Message: message, Err: err}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Unsupportedf(format string, args ...any) *Error {
	return &Error{Kind: KindUnsupported, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewBackendError wraps a dispatch failure. An existing *Error is returned
// unchanged so the original kind survives.
func NewBackendError(message string, err error) error {
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	return &Error{Kind: KindBackend, Message: message, Err: err}
}

// KindOf classifies err. Unknown errors count as backend failures.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindBackend
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		if ge.Kind == KindBackend && ge.Err != nil {
			return ge.Message + ": " + ge.Err.Error()
		}
		return ge.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsDecode reports decode and validation failures, which callers see alike.
func IsDecode(err error) bool {
	k := KindOf(err)
	return err != nil && (k == KindDecode || k == KindValidation)
}

func IsUnsupported(err error) bool {
	return err != nil && KindOf(err) == KindUnsupported
}

func IsBackend(err error) bool {
	return err != nil && KindOf(err) == KindBackend
}

// IsTimeout reports backend failures caused by a deadline or idle timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrIdleTimeout)
}
