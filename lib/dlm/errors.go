package dlm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the single structured error returned for every failure reported
// by a Service. Errno is the absolute value of the service return code,
// Msg the host's textual description of that errno.
type Error struct {
	Errno unix.Errno // The error number (always positive)
	Msg   string     // The strerror text for Errno
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("dlm: %s (errno %d)", e.Msg, int(e.Errno))
}

// Unwrap returns the underlying errno, so errors.Is(err, unix.EAGAIN) works.
func (e *Error) Unwrap() error {
	return e.Errno
}

// NewError maps a negative service return code to an *Error.
//
// A service only ever returns 0 for success or a negative errno on failure,
// so calling NewError with rc >= 0 is a bug in the caller and panics.
func NewError(rc int) *Error {
	if rc >= 0 {
		panic(fmt.Sprintf("dlm: NewError called with non-negative return code %d", rc))
	}
	errno := unix.Errno(-rc)
	return &Error{
		Errno: errno,
		Msg:   errno.Error(),
	}
}

// errnoError is a shorthand for NewError(-int(errno)).
func errnoError(errno unix.Errno) *Error {
	return NewError(-int(errno))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// IsNotAvailable reports whether err is the lock-not-available condition a
// NOQUEUE request fails with when the resource is held in a conflicting mode.
func IsNotAvailable(err error) bool {
	return errors.Is(err, unix.EAGAIN)
}

// Errno extracts the errno of a dlm error. It returns 0 if err is not an *Error.
func Errno(err error) unix.Errno {
	var dlmErr *Error
	if errors.As(err, &dlmErr) {
		return dlmErr.Errno
	}
	return 0
}
