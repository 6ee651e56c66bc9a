package http

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

var (
	ErrMalformedRequestLine = errors.New("malformed request-line")
	ErrUnsupportedVersion   = errors.New("unsupported http version")
	ErrInvalidHeader        = errors.New("invalid header")
	ErrHeadersTooLarge      = errors.New("request head too large")
	ErrInvalidFraming       = errors.New("invalid body framing")
	ErrMalformedChunk       = errors.New("malformed chunked body")
	ErrBodyTooLarge         = errors.New("request body too large")
	ErrInvalidURL           = errors.New("invalid request url")

	// ErrResponseEnded is returned by every Response operation that would
	// change a response after End. End itself stays a no-op.
	ErrResponseEnded = errors.New("response already ended")

	ErrInvalidResponseHeader = errors.New("invalid response header")
)

// ServerError reports a failed bind or listen. Code is the symbolic OS error
// name (EADDRINUSE, EACCES, ...) and Message the OS message, both untranslated.
type ServerError struct {
	Code    string
	Message string
	Err     error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

func newServerError(err error) *ServerError {
	se := &ServerError{Code: "EUNKNOWN", Message: err.Error(), Err: err}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		se.Code = "ENOTFOUND"
		se.Message = dnsErr.Err
		return se
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		se.Code = errnoName(errno)
		se.Message = errno.Error()
		return se
	}

	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		se.Message = sysErr.Err.Error()
	}
	return se
}

// badRequestStatus picks the status the server writes for a request that is
// dropped before dispatch.
func badRequestStatus(err error) StatusCode {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return StatusContentTooLarge
	case errors.Is(err, ErrHeadersTooLarge):
		return StatusRequestHeaderFieldsTooLarge
	case errors.Is(err, ErrUnsupportedVersion):
		return StatusHTTPVersionNotSupported
	default:
		return StatusBadRequest
	}
}
