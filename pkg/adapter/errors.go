package adapter

import "github.com/iop-labs/profiled/internal/protocol/iop"

// ProtocolError couples a wire status with the domain error that caused it.
//
// Role adapters translate domain errors (store.ErrNotFound,
// hosting.ErrQuotaExceeded, signature failures, ...) into the wire status a
// response carries. ProtocolError supports errors.Is() via Unwrap(), so
// callers can match both the status mapping and the underlying sentinel.
type ProtocolError interface {
	error

	// Status returns the wire status code carried by the response.
	Status() iop.Status

	// Message returns a human-readable description, used for logging and
	// the Details field of ErrorInvalidValue responses.
	Message() string

	// Unwrap returns the underlying domain error.
	Unwrap() error
}

type protocolError struct {
	status  iop.Status
	message string
	cause   error
}

// NewProtocolError builds a ProtocolError with the given status, message and
// underlying cause. Cause may be nil.
func NewProtocolError(status iop.Status, message string, cause error) ProtocolError {
	return &protocolError{status: status, message: message, cause: cause}
}

func (e *protocolError) Error() string {
	if e.cause != nil {
		return e.status.String() + ": " + e.message + ": " + e.cause.Error()
	}
	return e.status.String() + ": " + e.message
}

func (e *protocolError) Status() iop.Status { return e.status }
func (e *protocolError) Message() string    { return e.message }
func (e *protocolError) Unwrap() error      { return e.cause }
