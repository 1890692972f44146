package admission

import "fmt"

// Numeric status codes carried by every admission-path outcome. Replies
// on the wire reuse these values, 200 marking success.
const (
	StatusOK           = 200
	StatusInvalid      = 400
	StatusBadSignature = 401
	StatusForbidden    = 403
	StatusNotFound     = 404
	StatusTimestamp    = 408
	StatusConflict     = 409
	StatusUnsupported  = 422
	StatusStorage      = 500
)

// Error is the structured admission failure: a numeric status code, the
// operation that produced it, and a client-safe message. Pipeline
// operations return it instead of raising; only unexpected adapter
// faults surface as StatusStorage.
type Error struct {
	Code    int
	Op      string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %d %s: %v", e.Op, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Code, e.Message)
}

// Unwrap exposes the underlying adapter error, when any.
func (e *Error) Unwrap() error {
	return e.cause
}

func temporalError(op string) *Error {
	return &Error{Code: StatusTimestamp, Op: op, Message: "event timestamp outside tolerance"}
}

func unknownUserError(op, pubkey string) *Error {
	return &Error{Code: StatusForbidden, Op: op, Message: fmt.Sprintf("unknown user %s", pubkey)}
}

func permissionError(op string) *Error {
	return &Error{Code: StatusForbidden, Op: op, Message: "insufficient permissions"}
}

func signatureError(op string) *Error {
	return &Error{Code: StatusBadSignature, Op: op, Message: "signature verification failed"}
}

func notFoundError(op, what string) *Error {
	return &Error{Code: StatusNotFound, Op: op, Message: what + " not found"}
}

func invalidError(op, message string) *Error {
	return &Error{Code: StatusInvalid, Op: op, Message: message}
}

func conflictError(op, message string) *Error {
	return &Error{Code: StatusConflict, Op: op, Message: message}
}

func storageError(op string, cause error) *Error {
	return &Error{Code: StatusStorage, Op: op, Message: "storage failure", cause: cause}
}
