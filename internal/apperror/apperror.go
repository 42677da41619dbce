package apperror

import "errors"

// Kind classifies a failure for the caller. Collaborator errors are wrapped
// into exactly one of these before they leave the service layer.
type Kind int

const (
	// Internal is the fallback for anything unclassified.
	Internal Kind = iota
	// Conflict signals a uniqueness violation (email or username taken).
	Conflict
	// Unauthorized covers bad credentials and missing/invalid/expired
	// sessions. Deliberately generic to avoid account enumeration.
	Unauthorized
	// Forbidden means the session is valid but lacks privilege.
	Forbidden
	// NotFound means the referenced user no longer exists.
	NotFound
	// InvalidOTP covers a wrong, already-used, or expired recovery code.
	InvalidOTP
	// DeliveryFailure means the recovery mail could not be sent.
	DeliveryFailure
)

type Error struct {
	Kind    Kind
	Message string
	err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.err }

// New builds a caller-facing error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an internal failure while keeping the cause for logging.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, err: err}
}

// KindOf extracts the classification from err, or Internal if err was never
// classified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Message returns the caller-facing message, hiding internals of
// unclassified errors.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
