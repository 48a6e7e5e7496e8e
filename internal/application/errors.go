package application

import "errors"

// Kind discriminates the expected business failures of lifecycle operations.
// Transport layers map kinds to status codes; messages are presentation only
// and never carry the discriminant.
type Kind string

const (
	KindMissingInput           Kind = "missing_input"
	KindAccountExists          Kind = "account_exists"
	KindAccountNotFound        Kind = "account_not_found"
	KindInvalidCredentials     Kind = "invalid_credentials"
	KindAccountNotActivated    Kind = "account_not_activated"
	KindInvalidActivationToken Kind = "invalid_activation_token"
	KindInvalidOrExpiredToken  Kind = "invalid_or_expired_token"
	KindWeakPassword           Kind = "weak_password"
	KindInvalidBirthDate       Kind = "invalid_birth_date"
	KindEmailSendFailure       Kind = "email_send_failure"
	KindFatal                  Kind = "fatal"
)

// Error is a tagged business failure. Err, when set, carries the underlying
// cause (for example the gateway error behind an email send failure).
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf extracts the failure kind from err, or "" when err is not a tagged
// business failure (infrastructure errors propagate untagged).
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
