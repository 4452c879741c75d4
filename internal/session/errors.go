package session

import "fmt"

// ErrorCode discriminates login failures
type ErrorCode string

const (
	CodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	CodeNotAdmin           ErrorCode = "NOT_ADMIN"
	CodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	CodeTransport          ErrorCode = "TRANSPORT"
	CodeStorage            ErrorCode = "STORAGE"
)

// AuthError is returned by Login
type AuthError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func authError(code ErrorCode, message string, err error) *AuthError {
	return &AuthError{Code: code, Message: message, Err: err}
}
