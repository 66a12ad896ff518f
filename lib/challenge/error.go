package challenge

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNetwork   = errors.New("challenge: backend did not answer")
	ErrServer    = errors.New("challenge: backend rejected the request")
	ErrAuth      = errors.New("challenge: anti-forgery token was rejected")
	ErrExpired   = errors.New("challenge: passcode is no longer valid")
	ErrExhausted = errors.New("challenge: no attempts remaining")
)

// NewError wraps private, the detail only operators should see, with one of
// the sentinel kinds above and the localization ID of the message visitors
// get.
func NewError(kind error, verb, publicReason string, private error) *Error {
	return &Error{
		Kind:          kind,
		Verb:          verb,
		PublicReason:  publicReason,
		PrivateReason: private,
		StatusCode:    statusFor(kind),
	}
}

func statusFor(kind error) int {
	switch kind {
	case ErrAuth:
		return http.StatusForbidden
	case ErrExpired:
		return http.StatusGone
	case ErrExhausted:
		return http.StatusTooManyRequests
	case ErrNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind          error
	PrivateReason error
	Verb          string
	PublicReason  string
	StatusCode    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Verb, e.PrivateReason)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.PrivateReason}
}
