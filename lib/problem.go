package lib

import (
	"errors"

	"github.com/Genosoo/expoasia-web-app/lib/challenge"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
)

// problemMessage picks the localization ID shown for snap's last problem
// and the form field it belongs to. Backend detail never reaches the
// visitor: only public reasons are used.
func problemMessage(snap registration.Snapshot) (registration.Field, string) {
	err := snap.Problem

	if snap.State == registration.StateFailed {
		switch {
		case snap.Reason == registration.ReasonExhausted:
			return registration.FieldUnknown, "error_code_exhausted"
		case snap.Reason == registration.ReasonExpired:
			return registration.FieldUnknown, "error_code_expired"
		case snap.Reason == registration.ReasonServer && snap.FailedAt == registration.StateIssuing:
			return registration.FieldUnknown, "error_registration_rejected"
		}

		var cerr *challenge.Error
		if errors.As(err, &cerr) && cerr.PublicReason != "" {
			return registration.FieldUnknown, cerr.PublicReason
		}

		switch snap.Reason {
		case registration.ReasonAuth:
			return registration.FieldUnknown, "error_session_refused"
		case registration.ReasonServer:
			return registration.FieldUnknown, "error_backend_rejected"
		default:
			return registration.FieldUnknown, "error_backend_unreachable"
		}
	}

	var verr *registration.ValidationError
	switch {
	case err == nil:
		return registration.FieldUnknown, ""
	case errors.As(err, &verr):
		if verr.MessageID == "" {
			return verr.Field, "validation_invalid_field"
		}
		return verr.Field, verr.MessageID
	case errors.Is(err, registration.ErrMismatch):
		return registration.FieldUnknown, "error_code_mismatch"
	}

	return registration.FieldUnknown, "validation_invalid_field"
}
