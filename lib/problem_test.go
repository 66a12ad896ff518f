package lib

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Genosoo/expoasia-web-app/lib/challenge"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
)

func TestProblemMessage(t *testing.T) {
	failed := func(reason registration.FailureReason, at registration.State, err error) registration.Snapshot {
		return registration.Snapshot{State: registration.StateFailed, Reason: reason, FailedAt: at, Problem: err}
	}

	for _, tt := range []struct {
		name      string
		snap      registration.Snapshot
		wantField registration.Field
		wantID    string
	}{
		{
			name: "nothing wrong",
			snap: registration.Snapshot{State: registration.StateEditing},
		},
		{
			name:      "missing field",
			snap:      registration.Snapshot{State: registration.StateEditing, Problem: &registration.ValidationError{Field: registration.FieldEmail, MessageID: "validation_required_email"}},
			wantField: registration.FieldEmail,
			wantID:    "validation_required_email",
		},
		{
			name:   "wrong passcode",
			snap:   registration.Snapshot{State: registration.StateAwaitingOtpEntry, Problem: registration.ErrMismatch},
			wantID: "error_code_mismatch",
		},
		{
			name:   "rule could not run",
			snap:   registration.Snapshot{State: registration.StateEditing, Problem: errors.New("registration: can't evaluate rule")},
			wantID: "validation_invalid_field",
		},
		{
			name:   "exhausted",
			snap:   failed(registration.ReasonExhausted, registration.StateVerifying, challenge.ErrExhausted),
			wantID: "error_code_exhausted",
		},
		{
			name:   "expired",
			snap:   failed(registration.ReasonExpired, registration.StateAwaitingOtpEntry, challenge.ErrExpired),
			wantID: "error_code_expired",
		},
		{
			name:   "participant rejected",
			snap:   failed(registration.ReasonServer, registration.StateIssuing, challenge.NewError(challenge.ErrServer, "participants", "error_backend_rejected", errors.New("duplicate"))),
			wantID: "error_registration_rejected",
		},
		{
			name:   "public reason wins",
			snap:   failed(registration.ReasonAuth, registration.StateAwaitingOtpIssue, fmt.Errorf("wrapped: %w", challenge.NewError(challenge.ErrAuth, "otp/send", "error_session_refused", errors.New("403")))),
			wantID: "error_session_refused",
		},
		{
			name:   "bare network error",
			snap:   failed(registration.ReasonNetwork, registration.StateAwaitingOtpIssue, challenge.ErrNetwork),
			wantID: "error_backend_unreachable",
		},
		{
			name:   "bare server error",
			snap:   failed(registration.ReasonServer, registration.StateVerifying, challenge.ErrServer),
			wantID: "error_backend_rejected",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			field, id := problemMessage(tt.snap)
			if field != tt.wantField || id != tt.wantID {
				t.Logf("want: %s %q", tt.wantField, tt.wantID)
				t.Logf("got:  %s %q", field, id)
				t.Error("wrong problem message")
			}
		})
	}
}
