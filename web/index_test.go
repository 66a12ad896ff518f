package web

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Genosoo/expoasia-web-app/lib/challenge"
	"github.com/Genosoo/expoasia-web-app/lib/localization"
	"github.com/Genosoo/expoasia-web-app/lib/policy/config"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
	"github.com/a-h/templ"
)

func english() *localization.SimpleLocalizer {
	return &localization.SimpleLocalizer{Localizer: localization.NewLocalizationService().GetLocalizer("en")}
}

func renderString(t *testing.T, c templ.Component) string {
	t.Helper()

	var sb strings.Builder
	if err := c.Render(context.Background(), &sb); err != nil {
		t.Fatalf("render: %v", err)
	}
	return sb.String()
}

func TestStepPages(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

	draft := registration.ParticipantDraft{
		FirstName: "Maria",
		LastName:  "Santos",
		Email:     "maria.santos@example.ph",
	}

	for _, tt := range []struct {
		name     string
		snap     registration.Snapshot
		problem  string
		field    registration.Field
		want     []string
		dontWant []string
	}{
		{
			name:     "empty form",
			snap:     registration.Snapshot{ID: "s1", State: registration.StateEditing},
			want:     []string{`action="/register/submit"`, `name="first_name"`, `name="whatsapp_no"`, "Send passcode", "(optional)"},
			dontWant: []string{`class="problem"`},
		},
		{
			name:    "form with problem",
			snap:    registration.Snapshot{ID: "s1", State: registration.StateEditing, Draft: draft},
			problem: "Please enter your designation.",
			field:   registration.FieldDesignation,
			want:    []string{`value="Maria"`, `<label class="invalid">`, "Please enter your designation."},
		},
		{
			name: "code entry",
			snap: registration.Snapshot{
				ID:    "s1",
				State: registration.StateAwaitingOtpEntry,
				Draft: draft,
				Challenge: &challenge.Challenge{
					Reference:         "ref",
					ExpiresAt:         now.Add(4*time.Minute + time.Second),
					AttemptsRemaining: 2,
				},
			},
			want: []string{"maria.santos@example.ph", "valid for 5 minutes", "Attempts remaining: 2", `action="/register/verify"`, `action="/register/resend"`, `action="/register/back"`},
		},
		{
			name: "sending",
			snap: registration.Snapshot{ID: "s1", State: registration.StateAwaitingOtpIssue},
			want: []string{"Sending your passcode", `action="/register/cancel"`},
		},
		{
			name:     "done",
			snap:     registration.Snapshot{ID: "s1", State: registration.StateComplete, Credential: &registration.Credential{ID: "42", ImageURL: "/media/qr/42.png"}},
			want:     []string{`src="/register/credential/s1?inline=1"`, `download="QRCode.png"`, "You are registered"},
			dontWant: []string{"/media/qr/42.png"},
		},
		{
			name:    "failed",
			snap:    registration.Snapshot{ID: "s1", State: registration.StateFailed, Reason: registration.ReasonNetwork, FailedAt: registration.StateAwaitingOtpIssue},
			problem: "We could not reach the registration service. Please try again.",
			want:    []string{"Something went wrong", `action="/register/retry"`, `href="/register"`, "could not reach"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			v := View{
				Snapshot:     tt.snap,
				Controls:     registration.Controls(tt.snap),
				Prefix:       "/register",
				Problem:      tt.problem,
				ProblemField: tt.field,
				Now:          now,
				Localizer:    english(),
			}

			got := renderString(t, Step(v))

			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("page does not contain %q", want)
				}
			}

			for _, dontWant := range tt.dontWant {
				if strings.Contains(got, dontWant) {
					t.Errorf("page contains %q", dontWant)
				}
			}

			if t.Failed() {
				t.Log(got)
			}
		})
	}
}

func TestBase(t *testing.T) {
	imp := &config.Impressum{
		Organizer:    "Expo Asia Secretariat",
		Footer:       "<p>Organized by <b>Expo Asia</b></p>",
		ContactEmail: "help@example.ph",
	}

	page := renderString(t, BaseWithRefresh("Visitor Registration", SessionExpired("/register", english()), imp, "/register/status", english()))

	for _, want := range []string{
		`<html lang="en">`,
		`url=/register/status`,
		"Expo Asia Secretariat",
		"<b>Expo Asia</b>",
		`mailto:help@example.ph`,
		"Your session has expired",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page does not contain %q", want)
		}
	}
}

func TestEscaping(t *testing.T) {
	snap := registration.Snapshot{
		ID:    "s1",
		State: registration.StateEditing,
		Draft: registration.ParticipantDraft{FirstName: `"><script>alert(1)</script>`},
	}

	got := renderString(t, Step(View{Snapshot: snap, Prefix: "/register", Localizer: english()}))
	if strings.Contains(got, "<script>") {
		t.Error("draft value was not escaped")
	}
}

func TestErrorPage(t *testing.T) {
	got := renderString(t, ErrorPage("boom", "webmaster@example.ph", english()))
	if !strings.Contains(got, "boom") || !strings.Contains(got, "webmaster@example.ph") {
		t.Error(got)
	}
}

func TestWaiting(t *testing.T) {
	for _, tt := range []struct {
		state registration.State
		want  bool
	}{
		{registration.StateEditing, false},
		{registration.StateAwaitingOtpIssue, true},
		{registration.StateAwaitingOtpEntry, false},
		{registration.StateVerifying, true},
		{registration.StateVerified, true},
		{registration.StateIssuing, true},
		{registration.StateComplete, false},
		{registration.StateFailed, false},
	} {
		if got := Waiting(tt.state); got != tt.want {
			t.Errorf("Waiting(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestPrivacyAndStylesheet(t *testing.T) {
	v := View{
		Snapshot:  registration.Snapshot{ID: "s1", State: registration.StateEditing},
		Prefix:    "/register",
		Privacy:   &config.PrivacyNotice{Title: "Data Privacy Notice", Body: "<p>We keep your data for the event only.</p>"},
		Localizer: english(),
	}

	page := renderString(t, Base("Visitor Registration", Step(v), nil, english()))

	for _, want := range []string{
		`<summary>Data Privacy Notice</summary><p>We keep your data for the event only.</p>`,
		`<link rel="stylesheet" href="/static/css/portal.css?v=devel">`,
		`<input type="email" name="email" value="" required>`,
		`<input type="tel" name="viber_no" value="" required>`,
		`<input type="text" name="middle_name" value="">`,
	} {
		if !strings.Contains(page, want) {
			t.Logf("want: %s", want)
			t.Logf("got:  %s", page)
			t.Errorf("page is missing fragment")
		}
	}

	if strings.Contains(page, "<footer>") {
		t.Error("footer rendered without an impressum")
	}
}
