// Package web renders the registration wizard's pages and serves its
// static assets.
package web

import (
	"embed"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/Genosoo/expoasia-web-app"
	"github.com/Genosoo/expoasia-web-app/lib/localization"
	"github.com/Genosoo/expoasia-web-app/lib/policy/config"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
)

//go:generate go tool github.com/a-h/templ/cmd/templ generate

//go:embed static
var Static embed.FS

// Base wraps body in the page chrome. impressum may be nil.
func Base(title string, body templ.Component, impressum *config.Impressum, localizer *localization.SimpleLocalizer) templ.Component {
	return base(title, body, impressum, "", localizer)
}

// BaseWithRefresh is Base with a meta refresh to refreshURL, used while a
// backend call for the session is still running.
func BaseWithRefresh(title string, body templ.Component, impressum *config.Impressum, refreshURL string, localizer *localization.SimpleLocalizer) templ.Component {
	return base(title, body, impressum, refreshURL, localizer)
}

// View is everything a step page needs. Problem and Notice are already
// localized.
type View struct {
	Snapshot     registration.Snapshot
	Controls     []registration.Action
	Prefix       string
	Problem      string
	ProblemField registration.Field
	Notice       string
	Now          time.Time
	Privacy      *config.PrivacyNotice
	Localizer    *localization.SimpleLocalizer
}

func (v View) T(id string) string {
	return v.Localizer.T(id)
}

func (v View) TData(id string, data map[string]any) string {
	return v.Localizer.TData(id, data)
}

// Fields lists the form fields in display order.
func (v View) Fields() []registration.Field {
	return registration.Fields()
}

func (v View) Value(f registration.Field) string {
	return v.Snapshot.Draft.Get(f)
}

func (v View) Required(f registration.Field) bool {
	return registration.Required(f)
}

func (v View) Offers(a registration.Action) bool {
	for _, c := range v.Controls {
		if c == a {
			return true
		}
	}
	return false
}

// Buttons are the controls rendered as standalone POST forms.
func (v View) Buttons() []registration.Action {
	var result []registration.Action
	for _, a := range v.Controls {
		switch a {
		case registration.ActionSubmit, registration.ActionVerify, registration.ActionDownload, registration.ActionRestart:
			continue
		}
		result = append(result, a)
	}
	return result
}

// Minutes is the passcode time left, rounded up.
func (v View) Minutes() int {
	if v.Snapshot.Challenge == nil {
		return 0
	}

	left := v.Snapshot.Challenge.TimeLeft(v.Now)
	return int((left + time.Minute - 1) / time.Minute)
}

func (v View) CredentialURL() string {
	return v.Prefix + "/credential/" + v.Snapshot.ID
}

// Invalid reports whether the current problem belongs to f.
func (v View) Invalid(f registration.Field) bool {
	return v.Problem != "" && v.ProblemField == f
}

func inputType(f registration.Field) string {
	switch f {
	case registration.FieldEmail:
		return "email"
	case registration.FieldMobile, registration.FieldViber, registration.FieldWhatsApp:
		return "tel"
	}
	return "text"
}

func staticURL(p string) string {
	return strings.TrimSuffix(expoasia.BasePrefix, "/") + expoasia.StaticPath + p
}

// Step renders the screen for v's session state.
func Step(v View) templ.Component {
	switch registration.Render(v.Snapshot.State) {
	case registration.StepSending:
		return stepWait(v, "step_sending_heading")
	case registration.StepChecking:
		return stepWait(v, "step_checking_heading")
	case registration.StepIssuing:
		return stepWait(v, "step_issuing_heading")
	case registration.StepCode:
		return stepCode(v)
	case registration.StepDone:
		return stepDone(v)
	case registration.StepFailed:
		return stepFailed(v)
	default:
		return stepForm(v)
	}
}

// Waiting reports whether the step for state is a transient one that
// should refresh itself.
func Waiting(state registration.State) bool {
	switch registration.Render(state) {
	case registration.StepSending, registration.StepChecking, registration.StepIssuing:
		return true
	}
	return false
}

func SessionExpired(prefix string, localizer *localization.SimpleLocalizer) templ.Component {
	return sessionExpired(prefix, localizer)
}

func ErrorPage(msg string, mail string, localizer *localization.SimpleLocalizer) templ.Component {
	return errorPage(msg, mail, localizer)
}
