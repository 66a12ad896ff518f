package localization

import (
	"encoding/json"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/Genosoo/expoasia-web-app"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

func TestLocalizationService(t *testing.T) {
	service := NewLocalizationService()

	for _, tt := range []struct {
		lang, id, want string
	}{
		{"en", "action_submit", "Send passcode"},
		{"fil", "action_submit", "Ipadala ang passcode"},
		{"fil-PH", "action_cancel", "Kanselahin"},
		{"de", "action_cancel", "Cancel"},
	} {
		t.Run(tt.lang+"/"+tt.id, func(t *testing.T) {
			result := service.GetLocalizer(tt.lang).MustLocalize(&i18n.LocalizeConfig{MessageID: tt.id})
			if result != tt.want {
				t.Logf("want: %q", tt.want)
				t.Logf("got:  %q", result)
				t.Error("wrong translation")
			}
		})
	}
}

func TestFromRequest(t *testing.T) {
	for _, tt := range []struct {
		name, forced, query, header, want string
	}{
		{name: "default", want: "en"},
		{name: "header", header: "fil-PH,fil;q=0.9,en;q=0.5", want: "fil"},
		{name: "query wins over header", query: "en", header: "fil", want: "en"},
		{name: "forced wins over everything", forced: "fil", query: "en", header: "en", want: "fil"},
		{name: "unsupported falls back", header: "ja", want: "en"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			old := expoasia.ForcedLanguage
			expoasia.ForcedLanguage = tt.forced
			t.Cleanup(func() { expoasia.ForcedLanguage = old })

			r := httptest.NewRequest("GET", "/register?lang="+tt.query, nil)
			if tt.header != "" {
				r.Header.Set("Accept-Language", tt.header)
			}

			if got := GetLocalizer(r).Lang(); got != tt.want {
				t.Logf("want: %s", tt.want)
				t.Logf("got:  %s", got)
				t.Error("wrong language picked")
			}
		})
	}
}

func TestTData(t *testing.T) {
	sl := SimpleLocalizer{Localizer: NewLocalizationService().GetLocalizer("en")}

	got := sl.TData("resend_throttled", map[string]any{"Seconds": 12})
	want := "Please wait 12 seconds before requesting another passcode."
	if got != want {
		t.Logf("want: %q", want)
		t.Logf("got:  %q", got)
		t.Error("template data not applied")
	}
}

func TestUnknownMessageFallsBack(t *testing.T) {
	sl := SimpleLocalizer{Localizer: NewLocalizationService().GetLocalizer("fil")}

	if got := sl.T("no_such_message"); got != "no_such_message" {
		t.Errorf("want the message id back, got %q", got)
	}

	if sl.Has("no_such_message") {
		t.Error("Has reported a message that does not exist")
	}
}

// Every message the registration package can hand back has to exist.
func TestRegistrationMessages(t *testing.T) {
	sl := SimpleLocalizer{Localizer: NewLocalizationService().GetLocalizer("en")}

	ids := []string{
		"validation_email_shape",
		"validation_code_required",
		"error_code_mismatch",
		"error_code_expired",
		"error_code_exhausted",
		"error_backend_unreachable",
		"error_backend_rejected",
		"error_session_refused",
		"error_registration_rejected",
	}

	for _, f := range registration.Fields() {
		ids = append(ids, "field_"+f.String())
		if registration.Required(f) {
			ids = append(ids, "validation_required_"+f.String())
		}
	}

	for _, a := range registration.Actions() {
		ids = append(ids, "action_"+string(a))
	}

	for _, id := range ids {
		if !sl.Has(id) {
			t.Errorf("message %q is not defined", id)
		}
	}
}

type manifest struct {
	SupportedLanguages []string `json:"supported_languages"`
}

func loadManifest(t *testing.T) manifest {
	t.Helper()

	fin, err := localeFS.Open("locales/manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	defer fin.Close()

	var result manifest
	if err := json.NewDecoder(fin).Decode(&result); err != nil {
		t.Fatal(err)
	}

	return result
}

func loadKeys(t *testing.T, lang string) []string {
	t.Helper()

	var translations = map[string]any{}
	fin, err := localeFS.Open("locales/" + lang + ".json")
	if err != nil {
		t.Fatal(err)
	}
	defer fin.Close()

	if err := json.NewDecoder(fin).Decode(&translations); err != nil {
		t.Fatal(err)
	}

	var keys []string
	for k := range translations {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

func TestComprehensiveTranslations(t *testing.T) {
	keys := loadKeys(t, "en")

	for _, lang := range loadManifest(t).SupportedLanguages {
		t.Run(lang, func(t *testing.T) {
			have := map[string]bool{}
			for _, k := range loadKeys(t, lang) {
				have[k] = true
			}

			for _, key := range keys {
				if !have[key] {
					t.Errorf("%s: key %q not translated", lang, key)
				}
			}
		})
	}
}
