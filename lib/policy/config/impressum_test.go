package config

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func validImpressum() Impressum {
	return Impressum{
		Organizer:    "ExpoAsia Events Inc.",
		Footer:       "<p>Registration is run by ExpoAsia Events Inc.</p>",
		ContactEmail: "registration@expoasia.example.ph",
		Privacy: PrivacyNotice{
			Title: "Data Privacy",
			Body:  "<p>Your details are used for event admission only.</p>",
		},
	}
}

func TestImpressumValid(t *testing.T) {
	for _, cs := range []struct {
		name string
		edit func(*Impressum)
		err  error
	}{
		{
			name: "basic happy path",
			edit: func(*Impressum) {},
		},
		{
			name: "no contact is fine",
			edit: func(i *Impressum) { i.ContactEmail = "" },
		},
		{
			name: "no footer",
			edit: func(i *Impressum) { i.Footer = "" },
			err:  ErrMissingValue,
		},
		{
			name: "no organizer",
			edit: func(i *Impressum) { i.Organizer = "" },
			err:  ErrMissingValue,
		},
		{
			name: "bad contact",
			edit: func(i *Impressum) { i.ContactEmail = "registration desk" },
			err:  ErrInvalidContactEmail,
		},
		{
			name: "privacy notice not valid",
			edit: func(i *Impressum) { i.Privacy = PrivacyNotice{} },
			err:  ErrMissingValue,
		},
	} {
		t.Run(cs.name, func(t *testing.T) {
			inp := validImpressum()
			cs.edit(&inp)

			if err := inp.Valid(); !errors.Is(err, cs.err) {
				t.Logf("want: %v", cs.err)
				t.Logf("got:  %v", err)
				t.Error("validation failed")
			}

			var buf bytes.Buffer
			if err := inp.Render(t.Context(), &buf); err != nil {
				t.Errorf("can't render footer: %v", err)
			}

			if err := inp.Privacy.Render(t.Context(), &buf); err != nil {
				t.Errorf("can't render privacy notice: %v", err)
			}
		})
	}
}

func TestImpressumRenderEscapesContact(t *testing.T) {
	inp := validImpressum()
	inp.ContactEmail = `a"<b>@example.ph`

	var buf bytes.Buffer
	if err := inp.Render(t.Context(), &buf); err != nil {
		t.Fatal(err)
	}

	if strings.Contains(buf.String(), "<b>") {
		t.Errorf("contact email was not escaped: %s", buf.String())
	}
}
