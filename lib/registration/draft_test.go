package registration

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseField(t *testing.T) {
	for _, f := range Fields() {
		got, err := ParseField(f.String())
		if err != nil {
			t.Errorf("%s: %v", f, err)
			continue
		}

		if got != f {
			t.Errorf("ParseField(%q) = %v, want %v", f.String(), got, f)
		}
	}

	if _, err := ParseField("company"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("wrong error for unknown field: %v", err)
	}
}

func TestDraftSet(t *testing.T) {
	var d ParticipantDraft

	if err := d.Set(FieldOrganization, "  Philippine Navy \n"); err != nil {
		t.Fatal(err)
	}

	if d.Organization != "Philippine Navy" {
		t.Errorf("value was not trimmed: %q", d.Organization)
	}

	if err := d.Set(FieldUnknown, "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("wrong error for FieldUnknown: %v", err)
	}

	if got := d.Get(FieldUnknown); got != "" {
		t.Errorf("Get(FieldUnknown) = %q", got)
	}
}

func TestDraftValues(t *testing.T) {
	want := map[string]string{
		"last_name":         "Santos",
		"first_name":        "Maria",
		"middle_name":       "",
		"designation":       "Procurement Officer",
		"company_org_other": "Department of National Defense",
		"military_branch":   "Army",
		"phone_no":          "+639171234567",
		"viber_no":          "+639171234567",
		"whatsapp_no":       "+639171234567",
		"email":             "maria.santos@example.ph",
	}

	if diff := cmp.Diff(want, validDraft().Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
}
