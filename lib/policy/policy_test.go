package policy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Genosoo/expoasia-web-app/data"
	"github.com/Genosoo/expoasia-web-app/lib/policy/config"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
)

func validDraft() registration.ParticipantDraft {
	return registration.ParticipantDraft{
		FirstName:   "Andres",
		LastName:    "Bonifacio",
		Email:       "andres@example.ph",
		Designation: "Supply Officer",
		Mobile:      "+639171234567",
		Viber:       "+639171234567",
		WhatsApp:    "+639171234567",
	}
}

func TestDefaultPolicyMustParse(t *testing.T) {
	fin, err := data.Policies.Open("registration.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer fin.Close()

	pc, err := ParseConfig(fin, "registration.yaml")
	if err != nil {
		t.Fatalf("can't parse config: %v", err)
	}

	if pc.Invite == nil || pc.Invite.Event != "expoasia" {
		t.Errorf("invite = %+v", pc.Invite)
	}

	if err := pc.Validator.Validate(validDraft()); err != nil {
		t.Errorf("default policy rejects a valid draft: %v", err)
	}
}

func TestGoodConfigs(t *testing.T) {
	finfos, err := os.ReadDir("config/testdata/good")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			fin, err := os.Open(filepath.Join("config", "testdata", "good", st.Name()))
			if err != nil {
				t.Fatal(err)
			}
			defer fin.Close()

			if _, err := ParseConfig(fin, fin.Name()); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestBadConfigs(t *testing.T) {
	finfos, err := os.ReadDir("config/testdata/bad")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			fin, err := os.Open(filepath.Join("config", "testdata", "bad", st.Name()))
			if err != nil {
				t.Fatal(err)
			}
			defer fin.Close()

			if _, err := ParseConfig(fin, fin.Name()); err == nil {
				t.Fatal("config loaded but should not have")
			}
		})
	}
}

func TestFieldRules(t *testing.T) {
	fin, err := os.Open(filepath.Join("config", "testdata", "good", "full.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	defer fin.Close()

	pc, err := ParseConfig(fin, fin.Name())
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name string
		edit func(*registration.ParticipantDraft)
		rule string
	}{
		{
			name: "valid",
			edit: func(*registration.ParticipantDraft) {},
		},
		{
			name: "local number format",
			edit: func(d *registration.ParticipantDraft) { d.Mobile = "09171234567" },
		},
		{
			name: "foreign number",
			edit: func(d *registration.ParticipantDraft) { d.Mobile = "+6591234567" },
			rule: "philippine-mobile",
		},
		{
			name: "uniformed without branch",
			edit: func(d *registration.ParticipantDraft) {
				d.Organization = "Armed Forces of the Philippines"
			},
			rule: "branch-for-uniformed-personnel",
		},
		{
			name: "uniformed with branch",
			edit: func(d *registration.ParticipantDraft) {
				d.Organization = "Armed Forces of the Philippines"
				d.MilitaryBranch = "Navy"
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.edit(&d)

			err := pc.Validator.Validate(d)
			if tt.rule == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verr *registration.ValidationError
			if !errors.As(err, &verr) || verr.Rule != tt.rule {
				t.Logf("want: rule %s", tt.rule)
				t.Logf("got:  %v", err)
				t.Fatal("wrong rule fired")
			}
		})
	}
}

func TestNewCELRule(t *testing.T) {
	for _, tt := range []struct {
		name string
		expr *config.ExpressionOrList
		err  error
	}{
		{
			name: "bool",
			expr: &config.ExpressionOrList{Expression: `email.endsWith(".ph")`},
		},
		{
			name: "fields map",
			expr: &config.ExpressionOrList{Expression: `fields.all(k, fields[k].size() < 200)`},
		},
		{
			name: "not bool",
			expr: &config.ExpressionOrList{Expression: `email`},
			err:  ErrRuleNotBoolean,
		},
		{
			name: "empty",
			expr: &config.ExpressionOrList{},
			err:  config.ErrExpressionEmpty,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCELRule(tt.expr)
			if !errors.Is(err, tt.err) {
				t.Logf("want: %v", tt.err)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}

	if _, err := NewCELRule(&config.ExpressionOrList{Expression: `unknown_field == ""`}); err == nil {
		t.Error("rule over an unknown variable compiled")
	}
}

func TestCELRuleCheck(t *testing.T) {
	rule, err := NewCELRule(&config.ExpressionOrList{
		All: []string{`fields["email"] == email`, `!last_name.contains("  ")`},
	})
	if err != nil {
		t.Fatal(err)
	}

	ok, err := rule.Check(validDraft())
	if err != nil || !ok {
		t.Fatalf("valid draft: ok=%v err=%v", ok, err)
	}

	d := validDraft()
	d.LastName = "Bonifacio  y de Castro"
	if ok, _ := rule.Check(d); ok {
		t.Error("rule accepted a double space")
	}

	if h := rule.Hash(); len(h) != 64 || strings.ToLower(h) != h {
		t.Errorf("hash = %q", h)
	}
}
