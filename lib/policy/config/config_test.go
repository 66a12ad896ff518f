package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Genosoo/expoasia-web-app"
	"github.com/Genosoo/expoasia-web-app/data"
)

func load(t *testing.T, fname string) (*Config, error) {
	t.Helper()

	fin, err := os.Open(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer fin.Close()

	return Load(fin, fname)
}

func TestDefaultPolicyMustParse(t *testing.T) {
	fin, err := data.Policies.Open("registration.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer fin.Close()

	if _, err := Load(fin, "registration.yaml"); err != nil {
		t.Fatalf("can't parse default policy: %v", err)
	}
}

func TestGoodConfigs(t *testing.T) {
	finfos, err := os.ReadDir("testdata/good")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			if _, err := load(t, filepath.Join("testdata", "good", st.Name())); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestBadConfigs(t *testing.T) {
	want := map[string]error{
		"attempts-too-many.yaml":   ErrAttemptsOutOfRange,
		"attempts-zero.yaml":       ErrAttemptsOutOfRange,
		"event-no-id.yaml":         ErrEventMustHaveID,
		"impressum-no-footer.yaml": ErrMissingValue,
		"lifetime-garbage.yaml":    ErrInvalidDuration,
		"lifetime-zero.yaml":       ErrDurationNotPositive,
		"not-yaml.yaml":            nil,
		"retention-short.yaml":     ErrCredentialRetentionTooLow,
		"rule-both.yaml":           ErrExpressionCantHaveBoth,
		"rule-duplicate.yaml":      ErrFieldRuleNameNotUnique,
		"rule-no-expression.yaml":  ErrFieldRuleMustHaveExpr,
		"rule-unknown-field.yaml":  ErrFieldRuleUnknownField,
		"store-unknown.yaml":       ErrUnknownStoreBackend,
	}

	finfos, err := os.ReadDir("testdata/bad")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			wantErr, ok := want[st.Name()]
			if !ok {
				t.Fatalf("no expected error listed for %s", st.Name())
			}

			_, err := load(t, filepath.Join("testdata", "bad", st.Name()))
			if err == nil {
				t.Fatal("config loaded but should not have")
			}

			if wantErr != nil && !errors.Is(err, wantErr) {
				t.Logf("want: %v", wantErr)
				t.Logf("got:  %v", err)
				t.Error("wrong error")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	c, err := Load(strings.NewReader("{}"), "empty")
	if err != nil {
		t.Fatal(err)
	}

	if c.OTP.Attempts != expoasia.DefaultOTPAttempts {
		t.Errorf("attempts = %d", c.OTP.Attempts)
	}

	if c.OTP.Lifetime != expoasia.DefaultOTPLifetime || c.OTP.ResendCooldown != expoasia.DefaultResendCooldown {
		t.Errorf("otp = %+v", c.OTP)
	}

	if c.SessionIdleTimeout != expoasia.DefaultSessionIdleTimeout || c.CredentialRetention != expoasia.DefaultCredentialRetention {
		t.Errorf("timeouts = %s, %s", c.SessionIdleTimeout, c.CredentialRetention)
	}

	if c.Store.Backend != "memory" {
		t.Errorf("store = %q", c.Store.Backend)
	}
}

func TestPartialOverride(t *testing.T) {
	c, err := Load(strings.NewReader("otp:\n  lifetime: 2m\n"), "partial")
	if err != nil {
		t.Fatal(err)
	}

	if c.OTP.Lifetime != 2*time.Minute {
		t.Errorf("lifetime = %s", c.OTP.Lifetime)
	}

	if c.OTP.Attempts != expoasia.DefaultOTPAttempts || c.OTP.ResendCooldown != expoasia.DefaultResendCooldown {
		t.Errorf("untouched otp settings lost their defaults: %+v", c.OTP)
	}
}

func TestFullConfig(t *testing.T) {
	c, err := load(t, filepath.Join("testdata", "good", "full.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	if c.Event.ID != "expoasia-2025" || !strings.HasPrefix(c.Event.CustomMessage, "Thank you") {
		t.Errorf("event = %+v", c.Event)
	}

	if c.OTP.Attempts != 5 || c.OTP.ResendCooldown != 45*time.Second {
		t.Errorf("otp = %+v", c.OTP)
	}

	if len(c.FieldRules) != 2 || len(c.FieldRules[1].Expression.Any) != 2 {
		t.Errorf("field rules = %+v", c.FieldRules)
	}

	if c.Impressum == nil || c.Impressum.Privacy.Title != "Data Privacy Notice" {
		t.Errorf("impressum = %+v", c.Impressum)
	}
}
