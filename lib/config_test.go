package lib

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	pol := loadPolicies(t, "")

	if pol.Invite == nil || pol.Invite.Event == "" {
		t.Error("default policy has no event")
	}

	if len(pol.Validator.Rules) == 0 {
		t.Error("default policy has no field rules")
	}

	st, err := BuildStore(t.Context(), pol.Store)
	if err != nil {
		t.Fatal(err)
	}

	if st == nil {
		t.Fatal("no store built")
	}
}

func TestBadConfigs(t *testing.T) {
	finfos, err := os.ReadDir("policy/config/testdata/bad")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			if _, err := LoadPoliciesOrDefault(filepath.Join("policy", "config", "testdata", "bad", st.Name())); err == nil {
				t.Fatal("bad policy loaded")
			} else {
				t.Log(err)
			}
		})
	}
}

func TestGoodConfigs(t *testing.T) {
	finfos, err := os.ReadDir("policy/config/testdata/good")
	if err != nil {
		t.Fatal(err)
	}

	for _, st := range finfos {
		t.Run(st.Name(), func(t *testing.T) {
			if _, err := LoadPoliciesOrDefault(filepath.Join("policy", "config", "testdata", "good", st.Name())); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestMissingPolicyFile(t *testing.T) {
	if _, err := LoadPoliciesOrDefault(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing policy file loaded")
	}
}
