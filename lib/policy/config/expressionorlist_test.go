package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	yaml "sigs.k8s.io/yaml/goyaml.v3"
)

func TestExpressionOrListMarshal(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input *ExpressionOrList
		json  string
		yaml  string
	}{
		{
			name:  "single expression",
			input: &ExpressionOrList{Expression: "true"},
			json:  `"true"`,
			yaml:  `"true"`,
		},
		{
			name:  "all",
			input: &ExpressionOrList{All: []string{"true", "true"}},
			json:  `{"all":["true","true"]}`,
			yaml: `all:
    - "true"
    - "true"`,
		},
		{
			name:  "all one",
			input: &ExpressionOrList{All: []string{"first_name.size() != 0"}},
			json:  `"first_name.size() != 0"`,
			yaml:  `first_name.size() != 0`,
		},
		{
			name:  "any",
			input: &ExpressionOrList{Any: []string{"true", "false"}},
			json:  `{"any":["true","false"]}`,
			yaml: `any:
    - "true"
    - "false"`,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			result, err := json.Marshal(tt.input)
			if err != nil {
				t.Fatal(err)
			}

			if string(result) != tt.json {
				t.Logf("want: %s", tt.json)
				t.Logf("got:  %s", result)
				t.Error("mismatched JSON")
			}

			result, err = yaml.Marshal(tt.input)
			if err != nil {
				t.Fatal(err)
			}

			if got := string(bytes.TrimSpace(result)); got != tt.yaml {
				t.Logf("want: %q", tt.yaml)
				t.Logf("got:  %q", got)
				t.Error("mismatched YAML")
			}
		})
	}
}

func TestExpressionOrListUnmarshalJSON(t *testing.T) {
	for _, tt := range []struct {
		err      error
		validErr error
		result   *ExpressionOrList
		name     string
		inp      string
	}{
		{
			name: "simple",
			inp:  `"phone_no.startsWith(\"+63\")"`,
			result: &ExpressionOrList{
				Expression: `phone_no.startsWith("+63")`,
			},
		},
		{
			name: "object-and",
			inp: `{
			"all": ["size(last_name) > 1"]
			}`,
			result: &ExpressionOrList{
				All: []string{"size(last_name) > 1"},
			},
		},
		{
			name: "object-or",
			inp: `{
			"any": ["military_branch != \"\""]
			}`,
			result: &ExpressionOrList{
				Any: []string{`military_branch != ""`},
			},
		},
		{
			name: "both-or-and",
			inp: `{
			"all": ["true"],
			"any": ["true"]
			}`,
			validErr: ErrExpressionCantHaveBoth,
		},
		{
			name: "expression-empty",
			inp: `{
			"any": []
			}`,
			validErr: ErrExpressionEmpty,
		},
		{
			name:     "number",
			inp:      `42`,
			err:      ErrExpressionOrListMustBeStringOrObject,
			validErr: ErrExpressionEmpty,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var eol ExpressionOrList

			if err := json.Unmarshal([]byte(tt.inp), &eol); !errors.Is(err, tt.err) {
				t.Errorf("wanted unmarshal error: %v but got: %v", tt.err, err)
			}

			if tt.result != nil && !eol.Equal(tt.result) {
				t.Logf("want: %#v", tt.result)
				t.Logf("got:  %#v", &eol)
				t.Fatal("parsed expression is not what was expected")
			}

			if err := eol.Valid(); !errors.Is(err, tt.validErr) {
				t.Errorf("wanted validation error: %v but got: %v", tt.validErr, err)
			}
		})
	}
}
