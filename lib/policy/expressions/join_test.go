package expressions

import (
	"errors"
	"testing"

	"github.com/google/cel-go/cel"
)

func TestJoin(t *testing.T) {
	env, err := NewEnvironment()
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range []struct {
		name      string
		clauses   []string
		op        JoinOperator
		err       error
		resultStr string
	}{
		{
			name:    "no-clauses",
			clauses: []string{},
			op:      JoinAnd,
			err:     ErrNoExpressions,
		},
		{
			name:      "one-clause-identity",
			clauses:   []string{`email.endsWith(".ph")`},
			op:        JoinAnd,
			resultStr: `email.endsWith(".ph")`,
		},
		{
			name: "multi-clause-and",
			clauses: []string{
				`phone_no != ""`,
				`viber_no == phone_no`,
			},
			op:        JoinAnd,
			resultStr: `phone_no != "" && viber_no == phone_no`,
		},
		{
			name: "multi-clause-or",
			clauses: []string{
				`military_branch != ""`,
				`company_org_other == ""`,
			},
			op:        JoinOr,
			resultStr: `military_branch != "" || company_org_other == ""`,
		},
		{
			name: "nested-or-in-and",
			clauses: []string{
				`last_name.startsWith("de ") || last_name.startsWith("del ")`,
				`size(last_name) > 4`,
			},
			op:        JoinAnd,
			resultStr: `(last_name.startsWith("de ") || last_name.startsWith("del ")) && size(last_name) > 4`,
		},
		{
			name:    "unknown-variable",
			clauses: []string{`remoteAddress == "8.8.8.8"`},
			op:      JoinAnd,
			err:     ErrCantCompile,
		},
		{
			name:    "bad-operator",
			clauses: []string{`true`, `false`},
			op:      JoinOperator("^"),
			err:     ErrWrongJoinOperator,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Join(env, tt.op, tt.clauses...)
			if !errors.Is(err, tt.err) {
				t.Errorf("wanted error %v but got: %v", tt.err, err)
			}

			if tt.err != nil {
				return
			}

			program, err := cel.AstToString(result)
			if err != nil {
				t.Fatalf("can't decompile program: %v", err)
			}

			if tt.resultStr != program {
				t.Logf("want: %s", tt.resultStr)
				t.Logf("got:  %s", program)
				t.Error("program did not compile as expected")
			}
		})
	}
}
