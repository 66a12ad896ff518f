package policy

import (
	"fmt"

	"github.com/Genosoo/expoasia-web-app/internal"
	"github.com/Genosoo/expoasia-web-app/lib/policy/config"
	"github.com/Genosoo/expoasia-web-app/lib/policy/expressions"
	"github.com/Genosoo/expoasia-web-app/lib/registration"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// CELRule is a compiled field rule expression.
type CELRule struct {
	src     string
	program cel.Program
}

func NewCELRule(cfg *config.ExpressionOrList) (*CELRule, error) {
	env, err := expressions.NewEnvironment()
	if err != nil {
		return nil, err
	}

	var src string
	var ast *cel.Ast

	switch {
	case cfg.Expression != "":
		src = cfg.Expression
		var iss *cel.Issues
		ast, iss = env.Compile(src)
		if iss.Err() != nil {
			return nil, iss.Err()
		}
	case len(cfg.All) != 0:
		src = fmt.Sprint(cfg.All)
		ast, err = expressions.Join(env, expressions.JoinAnd, cfg.All...)
	case len(cfg.Any) != 0:
		src = fmt.Sprint(cfg.Any)
		ast, err = expressions.Join(env, expressions.JoinOr, cfg.Any...)
	default:
		return nil, config.ErrExpressionEmpty
	}

	if err != nil {
		return nil, err
	}

	if !ast.OutputType().IsExactType(types.BoolType) {
		return nil, fmt.Errorf("%w: %s returns %s", ErrRuleNotBoolean, src, ast.OutputType())
	}

	program, err := expressions.Compile(env, ast)
	if err != nil {
		return nil, fmt.Errorf("can't compile CEL program: %w", err)
	}

	return &CELRule{
		src:     src,
		program: program,
	}, nil
}

func (cr *CELRule) Hash() string {
	return internal.SHA256sum(cr.src)
}

// Check reports whether d satisfies the rule.
func (cr *CELRule) Check(d registration.ParticipantDraft) (bool, error) {
	result, _, err := cr.program.Eval(expressions.Draft{ParticipantDraft: d})
	if err != nil {
		return false, err
	}

	if val, ok := result.(types.Bool); ok {
		return bool(val), nil
	}

	return false, nil
}
