// Package expressions holds the CEL environment field rules are compiled
// in.
package expressions

import (
	"github.com/Genosoo/expoasia-web-app/lib/registration"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// NewEnvironment creates the CEL environment for field rules. Every form
// field is a string variable named after its wire name, and `fields` maps
// wire names to values for rules that loop over them.
func NewEnvironment() (*cel.Env, error) {
	opts := []cel.EnvOption{
		ext.Strings(
			ext.StringsLocale("en_US"),
			ext.StringsValidateFormatCalls(true),
		),

		cel.DefaultUTCTimeZone(true),

		cel.Variable("fields", cel.MapType(cel.StringType, cel.StringType)),
	}

	for _, f := range registration.Fields() {
		opts = append(opts, cel.Variable(f.String(), cel.StringType))
	}

	return cel.NewEnv(opts...)
}

// Compile takes CEL environment and syntax tree then emits an optimized
// Program for execution.
func Compile(env *cel.Env, ast *cel.Ast) (cel.Program, error) {
	return env.Program(
		ast,
		cel.EvalOptions(
			// optimize regular expressions right now instead of on the fly
			cel.OptOptimize,
		),
	)
}

// Draft exposes a ParticipantDraft to CEL programs.
type Draft struct {
	registration.ParticipantDraft
}

func (d Draft) Parent() cel.Activation { return nil }

func (d Draft) ResolveName(name string) (any, bool) {
	if name == "fields" {
		return d.Values(), true
	}

	f, err := registration.ParseField(name)
	if err != nil {
		return nil, false
	}

	return d.Get(f), true
}
