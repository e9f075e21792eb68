package names

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL predicate over name associations. The expression
// sees these variables:
//
//	id        string  canonical identifier
//	kind      string  identifier type, e.g. "logical_node_session"
//	instance  string  instance part
//	name      string  display string
//	resolved  bool    whether a plaintext name is known
//
// Example: kind == "instance_node_session" && name.startsWith("gw-")
type Filter struct {
	expr string
	prg  cel.Program
}

var filterEnv = sync.OnceValues(func() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("instance", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("resolved", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("create filter environment: %w", err)
	}
	return env, nil
})

// CompileFilter parses and type-checks expr.
func CompileFilter(expr string) (*Filter, error) {
	env, err := filterEnv()
	if err != nil {
		return nil, err
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program filter %q: %w", expr, err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string { return f.expr }

// Match evaluates the filter against one association.
func (f *Filter) Match(a Association) (bool, error) {
	_, resolved := a.Binding.ResolvedName()
	out, _, err := f.prg.Eval(map[string]any{
		"id":       a.ID.String(),
		"kind":     a.ID.Type().String(),
		"instance": a.ID.InstancePart(),
		"name":     a.Binding.Display(),
		"resolved": resolved,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q on %s: %w", f.expr, a.ID, err)
	}
	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T", f.expr, out.Value())
	}
	return match, nil
}

// PrintNameAssociationsMatching writes the bindings selected by the CEL
// expression expr, in the same format as PrintAllNameAssociations.
func (r *Registry) PrintNameAssociationsMatching(w io.Writer, introText, expr string) error {
	f, err := CompileFilter(expr)
	if err != nil {
		return err
	}
	return r.print(w, introText, f.Match)
}
