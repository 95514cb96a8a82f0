package certsvc

import (
	"strings"

	"github.com/google/cel-go/cel"
)

// rowFilter is a compiled CEL predicate over a row. The zero value accepts
// every row.
type rowFilter struct {
	prog cel.Program
}

func newRowFilter(expr string) (rowFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return rowFilter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return rowFilter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return rowFilter{}, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return rowFilter{}, errNotBoolean
	}
	prog, err := env.Program(ast)
	if err != nil {
		return rowFilter{}, err
	}
	return rowFilter{prog: prog}, nil
}

// Match evaluates the predicate. Evaluation errors (e.g. a missing key)
// count as no match.
func (f rowFilter) Match(row map[string]string) bool {
	if f.prog == nil {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{"row": row})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
