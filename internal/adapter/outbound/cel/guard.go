// Package cel implements the optional access guard as a compiled CEL
// expression evaluated against the resource under decision.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/dash-gate/dashgate/internal/domain/access"
	"github.com/dash-gate/dashgate/internal/domain/resource"
)

// maxExpressionLength caps configured guard expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit.
const maxCostBudget = 100_000

// maxNestingDepth caps parenthesis/bracket nesting in the expression.
const maxNestingDepth = 50

// evalTimeout bounds a single guard evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Guard evaluates one compiled expression per resource. The expression
// sees a single `resource` map with uid, kind, title, cluster, folder and
// tags fields and must produce a boolean. Compiled once at startup;
// evaluation is side-effect free and safe for concurrent use.
type Guard struct {
	program cel.Program
}

// Compile-time check that Guard satisfies the gate's guard contract.
var _ access.Guard = (*Guard)(nil)

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("resource", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// NewGuard validates and compiles a guard expression.
func NewGuard(expression string) (*Guard, error) {
	if expression == "" {
		return nil, errors.New("guard expression is empty")
	}
	if len(expression) > maxExpressionLength {
		return nil, fmt.Errorf("guard expression too long: %d characters (max %d)",
			len(expression), maxExpressionLength)
	}
	if err := validateNesting(expression); err != nil {
		return nil, err
	}

	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("create guard environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile guard expression: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("guard expression must return bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("build guard program: %w", err)
	}
	return &Guard{program: prg}, nil
}

// validateNesting rejects expressions nesting parentheses, brackets or
// braces deeper than maxNestingDepth.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("guard expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// Allow implements access.Guard. Evaluation errors propagate; the gate
// treats them as a denial.
func (g *Guard) Allow(ctx context.Context, res resource.Resource) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	activation := map[string]any{
		"resource": map[string]any{
			"uid":     res.UID,
			"kind":    string(res.Kind),
			"title":   res.Title,
			"cluster": res.Cluster,
			"folder":  res.FolderPath,
			"tags":    res.Tags.Slice(),
		},
	}
	result, _, err := g.program.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluate guard: %w", err)
	}
	allowed, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("guard returned %T, want bool", result.Value())
	}
	return allowed, nil
}
