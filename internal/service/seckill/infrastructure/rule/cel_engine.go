// internal/service/seckill/infrastructure/rule/cel_engine.go
package rule

import (
	"fmt"
	"sync"

	"flashmall/internal/service/seckill/domain/port"

	"github.com/google/cel-go/cel"
)

// CELRuleEngine implements port.RuleEngine with CEL expressions, e.g.
// `is_vip || quantity <= 1`. Compiled programs are cached per rule text; rules
// change rarely and evaluation sits on the hot reservation path.
type CELRuleEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELRuleEngine declares the fact variables admission rules may reference.
func NewCELRuleEngine() (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("user_id", cel.StringType),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("is_vip", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CELRuleEngine{env: env, programs: make(map[string]cel.Program)}, nil
}

// Evaluate compiles (or reuses) the rule and runs it against the fact.
func (e *CELRuleEngine) Evaluate(ruleExpr string, fact port.Fact) (bool, error) {
	program, err := e.program(ruleExpr)
	if err != nil {
		return false, err
	}

	out, _, err := program.Eval(map[string]interface{}{
		"user_id":  fact.UserID,
		"quantity": int64(fact.Quantity),
		"is_vip":   fact.IsVIP,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate admission rule: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("admission rule did not evaluate to a boolean: %q", ruleExpr)
	}
	return result, nil
}

func (e *CELRuleEngine) program(ruleExpr string) (cel.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[ruleExpr]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := e.env.Compile(ruleExpr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid admission rule %q: %w", ruleExpr, issues.Err())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build admission rule program: %w", err)
	}

	e.mu.Lock()
	e.programs[ruleExpr] = program
	e.mu.Unlock()
	return program, nil
}
