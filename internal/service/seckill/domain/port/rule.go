// internal/service/seckill/domain/port/rule.go
package port

// Fact is the input of an admission rule evaluation.
type Fact struct {
	UserID   string
	Quantity int
	IsVIP    bool
}

// RuleEngine evaluates a product's admission rule against a fact. An empty
// rule is handled by the caller (admit); a rule that fails to compile or
// evaluate is an error, not a denial.
type RuleEngine interface {
	Evaluate(rule string, fact Fact) (bool, error)
}
