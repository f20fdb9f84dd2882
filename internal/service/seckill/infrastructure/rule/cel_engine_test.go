// internal/service/seckill/infrastructure/rule/cel_engine_test.go
package rule

import (
	"testing"

	"flashmall/internal/service/seckill/domain/port"
)

func TestEvaluate(t *testing.T) {
	engine, err := NewCELRuleEngine()
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		rule string
		fact port.Fact
		want bool
	}{
		{"vip only, vip", `is_vip`, port.Fact{UserID: "u1", Quantity: 1, IsVIP: true}, true},
		{"vip only, regular", `is_vip`, port.Fact{UserID: "u1", Quantity: 1}, false},
		{"quantity cap, within", `quantity <= 2`, port.Fact{UserID: "u1", Quantity: 2}, true},
		{"quantity cap, above", `quantity <= 2`, port.Fact{UserID: "u1", Quantity: 3}, false},
		{"combined", `is_vip || quantity <= 1`, port.Fact{UserID: "u1", Quantity: 1}, true},
		{"user match", `user_id.startsWith("vip-")`, port.Fact{UserID: "vip-7", Quantity: 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.Evaluate(tc.rule, tc.fact)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tc.rule, got, tc.want)
			}
		})
	}
}

func TestEvaluateInvalidRule(t *testing.T) {
	engine, err := NewCELRuleEngine()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Evaluate(`quantity <=`, port.Fact{}); err == nil {
		t.Error("expected a compile error")
	}
}

func TestEvaluateNonBooleanRule(t *testing.T) {
	engine, err := NewCELRuleEngine()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Evaluate(`quantity + 1`, port.Fact{Quantity: 1}); err == nil {
		t.Error("expected an error for a non-boolean rule")
	}
}

func TestProgramCacheReused(t *testing.T) {
	engine, err := NewCELRuleEngine()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := engine.Evaluate(`is_vip`, port.Fact{IsVIP: true}); err != nil {
			t.Fatal(err)
		}
	}
	if len(engine.programs) != 1 {
		t.Errorf("cached programs = %d, want 1", len(engine.programs))
	}
}
