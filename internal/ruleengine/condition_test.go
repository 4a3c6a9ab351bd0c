package ruleengine

import "testing"

func TestEvaluate_EmptyTreeAlwaysPasses(t *testing.T) {
	if !Evaluate(ConditionTree{}, map[string]any{}) {
		t.Fatal("expected empty condition tree to pass")
	}
}

func TestEvaluate_MissingFieldFailsClosed(t *testing.T) {
	tree := ConditionTree{Rules: []Condition{{Field: "priority", Op: "eq", Value: float64(1)}}}
	if Evaluate(tree, map[string]any{}) {
		t.Fatal("expected missing field to fail the condition")
	}
}

func TestEvaluate_UnknownOpFailsClosed(t *testing.T) {
	tree := ConditionTree{Rules: []Condition{{Field: "status", Op: "matches_regex", Value: "x"}}}
	if Evaluate(tree, map[string]any{"status": "pending"}) {
		t.Fatal("expected unknown operator to fail closed")
	}
}

func TestEvaluate_Operators(t *testing.T) {
	tests := []struct {
		name    string
		cond    Condition
		payload map[string]any
		want    bool
	}{
		{"eq match", Condition{Field: "status", Op: "eq", Value: "pending"}, map[string]any{"status": "pending"}, true},
		{"eq mismatch", Condition{Field: "status", Op: "eq", Value: "pending"}, map[string]any{"status": "active"}, false},
		{"ne match", Condition{Field: "status", Op: "ne", Value: "active"}, map[string]any{"status": "pending"}, true},
		{"gt numeric", Condition{Field: "priority", Op: "gt", Value: float64(1)}, map[string]any{"priority": float64(2)}, true},
		{"gt non-numeric fails", Condition{Field: "priority", Op: "gt", Value: float64(1)}, map[string]any{"priority": "high"}, false},
		{"lt numeric", Condition{Field: "priority", Op: "lt", Value: float64(5)}, map[string]any{"priority": float64(2)}, true},
		{"gte equal", Condition{Field: "priority", Op: "gte", Value: float64(2)}, map[string]any{"priority": float64(2)}, true},
		{"lte equal", Condition{Field: "priority", Op: "lte", Value: float64(2)}, map[string]any{"priority": float64(2)}, true},
		{"in membership", Condition{Field: "type", Op: "in", Value: []any{"a", "b"}}, map[string]any{"type": "b"}, true},
		{"in non-membership", Condition{Field: "type", Op: "in", Value: []any{"a", "b"}}, map[string]any{"type": "c"}, false},
		{"contains substring", Condition{Field: "message", Op: "contains", Value: "err"}, map[string]any{"message": "an error occurred"}, true},
		{"contains no match", Condition{Field: "message", Op: "contains", Value: "err"}, map[string]any{"message": "all good"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(ConditionTree{Rules: []Condition{tt.cond}}, tt.payload)
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_AndSemanticsRequireAllConditions(t *testing.T) {
	tree := ConditionTree{Rules: []Condition{
		{Field: "status", Op: "eq", Value: "pending"},
		{Field: "priority", Op: "gte", Value: float64(2)},
	}}

	if Evaluate(tree, map[string]any{"status": "pending", "priority": float64(1)}) {
		t.Fatal("expected failure when only one of two conditions passes")
	}
	if !Evaluate(tree, map[string]any{"status": "pending", "priority": float64(3)}) {
		t.Fatal("expected success when both conditions pass")
	}
}
