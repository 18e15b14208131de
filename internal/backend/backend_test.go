package backend

import (
	"errors"
	"fmt"
	"testing"
)

func TestQueryMatch(t *testing.T) {
	row := Row{"id": "m1", "connection_id": "c1", "read": int64(0), "n": float64(3)}

	tests := []struct {
		name string
		q    Query
		want bool
	}{
		{"empty", Query{}, true},
		{"eq string", Eq("connection_id", "c1"), true},
		{"eq mismatch", Eq("connection_id", "c2"), false},
		{"bool vs int", Eq("read", false), true},
		{"float vs int", Eq("n", 3), true},
		{"in hit", Query{}.WhereIn("id", "m0", "m1"), true},
		{"in miss", Query{}.WhereIn("id", "m2"), false},
		{"or hit", Query{}.AnyOf(Cond{"id", "x"}, Cond{"connection_id", "c1"}), true},
		{"or miss", Query{}.AnyOf(Cond{"id", "x"}), false},
		{"missing column", Eq("other", "v"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Match(row); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryBuildersDoNotAlias(t *testing.T) {
	base := Eq("a", 1)
	q1 := base.And("b", 2)
	q2 := base.And("c", 3)
	if _, ok := q1.Eq["c"]; ok {
		t.Error("q1 shares map with q2")
	}
	if len(base.Eq) != 1 {
		t.Errorf("base mutated: %v", base.Eq)
	}
	if len(q2.Eq) != 2 {
		t.Errorf("q2 = %v, want 2 conditions", q2.Eq)
	}
}

func TestMatcher(t *testing.T) {
	m := Matcher{Table: "messages", Events: []EventType{Insert}, Filter: map[string]any{"receiver_id": "u1"}}

	if !m.Matches(ChangeEvent{Type: Insert, Table: "messages", New: Row{"receiver_id": "u1"}}) {
		t.Error("expected insert for u1 to match")
	}
	if m.Matches(ChangeEvent{Type: Update, Table: "messages", New: Row{"receiver_id": "u1"}}) {
		t.Error("update should not match an insert-only matcher")
	}
	if m.Matches(ChangeEvent{Type: Insert, Table: "matches", New: Row{"receiver_id": "u1"}}) {
		t.Error("other table should not match")
	}
	if m.Matches(ChangeEvent{Type: Insert, Table: "messages", New: Row{"receiver_id": "u2"}}) {
		t.Error("other receiver should not match")
	}

	del := Matcher{Table: "messages", Filter: map[string]any{"connection_id": "c1"}}
	if !del.Matches(ChangeEvent{Type: Delete, Table: "messages", Old: Row{"connection_id": "c1"}}) {
		t.Error("delete should match against the old row")
	}
}

func TestRowAccessors(t *testing.T) {
	r := Row{"s": []byte("x"), "b": int64(1), "f": float64(42), "t": "true", "nil": nil}
	if r.String("s") != "x" {
		t.Errorf("String = %q", r.String("s"))
	}
	if !r.Bool("b") || !r.Bool("t") || r.Bool("missing") {
		t.Error("Bool conversions wrong")
	}
	if r.Int64("f") != 42 {
		t.Errorf("Int64 = %d", r.Int64("f"))
	}
	if r.Has("nil") || !r.Has("s") {
		t.Error("Has wrong")
	}
	if !r.Time("missing").IsZero() {
		t.Error("Time of missing column should be zero")
	}
}

func TestIsAccessDenied(t *testing.T) {
	err := fmt.Errorf("insert message: %w", Errorf(CodeAccessDenied, "blocked"))
	if !IsAccessDenied(err) {
		t.Error("wrapped access-denied error not detected")
	}
	if IsAccessDenied(errors.New("boom")) {
		t.Error("plain error reported as access denied")
	}
	if CodeOf(nil) != "" {
		t.Error("CodeOf(nil) should be empty")
	}
}
