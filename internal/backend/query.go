package backend

import "maps"

// Cond is a single equality condition.
type Cond struct {
	Column string
	Value  any
}

// Order sorts a selection by one column.
type Order struct {
	Column string
	Desc   bool
}

// Query filters, orders and pages a table. All Eq and In conditions must
// hold; when Or is non-empty at least one of its conditions must hold too.
type Query struct {
	Eq     map[string]any
	Or     []Cond
	In     map[string][]any
	Order  []Order
	Limit  int
	Offset int
}

// Eq starts a query with a single equality condition.
func Eq(col string, v any) Query {
	return Query{}.And(col, v)
}

// And adds an equality condition.
func (q Query) And(col string, v any) Query {
	eq := make(map[string]any, len(q.Eq)+1)
	maps.Copy(eq, q.Eq)
	eq[col] = v
	q.Eq = eq
	return q
}

// AnyOf requires at least one of conds to hold.
func (q Query) AnyOf(conds ...Cond) Query {
	q.Or = append(append([]Cond(nil), q.Or...), conds...)
	return q
}

// WhereIn requires col to be one of vals.
func (q Query) WhereIn(col string, vals ...any) Query {
	in := make(map[string][]any, len(q.In)+1)
	maps.Copy(in, q.In)
	in[col] = vals
	q.In = in
	return q
}

// OrderBy appends a sort key.
func (q Query) OrderBy(col string, desc bool) Query {
	q.Order = append(append([]Order(nil), q.Order...), Order{Column: col, Desc: desc})
	return q
}

// Take limits the number of rows returned.
func (q Query) Take(limit int) Query {
	q.Limit = limit
	return q
}

// Skip offsets the selection.
func (q Query) Skip(offset int) Query {
	q.Offset = offset
	return q
}

// Match reports whether row satisfies the filter part of q.
func (q Query) Match(row Row) bool {
	for col, v := range q.Eq {
		if !Equal(row[col], v) {
			return false
		}
	}
	for col, vals := range q.In {
		found := false
		for _, v := range vals {
			if Equal(row[col], v) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.Or) == 0 {
		return true
	}
	for _, c := range q.Or {
		if Equal(row[c.Column], c.Value) {
			return true
		}
	}
	return false
}
