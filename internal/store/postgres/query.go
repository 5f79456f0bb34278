package postgres

import (
	"fmt"
	"strings"
)

// query accumulates WHERE conditions and their positional arguments.
type query struct {
	base  string
	conds []string
	tail  []string
	args  []any
}

func newQuery(base string) *query {
	return &query{base: base}
}

// where adds a condition whose single placeholder is written as "?".
func (q *query) where(cond string, arg any) *query {
	q.args = append(q.args, arg)
	q.conds = append(q.conds, strings.Replace(cond, "?", fmt.Sprintf("$%d", len(q.args)), 1))
	return q
}

func (q *query) orderBy(clause string) *query {
	q.tail = append(q.tail, "ORDER BY "+clause)
	return q
}

// limit adds LIMIT when n is positive.
func (q *query) limit(n int) *query {
	if n > 0 {
		q.args = append(q.args, n)
		q.tail = append(q.tail, fmt.Sprintf("LIMIT $%d", len(q.args)))
	}
	return q
}

// offset adds OFFSET when n is positive.
func (q *query) offset(n int) *query {
	if n > 0 {
		q.args = append(q.args, n)
		q.tail = append(q.tail, fmt.Sprintf("OFFSET $%d", len(q.args)))
	}
	return q
}

func (q *query) sql() string {
	var b strings.Builder
	b.WriteString(q.base)
	if len(q.conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.conds, " AND "))
	}
	for _, t := range q.tail {
		b.WriteByte(' ')
		b.WriteString(t)
	}
	return b.String()
}
