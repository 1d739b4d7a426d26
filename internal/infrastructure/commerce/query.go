package commerce

import (
	"fmt"
	"strings"
)

// Query is a collection path with RQL terms. Terms are kept in insertion
// order and sent without re-encoding.
type Query struct {
	path  string
	terms []string
}

// NewQuery starts a query on path.
func NewQuery(path string) Query {
	return Query{path: path}
}

// Term appends a raw query term.
func (q Query) Term(term string) Query {
	terms := make([]string, len(q.terms), len(q.terms)+1)
	copy(terms, q.terms)
	q.terms = append(terms, term)
	return q
}

// Where appends a filter expression such as Eq("status", "active").
func (q Query) Where(expr string) Query {
	return q.Term(expr)
}

// Select appends a select= term.
func (q Query) Select(fields ...string) Query {
	return q.Term("select=" + strings.Join(fields, ","))
}

// Order appends an order= term.
func (q Query) Order(fields ...string) Query {
	return q.Term("order=" + strings.Join(fields, ","))
}

// String returns the path with its query string.
func (q Query) String() string {
	if len(q.terms) == 0 {
		return q.path
	}
	return q.path + "?" + strings.Join(q.terms, "&")
}

// Page returns the query restricted to one page.
func (q Query) Page(offset, limit int) string {
	return q.Term(fmt.Sprintf("offset=%d", offset)).Term(fmt.Sprintf("limit=%d", limit)).String()
}

// Eq builds eq(field,value).
func Eq(field, value string) string {
	return fmt.Sprintf("eq(%s,%s)", field, value)
}

// Lt builds lt(field,value).
func Lt(field, value string) string {
	return fmt.Sprintf("lt(%s,%s)", field, value)
}

// And builds and(expr,...).
func And(exprs ...string) string {
	return "and(" + strings.Join(exprs, ",") + ")"
}
