// Package query evaluates filter/sort/paginate queries over a node or edge
// collection.
//
// A query picks its candidates from an index when it can: the first predicate
// the property index can answer (=, >, >=, <, <=) wins, then the label index,
// and only without either does it scan the whole collection. Every candidate
// is then checked against the label and all predicates, so the access path
// never changes which rows match.
//
// Example:
//
//	res, err := query.New(db.Nodes()).
//		Label("person").
//		Where("age", query.Gte, value.Int(18)).
//		Where("name", query.StartsWith, value.String("A")).
//		OrderBy("age", false).
//		Limit(10).
//		Execute()
//
//	for _, e := range res.Entities {
//		fmt.Println(e.EntityID())
//	}
package query

import (
	"fmt"
	"sort"

	"github.com/orneryd/graphcore/pkg/index"
	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/value"
)

// Collection is what a query runs over. *graphdb.Collection satisfies it.
type Collection interface {
	ByLabel(label string) ([]storage.Entity, error)
	Lookup(key string, op index.Op, v value.Value) ([]storage.Entity, error)
	All() ([]storage.Entity, error)
}

// Query is a query under construction. Builder methods modify and return
// the same Query.
type Query struct {
	coll       Collection
	label      string
	hasLabel   bool
	predicates []Predicate
	sortKey    string
	ascending  bool
	offset     int
	limit      int
}

// Result is a materialized query result.
type Result struct {
	// Entities in result order. Nodes are *storage.Node, edges *storage.Edge.
	Entities []storage.Entity
	// Skipped counts candidates excluded because a predicate could not be
	// evaluated on them (storage.ErrInvalidProperty).
	Skipped int
	// Plan names the access path: "property-index(<predicate>)",
	// "label-index(<label>)" or "full-scan".
	Plan string
}

// New starts a query over coll.
func New(coll Collection) *Query {
	return &Query{coll: coll, limit: -1}
}

// Label restricts the query to one label.
func (q *Query) Label(label string) *Query {
	q.label = label
	q.hasLabel = true
	return q
}

// Where adds a predicate. All predicates must match.
func (q *Query) Where(key string, op Op, v value.Value) *Query {
	q.predicates = append(q.predicates, Predicate{Key: key, Op: op, Value: v})
	return q
}

// OrderBy sorts by a property. The sort is stable and entities missing the
// property (or holding null) sort last in both directions.
func (q *Query) OrderBy(key string, ascending bool) *Query {
	q.sortKey = key
	q.ascending = ascending
	return q
}

// Offset skips the first n results.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// Limit caps the number of results. A negative n removes the cap.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Execute runs the query.
func (q *Query) Execute() (*Result, error) {
	if q.offset < 0 {
		return nil, fmt.Errorf("negative offset %d", q.offset)
	}

	candidates, plan, err := q.candidates()
	if err != nil {
		return nil, err
	}

	res := &Result{Plan: plan}
	matched := candidates[:0:0]
	for _, e := range candidates {
		ok, err := q.match(e)
		if err != nil {
			if IsInvalidProperty(err) {
				res.Skipped++
				continue
			}
			return nil, err
		}
		if ok {
			matched = append(matched, e)
		}
	}

	if q.sortKey != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return value.SortOrder(prop(matched[i], q.sortKey), prop(matched[j], q.sortKey), q.ascending) < 0
		})
	}

	res.Entities = paginate(matched, q.offset, q.limit)
	return res, nil
}

func (q *Query) candidates() ([]storage.Entity, string, error) {
	for _, p := range q.predicates {
		op, ok := p.Op.indexOp()
		if !ok || p.Value.IsNull() {
			continue
		}
		entities, err := q.coll.Lookup(p.Key, op, p.Value)
		return entities, "property-index(" + p.String() + ")", err
	}
	if q.hasLabel {
		entities, err := q.coll.ByLabel(q.label)
		return entities, "label-index(" + q.label + ")", err
	}
	entities, err := q.coll.All()
	return entities, "full-scan", err
}

// match applies the label and the predicates in order, stopping at the first
// failure.
func (q *Query) match(e storage.Entity) (bool, error) {
	if q.hasLabel && e.EntityLabel() != q.label {
		return false, nil
	}
	for _, p := range q.predicates {
		ok, err := p.Match(e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func prop(e storage.Entity, key string) value.Value {
	v, _ := e.Property(key)
	return v
}

func paginate[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return rows[:0]
	}
	rows = rows[offset:]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
