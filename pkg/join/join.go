// Package join combines two labeled node collections into rows, either along
// edges of a given label or by equality of a property on each side.
//
// Execution runs in fixed stages:
//
//  1. fetch the left and right collections through the label index (in parallel)
//  2. build the match index: adjacency for edge joins, a key->nodes map for
//     property joins
//  3. emit rows according to the join kind
//  4. apply predicates in order, first failure excludes the row
//  5. stable sort on one column, nulls last in either direction
//  6. offset, then limit
//
// Example:
//
//	res, err := join.New(db, "person", "person").
//		OnEdge("friends").
//		Select(join.Left("name"), join.Right("name")).
//		Where(join.GreaterThan(join.Right("age"), value.Int(18))).
//		OrderBy(join.Right("name"), true).
//		Execute(ctx)
//
// A Cross join has no implicit cap: callers bound it with Limit or predicates.
package join

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/graphcore/pkg/logging"
	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/value"
)

// Graph is the read surface a join needs. *graphdb.DB satisfies it.
type Graph interface {
	NodesByLabel(label string) ([]*storage.Node, error)
	OutgoingEdges(id storage.NodeID) ([]*storage.Edge, error)
}

// Kind selects how unmatched entities are handled.
type Kind int

const (
	// Inner emits only matched pairs.
	Inner Kind = iota
	// LeftOuter also emits unmatched left entities with a null right side.
	LeftOuter
	// RightOuter also emits unmatched right entities with a null left side.
	RightOuter
	// FullOuter emits matched pairs plus unmatched entities of both sides.
	FullOuter
	// Cross ignores the condition and emits every pair.
	Cross
)

func (k Kind) String() string {
	switch k {
	case Inner:
		return "inner"
	case LeftOuter:
		return "left"
	case RightOuter:
		return "right"
	case FullOuter:
		return "full-outer"
	case Cross:
		return "cross"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrNoCondition is returned when a non-cross join has neither OnEdge nor
// OnProperty.
var ErrNoCondition = errors.New("join condition required")

type condition struct {
	edgeLabel string
	leftKey   string
	rightKey  string
	byEdge    bool
	set       bool
}

// Join is a join under construction. Builder methods modify and return the
// same Join.
type Join struct {
	graph      Graph
	log        logrus.FieldLogger
	leftLabel  string
	rightLabel string
	kind       Kind
	cond       condition
	columns    []Column
	predicates []Predicate
	sortCol    Column
	ascending  bool
	offset     int
	limit      int
}

// Result is a materialized join.
type Result struct {
	Columns []string
	Rows    [][]value.Value
	// Skipped counts rows dropped because a predicate could not be evaluated.
	Skipped int
}

// New starts an inner join of leftLabel nodes with rightLabel nodes.
func New(g Graph, leftLabel, rightLabel string) *Join {
	return &Join{graph: g, log: logging.Discard(), leftLabel: leftLabel, rightLabel: rightLabel, limit: -1}
}

// WithLogger sets the logger that receives dropped-row diagnostics.
func (j *Join) WithLogger(l logrus.FieldLogger) *Join {
	j.log = l
	return j
}

// Kind sets the join kind.
func (j *Join) Kind(k Kind) *Join {
	j.kind = k
	return j
}

// OnEdge matches a left node with a right node when an edge labeled label
// runs from the left node to the right node. Direction matters.
func (j *Join) OnEdge(label string) *Join {
	j.cond = condition{edgeLabel: label, byEdge: true, set: true}
	return j
}

// OnProperty matches when left.leftKey equals right.rightKey. Missing and
// null keys never match.
func (j *Join) OnProperty(leftKey, rightKey string) *Join {
	j.cond = condition{leftKey: leftKey, rightKey: rightKey, set: true}
	return j
}

// Select sets the projection. Without one, rows hold left.id and right.id.
func (j *Join) Select(cols ...Column) *Join {
	j.columns = append(j.columns, cols...)
	return j
}

// Where adds predicates, evaluated in the order given.
func (j *Join) Where(ps ...Predicate) *Join {
	j.predicates = append(j.predicates, ps...)
	return j
}

// OrderBy sorts rows by a column, which need not be projected.
func (j *Join) OrderBy(c Column, ascending bool) *Join {
	j.sortCol = c
	j.ascending = ascending
	return j
}

// Offset skips the first n rows.
func (j *Join) Offset(n int) *Join {
	j.offset = n
	return j
}

// Limit caps the number of rows. A negative n removes the cap.
func (j *Join) Limit(n int) *Join {
	j.limit = n
	return j
}

// Execute runs the join.
func (j *Join) Execute(ctx context.Context) (*Result, error) {
	if j.offset < 0 {
		return nil, fmt.Errorf("negative offset %d", j.offset)
	}
	rows, skipped, err := j.rows(ctx)
	if err != nil {
		return nil, err
	}

	if j.sortCol != "" {
		sort.SliceStable(rows, func(a, b int) bool {
			return value.SortOrder(rows[a].Get(j.sortCol), rows[b].Get(j.sortCol), j.ascending) < 0
		})
	}
	rows = paginate(rows, j.offset, j.limit)

	cols := j.columns
	if len(cols) == 0 {
		cols = []Column{LeftID(), RightID()}
	}
	res := &Result{Columns: make([]string, len(cols)), Rows: make([][]value.Value, len(rows)), Skipped: skipped}
	for i, c := range cols {
		res.Columns[i] = string(c)
	}
	for i, r := range rows {
		out := make([]value.Value, len(cols))
		for k, c := range cols {
			out[k] = r.Get(c)
		}
		res.Rows[i] = out
	}
	return res, nil
}

// rows runs stages 1 through 4.
func (j *Join) rows(ctx context.Context) ([]Row, int, error) {
	if j.kind != Cross && !j.cond.set {
		return nil, 0, ErrNoCondition
	}

	left, right, err := j.fetch(ctx)
	if err != nil {
		return nil, 0, err
	}

	var all []Row
	if j.kind == Cross {
		all = make([]Row, 0, len(left)*len(right))
		for _, l := range left {
			for _, r := range right {
				all = append(all, Row{Left: l, Right: r})
			}
		}
	} else {
		matches, err := j.match(ctx, left, right)
		if err != nil {
			return nil, 0, err
		}
		all = j.emit(left, right, matches)
	}

	kept := all[:0]
	skipped := 0
	for _, r := range all {
		ok, err := j.filter(r)
		if err != nil {
			if !errors.Is(err, storage.ErrInvalidProperty) {
				return nil, 0, err
			}
			skipped++
			j.log.WithField("action", "join").WithError(err).Debug("row dropped")
			continue
		}
		if ok {
			kept = append(kept, r)
		}
	}
	return kept, skipped, nil
}

func (j *Join) fetch(ctx context.Context) (left, right []*storage.Node, err error) {
	var g errgroup.Group
	g.Go(func() error {
		var err error
		left, err = j.graph.NodesByLabel(j.leftLabel)
		return err
	})
	g.Go(func() error {
		var err error
		right, err = j.graph.NodesByLabel(j.rightLabel)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("fetching join inputs: %w", err)
	}
	return left, right, ctx.Err()
}

// match maps each left node id to its right partners, in right collection
// order and without repeats.
func (j *Join) match(ctx context.Context, left, right []*storage.Node) (map[storage.NodeID][]*storage.Node, error) {
	matches := make(map[storage.NodeID][]*storage.Node)

	if j.cond.byEdge {
		pos := make(map[storage.NodeID]int, len(right))
		for i, r := range right {
			pos[r.ID] = i
		}
		for _, l := range left {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			edges, err := j.graph.OutgoingEdges(l.ID)
			if err != nil {
				return nil, err
			}
			var hits []int
			seen := make(map[int]bool)
			for _, e := range edges {
				i, ok := pos[e.Target]
				if e.Label != j.cond.edgeLabel || !ok || seen[i] {
					continue
				}
				seen[i] = true
				hits = append(hits, i)
			}
			sort.Ints(hits)
			for _, i := range hits {
				matches[l.ID] = append(matches[l.ID], right[i])
			}
		}
		return matches, nil
	}

	byKey := make(map[value.Value][]*storage.Node)
	for _, r := range right {
		if k := r.Properties[j.cond.rightKey]; !k.IsNull() {
			byKey[k] = append(byKey[k], r)
		}
	}
	for _, l := range left {
		if k := l.Properties[j.cond.leftKey]; !k.IsNull() {
			if rs := byKey[k]; len(rs) > 0 {
				matches[l.ID] = rs
			}
		}
	}
	return matches, nil
}

// emit turns matches into rows for the inner and outer kinds.
func (j *Join) emit(left, right []*storage.Node, matches map[storage.NodeID][]*storage.Node) []Row {
	var rows []Row

	if j.kind == RightOuter {
		partners := make(map[storage.NodeID][]*storage.Node)
		for _, l := range left {
			for _, r := range matches[l.ID] {
				partners[r.ID] = append(partners[r.ID], l)
			}
		}
		for _, r := range right {
			ls := partners[r.ID]
			if len(ls) == 0 {
				rows = append(rows, Row{Right: r})
				continue
			}
			for _, l := range ls {
				rows = append(rows, Row{Left: l, Right: r})
			}
		}
		return rows
	}

	matched := make(map[storage.NodeID]bool)
	seen := make(map[[2]storage.NodeID]bool)
	for _, l := range left {
		rs := matches[l.ID]
		if len(rs) == 0 && j.kind != Inner {
			rows = append(rows, Row{Left: l})
			continue
		}
		for _, r := range rs {
			row := Row{Left: l, Right: r}
			if seen[row.key()] {
				continue
			}
			seen[row.key()] = true
			matched[r.ID] = true
			rows = append(rows, row)
		}
	}

	if j.kind == FullOuter {
		for _, r := range right {
			if !matched[r.ID] {
				rows = append(rows, Row{Right: r})
			}
		}
	}
	return rows
}

func (j *Join) filter(r Row) (bool, error) {
	for _, p := range j.predicates {
		ok, err := p.Evaluate(r)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
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
