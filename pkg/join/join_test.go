package join

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/value"
)

type memGraph struct {
	nodes []*storage.Node
	out   map[storage.NodeID][]*storage.Edge
}

func newMemGraph() *memGraph {
	return &memGraph{out: map[storage.NodeID][]*storage.Edge{}}
}

func (g *memGraph) node(id, label string, props value.Properties) {
	g.nodes = append(g.nodes, &storage.Node{ID: storage.NodeID(id), Label: label, Properties: props})
}

func (g *memGraph) edge(from, to, label string) {
	src := storage.NodeID(from)
	g.out[src] = append(g.out[src], &storage.Edge{
		ID:     storage.EdgeID(from + "-" + label + "-" + to),
		Source: src,
		Target: storage.NodeID(to),
		Label:  label,
	})
}

func (g *memGraph) NodesByLabel(label string) ([]*storage.Node, error) {
	var out []*storage.Node
	for _, n := range g.nodes {
		if n.Label == label {
			out = append(out, n)
		}
	}
	return out, nil
}

func (g *memGraph) OutgoingEdges(id storage.NodeID) ([]*storage.Edge, error) {
	return g.out[id], nil
}

// peopleAndCities: Alice and Bob live somewhere, Carol and Dave do not, and
// nobody lives in Rome.
func peopleAndCities() *memGraph {
	g := newMemGraph()
	g.node("p1", "person", value.Properties{"name": value.String("Alice"), "age": value.Int(30), "city": value.String("Paris")})
	g.node("p2", "person", value.Properties{"name": value.String("Bob"), "age": value.Int(25), "city": value.String("Berlin")})
	g.node("p3", "person", value.Properties{"name": value.String("Carol"), "age": value.Int(35)})
	g.node("p4", "person", value.Properties{"name": value.String("Dave"), "age": value.String("old"), "city": value.Null()})
	g.node("c1", "city", value.Properties{"name": value.String("Paris")})
	g.node("c2", "city", value.Properties{"name": value.String("Berlin")})
	g.node("c3", "city", value.Properties{"name": value.String("Rome")})

	g.edge("p1", "c1", "lives_in")
	g.edge("p1", "c1", "lives_in")
	g.edge("p1", "c3", "visited")
	g.edge("p2", "c2", "lives_in")
	g.edge("p3", "c2", "likes")
	return g
}

// column renders one result column as strings.
func column(res *Result, i int) []string {
	out := make([]string, len(res.Rows))
	for r, row := range res.Rows {
		out[r] = row[i].String()
	}
	return out
}

func livesIn(kind Kind) *Join {
	return New(peopleAndCities(), "person", "city").Kind(kind).OnEdge("lives_in")
}

func TestEdgeJoinKinds(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		kind  Kind
		left  []string
		right []string
	}{
		{Inner, []string{"p1", "p2"}, []string{"c1", "c2"}},
		{LeftOuter, []string{"p1", "p2", "p3", "p4"}, []string{"c1", "c2", "null", "null"}},
		{RightOuter, []string{"p1", "p2", "null"}, []string{"c1", "c2", "c3"}},
		{FullOuter, []string{"p1", "p2", "p3", "p4", "null"}, []string{"c1", "c2", "null", "null", "c3"}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			res, err := livesIn(tt.kind).Execute(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"left.id", "right.id"}, res.Columns)
			assert.Equal(t, tt.left, column(res, 0))
			assert.Equal(t, tt.right, column(res, 1))
		})
	}
}

func TestParallelEdgesYieldOneRow(t *testing.T) {
	res, err := livesIn(Inner).Where(Equals(LeftID(), value.String("p1"))).Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
}

func TestLeftJoinIsSupersetOfInner(t *testing.T) {
	ctx := context.Background()
	inner, err := livesIn(Inner).Execute(ctx)
	require.NoError(t, err)
	left, err := livesIn(LeftOuter).Select(Right("name")).Execute(ctx)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(left.Rows), len(inner.Rows))
	nulls := 0
	for _, row := range left.Rows {
		if row[0].IsNull() {
			nulls++
		}
	}
	assert.Equal(t, len(left.Rows)-len(inner.Rows), nulls)
}

func TestPropertyJoin(t *testing.T) {
	res, err := New(peopleAndCities(), "person", "city").
		OnProperty("city", "name").
		Select(Left("name"), Right("name")).
		Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"left.name", "right.name"}, res.Columns)
	assert.Equal(t, [][]value.Value{
		{value.String("Alice"), value.String("Paris")},
		{value.String("Bob"), value.String("Berlin")},
	}, res.Rows)
}

func TestNullJoinKeysNeverMatch(t *testing.T) {
	g := newMemGraph()
	g.node("a", "l", value.Properties{"k": value.Null()})
	g.node("b", "l", value.Properties{})
	g.node("x", "r", value.Properties{"k": value.Null()})
	g.node("y", "r", value.Properties{})

	res, err := New(g, "l", "r").OnProperty("k", "k").Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestPropertyJoinKeepsVariantsApart(t *testing.T) {
	g := newMemGraph()
	g.node("a", "l", value.Properties{"k": value.Int(1)})
	g.node("x", "r", value.Properties{"k": value.Float(1)})
	g.node("y", "r", value.Properties{"k": value.Int(1)})

	res, err := New(g, "l", "r").OnProperty("k", "k").Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, column(res, 1))
}

func TestCrossJoin(t *testing.T) {
	res, err := New(peopleAndCities(), "person", "city").Kind(Cross).Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Rows, 4*3)
	assert.Equal(t, []value.Value{value.String("p1"), value.String("c1")}, res.Rows[0])
	assert.Equal(t, []value.Value{value.String("p4"), value.String("c3")}, res.Rows[11])
}

func TestMissingConditionAndUnknownLabel(t *testing.T) {
	ctx := context.Background()
	_, err := New(peopleAndCities(), "person", "city").Execute(ctx)
	assert.ErrorIs(t, err, ErrNoCondition)

	res, err := New(peopleAndCities(), "person", "planet").Kind(LeftOuter).OnEdge("lives_in").Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"null", "null", "null", "null"}, column(res, 1))

	res, err = New(peopleAndCities(), "robot", "city").Kind(FullOuter).OnEdge("lives_in").Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"null", "null", "null"}, column(res, 0))
}

func TestPredicates(t *testing.T) {
	ctx := context.Background()
	leftIDs := func(ps ...Predicate) ([]string, int) {
		res, err := livesIn(LeftOuter).Where(ps...).Execute(ctx)
		require.NoError(t, err)
		return column(res, 0), res.Skipped
	}

	ids, skipped := leftIDs(GreaterThan(Left("age"), value.Int(26)))
	assert.Equal(t, []string{"p1", "p3"}, ids)
	assert.Equal(t, 1, skipped, "Dave's age is a string")

	ids, _ = leftIDs(LessThan(Left("age"), value.Int(30)))
	assert.Equal(t, []string{"p2"}, ids)

	ids, _ = leftIDs(IsNull(RightID()))
	assert.Equal(t, []string{"p3", "p4"}, ids)

	ids, _ = leftIDs(NotNull(RightID()))
	assert.Equal(t, []string{"p1", "p2"}, ids)

	ids, _ = leftIDs(Or(Equals(Left("name"), value.String("Alice")), Equals(Left("name"), value.String("Dave"))))
	assert.Equal(t, []string{"p1", "p4"}, ids)

	ids, _ = leftIDs(Not(Equals(Left("name"), value.String("Alice"))), NotEquals(Left("name"), value.String("Bob")))
	assert.Equal(t, []string{"p3", "p4"}, ids)

	ids, _ = leftIDs(And(NotNull(Right("name")), Contains(Right("name"), "ar")))
	assert.Equal(t, []string{"p1"}, ids)

	ids, skipped = leftIDs(Contains(Left("age"), "3"))
	assert.Empty(t, ids)
	assert.Equal(t, 3, skipped, "integer ages are not strings")
}

func TestPredicatesAreComparableValues(t *testing.T) {
	build := func() []Predicate {
		return []Predicate{
			Equals(Left("name"), value.String("Alice")),
			NotEquals(Left("name"), value.String("Alice")),
			GreaterThan(Left("age"), value.Int(30)),
			LessThan(Left("age"), value.Int(30)),
			Contains(Right("name"), "ar"),
			IsNull(RightID()),
			NotNull(RightID()),
		}
	}
	a, b := build(), build()
	for i := range a {
		assert.True(t, a[i] == b[i], "predicate %d built twice compares equal", i)
		for j := range a {
			if i != j {
				assert.False(t, a[i] == a[j], "predicates %d and %d differ", i, j)
			}
		}
	}
	assert.Equal(t, Equals(Left("x"), value.Int(1)), Equals(Left("x"), value.Int(1)))
	assert.NotEqual(t, Equals(Left("x"), value.Int(1)), Equals(Left("x"), value.Float(1)))
}

func TestPredicatesShortCircuit(t *testing.T) {
	calls := 0
	count := PredicateFunc(func(Row) (bool, error) {
		calls++
		return true, nil
	})
	_, err := livesIn(LeftOuter).
		Where(Equals(Left("name"), value.String("Alice")), count).
		Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPredicateFailureAbortsJoin(t *testing.T) {
	boom := errors.New("boom")
	_, err := livesIn(Inner).
		Where(PredicateFunc(func(Row) (bool, error) { return false, boom })).
		Execute(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestOrderingAndPagination(t *testing.T) {
	ctx := context.Background()

	res, err := livesIn(LeftOuter).OrderBy(Right("name"), true).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1", "p3", "p4"}, column(res, 0))

	res, err = livesIn(LeftOuter).OrderBy(Right("name"), false).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, column(res, 0), "nulls last, ties stable")

	res, err = livesIn(LeftOuter).OrderBy(Right("name"), true).Offset(1).Limit(2).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p3"}, column(res, 0))

	res, err = livesIn(LeftOuter).Offset(9).Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)

	_, err = livesIn(LeftOuter).Offset(-1).Execute(ctx)
	assert.Error(t, err)
}

func TestRowGet(t *testing.T) {
	r := Row{Left: &storage.Node{ID: "a", Properties: value.Properties{"x": value.Int(1)}}}
	assert.Equal(t, value.String("a"), r.Get(LeftID()))
	assert.Equal(t, value.Int(1), r.Get(Left("x")))
	assert.True(t, r.Get(Left("missing")).IsNull())
	assert.True(t, r.Get(RightID()).IsNull())
	assert.True(t, r.Get("bogus").IsNull())
	assert.True(t, r.Get("middle.x").IsNull())
}
