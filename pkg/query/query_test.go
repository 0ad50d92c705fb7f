package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphcore/pkg/index"
	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/value"
)

// memCollection serves entities from a map through a real index.
type memCollection struct {
	ix   *index.Index
	byID map[string]storage.Entity
}

func newMemCollection(nodes ...*storage.Node) *memCollection {
	m := &memCollection{ix: index.New("nodes"), byID: map[string]storage.Entity{}}
	for _, n := range nodes {
		m.ix.Add(string(n.ID), n.Label, n.Properties)
		m.byID[string(n.ID)] = n
	}
	return m
}

func (m *memCollection) fetch(ids []string) []storage.Entity {
	out := make([]storage.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.byID[id])
	}
	return out
}

func (m *memCollection) ByLabel(label string) ([]storage.Entity, error) {
	return m.fetch(m.ix.ByLabel(label)), nil
}

func (m *memCollection) Lookup(key string, op index.Op, v value.Value) ([]storage.Entity, error) {
	ids, err := m.ix.Lookup(key, op, v)
	return m.fetch(ids), err
}

func (m *memCollection) All() ([]storage.Entity, error) {
	return m.fetch(m.ix.IDs()), nil
}

func person(id, name string, age value.Value) *storage.Node {
	props := value.Properties{"name": value.String(name)}
	if !age.IsNull() {
		props["age"] = age
	}
	return &storage.Node{ID: storage.NodeID(id), Label: "person", Properties: props}
}

func fixture() *memCollection {
	return newMemCollection(
		person("p1", "Alice", value.Int(30)),
		person("p2", "Bob", value.Int(25)),
		person("p3", "Carol", value.Int(35)),
		person("p4", "Dave", value.Null()),
		person("p5", "Anna", value.String("thirty")),
		&storage.Node{ID: "c1", Label: "company", Properties: value.Properties{"name": value.String("Acme")}},
	)
}

func ids(res *Result) []string {
	out := make([]string, len(res.Entities))
	for i, e := range res.Entities {
		out[i] = e.EntityID()
	}
	return out
}

func TestLabelOnly(t *testing.T) {
	res, err := New(fixture()).Label("person").Execute()
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p5"}, ids(res))
	assert.Equal(t, "label-index(person)", res.Plan)

	res, err = New(fixture()).Label("nothing").Execute()
	require.NoError(t, err)
	assert.Empty(t, res.Entities)
}

func TestFullScan(t *testing.T) {
	res, err := New(fixture()).Where("name", StartsWith, value.String("A")).Execute()
	require.NoError(t, err)
	assert.Equal(t, "full-scan", res.Plan)
	assert.Equal(t, []string{"c1", "p1", "p5"}, ids(res))
}

func TestPropertyIndexPlan(t *testing.T) {
	res, err := New(fixture()).
		Label("person").
		Where("age", Gt, value.Int(26)).
		Execute()
	require.NoError(t, err)
	assert.Equal(t, "property-index(age > 26)", res.Plan)
	assert.Equal(t, []string{"p1", "p3"}, ids(res))
}

func TestInvalidPropertyRowsAreSkipped(t *testing.T) {
	res, err := New(fixture()).
		Label("person").
		Where("age", Contains, value.String("ir")).
		Execute()
	require.NoError(t, err)
	assert.Equal(t, "label-index(person)", res.Plan)
	assert.Equal(t, []string{"p5"}, ids(res))
	// Three integer ages cannot be searched as strings; Dave has no age.
	assert.Equal(t, 3, res.Skipped)
}

func TestIndexPathOnlySeesMatchingVariant(t *testing.T) {
	res, err := New(fixture()).
		Where("name", Contains, value.String("o")).
		Where("age", Lt, value.Int(100)).
		Execute()
	require.NoError(t, err)
	assert.Equal(t, "property-index(age < 100)", res.Plan)
	// Anna's string age is never a candidate, so nothing is skipped.
	assert.Equal(t, []string{"p2", "p3"}, ids(res))
	assert.Equal(t, 0, res.Skipped)
}

func TestMissingPropertyIsFalse(t *testing.T) {
	res, err := New(fixture()).Label("person").Where("height", Ne, value.Int(1)).Execute()
	require.NoError(t, err)
	assert.Empty(t, res.Entities)
	assert.Equal(t, 0, res.Skipped)
}

func TestOrderNullsLast(t *testing.T) {
	for _, asc := range []bool{true, false} {
		res, err := New(fixture()).
			Label("person").
			Where("name", Ne, value.String("Anna")).
			OrderBy("age", asc).
			Execute()
		require.NoError(t, err)
		if asc {
			assert.Equal(t, []string{"p2", "p1", "p3", "p4"}, ids(res))
		} else {
			assert.Equal(t, []string{"p3", "p1", "p2", "p4"}, ids(res))
		}
	}
}

func TestOffsetLimit(t *testing.T) {
	base := func() *Query { return New(fixture()).Label("person").OrderBy("name", true) }

	res, err := base().Limit(2).Execute()
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p5"}, ids(res))

	res, err = base().Offset(2).Limit(2).Execute()
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p3"}, ids(res))

	res, err = base().Offset(10).Execute()
	require.NoError(t, err)
	assert.Empty(t, res.Entities)

	res, err = base().Limit(0).Execute()
	require.NoError(t, err)
	assert.Empty(t, res.Entities)

	_, err = base().Offset(-1).Execute()
	assert.Error(t, err)
}

func TestPredicateMatch(t *testing.T) {
	n := &storage.Node{ID: "x", Properties: value.Properties{
		"s":    value.String("hello"),
		"i":    value.Int(5),
		"f":    value.Float(5),
		"null": value.Null(),
	}}

	tests := []struct {
		p       Predicate
		want    bool
		invalid bool
	}{
		{Predicate{"s", Eq, value.String("hello")}, true, false},
		{Predicate{"i", Eq, value.Float(5)}, false, false},
		{Predicate{"i", Ne, value.Float(5)}, true, false},
		{Predicate{"i", Gte, value.Int(5)}, true, false},
		{Predicate{"f", Lt, value.Float(5.5)}, true, false},
		{Predicate{"i", Gt, value.Float(1)}, false, true},
		{Predicate{"s", Contains, value.String("ell")}, true, false},
		{Predicate{"s", StartsWith, value.String("he")}, true, false},
		{Predicate{"i", Contains, value.String("5")}, false, true},
		{Predicate{"null", Eq, value.Null()}, true, false},
		{Predicate{"null", Gt, value.Int(0)}, false, false},
		{Predicate{"missing", Eq, value.Null()}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.p.String(), func(t *testing.T) {
			got, err := tt.p.Match(n)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.invalid, IsInvalidProperty(err))
		})
	}
}
