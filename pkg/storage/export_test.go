package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphcore/pkg/value"
)

func TestNeo4jExportRoundTrip(t *testing.T) {
	nodes := []*Node{
		{ID: "a", Label: "person", Properties: value.Properties{"name": value.String("Alice"), "age": value.Int(30)}},
		{ID: "b", Label: "person", Properties: value.Properties{"name": value.String("Bob")}},
	}
	edges := []*Edge{{ID: "e", Source: "a", Target: "b", Label: "friends", Properties: value.Properties{"w": value.Float(0.5)}}}

	data, err := json.Marshal(ToNeo4jExport(nodes, edges))
	require.NoError(t, err)

	var export Neo4jExport
	require.NoError(t, json.Unmarshal(data, &export))
	require.Len(t, export.Nodes, 2)
	require.Len(t, export.Relationships, 1)

	n, err := FromNeo4jNode(export.Nodes[0])
	require.NoError(t, err)
	assert.Equal(t, nodes[0], n)

	e, err := FromNeo4jRelationship(export.Relationships[0])
	require.NoError(t, err)
	assert.Equal(t, edges[0], e)
}

func TestNeo4jRelationship_APOCFormat(t *testing.T) {
	raw := `{"id":"r1","type":"KNOWS","properties":{},"start":{"id":"x"},"end":{"id":"y"}}`
	var rel Neo4jRelationship
	require.NoError(t, json.Unmarshal([]byte(raw), &rel))

	e, err := FromNeo4jRelationship(rel)
	require.NoError(t, err)
	assert.Equal(t, NodeID("x"), e.Source)
	assert.Equal(t, NodeID("y"), e.Target)

	_, err = FromNeo4jRelationship(Neo4jRelationship{ID: "r2"})
	assert.ErrorIs(t, err, ErrInvalidID)
}
