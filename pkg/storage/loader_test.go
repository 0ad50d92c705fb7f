package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphcore/pkg/value"
)

func TestReadNeo4jExportDirectory(t *testing.T) {
	dir := t.TempDir()
	nodes := `{"id":"0","labels":["Person"],"properties":{"name":"Alice","age":30}}

{"id":"1","labels":["Person"],"properties":{"name":"Bob","age":25}}
`
	rels := `{"id":"0","type":"KNOWS","startNode":"0","endNode":"1","properties":{"since":2020}}
{"id":"1","type":"LIKES","start":{"id":"1"},"end":{"id":"0"},"properties":{}}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.json"), []byte(nodes), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relationships.json"), []byte(rels), 0644))

	export, err := ReadNeo4jExport(dir)
	require.NoError(t, err)
	require.Len(t, export.Nodes, 2)
	require.Len(t, export.Relationships, 2)
	assert.Equal(t, value.Int(30), export.Nodes[0].Properties["age"])
	assert.Equal(t, "0", export.Relationships[0].GetStartID())
	assert.Equal(t, "1", export.Relationships[1].GetStartID())
	assert.Equal(t, "0", export.Relationships[1].GetEndID())
}

func TestReadNeo4jExportDirectoryWithoutRelationships(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.json"), []byte(`{"id":"a","labels":["X"]}`), 0644))

	export, err := ReadNeo4jExport(dir)
	require.NoError(t, err)
	assert.Len(t, export.Nodes, 1)
	assert.Empty(t, export.Relationships)
}

func TestReadNeo4jExportBadLine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.json"), []byte("{not json}\n"), 0644))

	_, err := ReadNeo4jExport(dir)
	assert.ErrorContains(t, err, "nodes.json")
}

func TestWriteThenReadCombinedExport(t *testing.T) {
	want := &Neo4jExport{
		Nodes: []Neo4jNode{{ID: "n1", Labels: []string{"person"}, Properties: value.Properties{"name": value.String("Alice")}}},
		Relationships: []Neo4jRelationship{
			{ID: "e1", Type: "knows", StartNode: "n1", EndNode: "n1", Properties: value.Properties{}},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteNeo4jExport(&buf, want))

	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	got, err := ReadNeo4jExport(path)
	require.NoError(t, err)
	assert.Equal(t, want.Nodes, got.Nodes)
	assert.Equal(t, "n1", got.Relationships[0].GetEndID())

	_, err = ReadNeo4jExport(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
