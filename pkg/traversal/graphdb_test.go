package traversal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphcore/pkg/config"
	"github.com/orneryd/graphcore/pkg/graphdb"
	"github.com/orneryd/graphcore/pkg/logging"
	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/traversal"
	"github.com/orneryd/graphcore/pkg/value"
)

func TestTraversalOverDB(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InMemory = true
	db, err := graphdb.Open(cfg, logging.Discard())
	require.NoError(t, err)
	defer db.Close()

	a, err := db.CreateNode("person", value.Properties{"name": value.String("Alice")})
	require.NoError(t, err)
	b, err := db.CreateNode("person", value.Properties{"name": value.String("Bob")})
	require.NoError(t, err)
	_, err = db.CreateEdge(a, b, "friends", nil)
	require.NoError(t, err)
	lonely, err := db.CreateNode("person", value.Properties{"name": value.String("Eve")})
	require.NoError(t, err)

	got, err := traversal.Collect(traversal.BFS(db, a, 1))
	require.NoError(t, err)
	assert.Equal(t, []storage.NodeID{a, b}, got)

	got, err = traversal.Collect(traversal.BFS(db, a, 0))
	require.NoError(t, err)
	assert.Equal(t, []storage.NodeID{a}, got)

	path, err := traversal.ShortestPath(db, a, lonely)
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = traversal.ShortestPath(db, a, b)
	require.NoError(t, err)
	assert.Equal(t, []storage.NodeID{a, b}, path)

	comps, err := traversal.ConnectedComponents(db)
	require.NoError(t, err)
	assert.Len(t, comps, 2)
}
