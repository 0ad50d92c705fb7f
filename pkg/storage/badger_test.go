package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphcore/pkg/value"
)

func newTestEngine(t *testing.T) *BadgerEngine {
	t.Helper()
	engine, err := NewBadgerEngine(BadgerOptions{InMemory: true, Compress: true})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func mustNode(t *testing.T, b *BadgerEngine, id NodeID, label string, props value.Properties) {
	t.Helper()
	require.NoError(t, b.CreateNode(&Node{ID: id, Label: label, Properties: props}))
}

func mustEdge(t *testing.T, b *BadgerEngine, id EdgeID, src, dst NodeID, label string) {
	t.Helper()
	require.NoError(t, b.CreateEdge(&Edge{ID: id, Source: src, Target: dst, Label: label}))
}

func TestNewBadgerEngine_RequiresDir(t *testing.T) {
	_, err := NewBadgerEngine(BadgerOptions{})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestBadgerEngine_NodeCRUD(t *testing.T) {
	b := newTestEngine(t)

	mustNode(t, b, "n1", "person", value.Properties{"name": value.String("Alice")})

	t.Run("get", func(t *testing.T) {
		n, err := b.GetNode("n1")
		require.NoError(t, err)
		assert.Equal(t, "person", n.Label)
		assert.Equal(t, value.String("Alice"), n.Properties["name"])
	})

	t.Run("duplicate id", func(t *testing.T) {
		err := b.CreateNode(&Node{ID: "n1", Label: "person"})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("update keeps label", func(t *testing.T) {
		prev, err := b.UpdateNode(&Node{ID: "n1", Label: "other", Properties: value.Properties{"name": value.String("Alicia")}})
		require.NoError(t, err)
		assert.Equal(t, value.String("Alice"), prev.Properties["name"])

		n, err := b.GetNode("n1")
		require.NoError(t, err)
		assert.Equal(t, "person", n.Label)
		assert.Equal(t, value.String("Alicia"), n.Properties["name"])
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := b.GetNode("missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = b.UpdateNode(&Node{ID: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)
		_, _, err = b.DeleteNode("missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid id", func(t *testing.T) {
		assert.ErrorIs(t, b.CreateNode(&Node{}), ErrInvalidID)
		_, err := b.GetNode("")
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestBadgerEngine_EdgeAdjacency(t *testing.T) {
	b := newTestEngine(t)
	mustNode(t, b, "alice", "person", nil)
	mustNode(t, b, "bob", "person", nil)
	mustEdge(t, b, "e1", "alice", "bob", "friends")

	out, err := b.OutgoingEdgeIDs("alice")
	require.NoError(t, err)
	assert.Equal(t, []EdgeID{"e1"}, out)

	in, err := b.IncomingEdgeIDs("bob")
	require.NoError(t, err)
	assert.Equal(t, []EdgeID{"e1"}, in)

	// Direction matters.
	in, err = b.IncomingEdgeIDs("alice")
	require.NoError(t, err)
	assert.Empty(t, in)
	out, err = b.OutgoingEdgeIDs("bob")
	require.NoError(t, err)
	assert.Empty(t, out)

	t.Run("dangling reference", func(t *testing.T) {
		err := b.CreateEdge(&Edge{ID: "e2", Source: "alice", Target: "ghost", Label: "friends"})
		assert.ErrorIs(t, err, ErrDanglingReference)
		_, err = b.GetNode("ghost")
		assert.ErrorIs(t, err, ErrNotFound, "endpoint must not be created implicitly")
		_, err = b.GetEdge("e2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update edge keeps endpoints", func(t *testing.T) {
		_, err := b.UpdateEdge(&Edge{ID: "e1", Source: "bob", Target: "bob", Properties: value.Properties{"since": value.Int(2020)}})
		require.NoError(t, err)
		e, err := b.GetEdge("e1")
		require.NoError(t, err)
		assert.Equal(t, NodeID("alice"), e.Source)
		assert.Equal(t, NodeID("bob"), e.Target)
		assert.Equal(t, value.Int(2020), e.Properties["since"])
	})

	t.Run("delete edge", func(t *testing.T) {
		mustEdge(t, b, "e3", "bob", "alice", "likes")
		deleted, err := b.DeleteEdge("e3")
		require.NoError(t, err)
		assert.Equal(t, "likes", deleted.Label)

		out, err := b.OutgoingEdgeIDs("bob")
		require.NoError(t, err)
		assert.Empty(t, out)
		in, err := b.IncomingEdgeIDs("alice")
		require.NoError(t, err)
		assert.Empty(t, in)

		_, err = b.DeleteEdge("e3")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBadgerEngine_DeleteNodeRemovesIncidentEdges(t *testing.T) {
	b := newTestEngine(t)
	mustNode(t, b, "a", "person", nil)
	mustNode(t, b, "b", "person", nil)
	mustNode(t, b, "c", "person", nil)
	mustEdge(t, b, "ab", "a", "b", "knows")
	mustEdge(t, b, "cb", "c", "b", "knows")
	mustEdge(t, b, "bb", "b", "b", "self")
	mustEdge(t, b, "ac", "a", "c", "knows")

	node, edges, err := b.DeleteNode("b")
	require.NoError(t, err)
	assert.Equal(t, NodeID("b"), node.ID)
	assert.Len(t, edges, 3)

	for _, id := range []EdgeID{"ab", "cb", "bb"} {
		_, err := b.GetEdge(id)
		assert.ErrorIs(t, err, ErrNotFound, "edge %s", id)
	}
	_, err = b.GetEdge("ac")
	assert.NoError(t, err)

	out, err := b.OutgoingEdgeIDs("a")
	require.NoError(t, err)
	assert.Equal(t, []EdgeID{"ac"}, out)
	out, err = b.OutgoingEdgeIDs("c")
	require.NoError(t, err)
	assert.Empty(t, out)

	problems, err := b.VerifyAdjacency(context.Background())
	require.NoError(t, err)
	assert.Empty(t, problems)

	edgeCount, err := b.EdgeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), edgeCount)
	nodeCount, err := b.NodeCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), nodeCount)
}

func TestBadgerEngine_AdjacencyIntegrity(t *testing.T) {
	b := newTestEngine(t)
	mustNode(t, b, "a", "person", nil)
	mustNode(t, b, "b", "person", nil)
	mustEdge(t, b, "ab", "a", "b", "knows")

	// Plant an adjacency key for an edge that does not exist.
	require.NoError(t, b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(adjacencyKey(prefixOutgoing, "a", "ghost"), []byte{})
	}))

	problems, err := b.VerifyAdjacency(context.Background())
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "adjacency", problems[0].Structure)

	// Deleting the node surfaces the divergence instead of ignoring it.
	_, _, err = b.DeleteNode("a")
	assert.ErrorIs(t, err, ErrStorageIntegrity)
	_, err = b.GetNode("a")
	assert.NoError(t, err, "failed delete must not be partially applied")

	n, err := b.RebuildAdjacency(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	problems, err = b.VerifyAdjacency(context.Background())
	require.NoError(t, err)
	assert.Empty(t, problems)

	out, err := b.OutgoingEdgeIDs("a")
	require.NoError(t, err)
	assert.Equal(t, []EdgeID{"ab"}, out)
}

func TestBadgerEngine_CorruptRecord(t *testing.T) {
	b := newTestEngine(t)
	require.NoError(t, b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeKey("bad"), []byte("not a record at all, definitely longer than a checksum"))
	}))

	_, err := b.GetNode("bad")
	require.Error(t, err)
	var ie *IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "bad", ie.EntityID)
}

func TestBadgerEngine_StreamAndReads(t *testing.T) {
	b := newTestEngine(t)
	for _, id := range []NodeID{"n3", "n1", "n2"} {
		mustNode(t, b, id, "item", nil)
	}

	var seen []NodeID
	require.NoError(t, b.StreamNodes(context.Background(), func(n *Node) error {
		seen = append(seen, n.ID)
		return nil
	}))
	assert.Equal(t, []NodeID{"n1", "n2", "n3"}, seen)

	seen = nil
	require.NoError(t, b.StreamNodes(context.Background(), func(n *Node) error {
		seen = append(seen, n.ID)
		return ErrIterationStopped
	}))
	assert.Len(t, seen, 1)

	before := b.Reads()
	_, err := b.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, before+1, b.Reads())
}

func TestBadgerEngine_CleanShutdownMarker(t *testing.T) {
	dir := t.TempDir()

	b, err := NewBadgerEngine(BadgerOptions{DataDir: dir})
	require.NoError(t, err)
	clean, err := b.MarkInUse()
	require.NoError(t, err)
	assert.True(t, clean, "empty store is clean")
	mustNode(t, b, "n1", "item", nil)
	require.NoError(t, b.Close())

	b, err = NewBadgerEngine(BadgerOptions{DataDir: dir})
	require.NoError(t, err)
	clean, err = b.MarkInUse()
	require.NoError(t, err)
	assert.True(t, clean)

	// Marker stays cleared until Close, so a second check reports unclean,
	// which is what a crashed session looks like to the next open.
	clean, err = b.MarkInUse()
	require.NoError(t, err)
	assert.False(t, clean)

	n, err := b.GetNode("n1")
	require.NoError(t, err)
	assert.Equal(t, "item", n.Label)
	require.NoError(t, b.Close())

	_, err = b.GetNode("n1")
	assert.ErrorIs(t, err, ErrStorageClosed)
}
