package graphdb

import (
	"github.com/orneryd/graphcore/pkg/cache"
	"github.com/orneryd/graphcore/pkg/index"
	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/value"
)

// Collection is a read view over either the nodes or the edges of a DB.
// Candidate ids come from the index; every entity is then re-read under its
// read lock, so results never include a half-applied write.
type Collection struct {
	db    *DB
	kind  cache.Kind
	index *index.Index
}

// Nodes returns the node collection.
func (db *DB) Nodes() *Collection {
	return &Collection{db: db, kind: cache.KindNode, index: db.nodes}
}

// Edges returns the edge collection.
func (db *DB) Edges() *Collection {
	return &Collection{db: db, kind: cache.KindEdge, index: db.edges}
}

// Name returns "nodes" or "edges".
func (c *Collection) Name() string { return c.index.Name() }

// Count returns the number of entities in the collection.
func (c *Collection) Count() int { return c.index.Len() }

// ByLabel returns the entities with the given label in id order. An unknown
// label yields an empty result, not an error.
func (c *Collection) ByLabel(label string) ([]storage.Entity, error) {
	return c.fetch(c.index.ByLabel(label))
}

// Lookup returns the entities whose property key compares to v under op,
// using the property index.
func (c *Collection) Lookup(key string, op index.Op, v value.Value) ([]storage.Entity, error) {
	ids, err := c.index.Lookup(key, op, v)
	if err != nil {
		return nil, err
	}
	return c.fetch(ids)
}

// All returns every entity in id order.
func (c *Collection) All() ([]storage.Entity, error) {
	return c.fetch(c.index.IDs())
}

// fetch materializes ids. An id that vanished because a concurrent delete
// finished after the index read is skipped; an id the index still holds but
// the store lacks is an integrity error.
func (c *Collection) fetch(ids []string) ([]storage.Entity, error) {
	out := make([]storage.Entity, 0, len(ids))
	for _, id := range ids {
		e, err := c.get(id)
		if err != nil {
			return nil, c.db.integrity("fetch_"+c.Name(), err)
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *Collection) get(id string) (storage.Entity, error) {
	set := c.db.locks.set(id)
	c.db.locks.rlock(set)
	defer c.db.locks.runlock(set)

	var (
		e   storage.Entity
		err error
	)
	if c.kind == cache.KindNode {
		var n *storage.Node
		n, err = c.db.loadNode(storage.NodeID(id))
		if n != nil {
			e = n.Clone()
		}
	} else {
		var ed *storage.Edge
		ed, err = c.db.loadEdge(storage.EdgeID(id))
		if ed != nil {
			e = ed.Clone()
		}
	}
	if err != nil {
		return nil, err
	}
	if e == nil {
		if label, stillIndexed := c.index.Contains(id); stillIndexed {
			return nil, storage.NewIntegrityError(c.Name()+" label-index", id, "indexed under %q but missing from store", label)
		}
	}
	return e, nil
}

// NodesByLabel returns the nodes with the given label in id order.
func (db *DB) NodesByLabel(label string) ([]*storage.Node, error) {
	entities, err := db.Nodes().ByLabel(label)
	if err != nil {
		return nil, err
	}
	nodes := make([]*storage.Node, len(entities))
	for i, e := range entities {
		nodes[i] = e.(*storage.Node)
	}
	return nodes, nil
}

// NodeIDs returns every node id in id order.
func (db *DB) NodeIDs() []storage.NodeID {
	ids := db.nodes.IDs()
	out := make([]storage.NodeID, len(ids))
	for i, id := range ids {
		out[i] = storage.NodeID(id)
	}
	return out
}

// AllEdges returns every edge in id order.
func (db *DB) AllEdges() ([]*storage.Edge, error) {
	entities, err := db.Edges().All()
	if err != nil {
		return nil, err
	}
	edges := make([]*storage.Edge, len(entities))
	for i, e := range entities {
		edges[i] = e.(*storage.Edge)
	}
	return edges, nil
}

// AllNodes returns every node in id order.
func (db *DB) AllNodes() ([]*storage.Node, error) {
	entities, err := db.Nodes().All()
	if err != nil {
		return nil, err
	}
	nodes := make([]*storage.Node, len(entities))
	for i, e := range entities {
		nodes[i] = e.(*storage.Node)
	}
	return nodes, nil
}
