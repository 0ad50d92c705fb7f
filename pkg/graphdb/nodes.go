package graphdb

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/graphcore/pkg/cache"
	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/value"
)

// ============================================================================
// Node Operations
// ============================================================================

// CreateNode stores a new node and returns its generated id.
//
// Example:
//
//	id, err := db.CreateNode("person", value.Properties{
//		"name": value.String("Alice"),
//		"age":  value.Int(30),
//	})
func (db *DB) CreateNode(label string, props value.Properties) (storage.NodeID, error) {
	if err := reserve(&db.nodeCount, db.config.MaxNodes, "node"); err != nil {
		return "", err
	}

	ts := now()
	node := &storage.Node{
		ID:         storage.NodeID(newID()),
		Label:      label,
		Properties: props.Clone(),
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}

	set := db.locks.set(string(node.ID))
	db.locks.lock(set)
	defer db.locks.unlock(set)

	if err := db.store.CreateNode(node); err != nil {
		db.nodeCount.Add(-1)
		return "", err
	}
	db.nodes.Add(string(node.ID), node.Label, node.Properties)
	db.cache.Invalidate(cache.NodeKey(node.ID))

	db.log.WithFields(logrus.Fields{"action": "create_node", "id": node.ID, "label": label}).Debug("node created")
	return node.ID, nil
}

// GetNode returns the node with the given id, or (nil, nil) if there is none.
// The returned node is a copy.
func (db *DB) GetNode(id storage.NodeID) (*storage.Node, error) {
	set := db.locks.set(string(id))
	db.locks.rlock(set)
	defer db.locks.runlock(set)

	node, err := db.loadNode(id)
	if err != nil {
		return nil, db.integrity("get_node", err)
	}
	return node.Clone(), nil
}

// HasNode reports whether a node with the given id exists.
func (db *DB) HasNode(id storage.NodeID) (bool, error) {
	set := db.locks.set(string(id))
	db.locks.rlock(set)
	defer db.locks.runlock(set)

	node, err := db.loadNode(id)
	return node != nil, err
}

// loadNode reads through the cache. Caller holds at least the read lock of id.
// The result is shared with the cache and must not be modified.
func (db *DB) loadNode(id storage.NodeID) (*storage.Node, error) {
	e, err := db.cache.GetOrLoad(cache.NodeKey(id), func() (cache.Entry, error) {
		n, err := db.store.GetNode(id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return n, nil
	})
	if err != nil || e == nil {
		return nil, err
	}
	return e.(*storage.Node), nil
}

// UpdateNode merges props into the node's properties. A key set to
// value.Null() keeps the key with an explicit null marker. Returns
// storage.ErrNotFound for an unknown id.
func (db *DB) UpdateNode(id storage.NodeID, props value.Properties) error {
	return db.updateNode(id, func(old value.Properties) value.Properties {
		merged := old.Clone()
		for k, v := range props {
			merged[k] = v
		}
		return merged
	})
}

// ReplaceNodeProperties replaces the node's whole property map.
func (db *DB) ReplaceNodeProperties(id storage.NodeID, props value.Properties) error {
	return db.updateNode(id, func(value.Properties) value.Properties {
		return props.Clone()
	})
}

func (db *DB) updateNode(id storage.NodeID, next func(value.Properties) value.Properties) error {
	set := db.locks.set(string(id))
	db.locks.lock(set)
	defer db.locks.unlock(set)

	current, err := db.store.GetNode(id)
	if err != nil {
		return db.integrity("update_node", err)
	}

	updated := current.Clone()
	updated.Properties = next(current.Properties)
	updated.UpdatedAt = now()

	previous, err := db.store.UpdateNode(updated)
	if err != nil {
		return db.integrity("update_node", err)
	}
	db.nodes.Replace(string(id), previous.Properties, updated.Properties)
	db.cache.Invalidate(cache.NodeKey(id))

	db.log.WithFields(logrus.Fields{"action": "update_node", "id": id}).Debug("node updated")
	return nil
}

// DeleteNode deletes a node and every edge incident to it, atomically.
// Returns storage.ErrNotFound for an unknown id.
func (db *DB) DeleteNode(id storage.NodeID) error {
	// The lock set depends on the node's edges and their other endpoints,
	// which can change until we hold the node's lock. Read, lock, re-read,
	// and retry if an edge appeared in the meantime.
	for {
		ids, err := db.deleteLockIDs(id)
		if err != nil {
			return db.integrity("delete_node", err)
		}
		set := db.locks.set(ids...)
		db.locks.lock(set)

		current, err := db.deleteLockIDs(id)
		if err != nil {
			db.locks.unlock(set)
			return db.integrity("delete_node", err)
		}
		if !db.locks.covers(set, current...) {
			db.locks.unlock(set)
			continue
		}

		err = db.deleteNodeLocked(id)
		db.locks.unlock(set)
		return db.integrity("delete_node", err)
	}
}

// deleteLockIDs lists the node, its incident edges and their endpoints.
func (db *DB) deleteLockIDs(id storage.NodeID) ([]string, error) {
	if _, err := db.store.GetNode(id); err != nil {
		return nil, err
	}
	ids := []string{string(id)}
	for _, dir := range []storage.Direction{storage.DirectionOutgoing, storage.DirectionIncoming} {
		edgeIDs, err := db.adjacencyIDs(id, dir)
		if err != nil {
			return nil, err
		}
		for _, eid := range edgeIDs {
			e, err := db.store.GetEdge(eid)
			if errors.Is(err, storage.ErrNotFound) {
				// Deleted since the adjacency read, or a broken adjacency entry.
				// Either way the store delete decides.
				ids = append(ids, string(eid))
				continue
			}
			if err != nil {
				return nil, err
			}
			ids = append(ids, string(eid), string(e.Source), string(e.Target))
		}
	}
	return ids, nil
}

func (db *DB) deleteNodeLocked(id storage.NodeID) error {
	node, edges, err := db.store.DeleteNode(id)
	if err != nil {
		return err
	}

	db.nodes.Remove(string(node.ID), node.Label, node.Properties)
	for _, e := range edges {
		db.edges.Remove(string(e.ID), e.Label, e.Properties)
	}

	db.cache.Invalidate(cache.NodeKey(id))
	for _, e := range edges {
		db.cache.Invalidate(cache.EdgeKey(e.ID))
	}

	db.nodeCount.Add(-1)
	db.edgeCount.Add(-int64(len(edges)))

	db.log.WithFields(logrus.Fields{
		"action": "delete_node",
		"id":     id,
		"edges":  len(edges),
	}).Debug("node deleted")
	return nil
}

// NodeCount returns the number of nodes.
func (db *DB) NodeCount() int64 { return db.nodeCount.Load() }
