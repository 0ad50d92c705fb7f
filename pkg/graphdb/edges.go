package graphdb

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/graphcore/pkg/cache"
	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/value"
)

// ============================================================================
// Edge Operations
// ============================================================================

// CreateEdge stores a directed edge from source to target and returns its
// generated id. Fails with storage.ErrDanglingReference if either endpoint
// does not exist.
//
// Example:
//
//	id, err := db.CreateEdge(alice, bob, "friends", value.Properties{
//		"since": value.Int(2019),
//	})
func (db *DB) CreateEdge(source, target storage.NodeID, label string, props value.Properties) (storage.EdgeID, error) {
	if err := reserve(&db.edgeCount, db.config.MaxEdges, "edge"); err != nil {
		return "", err
	}

	ts := now()
	edge := &storage.Edge{
		ID:         storage.EdgeID(newID()),
		Source:     source,
		Target:     target,
		Label:      label,
		Properties: props.Clone(),
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}

	set := db.locks.set(string(edge.ID), string(source), string(target))
	db.locks.lock(set)
	defer db.locks.unlock(set)

	if err := db.store.CreateEdge(edge); err != nil {
		db.edgeCount.Add(-1)
		return "", err
	}
	db.edges.Add(string(edge.ID), edge.Label, edge.Properties)
	db.cache.Invalidate(cache.EdgeKey(edge.ID))

	db.log.WithFields(logrus.Fields{
		"action": "create_edge",
		"id":     edge.ID,
		"label":  label,
		"source": source,
		"target": target,
	}).Debug("edge created")
	return edge.ID, nil
}

// GetEdge returns the edge with the given id, or (nil, nil) if there is none.
func (db *DB) GetEdge(id storage.EdgeID) (*storage.Edge, error) {
	set := db.locks.set(string(id))
	db.locks.rlock(set)
	defer db.locks.runlock(set)

	edge, err := db.loadEdge(id)
	if err != nil {
		return nil, db.integrity("get_edge", err)
	}
	return edge.Clone(), nil
}

// loadEdge reads through the cache. Caller holds at least the read lock of id.
func (db *DB) loadEdge(id storage.EdgeID) (*storage.Edge, error) {
	e, err := db.cache.GetOrLoad(cache.EdgeKey(id), func() (cache.Entry, error) {
		edge, err := db.store.GetEdge(id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return edge, nil
	})
	if err != nil || e == nil {
		return nil, err
	}
	return e.(*storage.Edge), nil
}

// UpdateEdge merges props into the edge's properties.
func (db *DB) UpdateEdge(id storage.EdgeID, props value.Properties) error {
	return db.updateEdge(id, func(old value.Properties) value.Properties {
		merged := old.Clone()
		for k, v := range props {
			merged[k] = v
		}
		return merged
	})
}

// ReplaceEdgeProperties replaces the edge's whole property map.
func (db *DB) ReplaceEdgeProperties(id storage.EdgeID, props value.Properties) error {
	return db.updateEdge(id, func(value.Properties) value.Properties {
		return props.Clone()
	})
}

func (db *DB) updateEdge(id storage.EdgeID, next func(value.Properties) value.Properties) error {
	set := db.locks.set(string(id))
	db.locks.lock(set)
	defer db.locks.unlock(set)

	current, err := db.store.GetEdge(id)
	if err != nil {
		return db.integrity("update_edge", err)
	}

	updated := current.Clone()
	updated.Properties = next(current.Properties)
	updated.UpdatedAt = now()

	previous, err := db.store.UpdateEdge(updated)
	if err != nil {
		return db.integrity("update_edge", err)
	}
	db.edges.Replace(string(id), previous.Properties, updated.Properties)
	db.cache.Invalidate(cache.EdgeKey(id))

	db.log.WithFields(logrus.Fields{"action": "update_edge", "id": id}).Debug("edge updated")
	return nil
}

// DeleteEdge deletes an edge and removes it from both adjacency sets.
// Returns storage.ErrNotFound for an unknown id.
func (db *DB) DeleteEdge(id storage.EdgeID) error {
	// Endpoints are immutable, so reading them before locking is safe.
	edge, err := db.store.GetEdge(id)
	if err != nil {
		return db.integrity("delete_edge", err)
	}

	set := db.locks.set(string(id), string(edge.Source), string(edge.Target))
	db.locks.lock(set)
	defer db.locks.unlock(set)

	deleted, err := db.store.DeleteEdge(id)
	if err != nil {
		return db.integrity("delete_edge", err)
	}
	db.edges.Remove(string(deleted.ID), deleted.Label, deleted.Properties)
	db.cache.Invalidate(cache.EdgeKey(id))
	db.edgeCount.Add(-1)

	db.log.WithFields(logrus.Fields{"action": "delete_edge", "id": id}).Debug("edge deleted")
	return nil
}

// EdgeCount returns the number of edges.
func (db *DB) EdgeCount() int64 { return db.edgeCount.Load() }

// ============================================================================
// Adjacency
// ============================================================================

// adjacencyIDs reads edge ids from the store. For DirectionBoth outgoing ids
// come first and a self-loop is listed once.
func (db *DB) adjacencyIDs(id storage.NodeID, dir storage.Direction) ([]storage.EdgeID, error) {
	switch dir {
	case storage.DirectionOutgoing:
		return db.store.OutgoingEdgeIDs(id)
	case storage.DirectionIncoming:
		return db.store.IncomingEdgeIDs(id)
	}

	out, err := db.store.OutgoingEdgeIDs(id)
	if err != nil {
		return nil, err
	}
	in, err := db.store.IncomingEdgeIDs(id)
	if err != nil {
		return nil, err
	}
	seen := make(map[storage.EdgeID]struct{}, len(out))
	for _, e := range out {
		seen[e] = struct{}{}
	}
	for _, e := range in {
		if _, dup := seen[e]; !dup {
			out = append(out, e)
		}
	}
	return out, nil
}

// IncidentEdges returns the edges incident to id in the given direction, ordered by
// edge id within each adjacency set. An unknown node has no edges.
func (db *DB) IncidentEdges(id storage.NodeID, dir storage.Direction) ([]*storage.Edge, error) {
	for {
		ids, err := db.adjacencyIDs(id, dir)
		if err != nil {
			return nil, err
		}
		set := db.locks.set(append([]string{string(id)}, edgeIDStrings(ids)...)...)
		db.locks.rlock(set)

		current, err := db.adjacencyIDs(id, dir)
		if err != nil {
			db.locks.runlock(set)
			return nil, err
		}
		if !db.locks.covers(set, edgeIDStrings(current)...) {
			db.locks.runlock(set)
			continue
		}

		edges := make([]*storage.Edge, 0, len(current))
		for _, eid := range current {
			e, err := db.loadEdge(eid)
			if err == nil && e == nil {
				err = storage.NewIntegrityError("adjacency", string(id), "references missing edge %s", eid)
			}
			if err != nil {
				db.locks.runlock(set)
				return nil, db.integrity("incident_edges", err)
			}
			edges = append(edges, e.Clone())
		}
		db.locks.runlock(set)
		return edges, nil
	}
}

// OutgoingEdges returns the edges whose source is id.
func (db *DB) OutgoingEdges(id storage.NodeID) ([]*storage.Edge, error) {
	return db.IncidentEdges(id, storage.DirectionOutgoing)
}

// IncomingEdges returns the edges whose target is id.
func (db *DB) IncomingEdges(id storage.NodeID) ([]*storage.Edge, error) {
	return db.IncidentEdges(id, storage.DirectionIncoming)
}

// Neighbors returns the distinct nodes adjacent to id in the given direction,
// in edge order. A self-loop makes a node its own neighbor.
//
// Example:
//
//	// alice -> bob, carol -> alice
//	db.Neighbors(alice, storage.DirectionOutgoing) // [bob]
//	db.Neighbors(alice, storage.DirectionIncoming) // [carol]
//	db.Neighbors(alice, storage.DirectionBoth)     // [bob carol]
func (db *DB) Neighbors(id storage.NodeID, dir storage.Direction) ([]storage.NodeID, error) {
	edges, err := db.IncidentEdges(id, dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[storage.NodeID]struct{}, len(edges))
	neighbors := make([]storage.NodeID, 0, len(edges))
	for _, e := range edges {
		var n storage.NodeID
		switch dir {
		case storage.DirectionOutgoing:
			n = e.Target
		case storage.DirectionIncoming:
			n = e.Source
		default:
			n = e.Other(id)
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		neighbors = append(neighbors, n)
	}
	return neighbors, nil
}

// OutDegree returns the number of edges leaving id.
func (db *DB) OutDegree(id storage.NodeID) (int, error) {
	return db.degree(id, storage.DirectionOutgoing)
}

// InDegree returns the number of edges arriving at id.
func (db *DB) InDegree(id storage.NodeID) (int, error) {
	return db.degree(id, storage.DirectionIncoming)
}

func (db *DB) degree(id storage.NodeID, dir storage.Direction) (int, error) {
	set := db.locks.set(string(id))
	db.locks.rlock(set)
	defer db.locks.runlock(set)

	ids, err := db.adjacencyIDs(id, dir)
	return len(ids), err
}

func edgeIDStrings(ids []storage.EdgeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
