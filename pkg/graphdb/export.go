package graphdb

import (
	"fmt"

	"github.com/orneryd/graphcore/pkg/storage"
)

// Export dumps the whole graph in the Neo4j JSON export format.
func (db *DB) Export() (*storage.Neo4jExport, error) {
	nodes, err := db.AllNodes()
	if err != nil {
		return nil, err
	}
	edges, err := db.AllEdges()
	if err != nil {
		return nil, err
	}
	return storage.ToNeo4jExport(nodes, edges), nil
}

// ImportResult reports what Import created.
type ImportResult struct {
	Nodes int
	Edges int
	// IDs maps ids from the export to the ids assigned on import.
	IDs map[string]storage.NodeID
}

// Import loads a Neo4j JSON export. Ids are always generated, so every
// exported node gets a fresh id and relationships are remapped onto them.
// A relationship whose endpoint is not in the export fails with
// storage.ErrDanglingReference. Import is not atomic: entities created before
// a failure stay.
func (db *DB) Import(export *storage.Neo4jExport) (*ImportResult, error) {
	res := &ImportResult{IDs: make(map[string]storage.NodeID, len(export.Nodes))}

	for _, exported := range export.Nodes {
		n, err := storage.FromNeo4jNode(exported)
		if err != nil {
			return res, err
		}
		if _, dup := res.IDs[string(n.ID)]; dup {
			return res, fmt.Errorf("%w: node %s appears twice", storage.ErrAlreadyExists, n.ID)
		}
		id, err := db.CreateNode(n.Label, n.Properties)
		if err != nil {
			return res, fmt.Errorf("importing node %s: %w", n.ID, err)
		}
		res.IDs[string(n.ID)] = id
		res.Nodes++
	}

	for _, rel := range export.Relationships {
		e, err := storage.FromNeo4jRelationship(rel)
		if err != nil {
			return res, err
		}
		source, ok := res.IDs[string(e.Source)]
		if !ok {
			return res, fmt.Errorf("%w: relationship %s start %s", storage.ErrDanglingReference, e.ID, e.Source)
		}
		target, ok := res.IDs[string(e.Target)]
		if !ok {
			return res, fmt.Errorf("%w: relationship %s end %s", storage.ErrDanglingReference, e.ID, e.Target)
		}
		if _, err := db.CreateEdge(source, target, e.Label, e.Properties); err != nil {
			return res, fmt.Errorf("importing relationship %s: %w", e.ID, err)
		}
		res.Edges++
	}

	db.log.WithField("action", "import").Infof("imported %d nodes, %d edges", res.Nodes, res.Edges)
	return res, nil
}
