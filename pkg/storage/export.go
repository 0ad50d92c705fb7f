package storage

import (
	"fmt"

	"github.com/orneryd/graphcore/pkg/value"
)

// Neo4jExport represents the Neo4j JSON export format.
// This is compatible with `apoc.export.json` style dumps.
type Neo4jExport struct {
	Nodes         []Neo4jNode         `json:"nodes"`
	Relationships []Neo4jRelationship `json:"relationships"`
}

// Neo4jNode is the Neo4j JSON export format for nodes.
type Neo4jNode struct {
	ID         string           `json:"id"`
	Labels     []string         `json:"labels"`
	Properties value.Properties `json:"properties"`
}

// Neo4jNodeRef is a reference to a node in Neo4j relationship format.
type Neo4jNodeRef struct {
	ID     string   `json:"id"`
	Labels []string `json:"labels,omitempty"`
}

// Neo4jRelationship is the Neo4j JSON export format for relationships.
// Supports both flat format (startNode/endNode strings) and APOC format (start/end objects).
type Neo4jRelationship struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Properties value.Properties `json:"properties"`

	// Flat format (neo4j-admin dump)
	StartNode string `json:"startNode,omitempty"`
	EndNode   string `json:"endNode,omitempty"`

	// APOC format (apoc.export.json)
	Start Neo4jNodeRef `json:"start,omitempty"`
	End   Neo4jNodeRef `json:"end,omitempty"`
}

// GetStartID returns the start node ID supporting both Neo4j export formats.
func (r *Neo4jRelationship) GetStartID() string {
	if r.Start.ID != "" {
		return r.Start.ID
	}
	return r.StartNode
}

// GetEndID returns the end node ID regardless of format.
func (r *Neo4jRelationship) GetEndID() string {
	if r.End.ID != "" {
		return r.End.ID
	}
	return r.EndNode
}

// ToNeo4jExport converts nodes and edges to the Neo4j JSON export format.
//
// Nodes carry exactly one label, exported as a single element label list.
// Relationships are written in the flat format.
//
// Example:
//
//	export := storage.ToNeo4jExport(nodes, edges)
//	data, _ := json.MarshalIndent(export, "", "  ")
//	os.WriteFile("graph.json", data, 0644)
//
// JSON has a single number type, so a Float with an integral value (3.0) is
// read back as an Int.
func ToNeo4jExport(nodes []*Node, edges []*Edge) *Neo4jExport {
	export := &Neo4jExport{
		Nodes:         make([]Neo4jNode, len(nodes)),
		Relationships: make([]Neo4jRelationship, len(edges)),
	}

	for i, n := range nodes {
		var labels []string
		if n.Label != "" {
			labels = []string{n.Label}
		}
		export.Nodes[i] = Neo4jNode{
			ID:         string(n.ID),
			Labels:     labels,
			Properties: n.Properties.Clone(),
		}
	}

	for i, e := range edges {
		export.Relationships[i] = Neo4jRelationship{
			ID:         string(e.ID),
			Type:       e.Label,
			Properties: e.Properties.Clone(),
			StartNode:  string(e.Source),
			EndNode:    string(e.Target),
		}
	}

	return export
}

// FromNeo4jNode converts an exported node back into a Node. Only the first
// label is kept.
func FromNeo4jNode(n Neo4jNode) (*Node, error) {
	if n.ID == "" {
		return nil, fmt.Errorf("%w: exported node without id", ErrInvalidID)
	}
	label := ""
	if len(n.Labels) > 0 {
		label = n.Labels[0]
	}
	return &Node{
		ID:         NodeID(n.ID),
		Label:      label,
		Properties: n.Properties.Clone(),
	}, nil
}

// FromNeo4jRelationship converts an exported relationship back into an Edge.
func FromNeo4jRelationship(r Neo4jRelationship) (*Edge, error) {
	start, end := r.GetStartID(), r.GetEndID()
	if r.ID == "" || start == "" || end == "" {
		return nil, fmt.Errorf("%w: relationship %q missing id or endpoint", ErrInvalidID, r.ID)
	}
	return &Edge{
		ID:         EdgeID(r.ID),
		Source:     NodeID(start),
		Target:     NodeID(end),
		Label:      r.Type,
		Properties: r.Properties.Clone(),
	}, nil
}
