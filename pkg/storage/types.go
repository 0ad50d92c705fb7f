// Package storage provides the durable node/edge store for graphcore.
//
// The storage layer owns the on-disk representation of graph entities and the
// adjacency relation derived from edges. It knows nothing about caching or
// secondary indexes; those live in pkg/cache and pkg/index and are coordinated
// by pkg/graphdb.
//
// Design Principles:
//   - Every mutation runs in a single BadgerDB transaction (all-or-nothing)
//   - Adjacency is derived from edges and written in the same transaction
//   - Records carry a checksum; a mismatch is an integrity error, never repaired
//   - Identifiers are opaque strings assigned by the caller (graphdb uses UUIDs)
//
// Example Usage:
//
//	engine, err := storage.NewBadgerEngine(storage.BadgerOptions{InMemory: true})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	alice := &storage.Node{
//		ID:    "n-alice",
//		Label: "person",
//		Properties: value.Properties{
//			"name": value.String("Alice"),
//		},
//	}
//	engine.CreateNode(alice)
//
//	bob := &storage.Node{ID: "n-bob", Label: "person"}
//	engine.CreateNode(bob)
//
//	engine.CreateEdge(&storage.Edge{
//		ID:     "e-1",
//		Source: "n-alice",
//		Target: "n-bob",
//		Label:  "friends",
//	})
//
//	out, _ := engine.OutgoingEdgeIDs("n-alice") // [e-1]
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/orneryd/graphcore/pkg/value"
)

// Error taxonomy shared by every graphcore package.
var (
	// ErrNotFound is returned for an unknown identifier on update or delete.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when an identifier is reused on create.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDanglingReference is returned when an edge endpoint does not exist.
	ErrDanglingReference = errors.New("dangling reference: edge endpoint not found")
	// ErrInvalidProperty is returned when a predicate or aggregate meets an
	// incompatible value variant. It is row scoped: the row is dropped.
	ErrInvalidProperty = errors.New("invalid property")
	// ErrStorageIntegrity is returned when an index, adjacency entry or record
	// disagrees with the store. It is fatal for the operation that found it.
	ErrStorageIntegrity = errors.New("storage integrity error")
	// ErrCapacityExceeded is returned when a configured resource limit is hit.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrStorageClosed = errors.New("storage closed")
)

// IntegrityError describes a detected divergence between the store and a
// structure derived from it. It unwraps to ErrStorageIntegrity.
type IntegrityError struct {
	// Structure is what diverged: "record", "adjacency", "label-index",
	// "property-index".
	Structure string
	// EntityID is the identifier involved, when known.
	EntityID string
	// Detail is a human readable description.
	Detail string
}

func (e *IntegrityError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("%s: %s: %s", ErrStorageIntegrity, e.Structure, e.Detail)
	}
	return fmt.Sprintf("%s: %s %s: %s", ErrStorageIntegrity, e.Structure, e.EntityID, e.Detail)
}

func (e *IntegrityError) Unwrap() error { return ErrStorageIntegrity }

// NewIntegrityError builds an *IntegrityError.
func NewIntegrityError(structure, id, format string, args ...any) *IntegrityError {
	return &IntegrityError{Structure: structure, EntityID: id, Detail: fmt.Sprintf(format, args...)}
}

// NodeID is the opaque, immutable identifier of a node.
type NodeID string

// EdgeID is the opaque, immutable identifier of an edge.
type EdgeID string

// Entity is the read view shared by nodes and edges. The query executor and
// the join engine work against it so both collections go through one code path.
type Entity interface {
	EntityID() string
	EntityLabel() string
	Property(key string) (value.Value, bool)
}

// Node is a labeled vertex with a property map.
//
// Nodes returned by the store are copies; mutating one has no effect until it
// goes back through an update call.
type Node struct {
	ID         NodeID
	Label      string
	Properties value.Properties
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EntityID implements Entity.
func (n *Node) EntityID() string { return string(n.ID) }

// EntityLabel implements Entity.
func (n *Node) EntityLabel() string { return n.Label }

// Property implements Entity.
func (n *Node) Property(key string) (value.Value, bool) {
	v, ok := n.Properties[key]
	return v, ok
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Properties = n.Properties.Clone()
	return &c
}

// Size approximates the in-memory footprint of n in bytes.
func (n *Node) Size() int {
	return 64 + len(n.ID) + len(n.Label) + n.Properties.Size()
}

// Edge is a directed, labeled relationship from Source to Target.
//
// Direction matters: an edge Alice->Bob appears in Alice's outgoing set and in
// Bob's incoming set, and nowhere else. Endpoints are fixed at creation.
type Edge struct {
	ID         EdgeID
	Source     NodeID
	Target     NodeID
	Label      string
	Properties value.Properties
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EntityID implements Entity.
func (e *Edge) EntityID() string { return string(e.ID) }

// EntityLabel implements Entity.
func (e *Edge) EntityLabel() string { return e.Label }

// Property implements Entity.
func (e *Edge) Property(key string) (value.Value, bool) {
	v, ok := e.Properties[key]
	return v, ok
}

// Clone returns a deep copy of e.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	c := *e
	c.Properties = e.Properties.Clone()
	return &c
}

// Size approximates the in-memory footprint of e in bytes.
func (e *Edge) Size() int {
	return 96 + len(e.ID) + len(e.Source) + len(e.Target) + len(e.Label) + e.Properties.Size()
}

// Other returns the endpoint of e opposite to id.
func (e *Edge) Other(id NodeID) NodeID {
	if e.Source == id {
		return e.Target
	}
	return e.Source
}

// Direction selects which adjacency set a traversal follows.
type Direction int

const (
	// DirectionOutgoing follows edges from source to target.
	DirectionOutgoing Direction = iota
	// DirectionIncoming follows edges from target to source.
	DirectionIncoming
	// DirectionBoth ignores edge direction.
	DirectionBoth
)

func (d Direction) String() string {
	switch d {
	case DirectionOutgoing:
		return "outgoing"
	case DirectionIncoming:
		return "incoming"
	case DirectionBoth:
		return "both"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection accepts "outgoing"/"out", "incoming"/"in" and "both".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "outgoing", "out", "":
		return DirectionOutgoing, nil
	case "incoming", "in":
		return DirectionIncoming, nil
	case "both":
		return DirectionBoth, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}
