// Package storage provides storage engine implementations for graphcore.
//
// BadgerEngine provides persistent disk-based storage using BadgerDB.
// Every mutating call runs in one BadgerDB transaction, so the record and the
// adjacency keys derived from it become visible together or not at all.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixNode     = byte(0x01) // node:nodeID -> record
	prefixEdge     = byte(0x02) // edge:edgeID -> record
	prefixOutgoing = byte(0x04) // outgoing:nodeID:edgeID -> empty
	prefixIncoming = byte(0x05) // incoming:nodeID:edgeID -> empty
	prefixMeta     = byte(0x06) // meta:name -> value
)

var metaCleanShutdown = append([]byte{prefixMeta}, []byte("clean-shutdown")...)

// BadgerEngine provides persistent storage using BadgerDB.
//
// Key Structure:
//   - Nodes: 0x01 + nodeID -> checksum + msgpack(record)
//   - Edges: 0x02 + edgeID -> checksum + msgpack(record)
//   - Outgoing: 0x04 + nodeID + 0x00 + edgeID -> empty
//   - Incoming: 0x05 + nodeID + 0x00 + edgeID -> empty
//   - Meta: 0x06 + name -> value
//
// The outgoing/incoming keys are the adjacency relation. Because keys are
// unique, an edge can appear at most once in each set.
//
// Example:
//
//	engine, err := storage.NewBadgerEngine(storage.BadgerOptions{DataDir: "./data"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB serializes conflicting transactions;
//	entity level mutual exclusion is provided by pkg/graphdb.
type BadgerEngine struct {
	db     *badger.DB
	codec  Codec
	log    logrus.FieldLogger
	mu     sync.RWMutex // Protects closed
	closed bool

	// reads counts record fetches that reached BadgerDB. The cache tests use
	// it to tell hits from misses.
	reads atomic.Uint64
}

// BadgerOptions configures the BadgerDB engine.
type BadgerOptions struct {
	// DataDir is the directory for storing data files.
	// Required unless InMemory is set.
	DataDir string

	// InMemory runs BadgerDB in memory-only mode.
	// Useful for testing. Data is not persisted.
	InMemory bool

	// SyncWrites forces fsync after each write.
	// Slower but more durable.
	SyncWrites bool

	// Compress enables s2 compression of property maps.
	Compress bool

	// Logger receives engine and BadgerDB log output.
	// If nil, logging is discarded.
	Logger logrus.FieldLogger
}

// NewBadgerEngine opens (or creates) a BadgerEngine.
//
// Example 1 - Persistent store:
//
//	engine, err := storage.NewBadgerEngine(storage.BadgerOptions{
//		DataDir:  "./data/graph",
//		Compress: true,
//	})
//
// Example 2 - Tests:
//
//	engine, err := storage.NewBadgerEngine(storage.BadgerOptions{InMemory: true})
func NewBadgerEngine(opts BadgerOptions) (*BadgerEngine, error) {
	if !opts.InMemory && opts.DataDir == "" {
		return nil, fmt.Errorf("%w: data directory required for persistent storage", ErrInvalidData)
	}

	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(newBadgerLogger(logger))

	// Conservative memory settings, same as the defaults we ship for
	// containerized deployments.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &BadgerEngine{
		db:    db,
		codec: Codec{Compress: opts.Compress},
		log:   logger,
	}, nil
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func nodeKey(id NodeID) []byte {
	return append([]byte{prefixNode}, []byte(id)...)
}

func edgeKey(id EdgeID) []byte {
	return append([]byte{prefixEdge}, []byte(id)...)
}

// adjacencyKey creates prefix + nodeID + 0x00 + edgeID.
func adjacencyKey(prefix byte, nodeID NodeID, edgeID EdgeID) []byte {
	key := make([]byte, 0, 1+len(nodeID)+1+len(edgeID))
	key = append(key, prefix)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	key = append(key, []byte(edgeID)...)
	return key
}

// adjacencyPrefix returns the prefix for scanning one node's adjacency set.
func adjacencyPrefix(prefix byte, nodeID NodeID) []byte {
	key := make([]byte, 0, 1+len(nodeID)+1)
	key = append(key, prefix)
	key = append(key, []byte(nodeID)...)
	key = append(key, 0x00)
	return key
}

// splitAdjacencyKey extracts nodeID and edgeID from an adjacency key.
func splitAdjacencyKey(key []byte) (NodeID, EdgeID, bool) {
	for i := 1; i < len(key); i++ {
		if key[i] == 0x00 {
			return NodeID(key[1:i]), EdgeID(key[i+1:]), true
		}
	}
	return "", "", false
}

func (b *BadgerEngine) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

// ============================================================================
// Node Operations
// ============================================================================

// CreateNode stores a new node. Fails with ErrAlreadyExists on a reused id.
func (b *BadgerEngine) CreateNode(node *Node) error {
	if node == nil {
		return ErrInvalidData
	}
	if node.ID == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		key := nodeKey(node.ID)
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		data, err := b.codec.EncodeNode(node)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

// GetNode retrieves a node by ID. Returns ErrNotFound for an unknown id.
func (b *BadgerEngine) GetNode(id NodeID) (*Node, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var node *Node
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = b.getNodeInTxn(txn, id)
		return err
	})
	return node, err
}

func (b *BadgerEngine) getNodeInTxn(txn *badger.Txn, id NodeID) (*Node, error) {
	b.reads.Add(1)
	item, err := txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var node *Node
	err = item.Value(func(val []byte) error {
		var decodeErr error
		node, decodeErr = b.codec.DecodeNode(val)
		return decodeErr
	})
	if err != nil {
		return nil, withEntityID(err, string(id))
	}
	if node.ID != id {
		return nil, NewIntegrityError("record", string(id), "record holds id %s", node.ID)
	}
	return node, nil
}

// UpdateNode overwrites an existing node and returns the previous version.
// Label and creation time are taken from the stored node; they are immutable.
func (b *BadgerEngine) UpdateNode(node *Node) (*Node, error) {
	if node == nil {
		return nil, ErrInvalidData
	}
	if node.ID == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var previous *Node
	err := b.db.Update(func(txn *badger.Txn) error {
		existing, err := b.getNodeInTxn(txn, node.ID)
		if err != nil {
			return err
		}
		previous = existing

		updated := node.Clone()
		updated.Label = existing.Label
		updated.CreatedAt = existing.CreatedAt

		data, err := b.codec.EncodeNode(updated)
		if err != nil {
			return err
		}
		return txn.Set(nodeKey(node.ID), data)
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

// DeleteNode removes a node together with every incident edge.
//
// The node record, the incident edge records and all adjacency keys that
// mention them are deleted in one transaction. Returns the deleted node and
// the deleted edges so callers can maintain their derived structures.
func (b *BadgerEngine) DeleteNode(id NodeID) (*Node, []*Edge, error) {
	if id == "" {
		return nil, nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, nil, err
	}

	var (
		node  *Node
		edges []*Edge
	)
	err := b.db.Update(func(txn *badger.Txn) error {
		var err error
		node, err = b.getNodeInTxn(txn, id)
		if err != nil {
			return err
		}

		out, err := b.adjacencyInTxn(txn, prefixOutgoing, id)
		if err != nil {
			return err
		}
		in, err := b.adjacencyInTxn(txn, prefixIncoming, id)
		if err != nil {
			return err
		}

		seen := make(map[EdgeID]struct{}, len(out)+len(in))
		for _, edgeID := range append(out, in...) {
			if _, dup := seen[edgeID]; dup {
				continue // self-loop appears in both sets
			}
			seen[edgeID] = struct{}{}

			edge, err := b.deleteEdgeInTxn(txn, edgeID)
			if errors.Is(err, ErrNotFound) {
				return NewIntegrityError("adjacency", string(id), "references missing edge %s", edgeID)
			}
			if err != nil {
				return err
			}
			edges = append(edges, edge)
		}

		return txn.Delete(nodeKey(id))
	})
	if err != nil {
		return nil, nil, err
	}
	return node, edges, nil
}

// ============================================================================
// Edge Operations
// ============================================================================

// CreateEdge stores a new edge and adds it to both adjacency sets.
// Fails with ErrDanglingReference if either endpoint is missing; endpoints are
// never created implicitly.
func (b *BadgerEngine) CreateEdge(edge *Edge) error {
	if edge == nil {
		return ErrInvalidData
	}
	if edge.ID == "" || edge.Source == "" || edge.Target == "" {
		return ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		key := edgeKey(edge.ID)
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		for _, endpoint := range []NodeID{edge.Source, edge.Target} {
			_, err := txn.Get(nodeKey(endpoint))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: node %s", ErrDanglingReference, endpoint)
			}
			if err != nil {
				return err
			}
		}

		data, err := b.codec.EncodeEdge(edge)
		if err != nil {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(adjacencyKey(prefixOutgoing, edge.Source, edge.ID), []byte{}); err != nil {
			return err
		}
		return txn.Set(adjacencyKey(prefixIncoming, edge.Target, edge.ID), []byte{})
	})
}

// GetEdge retrieves an edge by ID. Returns ErrNotFound for an unknown id.
func (b *BadgerEngine) GetEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var edge *Edge
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		edge, err = b.getEdgeInTxn(txn, id)
		return err
	})
	return edge, err
}

func (b *BadgerEngine) getEdgeInTxn(txn *badger.Txn, id EdgeID) (*Edge, error) {
	b.reads.Add(1)
	item, err := txn.Get(edgeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var edge *Edge
	err = item.Value(func(val []byte) error {
		var decodeErr error
		edge, decodeErr = b.codec.DecodeEdge(val)
		return decodeErr
	})
	if err != nil {
		return nil, withEntityID(err, string(id))
	}
	if edge.ID != id {
		return nil, NewIntegrityError("record", string(id), "record holds id %s", edge.ID)
	}
	return edge, nil
}

// UpdateEdge overwrites the properties of an existing edge and returns the
// previous version. Endpoints, label and creation time are immutable.
func (b *BadgerEngine) UpdateEdge(edge *Edge) (*Edge, error) {
	if edge == nil {
		return nil, ErrInvalidData
	}
	if edge.ID == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var previous *Edge
	err := b.db.Update(func(txn *badger.Txn) error {
		existing, err := b.getEdgeInTxn(txn, edge.ID)
		if err != nil {
			return err
		}
		previous = existing

		updated := edge.Clone()
		updated.Source = existing.Source
		updated.Target = existing.Target
		updated.Label = existing.Label
		updated.CreatedAt = existing.CreatedAt

		data, err := b.codec.EncodeEdge(updated)
		if err != nil {
			return err
		}
		return txn.Set(edgeKey(edge.ID), data)
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

// DeleteEdge removes an edge from the store and from both adjacency sets.
func (b *BadgerEngine) DeleteEdge(id EdgeID) (*Edge, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var edge *Edge
	err := b.db.Update(func(txn *badger.Txn) error {
		var err error
		edge, err = b.deleteEdgeInTxn(txn, id)
		return err
	})
	return edge, err
}

// deleteEdgeInTxn is the internal helper for deleting an edge within a transaction.
func (b *BadgerEngine) deleteEdgeInTxn(txn *badger.Txn, id EdgeID) (*Edge, error) {
	edge, err := b.getEdgeInTxn(txn, id)
	if err != nil {
		return nil, err
	}
	if err := txn.Delete(adjacencyKey(prefixOutgoing, edge.Source, id)); err != nil {
		return nil, err
	}
	if err := txn.Delete(adjacencyKey(prefixIncoming, edge.Target, id)); err != nil {
		return nil, err
	}
	if err := txn.Delete(edgeKey(id)); err != nil {
		return nil, err
	}
	return edge, nil
}

// ============================================================================
// Adjacency
// ============================================================================

// OutgoingEdgeIDs returns the ids of edges whose source is nodeID, in key order.
func (b *BadgerEngine) OutgoingEdgeIDs(nodeID NodeID) ([]EdgeID, error) {
	return b.adjacency(prefixOutgoing, nodeID)
}

// IncomingEdgeIDs returns the ids of edges whose target is nodeID, in key order.
func (b *BadgerEngine) IncomingEdgeIDs(nodeID NodeID) ([]EdgeID, error) {
	return b.adjacency(prefixIncoming, nodeID)
}

func (b *BadgerEngine) adjacency(prefix byte, nodeID NodeID) ([]EdgeID, error) {
	if nodeID == "" {
		return nil, ErrInvalidID
	}
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var ids []EdgeID
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		ids, err = b.adjacencyInTxn(txn, prefix, nodeID)
		return err
	})
	return ids, err
}

func (b *BadgerEngine) adjacencyInTxn(txn *badger.Txn, prefix byte, nodeID NodeID) ([]EdgeID, error) {
	scan := adjacencyPrefix(prefix, nodeID)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = scan
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []EdgeID
	for it.Seek(scan); it.ValidForPrefix(scan); it.Next() {
		_, edgeID, ok := splitAdjacencyKey(it.Item().Key())
		if !ok || edgeID == "" {
			return nil, NewIntegrityError("adjacency", string(nodeID), "malformed adjacency key")
		}
		ids = append(ids, edgeID)
	}
	return ids, nil
}

// ============================================================================
// Streaming
// ============================================================================

// StreamNodes calls fn for every node in key order. Returning an error from fn
// stops the iteration and is returned (ErrIterationStopped is swallowed).
func (b *BadgerEngine) StreamNodes(ctx context.Context, fn func(*Node) error) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.db.View(func(txn *badger.Txn) error {
		return b.scan(ctx, txn, prefixNode, func(key, val []byte) error {
			node, err := b.codec.DecodeNode(val)
			if err != nil {
				return withEntityID(err, string(key[1:]))
			}
			return fn(node)
		})
	})
}

// StreamEdges calls fn for every edge in key order.
func (b *BadgerEngine) StreamEdges(ctx context.Context, fn func(*Edge) error) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.db.View(func(txn *badger.Txn) error {
		return b.scan(ctx, txn, prefixEdge, func(key, val []byte) error {
			edge, err := b.codec.DecodeEdge(val)
			if err != nil {
				return withEntityID(err, string(key[1:]))
			}
			return fn(edge)
		})
	})
}

// ErrIterationStopped lets a streaming callback end the scan early without
// reporting an error to the caller.
var ErrIterationStopped = errors.New("iteration stopped")

func (b *BadgerEngine) scan(ctx context.Context, txn *badger.Txn, prefix byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte{prefix}
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		key := item.KeyCopy(nil)
		err := item.Value(func(val []byte) error {
			return fn(key, val)
		})
		if errors.Is(err, ErrIterationStopped) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// NodeCount returns the number of stored nodes.
func (b *BadgerEngine) NodeCount() (int64, error) {
	return b.countPrefix(prefixNode)
}

// EdgeCount returns the number of stored edges.
func (b *BadgerEngine) EdgeCount() (int64, error) {
	return b.countPrefix(prefixEdge)
}

func (b *BadgerEngine) countPrefix(prefix byte) (int64, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{prefix}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Reads returns how many record fetches reached BadgerDB since open.
func (b *BadgerEngine) Reads() uint64 {
	return b.reads.Load()
}

// ============================================================================
// Lifecycle
// ============================================================================

// MarkInUse clears the clean-shutdown marker and reports whether the previous
// session ended cleanly. An empty store always counts as clean.
//
// Call it once after open; Close sets the marker again. If the process dies in
// between, the next MarkInUse returns false and derived structures must be
// rebuilt.
func (b *BadgerEngine) MarkInUse() (wasClean bool, err error) {
	if err := b.checkOpen(); err != nil {
		return false, err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		_, getErr := txn.Get(metaCleanShutdown)
		switch {
		case getErr == nil:
			wasClean = true
			return txn.Delete(metaCleanShutdown)
		case errors.Is(getErr, badger.ErrKeyNotFound):
			wasClean = isEmptyInTxn(txn)
			return nil
		default:
			return getErr
		}
	})
	return wasClean, err
}

func isEmptyInTxn(txn *badger.Txn) bool {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		if k := it.Item().Key(); len(k) > 0 && (k[0] == prefixNode || k[0] == prefixEdge) {
			return false
		}
	}
	return true
}

// Close writes the clean-shutdown marker and closes BadgerDB.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	markErr := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaCleanShutdown, []byte{1})
	})
	if markErr != nil {
		b.log.WithError(markErr).Warn("failed to write clean-shutdown marker")
	}
	return b.db.Close()
}

// withEntityID fills in the entity id of an integrity error raised while
// decoding, where the id is not yet known.
func withEntityID(err error, id string) error {
	var ie *IntegrityError
	if errors.As(err, &ie) && ie.EntityID == "" {
		ie.EntityID = id
	}
	return err
}
