package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// VerifyAdjacency checks the adjacency relation against the edge records.
//
// Every edge must appear in its source's outgoing set and its target's incoming
// set, and every adjacency key must name an existing edge with the matching
// endpoint. Edges whose endpoints are gone are reported too. Returns every
// problem found; nil means consistent.
func (b *BadgerEngine) VerifyAdjacency(ctx context.Context) ([]*IntegrityError, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var problems []*IntegrityError
	err := b.db.View(func(txn *badger.Txn) error {
		// edges -> adjacency and endpoints
		err := b.scan(ctx, txn, prefixEdge, func(key, val []byte) error {
			edge, err := b.codec.DecodeEdge(val)
			if err != nil {
				var ie *IntegrityError
				if errors.As(withEntityID(err, string(key[1:])), &ie) {
					problems = append(problems, ie)
					return nil
				}
				return err
			}
			for _, endpoint := range []NodeID{edge.Source, edge.Target} {
				if _, err := txn.Get(nodeKey(endpoint)); errors.Is(err, badger.ErrKeyNotFound) {
					problems = append(problems, NewIntegrityError("record", string(edge.ID), "endpoint %s missing", endpoint))
				} else if err != nil {
					return err
				}
			}
			if _, err := txn.Get(adjacencyKey(prefixOutgoing, edge.Source, edge.ID)); errors.Is(err, badger.ErrKeyNotFound) {
				problems = append(problems, NewIntegrityError("adjacency", string(edge.ID), "missing from outgoing set of %s", edge.Source))
			} else if err != nil {
				return err
			}
			if _, err := txn.Get(adjacencyKey(prefixIncoming, edge.Target, edge.ID)); errors.Is(err, badger.ErrKeyNotFound) {
				problems = append(problems, NewIntegrityError("adjacency", string(edge.ID), "missing from incoming set of %s", edge.Target))
			} else if err != nil {
				return err
			}
			return nil
		})
		if err != nil {
			return err
		}

		// adjacency -> edges
		for _, prefix := range []byte{prefixOutgoing, prefixIncoming} {
			err := b.scan(ctx, txn, prefix, func(key, _ []byte) error {
				nodeID, edgeID, ok := splitAdjacencyKey(key)
				if !ok {
					problems = append(problems, NewIntegrityError("adjacency", "", "malformed key %x", key))
					return nil
				}
				edge, err := b.getEdgeInTxn(txn, edgeID)
				if errors.Is(err, ErrNotFound) {
					problems = append(problems, NewIntegrityError("adjacency", string(nodeID), "references missing edge %s", edgeID))
					return nil
				}
				if err != nil {
					return err
				}
				endpoint := edge.Source
				if prefix == prefixIncoming {
					endpoint = edge.Target
				}
				if endpoint != nodeID {
					problems = append(problems, NewIntegrityError("adjacency", string(nodeID), "edge %s does not touch this node", edgeID))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return problems, nil
}

// RebuildAdjacency drops every adjacency key and regenerates the relation from
// the edge records. Used after an unclean shutdown.
func (b *BadgerEngine) RebuildAdjacency(ctx context.Context) (int, error) {
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	if err := b.db.DropPrefix([]byte{prefixOutgoing}, []byte{prefixIncoming}); err != nil {
		return 0, fmt.Errorf("dropping adjacency: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	count := 0
	err := b.StreamEdges(ctx, func(edge *Edge) error {
		if err := wb.Set(adjacencyKey(prefixOutgoing, edge.Source, edge.ID), []byte{}); err != nil {
			return err
		}
		if err := wb.Set(adjacencyKey(prefixIncoming, edge.Target, edge.ID), []byte{}); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("writing adjacency: %w", err)
	}

	b.log.WithField("edges", count).Info("adjacency rebuilt")
	return count, nil
}
