// Package graphdb provides the main API for embedded graphcore usage.
//
// A DB ties together the durable store (pkg/storage), the in-memory label and
// property indexes (pkg/index) and the entity cache (pkg/cache). Every write
// runs the same four steps before it returns:
//
//  1. apply the change to BadgerDB
//  2. update adjacency (same BadgerDB transaction as step 1)
//  3. update the indexes
//  4. invalidate the cache entries of every touched entity
//
// All four happen while the entity's write lock is held, and readers take the
// read lock of the entity they look at, so a reader sees either none or all of
// a write.
//
// Example Usage:
//
//	cfg := config.DefaultConfig()
//	cfg.DataDir = "./data/graph"
//
//	db, err := graphdb.Open(cfg, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	alice, _ := db.CreateNode("person", value.Properties{"name": value.String("Alice")})
//	bob, _ := db.CreateNode("person", value.Properties{"name": value.String("Bob")})
//	db.CreateEdge(alice, bob, "friends", nil)
//
//	node, _ := db.GetNode(alice)
//	fmt.Println(node.Properties["name"]) // Alice
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Reads run in parallel; writes
//	exclude reads and writes of the same entity only.
package graphdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/graphcore/pkg/cache"
	"github.com/orneryd/graphcore/pkg/config"
	"github.com/orneryd/graphcore/pkg/index"
	"github.com/orneryd/graphcore/pkg/logging"
	"github.com/orneryd/graphcore/pkg/storage"
)

// DB is an open graph database.
type DB struct {
	config *config.Config
	log    logrus.FieldLogger

	store *storage.BadgerEngine
	nodes *index.Index
	edges *index.Index
	cache *cache.EntityCache
	locks *lockTable

	nodeCount atomic.Int64
	edgeCount atomic.Int64
}

// Open opens or creates a database.
//
// The function performs the following initialization in order:
//  1. Validate cfg
//  2. Open BadgerDB (persistent at cfg.DataDir, or in memory)
//  3. If the previous session did not close cleanly, rebuild adjacency
//  4. Rebuild the label and property indexes from the store
//
// A nil logger builds one from cfg.Logging writing to stderr.
//
// Example (Development/Testing):
//
//	cfg := config.DefaultConfig()
//	cfg.InMemory = true
//	db, err := graphdb.Open(cfg, logging.Discard())
func Open(cfg *config.Config, logger logrus.FieldLogger) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		l, err := logging.New(cfg.Logging, os.Stderr)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	store, err := storage.NewBadgerEngine(storage.BadgerOptions{
		DataDir:    cfg.DataDir,
		InMemory:   cfg.InMemory,
		SyncWrites: cfg.SyncWrites,
		Compress:   cfg.CompressionEnabled,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	entityCache, err := cache.New(cache.Options{
		Capacity: cfg.CacheCapacity,
		MaxBytes: cfg.CacheMaxBytes,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	db := &DB{
		config: cfg,
		log:    logger,
		store:  store,
		nodes:  index.New("nodes"),
		edges:  index.New("edges"),
		cache:  entityCache,
		locks:  newLockTable(cfg.LockStripes),
	}

	if err := db.recover(context.Background()); err != nil {
		store.Close()
		return nil, err
	}

	db.log.WithFields(logrus.Fields{
		"action": "open",
		"nodes":  db.nodeCount.Load(),
		"edges":  db.edgeCount.Load(),
	}).Infof("opened %s", cfg)
	return db, nil
}

// recover brings derived structures in line with the store.
func (db *DB) recover(ctx context.Context) error {
	clean, err := db.store.MarkInUse()
	if err != nil {
		return fmt.Errorf("reading shutdown marker: %w", err)
	}
	if !clean {
		db.log.WithField("action", "recover").Warn("previous session did not close cleanly, rebuilding adjacency")
		if _, err := db.store.RebuildAdjacency(ctx); err != nil {
			return fmt.Errorf("rebuilding adjacency: %w", err)
		}
	}

	start := time.Now()
	if err := buildIndexes(ctx, db.store, db.nodes, db.edges); err != nil {
		return fmt.Errorf("rebuilding indexes: %w", err)
	}
	db.nodeCount.Store(int64(db.nodes.Len()))
	db.edgeCount.Store(int64(db.edges.Len()))
	db.log.WithFields(logrus.Fields{
		"action":   "recover",
		"duration": time.Since(start),
	}).Debug("indexes rebuilt")
	return nil
}

// buildIndexes fills nodes and edges from the store, both collections in
// parallel.
func buildIndexes(ctx context.Context, store *storage.BadgerEngine, nodes, edges *index.Index) error {
	nodes.Clear()
	edges.Clear()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return store.StreamNodes(ctx, func(n *storage.Node) error {
			nodes.Add(string(n.ID), n.Label, n.Properties)
			return nil
		})
	})
	g.Go(func() error {
		return store.StreamEdges(ctx, func(e *storage.Edge) error {
			edges.Add(string(e.ID), e.Label, e.Properties)
			return nil
		})
	})
	return g.Wait()
}

// Close flushes and closes the database. It waits for in-flight writes.
func (db *DB) Close() error {
	all := db.locks.all()
	db.locks.lock(all)
	defer db.locks.unlock(all)

	db.cache.Purge()
	if err := db.store.Close(); err != nil {
		return fmt.Errorf("closing storage: %w", err)
	}
	db.log.WithField("action", "close").Info("closed")
	return nil
}

// Config returns the configuration the database was opened with.
func (db *DB) Config() *config.Config { return db.config }

// Stats is a point-in-time snapshot of database counters.
type Stats struct {
	Nodes      int64
	Edges      int64
	NodeLabels map[string]int
	EdgeLabels map[string]int
	Cache      cache.Stats
	StoreReads uint64 // record fetches that reached BadgerDB
}

// Stats returns database statistics.
func (db *DB) Stats() Stats {
	return Stats{
		Nodes:      db.nodeCount.Load(),
		Edges:      db.edgeCount.Load(),
		NodeLabels: db.nodes.Labels(),
		EdgeLabels: db.edges.Labels(),
		Cache:      db.cache.Stats(),
		StoreReads: db.store.Reads(),
	}
}

// CheckIntegrity cross-checks the store, the adjacency relation and both
// indexes. Writes are paused for the duration. Returns the first divergence
// as a *storage.IntegrityError; nothing is repaired.
func (db *DB) CheckIntegrity(ctx context.Context) error {
	all := db.locks.all()
	db.locks.rlock(all)
	defer db.locks.runlock(all)

	problems, err := db.store.VerifyAdjacency(ctx)
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		for _, p := range problems {
			db.log.WithField("action", "check_integrity").Error(p)
		}
		return problems[0]
	}

	nodes, edges := index.New("nodes"), index.New("edges")
	if err := buildIndexes(ctx, db.store, nodes, edges); err != nil {
		return err
	}
	if d := db.nodes.Diff(nodes); d != nil {
		db.log.WithField("action", "check_integrity").Error(d)
		return d
	}
	if d := db.edges.Diff(edges); d != nil {
		db.log.WithField("action", "check_integrity").Error(d)
		return d
	}
	return nil
}

func newID() string { return uuid.NewString() }

func now() time.Time { return time.Now().UTC().Round(0) }

// reserve takes one slot of a bounded counter.
func reserve(counter *atomic.Int64, limit int64, what string) error {
	n := counter.Add(1)
	if limit > 0 && n > limit {
		counter.Add(-1)
		return fmt.Errorf("%w: %s limit %d reached", storage.ErrCapacityExceeded, what, limit)
	}
	return nil
}

// integrity logs err at error level when it is an integrity error.
func (db *DB) integrity(action string, err error) error {
	if errors.Is(err, storage.ErrStorageIntegrity) {
		db.log.WithField("action", action).Error(err)
	}
	return err
}
