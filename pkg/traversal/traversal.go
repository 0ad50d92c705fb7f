// Package traversal implements graph algorithms over the adjacency relation:
// breadth-first and depth-first search, unweighted shortest path and
// connected components.
//
// The algorithms only need a Graph, which *graphdb.DB satisfies:
//
//	it := traversal.BFS(db, alice, 2)
//	for it.Next() {
//		fmt.Println(it.Node(), it.Depth())
//	}
//	if err := it.Err(); err != nil {
//		return err
//	}
//
// Iterators are lazy: a node's neighbors are read only when the node itself
// is emitted, so stopping early stops the reads. Iterators are finite, never
// emit a node twice and cannot be restarted.
package traversal

import (
	"github.com/orneryd/graphcore/pkg/storage"
)

// Graph is the read surface the algorithms need.
type Graph interface {
	// Neighbors returns the distinct nodes adjacent to id in the given
	// direction, in a stable order.
	Neighbors(id storage.NodeID, dir storage.Direction) ([]storage.NodeID, error)
	// HasNode reports whether id exists.
	HasNode(id storage.NodeID) (bool, error)
}

// NodeLister is a Graph that can enumerate its nodes.
type NodeLister interface {
	Graph
	NodeIDs() []storage.NodeID
}

// Unlimited disables the depth bound.
const Unlimited = -1

// Option configures a traversal.
type Option func(*options)

type options struct {
	dir storage.Direction
}

// WithDirection selects which edges to follow. Default is outgoing.
func WithDirection(dir storage.Direction) Option {
	return func(o *options) { o.dir = dir }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type frame struct {
	id    storage.NodeID
	depth int
}

// Iterator yields nodes in discovery order.
type Iterator struct {
	g          Graph
	dir        storage.Direction
	maxDepth   int
	depthFirst bool

	start   storage.NodeID
	started bool
	pending []frame
	visited map[storage.NodeID]struct{}

	// expanded holds the smallest depth each node was expanded at (DFS only).
	expanded map[storage.NodeID]int

	current frame
	err     error
}

// BFS returns a breadth-first iterator from start. maxDepth bounds the number
// of hops (0 yields start only); Unlimited removes the bound. An unknown
// start yields nothing.
func BFS(g Graph, start storage.NodeID, maxDepth int, opts ...Option) *Iterator {
	o := buildOptions(opts)
	return &Iterator{g: g, dir: o.dir, maxDepth: maxDepth, start: start}
}

// DFS returns a depth-first (pre-order) iterator from start. Neighbors are
// explored in the order Graph.Neighbors returns them.
func DFS(g Graph, start storage.NodeID, maxDepth int, opts ...Option) *Iterator {
	o := buildOptions(opts)
	return &Iterator{g: g, dir: o.dir, maxDepth: maxDepth, start: start, depthFirst: true}
}

// Next advances to the next node. It returns false when the traversal is
// exhausted or an error occurred; check Err afterwards.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		ok, err := it.g.HasNode(it.start)
		if err != nil {
			it.err = err
			return false
		}
		if !ok {
			return false
		}
		it.visited = map[storage.NodeID]struct{}{}
		it.pending = []frame{{id: it.start}}
		if it.depthFirst {
			it.expanded = map[storage.NodeID]int{}
		} else {
			it.visited[it.start] = struct{}{}
		}
	}

	if it.depthFirst {
		return it.nextDFS()
	}
	return it.nextBFS()
}

func (it *Iterator) nextBFS() bool {
	if len(it.pending) == 0 {
		return false
	}
	f := it.pending[0]
	it.pending = it.pending[1:]

	if it.withinDepth(f.depth) {
		neighbors, err := it.g.Neighbors(f.id, it.dir)
		if err != nil {
			it.err = err
			return false
		}
		for _, n := range neighbors {
			if _, seen := it.visited[n]; seen {
				continue
			}
			it.visited[n] = struct{}{}
			it.pending = append(it.pending, frame{id: n, depth: f.depth + 1})
		}
	}
	it.current = f
	return true
}

// nextDFS pops frames until it finds a node not yet emitted. A node first
// reached along a long path is expanded again when a shorter path reaches it
// later, so every node within maxDepth hops is emitted exactly once.
func (it *Iterator) nextDFS() bool {
	for len(it.pending) > 0 {
		f := it.pending[len(it.pending)-1]
		it.pending = it.pending[:len(it.pending)-1]
		if d, ok := it.expanded[f.id]; ok && (d <= f.depth || it.maxDepth < 0) {
			continue
		}
		it.expanded[f.id] = f.depth

		if it.withinDepth(f.depth) {
			neighbors, err := it.g.Neighbors(f.id, it.dir)
			if err != nil {
				it.err = err
				return false
			}
			// Reverse push so the first neighbor is explored first.
			for i := len(neighbors) - 1; i >= 0; i-- {
				n := neighbors[i]
				if d, ok := it.expanded[n]; ok && (d <= f.depth+1 || it.maxDepth < 0) {
					continue
				}
				it.pending = append(it.pending, frame{id: n, depth: f.depth + 1})
			}
		}

		if _, emitted := it.visited[f.id]; emitted {
			continue
		}
		it.visited[f.id] = struct{}{}
		it.current = f
		return true
	}
	return false
}

func (it *Iterator) withinDepth(depth int) bool {
	return it.maxDepth < 0 || depth < it.maxDepth
}

// Node returns the current node.
func (it *Iterator) Node() storage.NodeID { return it.current.id }

// Depth returns the hop count from start to the current node along the path
// that first reached it. For BFS this is the shortest distance. For DFS it is
// the length of the depth-first path and may exceed the shortest distance.
func (it *Iterator) Depth() int { return it.current.depth }

// Err returns the first error encountered.
func (it *Iterator) Err() error { return it.err }

// Collect drains it into a slice.
func Collect(it *Iterator) ([]storage.NodeID, error) {
	var ids []storage.NodeID
	for it.Next() {
		ids = append(ids, it.Node())
	}
	return ids, it.Err()
}
