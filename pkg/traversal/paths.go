package traversal

import (
	"github.com/orneryd/graphcore/pkg/storage"
)

// ShortestPath returns the node ids of a shortest path from -> to, both ends
// included, using unweighted BFS. When several shortest paths exist the first
// one discovered wins. Unreachable targets (or unknown endpoints) yield an
// empty result, not an error.
//
// Example:
//
//	// a -> b -> c, a -> d -> c
//	path, _ := traversal.ShortestPath(db, a, c) // [a b c]
func ShortestPath(g Graph, from, to storage.NodeID, opts ...Option) ([]storage.NodeID, error) {
	o := buildOptions(opts)

	for _, id := range []storage.NodeID{from, to} {
		ok, err := g.HasNode(id)
		if err != nil || !ok {
			return nil, err
		}
	}
	if from == to {
		return []storage.NodeID{from}, nil
	}

	parent := map[storage.NodeID]storage.NodeID{from: ""}
	queue := []storage.NodeID{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		neighbors, err := g.Neighbors(current, o.dir)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if _, seen := parent[n]; seen {
				continue
			}
			parent[n] = current
			if n == to {
				return buildPath(parent, from, to), nil
			}
			queue = append(queue, n)
		}
	}
	return nil, nil
}

func buildPath(parent map[storage.NodeID]storage.NodeID, from, to storage.NodeID) []storage.NodeID {
	var path []storage.NodeID
	for n := to; ; n = parent[n] {
		path = append(path, n)
		if n == from {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// ConnectedComponents partitions every node into weakly connected components:
// edges are followed in both directions, so the result is a true partition
// of a directed graph. Components are ordered by their smallest node id and
// list members in BFS discovery order.
func ConnectedComponents(g NodeLister) ([][]storage.NodeID, error) {
	seen := make(map[storage.NodeID]struct{})
	var components [][]storage.NodeID

	for _, id := range g.NodeIDs() {
		if _, ok := seen[id]; ok {
			continue
		}
		it := BFS(g, id, Unlimited, WithDirection(storage.DirectionBoth))
		var component []storage.NodeID
		for it.Next() {
			seen[it.Node()] = struct{}{}
			component = append(component, it.Node())
		}
		if err := it.Err(); err != nil {
			return nil, err
		}
		if len(component) > 0 {
			components = append(components, component)
		}
	}
	return components, nil
}
