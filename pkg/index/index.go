// Package index provides ordered secondary indexes over graph entities.
//
// An Index covers one collection (nodes or edges) and holds two ordered trees:
//
//   - label index:    (label, id)
//   - property index: (key, value, id)
//
// Both are google/btree trees, so a point lookup is logarithmic in the number
// of entries and a range lookup walks one contiguous span. Values are ordered
// with value.Order, which ranks by variant first; a range query therefore only
// ever sees values of the variant it was asked about.
//
// Indexes are derived data. They are kept in memory, rebuilt from the store on
// open, and maintained synchronously by pkg/graphdb on every write.
//
// Example:
//
//	ix := index.New("nodes")
//	ix.Add("n1", "person", value.Properties{"age": value.Int(30)})
//	ix.Add("n2", "person", value.Properties{"age": value.Int(40)})
//
//	ix.ByLabel("person")                                // [n1 n2]
//	ids, _ := ix.Lookup("age", index.OpGt, value.Int(35)) // [n2]
package index

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/value"
)

const degree = 32

// Op is a comparison supported by the property index.
type Op int

const (
	OpEq Op = iota
	OpGt
	OpGte
	OpLt
	OpLte
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// ErrUnsupportedOp is returned by Lookup for an operator it cannot answer.
var ErrUnsupportedOp = errors.New("unsupported index operator")

type labelItem struct {
	label string
	id    string
}

func labelLess(a, b labelItem) bool {
	if a.label != b.label {
		return a.label < b.label
	}
	return a.id < b.id
}

type propItem struct {
	key string
	val value.Value
	id  string
}

func propLess(a, b propItem) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	if c := value.Order(a.val, b.val); c != 0 {
		return c < 0
	}
	return a.id < b.id
}

// Index is a label index plus a property index for one collection.
// Safe for concurrent use.
type Index struct {
	name string

	mu      sync.RWMutex
	labels  *btree.BTreeG[labelItem]
	props   *btree.BTreeG[propItem]
	labelOf map[string]string
}

// New creates an empty index. The name is used in integrity errors
// ("nodes", "edges").
func New(name string) *Index {
	return &Index{
		name:    name,
		labels:  btree.NewG(degree, labelLess),
		props:   btree.NewG(degree, propLess),
		labelOf: make(map[string]string),
	}
}

// Name returns the collection name given to New.
func (ix *Index) Name() string { return ix.name }

// Add indexes an entity.
func (ix *Index) Add(id, label string, props value.Properties) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.addLocked(id, label, props)
}

func (ix *Index) addLocked(id, label string, props value.Properties) {
	ix.labels.ReplaceOrInsert(labelItem{label: label, id: id})
	ix.labelOf[id] = label
	for k, v := range props {
		ix.props.ReplaceOrInsert(propItem{key: k, val: v, id: id})
	}
}

// Remove drops an entity. label and props must be what was last indexed.
func (ix *Index) Remove(id, label string, props value.Properties) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.labels.Delete(labelItem{label: label, id: id})
	delete(ix.labelOf, id)
	for k, v := range props {
		ix.props.Delete(propItem{key: k, val: v, id: id})
	}
}

// Replace moves an entity's property entries from old to updated. Only keys
// whose value changed are touched. The label is immutable and not reindexed.
func (ix *Index) Replace(id string, old, updated value.Properties) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for k, v := range old {
		if nv, ok := updated[k]; ok && nv == v {
			continue
		}
		ix.props.Delete(propItem{key: k, val: v, id: id})
	}
	for k, v := range updated {
		if ov, ok := old[k]; ok && ov == v {
			continue
		}
		ix.props.ReplaceOrInsert(propItem{key: k, val: v, id: id})
	}
}

// Clear empties the index.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.labels.Clear(false)
	ix.props.Clear(false)
	ix.labelOf = make(map[string]string)
}

// Len returns the number of indexed entities.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.labelOf)
}

// IDs returns every indexed id in id order.
func (ix *Index) IDs() []string {
	ix.mu.RLock()
	ids := make([]string, 0, len(ix.labelOf))
	for id := range ix.labelOf {
		ids = append(ids, id)
	}
	ix.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// ByLabel returns the ids carrying label, in id order. An unknown label yields
// an empty result.
func (ix *Index) ByLabel(label string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var ids []string
	ix.labels.AscendGreaterOrEqual(labelItem{label: label}, func(it labelItem) bool {
		if it.label != label {
			return false
		}
		ids = append(ids, it.id)
		return true
	})
	return ids
}

// Labels returns every distinct label with its entity count.
func (ix *Index) Labels() map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	counts := make(map[string]int)
	ix.labels.Ascend(func(it labelItem) bool {
		counts[it.label]++
		return true
	})
	return counts
}

// Lookup returns the ids whose property key compares to v under op.
//
// Only values of v's variant are considered: Int(3) never matches Float(3.0)
// and a range over strings never returns numbers. Results are ordered by
// value, then id. A Null v only supports OpEq (entities with an explicit
// null marker).
func (ix *Index) Lookup(key string, op Op, v value.Value) ([]string, error) {
	if v.IsNull() && op != OpEq {
		return nil, fmt.Errorf("%w: %s on null", ErrUnsupportedOp, op)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	kind := v.Kind()
	var ids []string
	collect := func(it propItem) bool {
		ids = append(ids, it.id)
		return true
	}

	switch op {
	case OpEq:
		ix.props.AscendGreaterOrEqual(propItem{key: key, val: v}, func(it propItem) bool {
			if it.key != key || !value.Equal(it.val, v) {
				return false
			}
			return collect(it)
		})
	case OpGt, OpGte:
		ix.props.AscendGreaterOrEqual(propItem{key: key, val: v}, func(it propItem) bool {
			if it.key != key || it.val.Kind() != kind {
				return false
			}
			if op == OpGt && value.Equal(it.val, v) {
				return true
			}
			return collect(it)
		})
	case OpLt, OpLte:
		ix.props.AscendGreaterOrEqual(propItem{key: key, val: value.MinOfKind(kind)}, func(it propItem) bool {
			if it.key != key || it.val.Kind() != kind {
				return false
			}
			c := value.Order(it.val, v)
			if c > 0 || (c == 0 && op == OpLt) {
				return false
			}
			return collect(it)
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOp, op)
	}
	return ids, nil
}

// Contains reports whether id is indexed, and under which label.
func (ix *Index) Contains(id string) (label string, ok bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	label, ok = ix.labelOf[id]
	return label, ok
}

// Diff compares ix against expected, typically an index freshly built from
// the store, and returns the first divergence as an integrity error.
func (ix *Index) Diff(expected *Index) *storage.IntegrityError {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	expected.mu.RLock()
	defer expected.mu.RUnlock()

	if d := diffTrees(ix.labels, expected.labels, labelLess); d != nil {
		return storage.NewIntegrityError(ix.name+" label-index", d.item.id, "label %q %s", d.item.label, d.problem)
	}
	if d := diffTrees(ix.props, expected.props, propLess); d != nil {
		return storage.NewIntegrityError(ix.name+" property-index", d.item.id, "%s=%s %s", d.item.key, d.item.val, d.problem)
	}
	return nil
}

// diffTrees walks both trees in order and reports the first item present in
// only one of them.
func diffTrees[T any](got, want *btree.BTreeG[T], less func(a, b T) bool) *divergence[T] {
	a, b := items(got), items(want)
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case less(a[i], b[j]):
			return &divergence[T]{item: a[i], problem: "indexed but not stored"}
		case less(b[j], a[i]):
			return &divergence[T]{item: b[j], problem: "stored but not indexed"}
		}
		i++
		j++
	}
	if i < len(a) {
		return &divergence[T]{item: a[i], problem: "indexed but not stored"}
	}
	if j < len(b) {
		return &divergence[T]{item: b[j], problem: "stored but not indexed"}
	}
	return nil
}

type divergence[T any] struct {
	item    T
	problem string
}

func items[T any](t *btree.BTreeG[T]) []T {
	out := make([]T, 0, t.Len())
	t.Ascend(func(it T) bool {
		out = append(out, it)
		return true
	})
	return out
}
