package graphdb

import (
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// lockTable is a fixed array of RWMutex stripes. An entity id maps to one
// stripe by hash; unrelated entities rarely share a stripe, so writes to them
// proceed in parallel.
//
// Operations that need several stripes take them in ascending index order,
// which rules out lock-order deadlocks between writers.
type lockTable struct {
	stripes []sync.RWMutex
	mask    uint64
}

// newLockTable creates a table with n stripes. n must be a power of two.
func newLockTable(n int) *lockTable {
	return &lockTable{
		stripes: make([]sync.RWMutex, n),
		mask:    uint64(n - 1),
	}
}

func (t *lockTable) stripe(id string) int {
	return int(xxhash.Sum64String(id) & t.mask)
}

// stripeSet is a sorted, de-duplicated list of stripe indexes.
type stripeSet []int

func (t *lockTable) set(ids ...string) stripeSet {
	s := make(stripeSet, 0, len(ids))
	for _, id := range ids {
		s = append(s, t.stripe(id))
	}
	slices.Sort(s)
	return slices.Compact(s)
}

// covers reports whether every id hashes into s.
func (t *lockTable) covers(s stripeSet, ids ...string) bool {
	for _, id := range ids {
		if _, found := slices.BinarySearch(s, t.stripe(id)); !found {
			return false
		}
	}
	return true
}

func (t *lockTable) lock(s stripeSet) {
	for _, i := range s {
		t.stripes[i].Lock()
	}
}

func (t *lockTable) unlock(s stripeSet) {
	for i := len(s) - 1; i >= 0; i-- {
		t.stripes[s[i]].Unlock()
	}
}

func (t *lockTable) rlock(s stripeSet) {
	for _, i := range s {
		t.stripes[i].RLock()
	}
}

func (t *lockTable) runlock(s stripeSet) {
	for i := len(s) - 1; i >= 0; i-- {
		t.stripes[s[i]].RUnlock()
	}
}

// all returns the set of every stripe, for stop-the-world operations.
func (t *lockTable) all() stripeSet {
	s := make(stripeSet, len(t.stripes))
	for i := range s {
		s[i] = i
	}
	return s
}
