package ringmap

// Iterator is a weakly-consistent snapshot walk over a Map, matching
// ConcurrentHashMap's ConstIterator: it never throws on concurrent
// modification, may or may not observe insertions/removals that race with
// it, and never observes a key more than once unless a resize moves it
// backward relative to the walk (spec Non-goals: no ordered iteration).
// Holding an Iterator pins the map's reclaimer for the iterator's entire
// lifetime rather than per-step, so Close must be called promptly.
//
// A treeified bin is walked through its insertion-ordered traversal list
// (tb.first / node.next), never through the tree itself (spec §4.6:
// "traversal through TREEBIN descends into the tree-bin's traversal list,
// not the tree"; concurrent_hash_map.hpp's ConstIterator does the same,
// advancing via TreeBin::first rather than TreeBin::root). The tree's
// parent/left/right fields belong to lockRoot()'s writer and may be
// mid-rotation at any moment; the iterator only ever touches them
// indirectly by holding a reader slot (treebin.go's enterReader/exitReader)
// for as long as it is walking that bin's list, exactly like tb.find's own
// fallback scan.
type Iterator[K comparable, V any] struct {
	m   *Map[K, V]
	ref *HandleRef
	pin Pin

	table *bucketTable
	idx   int
	cur   *node

	// activeTreeBin is non-nil while the iterator is mid-walk of a
	// treeified bin's traversal list; its reader slot is released as soon
	// as that bin is exhausted, or by Close if the iterator stops early.
	activeTreeBin *treeBin

	key K
	val V
	ok  bool
}

// NewIterator begins a weakly-consistent walk over m. The caller must call
// Close when done (or after the last Next() returns false, at which point
// Close is optional but harmless).
func (m *Map[K, V]) NewIterator() *Iterator[K, V] {
	ref := m.core.group.Bind()
	it := &Iterator[K, V]{m: m, ref: ref, pin: ref.Pin(), table: m.core.table.Load()}
	return it
}

// Next advances to the next entry, returning false once exhausted.
func (it *Iterator[K, V]) Next() bool {
	for {
		if it.cur == nil {
			if !it.advanceBin() {
				it.ok = false
				return false
			}
			continue
		}

		n := it.cur
		it.cur = n.next.Load()
		if it.cur == nil {
			it.leaveActiveTreeBin()
		}

		k, keyOK := n.key.(K)
		v, valOK := n.loadValue().(V)
		if !keyOK || !valOK {
			continue // forwarding/tree-marker node, not a real entry
		}
		it.key, it.val, it.ok = k, v, true
		return true
	}
}

// advanceBin moves to the next non-empty bin, setting up it.cur to yield
// its members — head.treeBin.first for a treeified bin, head itself
// otherwise. Returns false once every bin of the current table has been
// visited.
func (it *Iterator[K, V]) advanceBin() bool {
	if it.table == nil {
		return false
	}
	for it.idx < it.table.length() {
		i := it.idx
		it.idx++
		head := it.table.loadBin(i)
		if head == nil {
			continue
		}
		switch head.hash {
		case hashMoved:
			continue // a concurrent resize already migrated this bin; the
			// entries are visible through the successor table's own bins,
			// which this weakly-consistent walk does not chase (Non-goals:
			// no ordered iteration, snapshot semantics are best-effort).
		case hashTreeBin:
			tb := head.treeBin
			tb.enterReader()
			it.activeTreeBin = tb
			if tb.first == nil {
				it.leaveActiveTreeBin()
				continue
			}
			it.cur = tb.first
			return true
		default:
			it.cur = head
			return true
		}
	}
	return false
}

func (it *Iterator[K, V]) leaveActiveTreeBin() {
	if it.activeTreeBin != nil {
		it.activeTreeBin.exitReader()
		it.activeTreeBin = nil
	}
}

// Key and Value return the current entry; only valid after Next returns
// true.
func (it *Iterator[K, V]) Key() K   { return it.key }
func (it *Iterator[K, V]) Value() V { return it.val }

// Close releases the iterator's pin, any tree-bin reader slot it still
// holds (if the caller stops before Next returns false), and its handle
// binding.
func (it *Iterator[K, V]) Close() {
	it.leaveActiveTreeBin()
	it.pin.Unpin()
	it.ref.Close()
}
