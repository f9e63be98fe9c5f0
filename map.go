package ringmap

import (
	"sync"
	"sync/atomic"
)

// mapCore holds every field of Map that doesn't depend on the generic key
// and value types, so bucket_table.go/resize.go/treebin.go/rbtree.go can
// all operate on plain *node and any without themselves being generic.
// Map[K, V] is a thin typed facade over one mapCore.
type mapCore struct {
	group *Group

	table   atomic.Pointer[bucketTable]
	sizeCtl atomic.Int64
	count   atomic.Int64
	seq     atomic.Uint64

	refs sync.Pool
}

func newMapCore(group *Group, initialCapacity int) *mapCore {
	mc := &mapCore{group: group}
	mc.refs.New = func() any { return group.Bind() }
	if initialCapacity > 0 {
		t := newBucketTable(initialCapacity)
		mc.table.Store(t)
		mc.sizeCtl.Store(int64(t.length() * loadFactorNum / loadFactorDen))
	}
	return mc
}

func (mc *mapCore) nextSeq() uint64 { return mc.seq.Add(1) }

func (mc *mapCore) acquireRef() *HandleRef {
	return mc.refs.Get().(*HandleRef)
}

func (mc *mapCore) releaseRef(ref *HandleRef) {
	mc.refs.Put(ref)
}

// withPin runs fn under a freshly entered Pin bound to a pooled handle,
// exactly the shape every public Map/Queue method uses to get epoch
// protection for the duration of one call without the caller having to
// manage a Group or HandleRef directly.
func (mc *mapCore) withPin(fn func(Pin)) {
	ref := mc.acquireRef()
	p := ref.Pin()
	fn(p)
	p.Unpin()
	mc.releaseRef(ref)
}

func (mc *mapCore) table0() *bucketTable {
	t := mc.table.Load()
	if t != nil {
		return t
	}
	mc.withPin(func(p Pin) { mc.tryPresize(p, defaultCapacity) })
	return mc.table.Load()
}

// addCount updates the element count and grows the table if the new count
// crosses sizeCtl's threshold (ConcurrentHashMap.addCount, simplified: no
// CounterCell striping since Go's atomic.Int64.Add already contends well
// enough at the scales this package targets).
func (mc *mapCore) addCount(pin Pin, delta int64, t *bucketTable) {
	n := mc.count.Add(delta)
	if delta <= 0 {
		return
	}
	for {
		sc := mc.sizeCtl.Load()
		if n < sc || t == nil {
			return
		}
		if t != mc.table.Load() {
			return
		}
		if isResizing(sc) {
			mc.helpTransfer(pin, t)
			return
		}
		mc.startResize(t, 0)
		mc.helpTransfer(pin, t)
		return
	}
}

// find returns the node bound to key, or nil.
func (mc *mapCore) find(hash int64, key any, eq func(a, b any) bool) *node {
	t := mc.table.Load()
	if t == nil {
		return nil
	}
	i := t.binIndex(hash)
	f := t.loadBin(i)
	for f != nil {
		switch f.hash {
		case hashMoved:
			t = f.forward
			if t == nil {
				return nil
			}
			i = t.binIndex(hash)
			f = t.loadBin(i)
			continue
		case hashTreeBin:
			return f.treeBin.find(hash, key, eq)
		default:
			return findInChain(f, hash, key, eq)
		}
	}
	return nil
}

// putVal implements find-or-insert/update for one bin, following
// ConcurrentHashMap.putVal: a lock-free CAS handles a cold (nil) bin, any
// other case locks the bin's stripe and walks the chain or tree under it.
// onlyIfAbsent selects InsertAbsent's semantics over Insert's upsert.
func (mc *mapCore) putVal(pin Pin, hash int64, key any, value any, onlyIfAbsent bool, eq func(a, b any) bool) (old any, existed bool) {
	for {
		t := mc.table0()
		i := t.binIndex(hash)
		f := t.loadBin(i)

		if f == nil {
			nn := newNode(hash, key, value)
			nn.seq = mc.nextSeq()
			if t.casBin(i, nil, nn) {
				mc.addCount(pin, 1, t)
				return nil, false
			}
			continue
		}

		if f.hash == hashMoved {
			mc.helpTransfer(pin, t)
			continue
		}

		var done, retry, grow bool
		func() {
			t.lockBin(i)
			defer t.unlockBin(i)

			if t.loadBin(i) != f {
				retry = true
				return
			}

			if f.hash == hashTreeBin {
				tb := f.treeBin
				tb.lockRoot()
				defer tb.unlockRoot()
				existing := rbFind(tb.root, hash, key, eq)
				if existing != nil {
					old = existing.loadValue()
					existed = true
					if !onlyIfAbsent {
						existing.storeValue(value)
					}
					done = true
					return
				}
				nn := newNode(hash, key, value)
				nn.seq = mc.nextSeq()
				rbInsert(tb, nn)
				done = true
			} else {
				count := 0
				var last *node
				for n := f; n != nil; n = n.next.Load() {
					count++
					if n.hash == hash && eq(n.key, key) {
						old = n.loadValue()
						existed = true
						if !onlyIfAbsent {
							n.storeValue(value)
						}
						done = true
						return
					}
					last = n
				}
				nn := newNode(hash, key, value)
				nn.seq = mc.nextSeq()
				last.next.Store(nn)
				count++
				done = true
				if count >= treeifyThreshold {
					if t.length() >= minTreeifyCapacity {
						mc.treeifyBin(pin, t, i)
					} else {
						grow = true
					}
				}
			}
		}()

		if retry {
			continue
		}
		if done && !existed {
			mc.addCount(pin, 1, t)
		}
		if grow {
			// Too small a table to treeify: grow it instead, after the
			// stripe is released since the transfer takes stripe locks.
			mc.tryPresize(pin, t.length()*2)
		}
		return old, existed
	}
}

// treeifyBin converts a long plain chain into a treeBin, called with the
// bin's stripe already held by the caller (putVal).
func (mc *mapCore) treeifyBin(pin Pin, t *bucketTable, i int) {
	head := t.loadBin(i)
	if head == nil || head.hash == hashTreeBin || head.hash == hashMoved {
		return
	}
	tb := newTreeBin()
	for n := head; n != nil; {
		next := n.next.Load()
		n.next.Store(nil)
		rbInsert(tb, n)
		n = next
	}
	t.storeBin(i, newTreeMarker(tb))
}

// untreeifyBin converts a shrunken tree bin back into a plain list of
// fresh copies of its entries, called with the bin's stripe already held
// by the caller (removeVal). The tree's own nodes are left as they are, so
// retiring the tree bin afterwards does not cut the new list.
func untreeifyBin(tb *treeBin) *node {
	var head, tail *node
	for n := tb.first; n != nil; n = n.next.Load() {
		c := &node{hash: n.hash, key: n.key, seq: n.seq}
		c.val.Store(n.val.Load())
		if tail == nil {
			head = c
		} else {
			tail.next.Store(c)
		}
		tail = c
	}
	return head
}

// removeVal implements erase/eraseEqual: removes key's node if present and
// (when checkValue is set) its current value equals expect under valEq.
// Reports the removed value and whether a removal happened.
func (mc *mapCore) removeVal(pin Pin, hash int64, key any, expect any, checkValue bool, eq func(a, b any) bool, valEq func(a, b any) bool) (old any, removed bool) {
	for {
		t := mc.table.Load()
		if t == nil {
			return nil, false
		}
		i := t.binIndex(hash)
		f := t.loadBin(i)
		if f == nil {
			return nil, false
		}
		if f.hash == hashMoved {
			mc.helpTransfer(pin, t)
			continue
		}

		var retry bool
		func() {
			t.lockBin(i)
			defer t.unlockBin(i)

			if t.loadBin(i) != f {
				retry = true
				return
			}

			if f.hash == hashTreeBin {
				tb := f.treeBin
				tb.lockRoot()
				defer tb.unlockRoot()
				target := rbFind(tb.root, hash, key, eq)
				if target == nil {
					return
				}
				cur := target.loadValue()
				if checkValue && !valEq(cur, expect) {
					return
				}
				old, removed = cur, true
				rbDelete(tb, target)
				if chainLen(tb.first) <= untreeifyThreshold {
					t.storeBin(i, untreeifyBin(tb))
					pin.Retire(retireTreeBin(tb), 64)
				}
				return
			}

			var prev *node
			for n := f; n != nil; n = n.next.Load() {
				if n.hash == hash && eq(n.key, key) {
					cur := n.loadValue()
					if checkValue && !valEq(cur, expect) {
						return
					}
					old, removed = cur, true
					next := n.next.Load()
					if prev == nil {
						t.storeBin(i, next)
					} else {
						prev.next.Store(next)
					}
					pin.Retire(retireNode(n), 48)
					return
				}
				prev = n
			}
		}()

		if retry {
			continue
		}
		if removed {
			mc.count.Add(-1)
		}
		return old, removed
	}
}

func (mc *mapCore) size() int64 { return mc.count.Load() }

// Map is a striped, resizing, treeifying concurrent hash table keyed by a
// caller-supplied hash function, generalizing the teacher's ConcurrentMap
// sketch (map.go) to a generic Map[K, V] over this package's SEBR
// reclaimer (concurrent_hash_map.hpp find/insert/insertAbsent/erase/
// eraseEqual/size).
type Map[K comparable, V any] struct {
	core *mapCore
	hash func(K) uint64
}

// NewMap constructs a Map bound to its own fresh reclamation Group.
// hash must be deterministic for a given K and should distribute bits
// across the full 64-bit range (a poor hash inflates collision chains and
// tree-bin contention exactly as in Java's HashMap family).
func NewMap[K comparable, V any](hash func(K) uint64) *Map[K, V] {
	return NewMapIn[K, V](NewGroup(GroupOptions{}), hash)
}

// NewMapIn constructs a Map sharing an existing Group, letting several
// Maps and Queues participate in one reclamation domain.
func NewMapIn[K comparable, V any](group *Group, hash func(K) uint64) *Map[K, V] {
	return &Map[K, V]{core: newMapCore(group, defaultCapacity), hash: hash}
}

func (m *Map[K, V]) spread(key K) int64 {
	h := m.hash(key)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return int64(h & 0x7fffffffffffffff)
}

func keyEq[K comparable](a, b any) bool { return a.(K) == b.(K) }

// Find returns the value bound to key and whether it was present.
func (m *Map[K, V]) Find(key K) (V, bool) {
	var zero V
	var result V
	var ok bool
	m.core.withPin(func(Pin) {
		n := m.core.find(m.spread(key), key, keyEq[K])
		if n == nil {
			return
		}
		if v, assertOK := n.loadValue().(V); assertOK {
			result = v
			ok = true
		}
	})
	if !ok {
		return zero, false
	}
	return result, true
}

// Insert binds key to value unconditionally, returning the value it
// replaced, if any.
func (m *Map[K, V]) Insert(key K, value V) (old V, existed bool) {
	var zero V
	m.core.withPin(func(p Pin) {
		o, ok := m.core.putVal(p, m.spread(key), key, value, false, keyEq[K])
		if ok {
			if v, assertOK := o.(V); assertOK {
				old = v
			}
			existed = true
		}
	})
	if !existed {
		return zero, false
	}
	return old, true
}

// InsertAbsent binds key to value only if key is not already present
// (spec: at-most-one binding per key, insert_absent idempotence). It
// returns the value now stored for key — either the one just inserted or
// the one that already existed — and whether this call was the one that
// inserted it.
func (m *Map[K, V]) InsertAbsent(key K, value V) (actual V, inserted bool) {
	var result V
	var existed bool
	m.core.withPin(func(p Pin) {
		o, already := m.core.putVal(p, m.spread(key), key, value, true, keyEq[K])
		existed = already
		if already {
			if v, ok := o.(V); ok {
				result = v
			}
		} else {
			result = value
		}
	})
	return result, !existed
}

// Erase removes key unconditionally, returning the value it held.
func (m *Map[K, V]) Erase(key K) (V, bool) {
	var zero V
	var result V
	var removed bool
	m.core.withPin(func(p Pin) {
		o, ok := m.core.removeVal(p, m.spread(key), key, nil, false, keyEq[K], nil)
		removed = ok
		if ok {
			if v, assertOK := o.(V); assertOK {
				result = v
			}
		}
	})
	if !removed {
		return zero, false
	}
	return result, true
}

// EraseEqual removes key only if its current value equals expect
// (compared with valueEq), returning whether a removal happened.
func (m *Map[K, V]) EraseEqual(key K, expect V, valueEq func(a, b V) bool) bool {
	var removed bool
	wrapEq := func(a, b any) bool { return valueEq(a.(V), b.(V)) }
	m.core.withPin(func(p Pin) {
		_, ok := m.core.removeVal(p, m.spread(key), key, expect, true, keyEq[K], wrapEq)
		removed = ok
	})
	return removed
}

// Len reports the number of keys currently bound. Like
// ConcurrentHashMap.size(), this is a best-effort snapshot under
// concurrent modification, not a linearizable count (spec Non-goals).
func (m *Map[K, V]) Len() int {
	return int(m.core.size())
}

// Reserve grows the table ahead of a bulk load of approximately n entries.
func (m *Map[K, V]) Reserve(n int) {
	m.core.withPin(func(p Pin) { m.core.tryPresize(p, n) })
}

// Group returns the reclamation domain backing this map, so a caller can
// share it with a Queue or another Map.
func (m *Map[K, V]) Group() *Group { return m.core.group }

// Close releases the Group this Map created for itself. Do not call this
// if the Group was shared via NewMapIn and other structures still use it.
func (m *Map[K, V]) Close() { m.core.group.Close() }
